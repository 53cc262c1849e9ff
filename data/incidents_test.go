package data

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openDirectories(t *testing.T) map[string]Directory {
	t.Helper()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "incidents.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Seed(context.Background(), Fixtures()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	return map[string]Directory{
		"memory": NewMemoryDirectory(Fixtures()...),
		"sqlite": db,
	}
}

func TestFindByID(t *testing.T) {
	for name, dir := range openDirectories(t) {
		t.Run(name, func(t *testing.T) {
			inc, err := dir.FindByID(context.Background(), "45")
			if err != nil {
				t.Fatalf("FindByID: %v", err)
			}
			if inc.ResponderLocation != (Location{Lat: 38.7, Lng: -90.2}) {
				t.Errorf("responder = %+v", inc.ResponderLocation)
			}
			if inc.EventType != "Cardiac Event" {
				t.Errorf("event type = %q", inc.EventType)
			}
			if got := inc.Destination(); got.Lat != 38.625196855855506 || got.Lng != -90.115183317234 {
				t.Errorf("destination = %+v", got)
			}

			if _, err := dir.FindByID(context.Background(), "999"); !errors.Is(err, ErrIncidentNotFound) {
				t.Errorf("unknown id error = %v, want ErrIncidentNotFound", err)
			}
		})
	}
}

func TestListOrdersByID(t *testing.T) {
	for name, dir := range openDirectories(t) {
		t.Run(name, func(t *testing.T) {
			list, err := dir.List(context.Background())
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			want := []string{"1", "2", "40", "45", "47"}
			if len(list) != len(want) {
				t.Fatalf("got %d incidents, want %d", len(list), len(want))
			}
			for i, inc := range list {
				if inc.ID != want[i] {
					t.Errorf("list[%d] = %s, want %s", i, inc.ID, want[i])
				}
			}
		})
	}
}

func TestSetResponderLocation(t *testing.T) {
	for name, dir := range openDirectories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			next := Location{Lat: 38.68, Lng: -90.18}

			prev, err := dir.SetResponderLocation(ctx, "45", next)
			if err != nil {
				t.Fatalf("SetResponderLocation: %v", err)
			}
			if prev != (Location{Lat: 38.7, Lng: -90.2}) {
				t.Errorf("previous = %+v", prev)
			}

			inc, _ := dir.FindByID(ctx, "45")
			if inc.ResponderLocation != next {
				t.Errorf("stored responder = %+v, want %+v", inc.ResponderLocation, next)
			}

			if _, err := dir.SetResponderLocation(ctx, "nope", next); !errors.Is(err, ErrIncidentNotFound) {
				t.Errorf("unknown id error = %v, want ErrIncidentNotFound", err)
			}
		})
	}
}

func TestMemoryDirectoryReturnsCopies(t *testing.T) {
	dir := NewMemoryDirectory(Fixtures()...)
	ctx := context.Background()

	inc, _ := dir.FindByID(ctx, "45")
	inc.ResponderLocation = Location{}
	inc.Assigned.Volunteers["basic"][0] = "changed"
	inc.SmartTechData["SpO2"] = "0%"

	again, _ := dir.FindByID(ctx, "45")
	if again.ResponderLocation.Lat != 38.7 {
		t.Errorf("responder mutated through copy: %+v", again.ResponderLocation)
	}
	if again.Assigned.Volunteers["basic"][0] != "#1234" {
		t.Errorf("volunteers mutated through copy: %v", again.Assigned.Volunteers)
	}
	if again.SmartTechData["SpO2"] != "92%" {
		t.Errorf("vitals mutated through copy: %v", again.SmartTechData)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.SetResponderLocation(ctx, "1", Location{Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("SetResponderLocation: %v", err)
	}
	store.Close()

	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	inc, err := store.FindByID(ctx, "1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if inc.ResponderLocation != (Location{Lat: 1, Lng: 2}) {
		t.Errorf("reseeding overwrote stored location: %+v", inc.ResponderLocation)
	}
}

func TestOpenInMemory(t *testing.T) {
	store, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := store.FindByID(context.Background(), "40"); err != nil {
		t.Errorf("FindByID(40): %v", err)
	}
}
