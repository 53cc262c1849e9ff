package data

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory incident directory
type MemoryDirectory struct {
	mu        sync.RWMutex
	incidents map[string]*Incident
}

// NewMemoryDirectory returns a directory holding copies of the given incidents
func NewMemoryDirectory(incidents ...*Incident) *MemoryDirectory {
	d := &MemoryDirectory{
		incidents: make(map[string]*Incident),
	}
	for _, inc := range incidents {
		d.Put(inc)
	}
	return d
}

// Put inserts or replaces an incident
func (d *MemoryDirectory) Put(inc *Incident) {
	d.mu.Lock()
	d.incidents[inc.ID] = inc.Clone()
	d.mu.Unlock()
}

func (d *MemoryDirectory) FindByID(ctx context.Context, id string) (*Incident, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	inc, ok := d.incidents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	return inc.Clone(), nil
}

func (d *MemoryDirectory) List(ctx context.Context) ([]*Incident, error) {
	d.mu.RLock()
	list := make([]*Incident, 0, len(d.incidents))
	for _, inc := range d.incidents {
		list = append(list, inc.Clone())
	}
	d.mu.RUnlock()

	sortIncidents(list)
	return list, nil
}

func (d *MemoryDirectory) SetResponderLocation(ctx context.Context, id string, loc Location) (Location, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inc, ok := d.incidents[id]
	if !ok {
		return Location{}, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	prev := inc.ResponderLocation
	inc.ResponderLocation = loc
	return prev, nil
}

// sortIncidents orders numerically where ids are numbers, lexically otherwise
func sortIncidents(list []*Incident) {
	sort.SliceStable(list, func(i, j int) bool {
		a, errA := strconv.Atoi(list[i].ID)
		b, errB := strconv.Atoi(list[j].ID)
		if errA == nil && errB == nil {
			return a < b
		}
		return list[i].ID < list[j].ID
	})
}

// Fixtures returns the dispatch board's standing incidents
func Fixtures() []*Incident {
	now := time.Now()

	defaultUpdates := []Update{
		{Headline: "Volunteer Arrived at Scene", Description: "Volunteer #1234 is assisting with CPR. Defibrillator still needed.", Time: now.Add(-7 * time.Minute)},
		{Headline: "ETA Confirmed for Ambulance", Description: "Ambulance WGN-2021 5 minutes away. Team ready for defibrillator use.", Time: now.Add(-6 * time.Minute)},
		{Headline: "Defibrillator En Route", Description: "Volunteer #22 picked up a defibrillator from the nearest facility, ETA 3 minutes.", Time: now.Add(-5 * time.Minute)},
	}
	defaultVitals := map[string]string{"heart_rate": "35 BPM", "SpO2": "92%", "temperature": "37.8°C"}

	return []*Incident{
		{
			ID:                "1",
			EventCode:         "MED-001",
			EventType:         "Medical Emergency",
			Category:          "Medical",
			Severity:          "high",
			Status:            "active",
			StatusMessage:     "Responders en route",
			Address:           "123 Main St",
			ReportedAt:        now,
			Geometry:          Geometry{Location: Location{Lat: 40.7128, Lng: -74.0060}},
			ResponderLocation: Location{Lat: 40.7129, Lng: -74.0061},
			SmartTechData:     map[string]string{"heart_rate": "120 bpm", "SpO2": "95%", "temperature": "37.2°C"},
			Assigned: Assignment{
				Responders: []string{"EMS-001", "POL-001"},
				Volunteers: map[string][]string{"basic": {"Vol #122", "Vol #159"}, "Intermediate": {"Vol #12"}},
			},
			Updates: []Update{{Headline: "CPR Initiated", Description: "Volunteer #122 started CPR", Time: now}},
		},
		{
			ID:                "2",
			EventCode:         "FIRE-001",
			EventType:         "Fire Emergency",
			Category:          "Fire",
			Severity:          "critical",
			Status:            "active",
			StatusMessage:     "Firefighters on scene",
			Address:           "456 Oak St",
			ReportedAt:        now,
			Geometry:          Geometry{Location: Location{Lat: 40.7130, Lng: -74.0062}},
			ResponderLocation: Location{Lat: 40.7131, Lng: -74.0063},
			Assigned: Assignment{
				Responders: []string{"FD-001", "EMS-002"},
				Volunteers: map[string][]string{"basic": {"Vol #123"}, "Advanced": {"Vol #160"}},
			},
			Updates: []Update{{Headline: "Fire Contained", Description: "Main fire has been contained", Time: now}},
		},
		{
			ID:                "40",
			EventCode:         "RR",
			EventType:         "Robbery",
			Category:          "Crime",
			Address:           "Harris Lane, Madison County, St. Louis, IL 62002",
			ReportedAt:        now.Add(-25 * time.Minute),
			Geometry:          Geometry{Location: Location{Lat: 38.925196855855506, Lng: -90.125183317234}},
			ResponderLocation: Location{Lat: 39.0, Lng: -90.4},
			SmartTechData:     defaultVitals,
			Assigned: Assignment{
				Volunteers: map[string][]string{"Intermediate": {"#55", "#61"}},
			},
			Updates: defaultUpdates,
		},
		{
			ID:                "45",
			EventCode:         "CVX",
			EventType:         "Cardiac Event",
			Category:          "Medical",
			Address:           "1359 North 31st Street, East St. Louis, IL 62204",
			ReportedAt:        now.Add(-5 * time.Minute),
			Geometry:          Geometry{Location: Location{Lat: 38.625196855855506, Lng: -90.115183317234}},
			ResponderLocation: Location{Lat: 38.7, Lng: -90.2},
			SmartTechData:     defaultVitals,
			Assigned: Assignment{
				Responders: []string{"WGN-2021"},
				Volunteers: map[string][]string{"basic": {"#1234", "#22"}, "Intermediate": {"#12"}},
			},
			Updates: defaultUpdates,
		},
		{
			ID:                "47",
			EventCode:         "F1V",
			EventType:         "Structure Fire",
			Category:          "Fire",
			Address:           "90 Cedar Drive, Fairview Heights, East St. Louis, IL 62208",
			ReportedAt:        now.Add(-10 * time.Minute),
			Geometry:          Geometry{Location: Location{Lat: 38.605196855855506, Lng: -90.015183317234}},
			ResponderLocation: Location{Lat: 38.5, Lng: -90.3},
			SmartTechData:     defaultVitals,
			Assigned: Assignment{
				Volunteers: map[string][]string{"basic": {"#301"}},
			},
			Updates: defaultUpdates,
		},
	}
}
