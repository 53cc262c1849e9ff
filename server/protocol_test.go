package server

import (
	"encoding/json"
	"strings"
	"testing"

	"dispatch.live/data"
	"dispatch.live/spatial"
)

func TestParseID(t *testing.T) {
	testCases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`"45"`, "45", true},
		{`45`, "45", true},
		{` "abc-1" `, "abc-1", true},
		{`""`, "", false},
		{`null`, "", false},
		{`{"id": 45}`, "", false},
		{`true`, "", false},
		{``, "", false},
	}

	for _, tc := range testCases {
		got, err := ParseID(json.RawMessage(tc.raw))
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseID(%s) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseID(%s) = %q, want error", tc.raw, got)
		}
	}
}

func TestIncidentDataFlattensIncident(t *testing.T) {
	inc := &data.Incident{
		ID:                "45",
		EventType:         "Cardiac Event",
		ResponderLocation: data.Location{Lat: 38.7, Lng: -90.2},
	}
	route := routeInfo(&spatial.Route{
		Distance: "1 km",
		Path:     []spatial.Point{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}},
	})

	b, err := json.Marshal(incidentDataEvent(inc, route))
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)

	for _, want := range []string{
		`"event":"incidentData"`,
		`"id":"45"`,
		`"event_type":"Cardiac Event"`,
		`"responder_location":{"lat":38.7,"lng":-90.2}`,
		`"routeInfo":{"distance":"1 km"`,
		`"path":[[1,2],[3,4]]`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %s in %s", want, s)
		}
	}

	b, _ = json.Marshal(incidentDataEvent(inc, nil))
	if strings.Contains(string(b), "routeInfo") {
		t.Errorf("bare incidentData carries routeInfo: %s", b)
	}
}

func TestLocationEventShape(t *testing.T) {
	b, _ := json.Marshal(locationEvent("45", spatial.Point{Lat: 38.7, Lng: -90.2}, 135))
	want := `{"event":"responderLocationUpdated","data":{"incidentId":"45","position":[38.7,-90.2],"bearing":135}}`
	if string(b) != want {
		t.Errorf("got  %s\nwant %s", b, want)
	}
}
