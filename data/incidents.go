package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"dispatch.live/spatial"
)

// ErrIncidentNotFound is returned when a directory has no record for an id
var ErrIncidentNotFound = errors.New("incident not found")

// Location is a lat/lng pair as it appears in incident payloads
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point converts to a spatial point
func (l Location) Point() spatial.Point {
	return spatial.Point{Lat: l.Lat, Lng: l.Lng}
}

// Geometry wraps the incident location
type Geometry struct {
	Location Location `json:"location"`
}

// Assignment lists who has been dispatched
type Assignment struct {
	Responders []string            `json:"responders"`
	Volunteers map[string][]string `json:"volunteers"`
}

// Update is one entry of an incident timeline
type Update struct {
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	Time        time.Time `json:"time"`
}

// Incident is an emergency record supplied by the directory
type Incident struct {
	ID                string            `json:"id"`
	EventCode         string            `json:"event_code"`
	EventType         string            `json:"event_type"`
	Category          string            `json:"category"`
	Severity          string            `json:"severity,omitempty"`
	Status            string            `json:"status,omitempty"`
	StatusMessage     string            `json:"status_message"`
	Address           string            `json:"address"`
	ReportedAt        time.Time         `json:"reportedAt"`
	Geometry          Geometry          `json:"geometry"`
	ResponderLocation Location          `json:"responder_location"`
	SmartTechData     map[string]string `json:"smart_tech_data,omitempty"`
	Assigned          Assignment        `json:"assigned"`
	Updates           []Update          `json:"updates,omitempty"`
}

// Clone returns a deep copy so callers can never mutate directory state
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	c := *i
	if i.SmartTechData != nil {
		c.SmartTechData = make(map[string]string, len(i.SmartTechData))
		for k, v := range i.SmartTechData {
			c.SmartTechData[k] = v
		}
	}
	c.Assigned.Responders = append([]string(nil), i.Assigned.Responders...)
	if i.Assigned.Volunteers != nil {
		c.Assigned.Volunteers = make(map[string][]string, len(i.Assigned.Volunteers))
		for k, v := range i.Assigned.Volunteers {
			c.Assigned.Volunteers[k] = append([]string(nil), v...)
		}
	}
	c.Updates = append([]Update(nil), i.Updates...)
	return &c
}

// Origin is where the responder starts from
func (i *Incident) Origin() spatial.Point {
	return i.ResponderLocation.Point()
}

// Destination is the incident location
func (i *Incident) Destination() spatial.Point {
	return i.Geometry.Location.Point()
}

// Directory supplies incident records.
// The core only needs FindByID; the rest serves the HTTP surface and external updates.
type Directory interface {
	FindByID(ctx context.Context, id string) (*Incident, error)
	List(ctx context.Context) ([]*Incident, error)
	SetResponderLocation(ctx context.Context, id string, loc Location) (previous Location, err error)
}

func marshalIncident(inc *Incident) ([]byte, error) {
	return json.Marshal(inc)
}

func unmarshalIncident(b []byte) (*Incident, error) {
	var inc Incident
	if err := json.Unmarshal(b, &inc); err != nil {
		return nil, err
	}
	return &inc, nil
}
