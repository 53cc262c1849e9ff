package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dispatch.live/data"
	"dispatch.live/spatial"
)

// Inbound events
const (
	JoinIncident            = "joinIncident"
	LeaveIncident           = "leaveIncident"
	UpdateResponderLocation = "updateResponderLocation"
	RequestRoute            = "requestRoute"
)

// Outbound events
const (
	IncidentDataEvent      = "incidentData"
	ResponderLocationEvent = "responderLocationUpdated"
	ForceDisconnectEvent   = "forceDisconnect"
	RouteDataEvent         = "routeData"
	ErrorEvent             = "error"
)

var errBadID = errors.New("incident id must be a string or number")

// Event is the envelope for every message in both directions
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

type inbound struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// RouteInfo is the resolved route as clients see it
type RouteInfo struct {
	Distance     string       `json:"distance"`
	Duration     string       `json:"duration"`
	StartAddress string       `json:"startAddress"`
	EndAddress   string       `json:"endAddress"`
	Path         [][2]float64 `json:"path"`
}

func routeInfo(r *spatial.Route) *RouteInfo {
	path := make([][2]float64, len(r.Path))
	for i, p := range r.Path {
		path[i] = p.Pair()
	}
	return &RouteInfo{
		Distance:     r.Distance,
		Duration:     r.Duration,
		StartAddress: r.StartAddress,
		EndAddress:   r.EndAddress,
		Path:         path,
	}
}

// IncidentData is the incident record, plus the route when one resolved
type IncidentData struct {
	*data.Incident
	RouteInfo *RouteInfo `json:"routeInfo,omitempty"`
}

// LocationUpdate moves the responder marker
type LocationUpdate struct {
	IncidentID string     `json:"incidentId"`
	Position   [2]float64 `json:"position"`
	Bearing    float64    `json:"bearing"`
}

type ForceDisconnect struct {
	Reason string `json:"reason"`
}

// RouteData answers an ad-hoc route request
type RouteData struct {
	IncidentID string     `json:"incidentId,omitempty"`
	RouteInfo  *RouteInfo `json:"routeInfo,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}

type locationRequest struct {
	IncidentID json.RawMessage `json:"incidentId"`
	Location   data.Location   `json:"location"`
}

type routeRequest struct {
	IncidentID json.RawMessage `json:"incidentId"`
	Start      data.Location   `json:"start"`
	End        data.Location   `json:"end"`
}

func incidentDataEvent(inc *data.Incident, route *RouteInfo) Event {
	return Event{Name: IncidentDataEvent, Data: IncidentData{Incident: inc, RouteInfo: route}}
}

func locationEvent(id string, p spatial.Point, bearing float64) Event {
	return Event{Name: ResponderLocationEvent, Data: LocationUpdate{IncidentID: id, Position: p.Pair(), Bearing: bearing}}
}

func errorEvent(format string, args ...any) Event {
	return Event{Name: ErrorEvent, Data: ErrorData{Message: fmt.Sprintf(format, args...)}}
}

// ParseID accepts an incident id sent as "45" or 45
func ParseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errBadID
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", errBadID
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errBadID
	}
	return n.String(), nil
}
