package spatial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
)

const (
	DefaultDirectionsURL = "https://maps.googleapis.com/maps/api/directions/json"

	directionsAPI = "directions"
)

// ErrRouteUnavailable covers every way a route lookup can fail
var ErrRouteUnavailable = errors.New("route unavailable")

// Route is a resolved path between two coordinates plus its leg metadata
type Route struct {
	Distance     string // human readable, e.g. "12.3 km"
	Duration     string // human readable, e.g. "18 mins"
	StartAddress string
	EndAddress   string
	Path         []Point
}

// Resolver looks up driving routes from the Directions API
type Resolver struct {
	client  *ExternalClient
	baseURL string
	apiKey  string
}

// NewResolver creates a resolver. An empty baseURL uses the Google endpoint.
func NewResolver(client *ExternalClient, baseURL, apiKey string) *Resolver {
	if client == nil {
		client = NewExternalClient(nil, 0)
	}
	if baseURL == "" {
		baseURL = DefaultDirectionsURL
	}
	return &Resolver{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Distance struct {
				Text string `json:"text"`
			} `json:"distance"`
			Duration struct {
				Text string `json:"text"`
			} `json:"duration"`
			StartAddress string `json:"start_address"`
			EndAddress   string `json:"end_address"`
		} `json:"legs"`
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
	} `json:"routes"`
}

// Resolve fetches the first route from origin to destination.
// All failures wrap ErrRouteUnavailable.
func (r *Resolver) Resolve(ctx context.Context, origin, destination Point) (*Route, error) {
	if r.apiKey == "" {
		return nil, fmt.Errorf("%w: no directions API key configured", ErrRouteUnavailable)
	}

	q := url.Values{}
	q.Set("origin", formatLatLng(origin))
	q.Set("destination", formatLatLng(destination))
	q.Set("key", r.apiKey)

	body, err := r.client.GetBody(ctx, directionsAPI, r.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}

	var data directionsResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", ErrRouteUnavailable, err)
	}

	if data.Status != "" && data.Status != "OK" {
		msg := data.Status
		if data.ErrorMessage != "" {
			msg += ": " + data.ErrorMessage
		}
		return nil, fmt.Errorf("%w: provider status %s", ErrRouteUnavailable, msg)
	}

	if len(data.Routes) == 0 || len(data.Routes[0].Legs) == 0 {
		return nil, fmt.Errorf("%w: no route found", ErrRouteUnavailable)
	}

	route := data.Routes[0]
	leg := route.Legs[0]

	path, err := Decode(route.OverviewPolyline.Points)
	if err != nil {
		log.Printf("[routing] bad polyline for %s -> %s: %v", formatLatLng(origin), formatLatLng(destination), err)
		return nil, fmt.Errorf("%w: %w", ErrRouteUnavailable, err)
	}

	return &Route{
		Distance:     leg.Distance.Text,
		Duration:     leg.Duration.Text,
		StartAddress: leg.StartAddress,
		EndAddress:   leg.EndAddress,
		Path:         path,
	}, nil
}

func formatLatLng(p Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}
