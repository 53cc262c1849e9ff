package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"dispatch.live/data"
)

// NewHandler wires the HTTP surface around the server
func NewHandler(s *Server, dir data.Directory, metrics *Metrics, allowedOrigins []string) http.Handler {
	upgrader := NewUpgrader(allowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		if !IsWebSocket(r) {
			http.Error(w, "Expected a websocket upgrade", 400)
			return
		}
		s.ServeWebSocket(w, r, upgrader)
	})
	mux.HandleFunc("GET /api/incidents", ListIncidentsHandler(dir))
	mux.HandleFunc("GET /api/incidents/{id}", GetIncidentHandler(dir, s.resolver, s.timeout))
	mux.HandleFunc("GET /healthz", HealthHandler(s))
	mux.Handle("GET /metrics", metrics.Handler())

	return WithCors(mux, allowedOrigins)
}

func ListIncidentsHandler(dir data.Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidents, err := dir.List(r.Context())
		if err != nil {
			log.Printf("[server] List incidents: %v", err)
			http.Error(w, "Cannot list incidents", 500)
			return
		}
		writeJSON(w, incidents)
	}
}

// GetIncidentHandler returns the incident with a freshly resolved route,
// or the bare incident when no route can be found.
func GetIncidentHandler(dir data.Directory, resolver RouteResolver, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		inc, err := dir.FindByID(r.Context(), id)
		if errors.Is(err, data.ErrIncidentNotFound) {
			http.Error(w, "Incident not found", 404)
			return
		}
		if err != nil {
			log.Printf("[server] Get incident %s: %v", id, err)
			http.Error(w, "Cannot load incident", 500)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		reply := IncidentData{Incident: inc}
		route, err := resolver.Resolve(ctx, inc.Origin(), inc.Destination())
		switch {
		case err != nil:
			log.Printf("[server] Route for incident %s: %v", id, err)
		case route != nil:
			reply.RouteInfo = routeInfo(route)
		}
		writeJSON(w, reply)
	}
}

func HealthHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-s.Done():
			http.Error(w, "Shutting down", 503)
			return
		default:
		}
		writeJSON(w, s.Stats())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Cannot encode response", 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, string(b))
}

// SetHeaders allows any origin unless some are listed, in which case
// only a listed origin is echoed back.
func SetHeaders(w http.ResponseWriter, r *http.Request, allowed []string) {
	if len(allowed) == 0 {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Add("Vary", "Origin")
		if origin := r.Header.Get("Origin"); originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Client-Id")
}

func WithCors(h http.Handler, allowed []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetHeaders(w, r, allowed)

		// if options return immediately
		if r.Method == "OPTIONS" {
			return
		}

		h.ServeHTTP(w, r)
	})
}
