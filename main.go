package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"dispatch.live/config"
	"dispatch.live/data"
	"dispatch.live/relay"
	"dispatch.live/server"
	"dispatch.live/spatial"
)

func init() {
	runtime.GOMAXPROCS(runtime.NumCPU())
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := data.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("[data] %v", err)
	}
	defer store.Close()

	if cfg.GoogleMapsAPIKey == "" {
		log.Printf("[routing] GOOGLE_MAPS_API_KEY not set, simulations will show incidents without routes")
	}
	external := spatial.NewExternalClient(&http.Client{Timeout: cfg.ResolveTimeout}, cfg.RoutingMinInterval)
	resolver := spatial.NewResolver(external, cfg.DirectionsURL, cfg.GoogleMapsAPIKey)

	metrics, err := server.NewMetrics(nil)
	if err != nil {
		log.Fatalf("[server] metrics: %v", err)
	}

	srv := server.New(server.Options{
		Directory:      store,
		Resolver:       resolver,
		Densifier:      spatial.NewDensifier(cfg.SamplesPerSegment, cfg.BaseDelay),
		ResolveTimeout: cfg.ResolveTimeout,
		Metrics:        metrics,
	})
	go srv.Run(ctx)

	if cfg.RedisURL != "" {
		r, err := relay.New(cfg.RedisURL, cfg.RedisChannel, func(ctx context.Context, id string, loc data.Location) {
			srv.UpdateResponderLocation(ctx, nil, id, loc)
		})
		if err != nil {
			log.Fatalf("[relay] %v", err)
		}
		defer r.Close()

		go func() {
			if err := r.Run(ctx); err != nil {
				log.Printf("[relay] %v", err)
			}
		}()
	}

	// routing provider health, once a minute
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if summary := external.Stats().Summary(); summary != "" {
					log.Printf("[routing] %s", summary)
				}
			}
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.NewHandler(srv, store, metrics, cfg.AllowedOrigins),
	}

	go func() {
		<-ctx.Done()
		log.Printf("[server] Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("[server] Listening on %s", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	<-srv.Done()
}
