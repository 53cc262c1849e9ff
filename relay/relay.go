// Package relay feeds responder positions published on Redis into the server.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch.live/data"
	"dispatch.live/server"
)

var errNoLocation = errors.New("update has no location")

// Sink receives each decoded update
type Sink func(ctx context.Context, incidentID string, loc data.Location)

// Update is the payload published by field units
type Update struct {
	IncidentID json.RawMessage `json:"incidentId"`
	Location   *data.Location  `json:"location"`
}

// Relay subscribes to one Redis channel
type Relay struct {
	client  *redis.Client
	channel string
	sink    Sink
}

// New connects to Redis and checks it is reachable
func New(redisURL, channel string, sink Sink) (*Relay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Relay{client: client, channel: channel, sink: sink}, nil
}

func (r *Relay) Close() error {
	return r.client.Close()
}

// Run delivers updates until ctx is done
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	log.Printf("[relay] Listening on %s", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, loc, err := ParseUpdate([]byte(msg.Payload))
			if err != nil {
				log.Printf("[relay] Dropping update: %v", err)
				continue
			}
			r.sink(ctx, id, loc)
		}
	}
}

// Publish sends an update for an incident
func (r *Relay) Publish(ctx context.Context, incidentID string, loc data.Location) error {
	id, _ := json.Marshal(incidentID)
	b, err := json.Marshal(Update{IncidentID: id, Location: &loc})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// ParseUpdate decodes a published update
func ParseUpdate(payload []byte) (string, data.Location, error) {
	var u Update
	if err := json.Unmarshal(payload, &u); err != nil {
		return "", data.Location{}, fmt.Errorf("decode update: %w", err)
	}
	id, err := server.ParseID(u.IncidentID)
	if err != nil {
		return "", data.Location{}, err
	}
	if u.Location == nil {
		return "", data.Location{}, errNoLocation
	}
	return id, *u.Location, nil
}
