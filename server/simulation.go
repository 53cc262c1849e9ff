package server

import (
	"context"
	"log"
	"time"

	"dispatch.live/data"
	"dispatch.live/spatial"
)

// State is where a simulation is in its lifecycle
type State int

const (
	Idle State = iota
	Resolving
	Running
	Finished
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// RouteResolver finds a road route between two points
type RouteResolver interface {
	Resolve(ctx context.Context, origin, destination spatial.Point) (*spatial.Route, error)
}

// Audience is who a simulation plays to
type Audience interface {
	Broadcast(incidentID string, ev Event)
	Empty(incidentID string) bool
}

// Simulation is the handle for one incident's responder playback
type Simulation struct {
	Incident string

	state    State
	snapshot *data.Incident
	route    *RouteInfo
	plan     *spatial.Plan
	cancel   context.CancelFunc
	timer    *time.Timer
	started  time.Time
}

func (s *Simulation) State() State {
	return s.state
}

// Scheduler owns at most one simulation per incident.
// All methods run on the reactor.
type Scheduler struct {
	reactor   *Reactor
	resolver  RouteResolver
	densifier spatial.Densifier
	timeout   time.Duration
	audience  Audience
	metrics   *Metrics

	handles map[string]*Simulation
}

func NewScheduler(r *Reactor, resolver RouteResolver, densifier spatial.Densifier, timeout time.Duration, audience Audience, metrics *Metrics) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scheduler{
		reactor:   r,
		resolver:  resolver,
		densifier: densifier,
		timeout:   timeout,
		audience:  audience,
		metrics:   metrics,
		handles:   make(map[string]*Simulation),
	}
}

// Get returns the live handle for an incident, if any
func (s *Scheduler) Get(id string) *Simulation {
	return s.handles[id]
}

// Len is the number of live handles
func (s *Scheduler) Len() int {
	return len(s.handles)
}

// Start begins a simulation for inc unless one is already live
func (s *Scheduler) Start(inc *data.Incident) *Simulation {
	if h, ok := s.handles[inc.ID]; ok {
		return h
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	h := &Simulation{
		Incident: inc.ID,
		state:    Resolving,
		snapshot: inc,
		cancel:   cancel,
		started:  time.Now(),
	}
	s.handles[inc.ID] = h
	s.metrics.setActive(len(s.handles))

	log.Printf("[sim] %s resolving route %v -> %v", inc.ID, inc.Origin(), inc.Destination())

	go func() {
		start := time.Now()
		route, err := s.resolver.Resolve(ctx, inc.Origin(), inc.Destination())
		cancel()
		took := time.Since(start)
		s.reactor.Post(func() { s.resolved(h, route, err, took) })
	}()

	return h
}

func (s *Scheduler) live(h *Simulation, state State) bool {
	return s.handles[h.Incident] == h && h.state == state
}

func (s *Scheduler) resolved(h *Simulation, route *spatial.Route, err error, took time.Duration) {
	if !s.live(h, Resolving) {
		return
	}
	s.metrics.resolved(err, took)

	id := h.Incident
	if s.audience.Empty(id) {
		s.finish(h, Cancelled)
		return
	}

	if err != nil {
		log.Printf("[sim] %s route unavailable: %v", id, err)
		s.audience.Broadcast(id, incidentDataEvent(h.snapshot, nil))
		if s.live(h, Resolving) {
			s.finish(h, Finished)
		}
		return
	}

	h.route = routeInfo(route)
	h.plan = spatial.NewPlan(s.densifier.Densify(route.Path))
	h.state = Running
	log.Printf("[sim] %s running %d samples over %.1f km (%s, %s)", id, h.plan.Len(), spatial.PathLengthKm(route.Path), route.Distance, route.Duration)

	s.audience.Broadcast(id, incidentDataEvent(h.snapshot, h.route))
	s.step(h)
}

// step emits the next sample and arms the timer for the one after
func (s *Scheduler) step(h *Simulation) {
	if !s.live(h, Running) {
		return
	}
	h.timer = nil

	id := h.Incident
	if s.audience.Empty(id) {
		s.finish(h, Cancelled)
		return
	}

	sample, ok := h.plan.Next()
	if !ok {
		s.finish(h, Finished)
		return
	}

	s.audience.Broadcast(id, locationEvent(id, sample.Position, sample.Bearing))
	s.metrics.sampleEmitted()

	// the broadcast may have emptied the room
	if !s.live(h, Running) {
		return
	}
	if h.plan.Remaining() == 0 {
		s.finish(h, Finished)
		return
	}
	h.timer = s.reactor.After(sample.Delay, func() { s.step(h) })
}

// Cancel stops the live simulation for an incident
func (s *Scheduler) Cancel(id string) {
	if h, ok := s.handles[id]; ok {
		s.finish(h, Cancelled)
	}
}

// CancelAll stops every live simulation
func (s *Scheduler) CancelAll() {
	for _, h := range s.handles {
		s.finish(h, Cancelled)
	}
}

func (s *Scheduler) finish(h *Simulation, state State) {
	h.state = state
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	if h.cancel != nil {
		h.cancel()
	}
	if s.handles[h.Incident] == h {
		delete(s.handles, h.Incident)
	}
	s.metrics.setActive(len(s.handles))
	s.metrics.simulationDone(state)

	log.Printf("[sim] %s %s after %v", h.Incident, state, time.Since(h.started).Round(time.Millisecond))
}

// CatchUp is what a late joiner needs to draw the current route
func (s *Scheduler) CatchUp(id string) (Event, bool) {
	h, ok := s.handles[id]
	if !ok || h.state != Running {
		return Event{}, false
	}
	return incidentDataEvent(h.snapshot, h.route), true
}
