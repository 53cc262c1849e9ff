// Package server implements the dispatch stream server.
//
// Clients join an incident room and watch a simulated responder drive the
// resolved route to the incident. Everything that touches sessions, rooms
// or simulations runs on a single reactor goroutine; directory lookups and
// route resolution happen off it and post their results back.
package server

import (
	"context"
	"log"
	"time"

	"dispatch.live/data"
	"dispatch.live/spatial"
)

const supersededReason = "Another session was opened for this client"

// Options configure a Server
type Options struct {
	Directory      data.Directory
	Resolver       RouteResolver
	Densifier      spatial.Densifier
	ResolveTimeout time.Duration
	Metrics        *Metrics
}

type Server struct {
	Created int64

	reactor   *Reactor
	directory data.Directory
	resolver  RouteResolver
	timeout   time.Duration
	metrics   *Metrics

	// reactor owned
	sessions *Registry
	rooms    *Rooms
	sims     *Scheduler
}

// Stats is a point in time view of the server
type Stats struct {
	Sessions    int `json:"sessions"`
	Rooms       int `json:"rooms"`
	Simulations int `json:"simulations"`
}

func New(opts Options) *Server {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 10 * time.Second
	}

	s := &Server{
		Created:   time.Now().UnixNano(),
		reactor:   NewReactor(),
		directory: opts.Directory,
		resolver:  opts.Resolver,
		timeout:   opts.ResolveTimeout,
		metrics:   opts.Metrics,
		sessions:  NewRegistry(),
		rooms:     NewRooms(),
	}
	s.sims = NewScheduler(s.reactor, opts.Resolver, opts.Densifier, opts.ResolveTimeout, s, opts.Metrics)
	return s
}

// Run processes server events until ctx is done, then cancels every
// simulation and closes every channel.
func (s *Server) Run(ctx context.Context) {
	log.Printf("[server] Running")
	s.reactor.Run(ctx, s.shutdown)
	log.Printf("[server] Stopped")
}

// Done is closed once Run has returned
func (s *Server) Done() <-chan struct{} {
	return s.reactor.Done()
}

func (s *Server) shutdown() {
	s.sims.CancelAll()
	for _, sess := range s.sessions.All() {
		s.sessions.Release(sess)
		sess.channel.Close()
	}
	s.rooms = NewRooms()
	s.updateCounts()
}

// Connect admits a new session for client over ch
func (s *Server) Connect(client string, ch Channel) *Session {
	sess := NewSession(client, ch)
	if !s.reactor.Post(func() { s.admit(sess) }) {
		ch.Close()
	}
	return sess
}

func (s *Server) admit(sess *Session) {
	prev := s.sessions.Admit(sess, supersededReason)
	if prev != nil {
		log.Printf("[server] Client %s reconnected, closing session %s", sess.Client, prev.ID)
		s.metrics.superseded()
		s.leaveRoom(prev)
	}
	s.updateCounts()
}

// Disconnect releases a session whose transport has gone away
func (s *Server) Disconnect(sess *Session) {
	s.reactor.Post(func() { s.release(sess) })
}

func (s *Server) release(sess *Session) {
	if !s.sessions.Release(sess) {
		return
	}
	s.leaveRoom(sess)
	sess.channel.Close()
	s.updateCounts()
}

// Join moves the session into the incident's room.
// The directory is consulted on the caller's goroutine.
func (s *Server) Join(ctx context.Context, sess *Session, id string) {
	inc, err := s.directory.FindByID(ctx, id)
	s.reactor.Post(func() { s.join(sess, id, inc, err) })
}

func (s *Server) join(sess *Session, id string, inc *data.Incident, err error) {
	if !s.sessions.Admitted(sess) {
		return
	}
	if err != nil {
		log.Printf("[server] Session %s join %s: %v", sess.ID, id, err)
		s.send(sess, errorEvent("Incident %s not found", id))
		return
	}

	if sess.incident != "" && sess.incident != id {
		s.leaveRoom(sess)
	}
	sess.incident = id
	added := s.rooms.Add(id, sess)
	if added {
		log.Printf("[server] Session %s joined %s (%d watching)", sess.ID, id, s.rooms.Size(id))
	}

	if h := s.sims.Get(id); h != nil {
		if added {
			if ev, ok := s.sims.CatchUp(id); ok {
				s.send(sess, ev)
			}
		}
	} else {
		s.sims.Start(inc)
	}
	s.updateCounts()
}

// Leave takes the session out of the incident's room
func (s *Server) Leave(sess *Session, id string) {
	s.reactor.Post(func() {
		if sess.incident != id {
			return
		}
		s.leaveRoom(sess)
		s.updateCounts()
	})
}

func (s *Server) leaveRoom(sess *Session) {
	id := sess.incident
	if id == "" {
		return
	}
	sess.incident = ""
	if s.rooms.Remove(id, sess) {
		s.sims.Cancel(id)
	}
}

// UpdateResponderLocation records an externally reported responder
// position and shows it to the incident's room.
func (s *Server) UpdateResponderLocation(ctx context.Context, sess *Session, id string, loc data.Location) {
	prev, err := s.directory.SetResponderLocation(ctx, id, loc)
	if err != nil {
		log.Printf("[server] Update location for %s: %v", id, err)
		if sess != nil {
			s.reactor.Post(func() {
				if s.sessions.Admitted(sess) {
					s.send(sess, errorEvent("Incident %s not found", id))
				}
			})
		}
		return
	}

	bearing := spatial.Bearing(prev.Point(), loc.Point())
	s.reactor.Post(func() {
		s.Broadcast(id, locationEvent(id, loc.Point(), bearing))
	})
}

// RequestRoute resolves an ad-hoc route and replies to the requester only
func (s *Server) RequestRoute(ctx context.Context, sess *Session, id string, start, end data.Location) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply := RouteData{IncidentID: id}
	route, err := s.resolver.Resolve(ctx, start.Point(), end.Point())
	if err != nil {
		log.Printf("[server] Route request from %s: %v", sess.ID, err)
		reply.Error = "Failed to fetch route"
	} else {
		reply.RouteInfo = routeInfo(route)
	}

	s.reactor.Post(func() {
		if s.sessions.Admitted(sess) {
			s.send(sess, Event{Name: RouteDataEvent, Data: reply})
		}
	})
}

// Broadcast sends ev to every session in the incident's room.
// Sessions that cannot take it are released afterwards.
func (s *Server) Broadcast(id string, ev Event) {
	var failed []*Session
	for _, sess := range s.rooms.Members(id) {
		if err := sess.channel.Send(ev); err != nil {
			failed = append(failed, sess)
		}
	}
	for _, sess := range failed {
		log.Printf("[server] Dropping session %s from %s", sess.ID, id)
		s.release(sess)
	}
}

// Empty reports whether nobody is watching the incident
func (s *Server) Empty(id string) bool {
	return s.rooms.Empty(id)
}

func (s *Server) send(sess *Session, ev Event) {
	if err := sess.channel.Send(ev); err != nil {
		log.Printf("[server] Dropping session %s: %v", sess.ID, err)
		s.release(sess)
	}
}

func (s *Server) updateCounts() {
	s.metrics.setCounts(s.sessions.Len(), s.rooms.Len())
}

// Stats reports current counts
func (s *Server) Stats() Stats {
	var st Stats
	s.reactor.Call(func() {
		st = Stats{
			Sessions:    s.sessions.Len(),
			Rooms:       s.rooms.Len(),
			Simulations: s.sims.Len(),
		}
	})
	return st
}

// Simulation reports the state of an incident's live simulation
func (s *Server) Simulation(id string) (State, bool) {
	var (
		state State
		ok    bool
	)
	s.reactor.Call(func() {
		if h := s.sims.Get(id); h != nil {
			state, ok = h.state, true
		}
	})
	return state, ok
}
