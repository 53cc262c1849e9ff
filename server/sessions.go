package server

import (
	"errors"

	"github.com/google/uuid"
)

// ErrChannelClosed is returned by a channel that can no longer deliver
var ErrChannelClosed = errors.New("channel closed")

// errChannelFull is returned when a client is not keeping up
var errChannelFull = errors.New("channel send buffer full")

// Channel delivers events to one connected client.
// Send must not block; Close must be safe to call more than once.
type Channel interface {
	Send(Event) error
	Close()
}

// Session is one live connection
type Session struct {
	ID     string
	Client string

	channel Channel

	// reactor owned
	incident string
	released bool
}

// NewSession creates a session for the client identity
func NewSession(client string, ch Channel) *Session {
	id := uuid.New().String()
	if client == "" {
		client = id
	}
	return &Session{
		ID:      id,
		Client:  client,
		channel: ch,
	}
}

// Incident is the room the session is in, if any
func (s *Session) Incident() string {
	return s.incident
}

// Registry admits at most one session per client identity
type Registry struct {
	clients map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Session),
	}
}

// Admit makes s the live session for its client.
// A previous session for the same client is told why and closed; the
// caller is responsible for taking it out of its room.
func (r *Registry) Admit(s *Session, reason string) (superseded *Session) {
	prev, ok := r.clients[s.Client]
	r.clients[s.Client] = s
	if !ok || prev == s {
		return nil
	}

	prev.released = true
	prev.channel.Send(Event{Name: ForceDisconnectEvent, Data: ForceDisconnect{Reason: reason}})
	prev.channel.Close()
	return prev
}

// Release drops s if it is still the admitted session for its client
func (r *Registry) Release(s *Session) bool {
	if s.released {
		return false
	}
	s.released = true
	if r.clients[s.Client] == s {
		delete(r.clients, s.Client)
	}
	return true
}

// Admitted reports whether s is the live session for its client
func (r *Registry) Admitted(s *Session) bool {
	return !s.released && r.clients[s.Client] == s
}

func (r *Registry) Len() int {
	return len(r.clients)
}

// All returns the admitted sessions
func (r *Registry) All() []*Session {
	list := make([]*Session, 0, len(r.clients))
	for _, s := range r.clients {
		list = append(list, s)
	}
	return list
}
