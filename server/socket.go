package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the client.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client.
	pongWait = 60 * time.Second

	// Send pings to client with this period. Must be less than pongWait.
	pingPeriod = 15 * time.Second

	// Maximum message size allowed from client.
	maxMessageSize = 4096

	// Events buffered per client before it is considered too slow.
	sendBuffer = 64
)

// check if the request is for websockets
func IsWebSocket(r *http.Request) bool {
	contains := func(key, val string) bool {
		vv := strings.Split(r.Header.Get(key), ",")
		for _, v := range vv {
			if val == strings.ToLower(strings.TrimSpace(v)) {
				return true
			}
		}
		return false
	}

	return contains("Connection", "upgrade") && contains("Upgrade", "websocket")
}

// NewUpgrader accepts any origin unless some are listed
func NewUpgrader(allowed []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return len(allowed) == 0 || originAllowed(allowed, r.Header.Get("Origin"))
		},
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(origin, a) {
			return true
		}
	}
	return false
}

// clientID is who the client says it is, used to collapse duplicate tabs
func clientID(r *http.Request) string {
	if id := r.URL.Query().Get("client"); id != "" {
		return id
	}
	return r.Header.Get("X-Client-Id")
}

// ServeWebSocket upgrades the request and runs the connection until it closes
func (s *Server) ServeWebSocket(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		log.Printf("[server] Upgrade failed: %v", err)
		return
	}

	c := newClient(conn)
	sess := s.Connect(clientID(r), c)
	log.Printf("[server] Session %s connected for client %s", sess.ID, sess.Client)

	st := stream{
		ctx:     r.Context(),
		conn:    conn,
		client:  c,
		session: sess,
		server:  s,
	}
	st.run()

	s.Disconnect(sess)
	log.Printf("[server] Session %s disconnected", sess.ID)
}

// client is the Channel for one websocket connection
type client struct {
	conn *websocket.Conn

	events chan Event
	quit   chan struct{}
	once   sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		events: make(chan Event, sendBuffer),
		quit:   make(chan struct{}),
	}
}

func (c *client) Send(ev Event) error {
	select {
	case <-c.quit:
		return ErrChannelClosed
	default:
	}

	select {
	case c.events <- ev:
		return nil
	default:
		return errChannelFull
	}
}

func (c *client) Close() {
	c.once.Do(func() { close(c.quit) })
}

type stream struct {
	// request context
	ctx context.Context
	// the websocket connection.
	conn *websocket.Conn
	// the downstream queue
	client *client
	// who this is
	session *Session
	server  *Server
}

func (s *stream) run() {
	defer s.conn.Close()

	// to cancel everything
	stopCtx, cancel := context.WithCancel(context.Background())

	// wait for things to exist
	wg := sync.WaitGroup{}
	wg.Add(2)

	// establish the loops
	go s.bufToClientLoop(cancel, &wg, stopCtx)
	go s.clientToServerLoop(cancel, &wg, stopCtx)
	wg.Wait()
}

func (s *stream) clientToServerLoop(cancel context.CancelFunc, wg *sync.WaitGroup, stopCtx context.Context) {
	defer func() {
		cancel()
		wg.Done()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		select {
		case <-stopCtx.Done():
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[server] Session %s read: %v", s.session.ID, err)
			}
			return
		}

		s.handle(stopCtx, msg)
	}
}

// handle dispatches one inbound event
func (s *stream) handle(ctx context.Context, msg []byte) {
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		s.client.Send(errorEvent("Malformed message"))
		return
	}

	switch in.Name {
	case JoinIncident:
		id, err := ParseID(in.Data)
		if err != nil {
			s.client.Send(errorEvent("%v", err))
			return
		}
		s.server.Join(ctx, s.session, id)
	case LeaveIncident:
		id, err := ParseID(in.Data)
		if err != nil {
			s.client.Send(errorEvent("%v", err))
			return
		}
		s.server.Leave(s.session, id)
	case UpdateResponderLocation:
		var req locationRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			s.client.Send(errorEvent("Malformed location update"))
			return
		}
		id, err := ParseID(req.IncidentID)
		if err != nil {
			s.client.Send(errorEvent("%v", err))
			return
		}
		s.server.UpdateResponderLocation(ctx, s.session, id, req.Location)
	case RequestRoute:
		var req routeRequest
		if err := json.Unmarshal(in.Data, &req); err != nil {
			s.client.Send(errorEvent("Malformed route request"))
			return
		}
		id, _ := ParseID(req.IncidentID)
		// resolution can take a while; keep reading meanwhile
		go s.server.RequestRoute(ctx, s.session, id, req.Start, req.End)
	default:
		s.client.Send(errorEvent("Unknown event %q", in.Name))
	}
}

func (s *stream) bufToClientLoop(cancel context.CancelFunc, wg *sync.WaitGroup, stopCtx context.Context) {
	defer func() {
		s.conn.Close()
		cancel()
		wg.Done()
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stopCtx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-s.client.quit:
			// flush what was queued before the close, forceDisconnect included
			for {
				select {
				case ev := <-s.client.events:
					if err := s.write(ev); err != nil {
						return
					}
				default:
					s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev := <-s.client.events:
			if err := s.write(ev); err != nil {
				return
			}
		}
	}
}

func (s *stream) write(ev Event) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := s.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[server] Encoding %s: %v", ev.Name, err)
		return w.Close()
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.Close()
}
