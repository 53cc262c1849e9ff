package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dispatch.live/data"
	"dispatch.live/spatial"
)

type wireEvent struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func newTestHTTP(t *testing.T, resolver RouteResolver, allowedOrigins ...string) (*Server, *httptest.Server) {
	t.Helper()
	srv := newTestServer(t, resolver, spatial.NewDensifier(2, 5*time.Millisecond))
	ts := httptest.NewServer(NewHandler(srv, srv.directory, nil, allowedOrigins))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, client string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?client=" + client
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev wireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	return ev
}

func TestWebSocketJoinStreamsRoute(t *testing.T) {
	_, ts := newTestHTTP(t, &fakeResolver{route: testRoute()})
	conn := dial(t, ts, "dispatcher")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"joinIncident","data":45}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := readEvent(t, conn)
	if ev.Name != IncidentDataEvent {
		t.Fatalf("first event = %s, want incidentData", ev.Name)
	}
	var payload struct {
		ID        string     `json:"id"`
		RouteInfo *RouteInfo `json:"routeInfo"`
	}
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decode incidentData: %v", err)
	}
	if payload.ID != "45" || payload.RouteInfo == nil || len(payload.RouteInfo.Path) != 3 {
		t.Fatalf("incidentData = %+v", payload)
	}

	for i := 0; i < 4; i++ {
		ev := readEvent(t, conn)
		if ev.Name != ResponderLocationEvent {
			t.Fatalf("event %d = %s", i, ev.Name)
		}
		var update LocationUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			t.Fatalf("decode update: %v", err)
		}
		if update.IncidentID != "45" {
			t.Errorf("incidentId = %q", update.IncidentID)
		}
	}
}

func TestWebSocketDuplicateClientForceDisconnect(t *testing.T) {
	resolver := &fakeResolver{route: testRoute(), gate: make(chan struct{})}
	srv, ts := newTestHTTP(t, resolver)

	first := dial(t, ts, "tab")
	waitFor(t, "first session", func() bool { return srv.Stats().Sessions == 1 })

	dial(t, ts, "tab")

	ev := readEvent(t, first)
	if ev.Name != ForceDisconnectEvent {
		t.Fatalf("event = %s, want forceDisconnect", ev.Name)
	}
	var fd ForceDisconnect
	json.Unmarshal(ev.Data, &fd)
	if fd.Reason == "" {
		t.Errorf("forceDisconnect without reason")
	}

	// then the server closes the connection
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := first.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("read after forceDisconnect = %v, want normal close", err)
	}
	waitFor(t, "one session left", func() bool { return srv.Stats().Sessions == 1 })
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	_, ts := newTestHTTP(t, &fakeResolver{route: testRoute()})
	conn := dial(t, ts, "dispatcher")

	testCases := []struct {
		name string
		msg  string
	}{
		{"Not JSON", `hello`},
		{"Unknown event", `{"event":"teleport","data":1}`},
		{"Bad id", `{"event":"joinIncident","data":{"id":1}}`},
		{"Unknown incident", `{"event":"joinIncident","data":"999"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn.WriteMessage(websocket.TextMessage, []byte(tc.msg))
			if ev := readEvent(t, conn); ev.Name != ErrorEvent {
				t.Errorf("event = %s, want error", ev.Name)
			}
		})
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	_, ts := newTestHTTP(t, &fakeResolver{})

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUpgraderOrigins(t *testing.T) {
	testCases := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"Any origin", nil, "http://anywhere", true},
		{"Listed origin", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"Unlisted origin", []string{"http://localhost:3000"}, "http://evil.example", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.Header.Set("Origin", tc.origin)
			if got := NewUpgrader(tc.allowed).CheckOrigin(r); got != tc.want {
				t.Errorf("CheckOrigin = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIncidentEndpoints(t *testing.T) {
	srv, ts := newTestHTTP(t, &fakeResolver{})

	resp, err := http.Get(ts.URL + "/api/incidents")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var list []data.Incident
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 5 || list[3].ID != "45" {
		t.Errorf("listing = %d incidents", len(list))
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}

	resp, _ = http.Get(ts.URL + "/api/incidents/999")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown incident status = %d", resp.StatusCode)
	}

	resp, _ = http.Get(ts.URL + "/healthz")
	var st Stats
	json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || st != srv.Stats() {
		t.Errorf("healthz = %d %+v", resp.StatusCode, st)
	}
}

func getIncident(t *testing.T, ts *httptest.Server, id string) IncidentData {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/incidents/" + id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var inc IncidentData
	if err := json.NewDecoder(resp.Body).Decode(&inc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return inc
}

func TestGetIncidentResolvesRoute(t *testing.T) {
	resolver := &fakeResolver{route: testRoute()}
	_, ts := newTestHTTP(t, resolver)

	inc := getIncident(t, ts, "45")
	if inc.Incident == nil || inc.ID != "45" {
		t.Fatalf("incident = %+v", inc.Incident)
	}
	if inc.RouteInfo == nil || len(inc.RouteInfo.Path) != 3 || inc.RouteInfo.Distance != "11.4 km" {
		t.Errorf("routeInfo = %+v", inc.RouteInfo)
	}
	if resolver.Calls() != 1 {
		t.Errorf("resolver called %d times, want 1", resolver.Calls())
	}
}

func TestGetIncidentWithoutRoute(t *testing.T) {
	_, ts := newTestHTTP(t, &fakeResolver{err: spatial.ErrRouteUnavailable})

	inc := getIncident(t, ts, "45")
	if inc.Incident == nil || inc.EventType != "Cardiac Event" {
		t.Fatalf("incident = %+v", inc.Incident)
	}
	if inc.RouteInfo != nil {
		t.Errorf("expected a bare incident, got routeInfo %+v", inc.RouteInfo)
	}
}

func TestIncidentEndpointSeesLocationUpdates(t *testing.T) {
	srv, ts := newTestHTTP(t, &fakeResolver{})

	moved := data.Location{Lat: 38.69, Lng: -90.19}
	srv.UpdateResponderLocation(context.Background(), nil, "45", moved)

	if inc := getIncident(t, ts, "45"); inc.ResponderLocation != moved {
		t.Errorf("responder_location = %+v, want %+v", inc.ResponderLocation, moved)
	}
}

func TestCorsFollowsAllowedOrigins(t *testing.T) {
	testCases := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"Any origin", nil, "http://anywhere", "*"},
		{"Listed origin", []string{"http://localhost:3000"}, "http://localhost:3000", "http://localhost:3000"},
		{"Unlisted origin", []string{"http://localhost:3000"}, "http://evil.example", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ts := newTestHTTP(t, &fakeResolver{}, tc.allowed...)

			req, _ := http.NewRequest("GET", ts.URL+"/api/incidents", nil)
			req.Header.Set("Origin", tc.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resp.Body.Close()

			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tc.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tc.want)
			}
		})
	}
}
