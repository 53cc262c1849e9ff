package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the dispatch server's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	Sessions          prometheus.Gauge
	Rooms             prometheus.Gauge
	ActiveSimulations prometheus.Gauge

	Simulations     *prometheus.CounterVec
	Samples         prometheus.Counter
	Resolutions     *prometheus.CounterVec
	Supersessions   prometheus.Counter
	ResolveDuration prometheus.Histogram
}

// NewMetrics registers the collectors against reg, defaulting to the
// global Prometheus registry when nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sessions, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_sessions",
		Help: "Currently admitted client sessions.",
	}), "dispatch_sessions")
	if err != nil {
		return nil, err
	}
	rooms, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_rooms",
		Help: "Incident rooms with at least one observer.",
	}), "dispatch_rooms")
	if err != nil {
		return nil, err
	}
	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_active_simulations",
		Help: "Simulations currently resolving or running.",
	}), "dispatch_active_simulations")
	if err != nil {
		return nil, err
	}

	simulations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_simulations_total",
		Help: "Simulations that reached a terminal state, labeled by outcome.",
	}, []string{"outcome"}), "dispatch_simulations_total")
	if err != nil {
		return nil, err
	}
	samples, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_samples_emitted_total",
		Help: "Motion samples broadcast to incident rooms.",
	}), "dispatch_samples_emitted_total")
	if err != nil {
		return nil, err
	}
	resolutions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_route_resolutions_total",
		Help: "Route resolutions, labeled by result.",
	}, []string{"result"}), "dispatch_route_resolutions_total")
	if err != nil {
		return nil, err
	}
	supersessions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_session_supersessions_total",
		Help: "Sessions force-disconnected by a newer connection with the same identity.",
	}), "dispatch_session_supersessions_total")
	if err != nil {
		return nil, err
	}
	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_route_resolve_duration_seconds",
		Help:    "Routing provider latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}), "dispatch_route_resolve_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		gatherer:          gatherer,
		Sessions:          sessions,
		Rooms:             rooms,
		ActiveSimulations: active,
		Simulations:       simulations,
		Samples:           samples,
		Resolutions:       resolutions,
		Supersessions:     supersessions,
		ResolveDuration:   duration,
	}, nil
}

// Handler exposes the collectors for scraping
func (m *Metrics) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if m != nil && m.gatherer != nil {
		gatherer = m.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) setCounts(sessions, rooms int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(sessions))
	m.Rooms.Set(float64(rooms))
}

func (m *Metrics) setActive(simulations int) {
	if m == nil {
		return
	}
	m.ActiveSimulations.Set(float64(simulations))
}

func (m *Metrics) simulationDone(outcome State) {
	if m == nil {
		return
	}
	m.Simulations.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) sampleEmitted() {
	if m == nil {
		return
	}
	m.Samples.Inc()
}

func (m *Metrics) resolved(err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "unavailable"
	}
	m.Resolutions.WithLabelValues(result).Inc()
	m.ResolveDuration.Observe(took.Seconds())
}

func (m *Metrics) superseded() {
	if m == nil {
		return
	}
	m.Supersessions.Inc()
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
