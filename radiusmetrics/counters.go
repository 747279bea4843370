// Package radiusmetrics holds the Prometheus counters shared by the
// client and server packages, plus a small instrumentation HTTP
// endpoint exposing them and the live blacklist table.
package radiusmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters recorded by a single instance of this
// module (a client socket, a server socket, or both sharing a
// registry).
type Metrics struct {
	ServerRequests         *prometheus.CounterVec
	ServerResponses        *prometheus.CounterVec
	ServerDrops            *prometheus.CounterVec
	ClientRequests         *prometheus.CounterVec
	ClientResponses        *prometheus.CounterVec
	ClientTimeouts         *prometheus.CounterVec
	ClientResponsesStalled *prometheus.CounterVec
	ClientResponsesDropped *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_server_requests", Help: "Radius server requests"},
			[]string{"endpoint", "code"}),
		ServerResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_server_responses", Help: "Radius server responses"},
			[]string{"endpoint", "code"}),
		ServerDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_server_drops", Help: "Radius server dropped packets"},
			[]string{"endpoint", "code"}),
		ClientRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_requests", Help: "Radius client requests"},
			[]string{"endpoint", "code"}),
		ClientResponses: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_responses", Help: "Radius client responses"},
			[]string{"endpoint", "code"}),
		ClientTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_timeouts", Help: "Radius client timeouts"},
			[]string{"endpoint", "code"}),
		ClientResponsesStalled: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_responses_stalled", Help: "Radius client responses arriving after the request was resolved"},
			[]string{"endpoint", "code"}),
		ClientResponsesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "radius_client_responses_dropped", Help: "Radius client responses with no matching pending request"},
			[]string{"endpoint", "code"}),
	}

	reg.MustRegister(m.ServerRequests)
	reg.MustRegister(m.ServerResponses)
	reg.MustRegister(m.ServerDrops)
	reg.MustRegister(m.ClientRequests)
	reg.MustRegister(m.ClientResponses)
	reg.MustRegister(m.ClientTimeouts)
	reg.MustRegister(m.ClientResponsesStalled)
	reg.MustRegister(m.ClientResponsesDropped)

	return m
}

func (m *Metrics) reset() {
	m.ServerRequests.Reset()
	m.ServerResponses.Reset()
	m.ServerDrops.Reset()
	m.ClientRequests.Reset()
	m.ClientResponses.Reset()
	m.ClientTimeouts.Reset()
	m.ClientResponsesStalled.Reset()
	m.ClientResponsesDropped.Reset()
}

var global = newMetrics(prometheus.DefaultRegisterer)

// Default returns the package-level Metrics instance, registered
// against the default Prometheus registerer. It is the only instance:
// the Record* helpers update it, and NewInstrumentationServer serves the
// default registry it is registered with.
func Default() *Metrics { return global }

func RecordServerRequest(endpoint, code string) {
	global.ServerRequests.WithLabelValues(endpoint, code).Inc()
}

func RecordServerResponse(endpoint, code string) {
	global.ServerResponses.WithLabelValues(endpoint, code).Inc()
}

func RecordServerDrop(endpoint, code string) {
	global.ServerDrops.WithLabelValues(endpoint, code).Inc()
}

func RecordClientRequest(endpoint, code string) {
	global.ClientRequests.WithLabelValues(endpoint, code).Inc()
}

func RecordClientResponse(endpoint, code string) {
	global.ClientResponses.WithLabelValues(endpoint, code).Inc()
}

func RecordClientTimeout(endpoint, code string) {
	global.ClientTimeouts.WithLabelValues(endpoint, code).Inc()
}

func RecordClientResponseStalled(endpoint, code string) {
	global.ClientResponsesStalled.WithLabelValues(endpoint, code).Inc()
}

func RecordClientResponseDropped(endpoint, code string) {
	global.ClientResponsesDropped.WithLabelValues(endpoint, code).Inc()
}

// ResetMetrics sets all package-level counters to zero. Intended for
// test isolation between cases that assert on counter values.
func ResetMetrics() {
	global.reset()
}
