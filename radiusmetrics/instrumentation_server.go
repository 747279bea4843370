package radiusmetrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/npax/radius/radiuslog"
)

// BlacklistTableEntry reports the circuit-breaker state of one client
// endpoint, for diagnostic exposure.
type BlacklistTableEntry struct {
	Endpoint         string    `json:"endpoint"`
	IsAvailable      bool      `json:"isAvailable"`
	UnavailableUntil time.Time `json:"unavailableUntil,omitempty"`
}

// InstrumentationServer exposes Prometheus counters on /metrics and
// the live blacklist table on /blacklist.
type InstrumentationServer struct {
	httpServer *http.Server

	mu        sync.Mutex
	blacklist []BlacklistTableEntry
}

// NewInstrumentationServer starts an HTTP server on bindAddr exposing
// the default metrics registry and the blacklist table. The table is
// updated by calls to PushBlacklistTable.
func NewInstrumentationServer(bindAddr string) *InstrumentationServer {
	is := &InstrumentationServer{}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/blacklist", is.blacklistHandler())

	is.httpServer = &http.Server{
		Addr:              bindAddr,
		Handler:           mux,
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		radiuslog.Get().Infof("instrumentation server listening on %s", bindAddr)
		if err := is.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			radiuslog.Get().Errorf("instrumentation server stopped: %v", err)
		}
	}()

	return is
}

// PushBlacklistTable replaces the exposed blacklist snapshot.
func (is *InstrumentationServer) PushBlacklistTable(table []BlacklistTableEntry) {
	is.mu.Lock()
	defer is.mu.Unlock()
	is.blacklist = table
}

func (is *InstrumentationServer) blacklistHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		is.mu.Lock()
		table := is.blacklist
		is.mu.Unlock()

		data, err := json.Marshal(table)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

// Close shuts down the HTTP server.
func (is *InstrumentationServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return is.httpServer.Shutdown(ctx)
}
