// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics holds the process-wide Prometheus registry and the
// independent listener that exposes it as OpenMetrics text.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/deltachat/notifiers-relay/internal/logging"
)

const openMetricsContentType = "application/openmetrics-text; version=1.0.0; charset=utf-8"

// Registry holds every counter and gauge the relay exposes.
type Registry struct {
	DirectNotifications       prometheus.Counter
	FCMNotifications          prometheus.Counter
	UBportsNotifications      prometheus.Counter
	HeartbeatNotifications    prometheus.Counter
	HeartbeatRegistrations    prometheus.Counter
	OpenPGPDecryptionFailures prometheus.Counter
	HeartbeatTokens           prometheus.Gauge
}

// NewRegistry builds a Registry with all metrics created but not yet
// registered with any prometheus.Registerer.
func NewRegistry() *Registry {
	return &Registry{
		DirectNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "direct_notifications",
			Help: "Number of successfully delivered direct (visible) notifications.",
		}),
		FCMNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fcm_notifications",
			Help: "Number of successfully delivered FCM notifications.",
		}),
		UBportsNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ubports_notifications",
			Help: "Number of successfully delivered UBports notifications.",
		}),
		HeartbeatNotifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heartbeat_notifications",
			Help: "Number of successfully delivered heartbeat (silent) notifications.",
		}),
		HeartbeatRegistrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heartbeat_registrations",
			Help: "Number of heartbeat registration requests accepted.",
		}),
		OpenPGPDecryptionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openpgp_decryption_failures",
			Help: "Number of tokens that failed to decrypt as OpenPGP messages.",
		}),
		HeartbeatTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heartbeat_tokens",
			Help: "Current number of tokens tracked by the heartbeat schedule.",
		}),
	}
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	r.DirectNotifications.Describe(ch)
	r.FCMNotifications.Describe(ch)
	r.UBportsNotifications.Describe(ch)
	r.HeartbeatNotifications.Describe(ch)
	r.HeartbeatRegistrations.Describe(ch)
	r.OpenPGPDecryptionFailures.Describe(ch)
	r.HeartbeatTokens.Describe(ch)
}

// Collect implements prometheus.Collector.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	r.DirectNotifications.Collect(ch)
	r.FCMNotifications.Collect(ch)
	r.UBportsNotifications.Collect(ch)
	r.HeartbeatNotifications.Collect(ch)
	r.HeartbeatRegistrations.Collect(ch)
	r.OpenPGPDecryptionFailures.Collect(ch)
	r.HeartbeatTokens.Collect(ch)
}

// Register registers the collector with the default Prometheus registry.
func (r *Registry) Register() {
	prometheus.MustRegister(r)
}

// Server exposes the registry on its own listener, independent of HttpFront,
// so operators can bind it to a private interface.
type Server struct {
	addr   string
	logger *logging.Logger
	http   *http.Server
}

// NewServer creates a metrics listener for addr (host:port).
func NewServer(addr string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default().WithComponent("metrics")
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)
	return &Server{
		addr:   addr,
		logger: logger,
		http: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// handleMetrics renders the default Prometheus registry as OpenMetrics text.
// §4.7 requires the content type to always be the OpenMetrics one, so this
// bypasses promhttp's Accept-header content negotiation.
func handleMetrics(w http.ResponseWriter, r *http.Request) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", openMetricsContentType)
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeOpenMetrics))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		closer.Close()
	}
}

// ListenAndServe blocks serving the metrics endpoint until ctx is canceled
// or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	}()

	s.logger.Info("metrics listener starting", "addr", s.addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
