// Package metrics exports relay counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/rr-relay/internal/dns/common/log"
	"github.com/haukened/rr-relay/internal/dns/domain"
	"github.com/haukened/rr-relay/internal/dns/services/resolver"
)

var _ resolver.MetricsRecorder = (*Prometheus)(nil)

// Prometheus records resolutions and upstream latency.
type Prometheus struct {
	resolutions *prometheus.CounterVec
	forwards    *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	m := &Prometheus{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "rr_relay",
				Name:      "resolutions_total",
				Help:      "How many inbound datagrams were handled, by outcome",
			},
			[]string{"outcome"},
		),
		forwards: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "rr_relay",
				Name:      "upstream_forward_duration_seconds",
				Help:      "Time spent waiting on the upstream resolver",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"result"},
		),
	}
	for _, c := range []prometheus.Collector{m.resolutions, m.forwards} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveResolution counts one handled datagram.
func (m *Prometheus) ObserveResolution(outcome domain.Outcome) {
	m.resolutions.With(prometheus.Labels{"outcome": outcome.String()}).Inc()
}

// ObserveForward records how long one upstream exchange took.
func (m *Prometheus) ObserveForward(d time.Duration, err error) {
	m.forwards.With(prometheus.Labels{"result": forwardResult(err)}).Observe(d.Seconds())
}

func forwardResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrForwardTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// Server serves /metrics over HTTP.
type Server struct {
	srv    *http.Server
	logger log.Logger
}

// NewServer builds a Server on addr exposing the metrics gathered by g.
func NewServer(addr string, g prometheus.Gatherer, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Serve listens on ln until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(map[string]any{"address": ln.Addr().String()}, "Metrics endpoint listening")
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// ListenAndServe binds the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
