package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/liuran001/MuzmoBot-Go/bot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzmobot_searches_total",
			Help: "Searches handled, by result",
		},
		[]string{"result"},
	)

	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzmobot_page_fetches_total",
			Help: "Search page fetches, by outcome",
		},
		[]string{"outcome"},
	)

	PageFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "muzmobot_page_fetch_duration_seconds",
			Help:    "Duration of search page fetches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	RankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "muzmobot_rank_duration_seconds",
			Help:    "Duration of candidate ranking passes in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzmobot_resolutions_total",
			Help: "Media link resolutions, by result",
		},
		[]string{"result"},
	)

	ResolutionAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "muzmobot_resolution_attempts",
			Help:    "Info page fetches spent per resolution",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzmobot_transfers_total",
			Help: "Audio transfers, by delivery mode",
		},
		[]string{"mode"},
	)

	TransferBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "muzmobot_transfer_bytes_total",
			Help: "Bytes staged to local storage",
		},
	)
)

// ObservePageFetch records one search page outcome.
func ObservePageFetch(outcome string, elapsed time.Duration) {
	PageFetchesTotal.WithLabelValues(outcome).Inc()
	PageFetchDuration.Observe(elapsed.Seconds())
}

// ObserveResolution records a resolver run.
func ObserveResolution(resolved bool, attempts int) {
	result := "exhausted"
	if resolved {
		result = "resolved"
	}
	ResolutionsTotal.WithLabelValues(result).Inc()
	ResolutionAttempts.Observe(float64(attempts))
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server serves /metrics on a dedicated listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger bot.Logger
}

// Start listens on addr and serves /metrics in the background.
func Start(addr string, logger bot.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && logger != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
