package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const TracerName = "github.com/iamwavecut/ngguard"

// Server exposes /metrics and owns the process tracer provider.
type Server struct {
	addr   string
	logger *log.Entry

	mu       sync.Mutex
	started  bool
	server   *http.Server
	provider *sdktrace.TracerProvider
	done     chan struct{}
}

func NewServer(addr string) *Server {
	return &Server{
		addr:   addr,
		logger: log.WithField("object", "observability"),
	}
}

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.provider = sdktrace.NewTracerProvider()
	otel.SetTracerProvider(s.provider)

	if s.addr == "" {
		s.started = true
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		s.logger.WithField("addr", srv.Addr).Info("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("error", err.Error()).Error("metrics server failed")
		}
	}(s.server, s.done)

	s.started = true
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	server, provider, done := s.server, s.provider, s.done
	s.mu.Unlock()

	var stopErr error
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			stopErr = errors.Join(stopErr, err)
		}
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = errors.Join(stopErr, ctx.Err())
		}
	}
	if provider != nil {
		if err := provider.Shutdown(ctx); err != nil {
			stopErr = errors.Join(stopErr, err)
		}
	}
	return stopErr
}
