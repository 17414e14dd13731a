// SPDX-License-Identifier: MIT

// Package api serves the HTTP control surface: device configuration
// browsing, recorder status and control, and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nvrhub/hieasy/internal/deviceconf"
	xlog "github.com/nvrhub/hieasy/internal/log"
	"github.com/nvrhub/hieasy/internal/recorder"
)

// configCacheTTL is how long device config replies are served from memory.
// The firmware needs seconds per GetCfg, so the dashboard must not hit it
// on every page load.
const configCacheTTL = 30 * time.Second

// ConfigSource reads configuration types from the device. Implemented by
// deviceconf.Client; tests use fakes. Implementations need not be safe for
// concurrent use, the server serialises access.
type ConfigSource interface {
	Get(ctx context.Context, mainCmd, assistCmd int) (*deviceconf.Record, error)
	Close()
}

// RecorderControl is the recorder surface the HTTP layer needs. Implemented
// by recorder.Supervisor.
type RecorderControl interface {
	Status() recorder.Status
	Config() recorder.Config
	Recordings(channel, limit int) []recorder.Recording
	UpdateConfig(ctx context.Context, u recorder.Update) (recorder.Config, error)
}

// Server is the HTTP control surface.
type Server struct {
	listen string
	log    zerolog.Logger

	// deviceMu serialises all device I/O: the config client is a single
	// synchronous connection.
	deviceMu sync.Mutex
	device   ConfigSource

	cacheMu sync.Mutex
	cache   map[int]cacheEntry

	rec RecorderControl

	// timeNow is a seam for cache-expiry tests.
	timeNow func() time.Time
}

type cacheEntry struct {
	rec *deviceconf.Record
	ts  time.Time
}

// New builds the server. rec may be nil when recording is not compiled
// into the deployment; the recorder endpoints then answer 503.
func New(listen string, device ConfigSource, rec RecorderControl) *Server {
	return &Server{
		listen:  listen,
		log:     xlog.WithComponent("api"),
		device:  device,
		cache:   make(map[int]cacheEntry),
		rec:     rec,
		timeNow: time.Now,
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(60, time.Minute))
		r.Get("/config", s.handleAllConfigs)
		r.Get("/config/{mainCmd}", s.handleOneConfig)
		r.Get("/config-types", s.handleConfigTypes)
		r.Get("/status", s.handleStatus)
		r.Get("/recorder", s.handleRecorderStatus)
		r.Put("/recorder/config", s.handleRecorderConfigUpdate)
		r.Get("/recordings", s.handleRecordings)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().
		Str(xlog.FieldEvent, "api.listening").
		Str("addr", s.listen).
		Msg("http control surface listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh // always http.ErrServerClosed after a clean Shutdown
	return nil
}

// requestLogger emits one structured line per request and threads the
// request id through the context for downstream log statements.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := xlog.ContextWithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		l := xlog.WithContext(ctx, s.log)
		l.Info().
			Str(xlog.FieldEvent, "api.request").
			Str("method", r.Method).
			Str(xlog.FieldPath, r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
