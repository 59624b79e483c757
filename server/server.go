// Package server hosts chainsaw runtimes and collectors over the network:
// a connect service that answers collection requests for remote drivers,
// a service that runs programs on a hosted runtime, and a language server.
package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/chainsaw/collector"
	"github.com/chazu/chainsaw/driver"
)

var log = commonlog.GetLogger("chainsaw.server")

// Server serves the collector and runner services over HTTP. Both speak
// connect with the CBOR codec from vm/dist.
type Server struct {
	worker    *RuntimeWorker
	collector *CollectorService
	runner    *RunService
	mux       *http.ServeMux
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	collector collector.Collector
	driver    *driver.Driver
	out       *bytes.Buffer
}

// WithCollector hosts c as a CollectorService.
func WithCollector(c collector.Collector) Option {
	return func(cfg *serverConfig) { cfg.collector = c }
}

// WithRuntime hosts d as a RunService. out must be the print destination
// the runtime's natives were registered with.
func WithRuntime(d *driver.Driver, out *bytes.Buffer) Option {
	return func(cfg *serverConfig) {
		cfg.driver = d
		cfg.out = out
	}
}

// New creates a Server with the services selected by opts.
func New(opts ...Option) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{mux: http.NewServeMux()}

	if cfg.collector != nil {
		s.collector = NewCollectorService(cfg.collector)
		path, handler := s.collector.Handler()
		s.mux.Handle(path, handler)
	}

	if cfg.driver != nil {
		out := cfg.out
		if out == nil {
			out = &bytes.Buffer{}
		}
		s.worker = NewRuntimeWorker(cfg.driver)
		s.runner = NewRunService(s.worker, out)
		for path, handler := range s.runner.Handlers() {
			s.mux.Handle(path, handler)
		}
	}

	return s
}

// Handler returns the HTTP handler serving every configured service.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Collector returns the hosted collector service, or nil.
func (s *Server) Collector() *CollectorService {
	return s.collector
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Noticef("chainsaw server listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Stop shuts down the runtime worker, if any.
func (s *Server) Stop() {
	if s.worker != nil {
		s.worker.Stop()
	}
}
