// Package main implements the read-only HTTP API over the points store.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/symbioticfi/points-indexer/core/store"
)

// Server wraps a gorilla/mux router and the http.Server serving it.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	store      *store.Store
	log        *logrus.Entry
}

// NewServer builds a Server bound to addr.
func NewServer(addr string, st *store.Store, log *logrus.Entry) *Server {
	s := &Server{router: mux.NewRouter(), store: st, log: log}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/last_block", s.handleLastBlock).Methods(http.MethodGet)
	s.router.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/all", s.handleAll).Methods(http.MethodGet)
	s.router.HandleFunc("/api/{receiver_type}/{address}", s.handleReceiverPoints).Methods(http.MethodGet)
}

// loggingMiddleware logs every request's method, path and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Info("request")
	})
}
