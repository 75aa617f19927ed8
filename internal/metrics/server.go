package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the /metrics, /health and /info admin endpoints on their
// own listener, separate from any data-plane traffic.
type Server struct {
	server *http.Server
	addr   string
}

// NewServer builds an admin metrics server bound to addr (e.g. ":9201").
// A bare port number without a leading colon is accepted too.
func NewServer(addr string) *Server {
	if addr == "" {
		addr = ":9201"
	}
	if addr[0] != ':' {
		addr = ":" + addr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"service": "pgbr", "version": "1.0.0"}`))
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving metrics in the background.
func (s *Server) Start() error {
	log.Printf("starting metrics server on %s", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	log.Println("shutting down metrics server")
	return s.server.Shutdown(ctx)
}
