// Package server exposes the simulator's HTTP observability surface:
// prometheus metrics, a health probe, and JSON stats snapshots.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/iotsimlab/iotsim/pkg/engine"
	"github.com/iotsimlab/iotsim/pkg/logging"
	"github.com/iotsimlab/iotsim/pkg/mesh"
	"github.com/iotsimlab/iotsim/pkg/metrics"
	"github.com/iotsimlab/iotsim/pkg/network"
)

// ConfigReloadFunc reloads configuration on SIGHUP
type ConfigReloadFunc func() error

// Server is an HTTP server with graceful shutdown for the simulator's
// observability endpoints.
type Server struct {
	server       *http.Server
	logger       logging.Logger
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	configMu       sync.RWMutex
	configReloadFn ConfigReloadFunc
}

// statsResponse is the JSON body of /stats
type statsResponse struct {
	State           string  `json:"state"`
	Speed           float64 `json:"speed"`
	EventsProcessed uint64  `json:"events_processed"`
	Steps           uint64  `json:"steps"`
	EventQueueDepth int     `json:"event_queue_depth"`
	UptimeSeconds   float64 `json:"uptime_seconds"`

	Network struct {
		Sent        uint64  `json:"sent"`
		Received    uint64  `json:"received"`
		Dropped     uint64  `json:"dropped"`
		Errors      uint64  `json:"errors"`
		SuccessRate float64 `json:"success_rate"`
	} `json:"network"`

	Mesh *mesh.Statistics `json:"mesh,omitempty"`
}

// New builds the observability server. Any of eng, nm, or mn may be nil;
// the corresponding sections are omitted from /stats.
func New(addr string, reg *metrics.Registry, eng *engine.Engine, nm *network.Manager, mn *mesh.Network, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	mux := http.NewServeMux()
	if reg != nil {
		mux.Handle("/metrics", reg.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		var resp statsResponse
		if eng != nil {
			s := eng.Stats()
			resp.State = s.State.String()
			resp.Speed = s.Speed
			resp.EventsProcessed = s.EventsProcessed
			resp.Steps = s.Steps
			resp.EventQueueDepth = s.QueueDepth
			resp.UptimeSeconds = s.Uptime.Seconds()
		}
		if nm != nil {
			s := nm.Stats()
			resp.Network.Sent = s.MessagesSent
			resp.Network.Received = s.MessagesReceived
			resp.Network.Dropped = s.MessagesDropped
			resp.Network.Errors = s.Errors
			resp.Network.SuccessRate = s.SuccessRate()
		}
		if mn != nil {
			stats := mn.Stats()
			resp.Mesh = &stats
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Error("encoding stats response", logging.Error(err))
		}
	})

	return &Server{
		server: &http.Server{
			Addr:           addr,
			Handler:        mux,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Handler returns the server's root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetConfigReload installs the function run on SIGHUP
func (s *Server) SetConfigReload(fn ConfigReloadFunc) {
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.configReloadFn = fn
}

// ReloadConfig runs the installed reload function, if any
func (s *Server) ReloadConfig() error {
	s.configMu.RLock()
	fn := s.configReloadFn
	s.configMu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn()
}

// Start serves until Shutdown is called or a termination signal arrives.
// Blocks; run it in a goroutine when the caller has other work.
func (s *Server) Start() error {
	go s.handleSignals()

	s.logger.Info("http server listening", logging.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains connections and stops the server. Safe to call more
// than once.
func (s *Server) Shutdown(timeout time.Duration) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("http server shutting down", logging.Duration("timeout", timeout))
		err = s.server.Shutdown(ctx)
	})
	return err
}

// IsShuttingDown reports whether shutdown has been initiated
func (s *Server) IsShuttingDown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

func (s *Server) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			s.logger.Info("termination signal received", logging.String("signal", sig.String()))
			if err := s.Shutdown(30 * time.Second); err != nil {
				s.logger.Error("shutdown failed", logging.Error(err))
			}
			return

		case syscall.SIGHUP:
			s.logger.Info("reload signal received")
			if err := s.ReloadConfig(); err != nil {
				s.logger.Error("config reload failed", logging.Error(err))
			}
		}
	}
}
