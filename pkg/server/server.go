// Package server is the HTTP surface over pkg/kv: a thin, chi-routed
// JSON wrapper plus an optional change-notification WebSocket stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mnohosten/lsmkv/pkg/kv"
	"github.com/mnohosten/lsmkv/pkg/server/handlers"
)

// Server is the HTTP server over a kv.Store.
type Server struct {
	config       *Config
	store        *kv.Store
	router       *chi.Mux
	httpSrv      *http.Server
	startTime    time.Time
	watchManager *handlers.WatchManager
}

// New creates an HTTP server instance, opening the store at config.DataDir.
func New(config *Config) (*Server, error) {
	if config.EnableTLS {
		if config.TLSCertFile == "" || config.TLSKeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but certificate or key file not specified")
		}
		if _, err := os.Stat(config.TLSCertFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS certificate file not found: %s", config.TLSCertFile)
		}
		if _, err := os.Stat(config.TLSKeyFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("TLS key file not found: %s", config.TLSKeyFile)
		}
	}

	storeConfig := kv.DefaultConfig(config.DataDir)
	if config.MemtableMaxEntries > 0 {
		storeConfig.MemtableMaxEntries = config.MemtableMaxEntries
	}
	if config.SSTableMaxEntries > 0 {
		storeConfig.SSTableMaxEntries = config.SSTableMaxEntries
	}
	if config.CompactionThreshold > 0 {
		storeConfig.CompactionThreshold = config.CompactionThreshold
	}
	storeConfig.CompressionEnabled = config.CompressionEnabled

	store, err := kv.Open(storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	srv := &Server{
		config:    config,
		store:     store,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	if config.EnableWatch {
		srv.watchManager = handlers.NewWatchManager()
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
}

func (s *Server) setupRoutes() {
	h := handlers.New(s.store, s.watchManager)

	s.router.Get("/_health", h.Health(s.startTime))
	s.router.Get("/_stats", h.Stats)
	s.router.Post("/_clear", h.Clear)
	s.router.Post("/_flush", h.Flush)
	s.router.Post("/_compact", h.Compact)
	s.router.Get("/_range", h.Range)

	s.router.Post("/_batch/put", h.BatchPut)
	s.router.Post("/_batch/get", h.BatchGet)
	s.router.Post("/_batch/delete", h.BatchDelete)

	if s.watchManager != nil {
		s.router.Get("/_watch", h.HandleWatch)
	}

	s.router.Get("/{key}", h.Get)
	s.router.Put("/{key}", h.Put)
	s.router.Delete("/{key}", h.Delete)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		next.ServeHTTP(w, r)
	})
}

// Start serves HTTP (or HTTPS, when configured) until an interrupt signal
// or server error is received, then shuts down gracefully.
func (s *Server) Start() error {
	protocol := "http"
	if s.config.EnableTLS {
		protocol = "https"
	}
	fmt.Printf("lsmkv server starting on %s://%s:%d\n", protocol, s.config.Host, s.config.Port)
	fmt.Printf("data directory: %s\n", s.config.DataDir)
	if s.watchManager != nil {
		fmt.Printf("watch endpoint: ws://%s:%d/_watch\n", s.config.Host, s.config.Port)
	}

	errChan := make(chan error, 1)
	go func() {
		var err error
		if s.config.EnableTLS {
			err = s.httpSrv.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\nreceived signal: %v\n", sig)
		return s.Shutdown()
	}
}

// Store returns the underlying store, mainly for tests.
func (s *Server) Store() *kv.Store {
	return s.store
}

// Handler returns the root http.Handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown gracefully stops the HTTP server and closes the store.
func (s *Server) Shutdown() error {
	fmt.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		fmt.Printf("server shutdown error: %v\n", err)
	}

	if s.watchManager != nil {
		s.watchManager.Close()
	}

	if err := s.store.Close(); err != nil {
		fmt.Printf("store close error: %v\n", err)
		return err
	}

	fmt.Println("server shutdown complete")
	return nil
}
