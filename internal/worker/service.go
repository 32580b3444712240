// Package worker provides the HTTP front-end of the cache service.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/semcache/internal/cache"
	"github.com/thebtf/semcache/internal/config"
	"github.com/thebtf/semcache/internal/embedding"
	"github.com/thebtf/semcache/internal/handler"
	"github.com/thebtf/semcache/internal/object"
	"github.com/thebtf/semcache/internal/store"
	"github.com/thebtf/semcache/internal/vector"
)

const (
	// DefaultHTTPTimeout is the per-request timeout enforced by middleware.
	DefaultHTTPTimeout = 30 * time.Second

	// ReadyPollInterval is how often WaitReady checks initialization status.
	ReadyPollInterval = 50 * time.Millisecond
)

// Service wires configuration, stores, the embedding pool, and the request
// handler behind the HTTP surface. The server accepts connections
// immediately; store initialization happens in the background behind a
// readiness gate.
type Service struct {
	version string
	config  *config.Config

	router    *chi.Mux
	server    *http.Server
	startTime time.Time

	// Initialized asynchronously.
	engine     *handler.Handler
	dm         *cache.DataManager
	dispatcher *embedding.Dispatcher
	audit      *handler.AuditLogger
	objects    object.Store

	cfgWatcher *config.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex
}

// NewService creates the service with deferred initialization. The health
// endpoint responds immediately; cache routes return 503 until the stores
// are up.
func NewService(version string) (*Service, error) {
	cfg := config.Get()
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:   version,
		config:    cfg,
		router:    chi.NewRouter(),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()

	return svc, nil
}

// initializeAsync brings up the stores and the request pipeline.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization...")

	if err := config.EnsureDataDir(); err != nil {
		s.setInitError(fmt.Errorf("ensure data dir: %w", err))
		return
	}

	scalar, err := store.Open(s.config.Scalar)
	if err != nil {
		s.setInitError(fmt.Errorf("open scalar store: %w", err))
		return
	}

	vec, err := vector.Open(s.config.Vector, s.config.Cache.Metric, s.config.Embedding.Dimension)
	if err != nil {
		_ = scalar.Close()
		s.setInitError(fmt.Errorf("open vector store: %w", err))
		return
	}

	var objects object.Store
	if s.config.Object.Backend != "" {
		objects, err = object.Open(s.config.Object)
		if err != nil {
			log.Warn().Err(err).Msg("Object store unavailable, binary payloads stay inline")
		}
	}

	dispatcher, err := embedding.NewDispatcher(s.config.Embedding)
	if err != nil {
		_ = vec.Close()
		_ = scalar.Close()
		s.setInitError(fmt.Errorf("start embedding dispatcher: %w", err))
		return
	}

	dm, err := cache.NewDataManager(
		cache.NewDatabase(scalar, vec),
		s.config.Cache.Eviction,
		s.config.Cache.MaxSize,
		objects,
		s.config.Cache.Normalize,
	)
	if err != nil {
		_ = dispatcher.Close()
		_ = vec.Close()
		_ = scalar.Close()
		s.setInitError(fmt.Errorf("create data manager: %w", err))
		return
	}

	audit := handler.NewAuditLogger(scalar, s.config.Audit.Workers, s.config.Audit.QueueSize)

	engine, err := handler.New(dm, dispatcher, audit,
		func() config.CacheConfig { return config.Get().Cache }, nil)
	if err != nil {
		audit.Close()
		_ = dispatcher.Close()
		_ = dm.Close()
		s.setInitError(fmt.Errorf("create request handler: %w", err))
		return
	}

	s.initMu.Lock()
	s.engine = engine
	s.dm = dm
	s.dispatcher = dispatcher
	s.audit = audit
	s.objects = objects
	s.initMu.Unlock()

	// Threshold and top-k changes apply on the next request via the
	// handler's config accessor; backend changes need a restart.
	if w, err := config.NewWatcher(nil); err != nil {
		log.Warn().Err(err).Msg("Settings watcher unavailable, tunables need a restart")
	} else {
		s.cfgWatcher = w
	}

	s.ready.Store(true)
	log.Info().
		Str("scalar", s.config.Scalar.Backend).
		Str("vector", s.config.Vector.Backend).
		Str("embedding", s.config.Embedding.Model).
		Int("dimension", s.config.Embedding.Dimension).
		Msg("Async initialization complete - service ready")
}

// setInitError records an initialization error.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Async initialization failed")
}

// GetInitError returns any initialization error.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// WaitReady blocks until initialization finishes or ctx is cancelled.
func (s *Service) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(ReadyPollInterval)
	defer ticker.Stop()

	for {
		if s.ready.Load() {
			return nil
		}
		if err := s.GetInitError(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// setupMiddleware configures the HTTP middleware stack.
func (s *Service) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(DefaultHTTPTimeout))
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestID)
	s.router.Use(MaxBodySize(s.config.Server.MaxBodyBytes))

	limiter := NewPerClientRateLimiter(s.config.Server.RateLimit, s.config.Server.RateBurst)
	s.router.Use(PerClientRateLimitMiddleware(limiter))
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Use(RequireJSONContentType)

		r.Post("/modelcache", s.handleModelCache)
		r.Get("/modelcache", s.handleModelCacheProbe)
		r.Get("/stats", s.handleStats)
	})
}

// requireReady rejects cache traffic until initialization completes.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			if err := s.GetInitError(); err != nil {
				http.Error(w, "initialization failed: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "service is initializing", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving. The listener comes up before the stores do.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Int("port", s.config.Server.Port).
		Str("version", s.version).
		Msg("Cache HTTP server started (initialization in progress)")
	return nil
}

// Shutdown stops the server and closes the pipeline in reverse order of
// construction.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	if s.cfgWatcher != nil {
		_ = s.cfgWatcher.Close()
	}

	s.initMu.RLock()
	audit := s.audit
	dispatcher := s.dispatcher
	dm := s.dm
	objects := s.objects
	s.initMu.RUnlock()

	if audit != nil {
		audit.Close()
	}
	if dispatcher != nil {
		if err := dispatcher.Close(); err != nil {
			log.Error().Err(err).Msg("Embedding dispatcher close error")
		}
	}
	if dm != nil {
		if err := dm.Close(); err != nil {
			log.Error().Err(err).Msg("Cache close error")
		}
	}
	if objects != nil {
		if err := objects.Close(); err != nil {
			log.Error().Err(err).Msg("Object store close error")
		}
	}

	s.wg.Wait()

	log.Info().Msg("Cache service shutdown complete")
	return nil
}
