package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/coderunner/internal/api"
	"github.com/itstheanurag/coderunner/internal/config"
	"github.com/itstheanurag/coderunner/internal/events"
	"github.com/itstheanurag/coderunner/internal/executor"
	"github.com/itstheanurag/coderunner/internal/jobs"
	"github.com/itstheanurag/coderunner/internal/languages"
	"github.com/itstheanurag/coderunner/internal/limiter"
	"github.com/itstheanurag/coderunner/internal/queue"
	"github.com/itstheanurag/coderunner/internal/sandbox"
	"github.com/itstheanurag/coderunner/internal/worker"
)

type Server struct {
	conf        *config.Config
	logger      *zerolog.Logger
	httpServer  *http.Server
	redis       *redis.Client
	executor    *executor.Executor
	queue       *queue.Manager
	workers     []*worker.Worker
	publisher   events.Publisher
	rateLimiter *limiter.RateLimiter
	cancelFunc  context.CancelFunc
}

func New(conf *config.Config, logger *zerolog.Logger) (*Server, error) {
	registry := languages.NewRegistry()
	backend, err := newSandbox(conf.Sandbox, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}
	pool := sandbox.NewPool(backend, conf.Sandbox.MaxConcurrent)

	exec := executor.NewExecutor(registry, pool, executor.Options{
		AggregateTimeout: conf.Executor.AggregateTimeout,
		CaseWorkers:      conf.Executor.CaseWorkers,
		DefaultLimits: sandbox.Limits{
			CPUTime:     conf.Executor.DefaultCPUTime,
			WallTime:    conf.Executor.DefaultWallTime,
			MemoryMB:    conf.Executor.DefaultMemoryMB,
			OutputBytes: conf.Executor.OutputBytes,
		},
		MaxLimits: sandbox.Limits{
			CPUTime:     conf.Executor.MaxCPUTime,
			WallTime:    conf.Executor.MaxWallTime,
			MemoryMB:    conf.Executor.MaxMemoryMB,
			OutputBytes: conf.Executor.OutputBytes,
		},
	}, logger)

	var (
		store     jobs.Store
		rdb       *redis.Client
		publisher events.Publisher = events.NopPublisher{}
	)
	if conf.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = jobs.NewRedisStore(rdb, conf.Redis.JobTTL)
		logger.Info().Str("addr", conf.Redis.Addr).Msg("using redis job store")
	} else {
		store = jobs.NewMemoryStore(conf.Redis.JobTTL)
	}
	if len(conf.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(conf.Kafka.Brokers, conf.Kafka.Topic)
		logger.Info().Strs("brokers", conf.Kafka.Brokers).Str("topic", conf.Kafka.Topic).Msg("publishing reports to kafka")
	}

	q := queue.NewManager(conf.Queue.Capacity)
	rl := limiter.NewRateLimiter(conf.Limiter.GlobalRPS, conf.Limiter.PerClientRPS, conf.Limiter.PerClientBurst, conf.Limiter.MaxConcurrent)

	handler := api.NewHandler(q, store, exec, api.Options{
		WaitTimeout:  conf.Queue.WaitTimeout,
		MaxBodyBytes: conf.Server.MaxBodyBytes,
	}, logger)

	workers := make([]*worker.Worker, conf.Queue.Workers)
	for i := range workers {
		workers[i] = worker.NewWorker(i, exec, q, store, publisher, logger)
	}

	s := &Server{
		conf:        conf,
		logger:      logger,
		redis:       rdb,
		executor:    exec,
		queue:       q,
		workers:     workers,
		publisher:   publisher,
		rateLimiter: rl,
	}
	s.httpServer = &http.Server{
		Addr:         ":" + conf.Server.Port,
		Handler:      s.routes(handler),
		ReadTimeout:  time.Duration(conf.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(conf.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(conf.Server.IdleTimeout) * time.Second,
	}
	return s, nil
}

func newSandbox(conf config.SandboxConfig, logger *zerolog.Logger) (sandbox.Sandbox, error) {
	if conf.Backend == "process" {
		logger.Warn().Msg("using process sandbox: submissions run on the host without container isolation")
		return sandbox.NewProcessSandbox(sandbox.ProcessConfig{
			BaseDir: conf.ProcessBaseDir,
			Path:    conf.ProcessPath,
			Cgroup:  conf.ProcessCgroup,
		}, logger)
	}
	return sandbox.NewDockerSandbox(sandbox.DockerConfig{
		User:        conf.DockerUser,
		NanoCPUs:    int64(conf.DockerCPUs * 1e9),
		WorkDirSize: conf.WorkDirSize,
	}, logger)
}

func (s *Server) routes(handler *api.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.conf.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	// health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/code", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware)
		handler.Routes(r)
	})
	return r
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("port", s.conf.Server.Port).
		Str("sandbox", s.conf.Sandbox.Backend).
		Int("workers", len(s.workers)).
		Msg("starting HTTP server")

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel

	if s.conf.Sandbox.PullImages {
		s.executor.PrepareImages(ctx)
	}

	s.rateLimiter.StartCleanup(ctx, s.conf.Limiter.CleanupInterval, s.conf.Limiter.ClientIdle)
	for _, w := range s.workers {
		go w.Start(ctx)
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close report publisher")
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	return nil
}

func requestLogger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request handled")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
