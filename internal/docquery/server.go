// Package docquery provides the document query service server implementation.
package docquery

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/docquery/handler"
	"github.com/kart-io/docquery/internal/docquery/metrics"
	"github.com/kart-io/docquery/internal/docquery/router"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/pkg/rag/chunker"
	"github.com/kart-io/docquery/internal/pkg/rag/docutil"
	"github.com/kart-io/docquery/internal/pkg/rag/evaluator"
	"github.com/kart-io/docquery/internal/pkg/rag/vectorindex"
	"github.com/kart-io/docquery/pkg/component/database"
	"github.com/kart-io/docquery/pkg/component/milvus"
	"github.com/kart-io/docquery/pkg/component/redis"
	"github.com/kart-io/docquery/pkg/component/storage"
	"github.com/kart-io/docquery/pkg/infra/app"
	"github.com/kart-io/docquery/pkg/infra/middleware"
	"github.com/kart-io/docquery/pkg/infra/pool"
	"github.com/kart-io/docquery/pkg/infra/tracing"
	"github.com/kart-io/docquery/pkg/llm"
	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docquery/pkg/llm/ollama"
	_ "github.com/kart-io/docquery/pkg/llm/openai"
	cacheopts "github.com/kart-io/docquery/pkg/options/cache"
	fetchopts "github.com/kart-io/docquery/pkg/options/fetch"
	jobopts "github.com/kart-io/docquery/pkg/options/job"
	llmopts "github.com/kart-io/docquery/pkg/options/llm"
	logopts "github.com/kart-io/docquery/pkg/options/logger"
	metricsopts "github.com/kart-io/docquery/pkg/options/metrics"
	milvusopts "github.com/kart-io/docquery/pkg/options/milvus"
	poolopts "github.com/kart-io/docquery/pkg/options/pool"
	queryopts "github.com/kart-io/docquery/pkg/options/query"
	redisopts "github.com/kart-io/docquery/pkg/options/redis"
	httpopts "github.com/kart-io/docquery/pkg/options/server/http"
	tracingopts "github.com/kart-io/docquery/pkg/options/tracing"
)

// Name is the name of the application.
const Name = "docquery"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	QueryOptions     *queryopts.Options
	FetchOptions     *fetchopts.Options
	JobOptions       *jobopts.Options
	PoolOptions      *poolopts.Options
	RedisOptions     *redisopts.Options
	CacheOptions     *cacheopts.Options
	MilvusOptions    *milvusopts.Options
	TracingOptions   *tracingopts.Options
	MetricsOptions   *metricsopts.Options
	ShutdownTimeout  time.Duration
}

// Server represents the docquery server.
type Server struct {
	http         *http.Server
	orchestrator *biz.Orchestrator
	pool         *pool.Pool
	jobs         store.JobStore
	storage      *storage.Manager
	tracing      *tracing.Provider
	metrics      *metrics.Provider

	shutdownTimeout time.Duration
}

// NewServer initializes and returns a new Server instance.
// 初始化失败时已创建的连接会被关闭。
func (cfg *Config) NewServer(ctx context.Context) (srv *Server, err error) {
	// 1. 初始化日志
	if err := cfg.LogOptions.Init(map[string]any{
		"service.name":    Name,
		"service.version": app.GetVersion(),
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docquery service...")

	mgr := storage.NewManager(nil)
	var cleanups []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		_ = mgr.CloseAll()
	}()

	// 2. 初始化链路追踪（需先于 Biz 层设置全局 TracerProvider）
	tp, err := tracing.NewProvider(ctx, cfg.TracingOptions, Name, app.GetVersion())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanups = append(cleanups, func() { _ = tp.Shutdown(context.Background()) })
	if tp.Enabled() {
		logger.Infow("Tracing enabled",
			"exporter", cfg.TracingOptions.ExporterType,
			"endpoint", cfg.TracingOptions.Endpoint,
		)
	}

	// 3. 初始化 LLM 供应商
	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)

	chatProvider, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	// 4. 初始化 Redis 客户端（任务存储与 embedding 缓存共用）
	var redisClient *redis.Client
	if cfg.JobOptions.Store == jobopts.StoreRedis || cfg.CacheOptions.Enabled {
		redisClient, err = redis.New(ctx, cfg.RedisOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		if err = mgr.Register(redisClient.Name(), redisClient); err != nil {
			_ = redisClient.Close()
			return nil, err
		}
		logger.Infow("Redis client initialized", "addr", cfg.RedisOptions.Addr())
	}

	if cfg.CacheOptions.Enabled {
		embedProvider = llm.NewCachedEmbeddingProvider(embedProvider, redisClient.Client(), &llm.EmbeddingCacheConfig{
			Enabled:   true,
			TTL:       cfg.CacheOptions.TTL,
			KeyPrefix: cfg.CacheOptions.KeyPrefix,
			Namespace: cfg.EmbeddingOptions.Provider + ":" + cfg.EmbeddingOptions.Model,
		})
		logger.Infow("Embedding cache enabled", "ttl", cfg.CacheOptions.TTL)
	}

	// 5. 初始化任务存储
	jobs, err := cfg.newJobStore(ctx, mgr, redisClient)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { _ = jobs.Close() })
	backend := cfg.JobOptions.Store
	if named, ok := jobs.(store.Named); ok {
		backend = named.Backend()
	}
	logger.Infow("Job store initialized", "backend", backend)

	// 6. 初始化向量索引
	factory, err := cfg.newIndexFactory(ctx, mgr, embedProvider)
	if err != nil {
		return nil, err
	}
	logger.Infow("Vector index initialized", "backend", cfg.QueryOptions.IndexBackend)

	// 7. 初始化 Biz 层
	fetcher := docutil.NewHTTPFetcher(docutil.FetcherConfig{
		Timeout:    cfg.FetchOptions.Timeout,
		MaxSize:    cfg.FetchOptions.MaxSize,
		MaxRetries: cfg.FetchOptions.MaxRetries,
	})
	splitter := chunker.New(
		chunker.WithChunkSize(cfg.QueryOptions.ChunkSize),
		chunker.WithChunkOverlap(cfg.QueryOptions.ChunkOverlap),
	)
	pipeline := biz.NewPipeline(
		fetcher,
		splitter,
		factory,
		biz.NewLLMGenerator(chatProvider),
		evaluator.New(chatProvider),
		biz.PipelineConfig{
			TopK:             cfg.QueryOptions.TopK,
			FetchConcurrency: cfg.FetchOptions.Concurrency,
			IndexDir:         cfg.QueryOptions.IndexDir,
		},
	)

	workers, err := pool.NewPool("docquery-jobs", cfg.PoolOptions.ToConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize worker pool: %w", err)
	}
	cleanups = append(cleanups, workers.Release)

	var (
		mp       *metrics.Provider
		recorder metrics.Recorder
	)
	if cfg.MetricsOptions.Enabled {
		mp, err = metrics.NewProvider(ctx, metrics.Config{
			Namespace:      cfg.MetricsOptions.Namespace,
			ServiceName:    Name,
			ServiceVersion: app.GetVersion(),
			Pool:           workers,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		cleanups = append(cleanups, func() { _ = mp.Shutdown(context.Background()) })
		recorder = mp.Recorder()
		logger.Infow("Metrics enabled", "path", cfg.MetricsOptions.Path)
	}

	orchestrator := biz.NewOrchestrator(jobs, pipeline, workers, biz.OrchestratorConfig{
		JobTimeout: cfg.JobOptions.Timeout,
		Metrics:    recorder,
	})
	logger.Infow("Query service initialized",
		"chunk_size", cfg.QueryOptions.ChunkSize,
		"chunk_overlap", cfg.QueryOptions.ChunkOverlap,
		"top_k", cfg.QueryOptions.TopK,
		"pool.capacity", workers.Cap(),
	)

	// 8. 初始化 Handler 层
	queryHandler := handler.NewQueryHandler(orchestrator, mgr, handler.Config{
		SyncTimeout:       cfg.QueryOptions.SyncTimeout,
		StoreBackend:      backend,
		Version:           app.GetVersion(),
		DisableValidation: !cfg.QueryOptions.ValidateAnswer,
	})

	// 9. 初始化 HTTP 服务器并注册路由
	gin.SetMode(cfg.HTTPOptions.Mode)
	cors := middleware.AllowAllCORSConfig
	cors.AllowOrigins = cfg.HTTPOptions.CORSAllowOrigins
	routerOpts := router.Options{
		CORS:             &cors,
		EnableStackTrace: cfg.HTTPOptions.Mode == gin.DebugMode,
	}
	if mp != nil {
		routerOpts.Metrics = mp.Recorder()
		routerOpts.MetricsHandler = mp.Handler()
		routerOpts.MetricsPath = cfg.MetricsOptions.Path
	}
	engine := router.NewEngine(queryHandler, routerOpts)

	logger.Infow("docquery service is ready", "addr", cfg.HTTPOptions.Addr)
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPOptions.Addr,
			Handler:      engine,
			ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
			WriteTimeout: cfg.HTTPOptions.WriteTimeout,
			IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
		},
		orchestrator:    orchestrator,
		pool:            workers,
		jobs:            jobs,
		storage:         mgr,
		tracing:         tp,
		metrics:         mp,
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

func (cfg *Config) newJobStore(ctx context.Context, mgr *storage.Manager, redisClient *redis.Client) (store.JobStore, error) {
	switch cfg.JobOptions.Store {
	case jobopts.StoreRedis:
		return store.NewRedisStore(redisClient.Client(), store.RedisConfig{
			KeyPrefix: cfg.JobOptions.KeyPrefix,
			TTL:       cfg.JobOptions.TTL,
		}), nil
	case jobopts.StoreGorm:
		db, err := database.Open(ctx, &database.Config{
			Dialect:       cfg.JobOptions.Dialect,
			DSN:           cfg.JobOptions.DSN,
			LogLevel:      gormlogger.Warn,
			SlowThreshold: 200 * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open job database: %w", err)
		}
		if err := mgr.Register(db.Name(), db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return store.NewGormStore(ctx, db.DB())
	default:
		return store.NewMemoryStore(), nil
	}
}

func (cfg *Config) newIndexFactory(ctx context.Context, mgr *storage.Manager, embedder llm.EmbeddingProvider) (vectorindex.Factory, error) {
	if cfg.QueryOptions.IndexBackend != queryopts.BackendMilvus {
		return vectorindex.NewMemoryFactory(embedder, cfg.QueryOptions.EmbedBatchSize), nil
	}

	client, err := milvus.New(ctx, cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	if err := mgr.Register(client.Name(), client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return vectorindex.NewMilvusFactory(client, embedder, cfg.MilvusOptions.CollectionPrefix, cfg.QueryOptions.EmbedBatchSize), nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully:
// stop accepting requests, drain running jobs, release the pool and close stores.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down docquery service...")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Errorw("HTTP server failed", "error", serveErr.Error())
		}
	}

	return stderrors.Join(serveErr, s.shutdown())
}

func (s *Server) shutdown() error {
	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.orchestrator.Shutdown(ctx); err != nil {
		logger.Warnw("running jobs did not finish before shutdown deadline", "error", err.Error())
		errs = append(errs, fmt.Errorf("draining jobs: %w", err))
	}
	s.pool.Release()
	if err := s.jobs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing job store: %w", err))
	}
	if err := s.storage.CloseAll(); err != nil {
		errs = append(errs, err)
	}
	if err := s.metrics.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
	}
	if err := s.tracing.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}

	logger.Info("docquery service stopped")
	return stderrors.Join(errs...)
}
