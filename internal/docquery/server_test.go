package docquery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

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

func newTestConfig(t *testing.T) *Config {
	t.Helper()

	chat := llmopts.NewChatOptions()
	chat.Provider = "ollama"
	chat.BaseURL = "http://127.0.0.1:1"

	embedding := llmopts.NewEmbeddingOptions()
	embedding.BaseURL = "http://127.0.0.1:1"

	query := queryopts.NewOptions()
	query.IndexDir = ""

	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = "127.0.0.1:0"
	httpOpts.Mode = "test"

	return &Config{
		HTTPOptions:      httpOpts,
		LogOptions:       logopts.NewOptions(),
		EmbeddingOptions: embedding,
		ChatOptions:      chat,
		QueryOptions:     query,
		FetchOptions:     fetchopts.NewOptions(),
		JobOptions:       jobopts.NewOptions(),
		PoolOptions:      poolopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		TracingOptions:   tracingopts.NewOptions(),
		MetricsOptions:   metricsopts.NewOptions(),
		ShutdownTimeout:  time.Second,
	}
}

func TestNewServerMemoryStore(t *testing.T) {
	cfg := newTestConfig(t)

	srv, err := cfg.NewServer(context.Background())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"memory"`)

	req = httptest.NewRequest(http.MethodGet, "/jobs/unknown", nil)
	w = httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "docquery_pool_capacity")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.Run(ctx))
}

func TestNewServerGormStore(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.JobOptions.Store = jobopts.StoreGorm
	cfg.JobOptions.Dialect = jobopts.DialectSQLite
	cfg.JobOptions.DSN = "file:server_test?mode=memory&cache=shared"

	srv, err := cfg.NewServer(context.Background())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"gorm/sqlite"`)
	assert.Contains(t, w.Body.String(), `"name":"sqlite"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.Run(ctx))
}

func TestNewServerUnknownProvider(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ChatOptions.Provider = "nope"

	_, err := cfg.NewServer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize chat provider")
}

func TestNewServerRedisUnavailable(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.JobOptions.Store = jobopts.StoreRedis
	cfg.RedisOptions.Port = 1
	cfg.RedisOptions.DialTimeout = 100 * time.Millisecond

	_, err := cfg.NewServer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize redis")
}

func TestNewServerTracingEnabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := newTestConfig(t)
	cfg.TracingOptions.Enabled = true
	cfg.TracingOptions.ExporterType = tracingopts.ExporterNoop

	srv, err := cfg.NewServer(context.Background())
	require.NoError(t, err)
	assert.True(t, srv.tracing.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.Run(ctx))
}

func TestNewServerMetricsDisabled(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.MetricsOptions.Enabled = false

	srv, err := cfg.NewServer(context.Background())
	require.NoError(t, err)
	assert.Nil(t, srv.metrics)

	w := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, srv.Run(ctx))
}
