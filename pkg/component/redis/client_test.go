package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docquery/pkg/component/storage"
	options "github.com/kart-io/docquery/pkg/options/redis"
)

func TestNewInvalidOptions(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)

	opts := options.NewOptions()
	opts.Host = ""
	_, err = New(context.Background(), opts)
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
}

func TestNewUnreachable(t *testing.T) {
	opts := options.NewOptions()
	opts.Port = 1
	opts.DialTimeout = 200 * time.Millisecond
	opts.MaxRetries = -1

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := New(ctx, opts)
	assert.ErrorIs(t, err, storage.ErrConnectionFailed)
}

func TestClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := New(ctx, options.NewOptions())
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer client.Close()

	assert.Equal(t, "redis", client.Name())
	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.Client().Set(ctx, "docquery:test:ping", "pong", time.Minute).Err())
	val, err := client.Client().Get(ctx, "docquery:test:ping").Result()
	require.NoError(t, err)
	assert.Equal(t, "pong", val)
}
