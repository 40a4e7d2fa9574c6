package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docquery/pkg/component/storage"
)

type record struct {
	ID   string `gorm:"primaryKey"`
	Name string
}

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	client, err := Open(ctx, &Config{
		Dialect:  DialectSQLite,
		DSN:      "file:database_test?mode=memory&cache=shared",
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, DialectSQLite, client.Name())
	require.NoError(t, client.Ping(ctx))

	db := client.DB()
	require.NoError(t, db.AutoMigrate(&record{}))
	require.NoError(t, db.Create(&record{ID: "1", Name: "a"}).Error)

	var got record
	require.NoError(t, db.First(&got, "id = ?", "1").Error)
	assert.Equal(t, "a", got.Name)
}

func TestOpenInvalid(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)

	_, err = Open(context.Background(), &Config{Dialect: "oracle", DSN: "x"})
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
}

func TestGormLoggerLogMode(t *testing.T) {
	l := NewGormLogger(gormlogger.Warn, time.Second)
	quiet := l.LogMode(gormlogger.Silent).(*GormLogger)

	assert.Equal(t, gormlogger.Silent, quiet.Level)
	assert.Equal(t, gormlogger.Warn, l.Level)

	// Silent 级别不调用 fc
	called := false
	quiet.Trace(context.Background(), time.Now(), func() (string, int64) {
		called = true
		return "", 0
	}, nil)
	assert.False(t, called)
}
