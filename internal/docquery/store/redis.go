package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/utils/json"
)

// maxWatchRetries 乐观事务冲突时的重试次数。
const maxWatchRetries = 5

// RedisConfig Redis 任务存储配置。
type RedisConfig struct {
	// KeyPrefix 键前缀。
	KeyPrefix string
	// TTL 记录过期时间，0 表示不过期。
	TTL time.Duration
}

// RedisStore 以 JSON 保存任务记录，写操作使用 WATCH/MULTI 乐观事务。
type RedisStore struct {
	client goredis.UniversalClient
	config RedisConfig
}

var _ JobStore = (*RedisStore)(nil)

// NewRedisStore 创建 Redis 存储，client 由调用方负责关闭。
func NewRedisStore(client goredis.UniversalClient, config RedisConfig) *RedisStore {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "docquery:job:"
	}
	return &RedisStore{client: client, config: config}
}

// Backend implements Named.
func (s *RedisStore) Backend() string {
	return "redis"
}

func (s *RedisStore) key(jobID string) string {
	return s.config.KeyPrefix + jobID
}

// Create implements JobStore.
func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(job.JobID), data, s.config.TTL).Result()
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.JobID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.JobID)
	}
	return nil
}

// Get implements JobStore.
func (s *RedisStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.client.Get(ctx, s.key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return decodeJob(data)
}

// CompareAndSwap implements JobStore.
func (s *RedisStore) CompareAndSwap(ctx context.Context, jobID string, from model.JobStatus, mutate func(*model.Job)) (*model.Job, error) {
	key := s.key(jobID)
	var next *model.Job

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
			}
			return err
		}
		current, err := decodeJob(data)
		if err != nil {
			return err
		}

		next, err = applyTransition(current, from, mutate)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.config.TTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, goredis.TxFailedErr) {
			return nil, err
		}
		logger.Debugw("job update raced, retrying", "job_id", jobID, "attempt", attempt+1)
	}
	return nil, fmt.Errorf("%w: job %s kept changing", ErrStatusConflict, jobID)
}

// Close implements JobStore. The shared client is closed by its owner.
func (s *RedisStore) Close() error {
	return nil
}

func decodeJob(data []byte) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
