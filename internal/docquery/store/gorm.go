package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/docquery/internal/model"
	"github.com/kart-io/docquery/pkg/utils/json"
)

// jobRecord 任务表结构，列表字段以 JSON 文本保存。
type jobRecord struct {
	JobID        string     `gorm:"primaryKey;type:varchar(64)"`
	Status       string     `gorm:"type:varchar(16);index;not null"`
	Query        string     `gorm:"type:text;not null"`
	DocumentURLs string     `gorm:"type:text;not null"`
	Validate     bool       `gorm:"not null"`
	Result       *string    `gorm:"type:text"`
	Error        string     `gorm:"type:text"`
	CreatedAt    time.Time  `gorm:"not null;autoCreateTime:false"`
	CompletedAt  *time.Time `gorm:""`
}

// TableName specifies the table name for jobRecord.
func (jobRecord) TableName() string {
	return "docquery_jobs"
}

// GormStore 基于 gorm 的任务存储，支持 sqlite、mysql、postgres。
type GormStore struct {
	db      *gorm.DB
	dialect string
}

var _ JobStore = (*GormStore)(nil)

// NewGormStore 创建存储并迁移表结构。
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&jobRecord{}); err != nil {
		return nil, fmt.Errorf("migrate job table: %w", err)
	}
	return &GormStore{db: db, dialect: db.Dialector.Name()}, nil
}

// Backend implements Named.
func (s *GormStore) Backend() string {
	return "gorm/" + s.dialect
}

// Create implements JobStore.
func (s *GormStore) Create(ctx context.Context, job *model.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	rec, err := toRecord(job)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&jobRecord{}).Where("job_id = ?", job.JobID).Count(&n).Error; err != nil {
			return fmt.Errorf("check job %s: %w", job.JobID, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrJobExists, job.JobID)
		}
		if err := tx.Select("*").Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrJobExists, job.JobID)
			}
			return fmt.Errorf("save job %s: %w", job.JobID, err)
		}
		return nil
	})
}

// Get implements JobStore.
func (s *GormStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var rec jobRecord
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return fromRecord(&rec)
}

// CompareAndSwap 以 UPDATE ... WHERE job_id = ? AND status = ? 条件更新。
func (s *GormStore) CompareAndSwap(ctx context.Context, jobID string, from model.JobStatus, mutate func(*model.Job)) (*model.Job, error) {
	var next *model.Job

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec jobRecord
		if err := tx.Where("job_id = ?", jobID).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
			}
			return err
		}
		current, err := fromRecord(&rec)
		if err != nil {
			return err
		}

		next, err = applyTransition(current, from, mutate)
		if err != nil {
			return err
		}
		updated, err := toRecord(next)
		if err != nil {
			return err
		}

		res := tx.Model(&jobRecord{}).
			Where("job_id = ? AND status = ?", jobID, string(from)).
			Updates(map[string]any{
				"status":       updated.Status,
				"result":       updated.Result,
				"error":        updated.Error,
				"completed_at": updated.CompletedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: job %s is no longer %s", ErrStatusConflict, jobID, from)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Close implements JobStore. The connection is closed by its owner.
func (s *GormStore) Close() error {
	return nil
}

func toRecord(job *model.Job) (*jobRecord, error) {
	urls, err := json.Marshal(job.DocumentURLs)
	if err != nil {
		return nil, fmt.Errorf("encode document urls: %w", err)
	}

	rec := &jobRecord{
		JobID:        job.JobID,
		Status:       string(job.Status),
		Query:        job.Query,
		DocumentURLs: string(urls),
		Validate:     job.Validate,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		s := string(data)
		rec.Result = &s
	}
	return rec, nil
}

func fromRecord(rec *jobRecord) (*model.Job, error) {
	job := &model.Job{
		JobID:       rec.JobID,
		Status:      model.JobStatus(rec.Status),
		Query:       rec.Query,
		Validate:    rec.Validate,
		Error:       rec.Error,
		CreatedAt:   rec.CreatedAt,
		CompletedAt: rec.CompletedAt,
	}
	if err := json.Unmarshal([]byte(rec.DocumentURLs), &job.DocumentURLs); err != nil {
		return nil, fmt.Errorf("decode document urls: %w", err)
	}
	if rec.Result != nil && *rec.Result != "" {
		var result model.QueryResult
		if err := json.Unmarshal([]byte(*rec.Result), &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &result
	}
	return job, nil
}
