// Package id provides unique ID generation utilities for docquery.
//
// IDs are ULIDs: 26 characters, Crockford base32, lexicographically sortable
// by creation time and monotonic within the same millisecond.
//
// Usage:
//
//	jobID := id.NewULID()              // e.g., "01ARZ3NDEKTSV4RRFFQ69G5FAV"
//
//	gen := id.NewULIDGenerator()
//	ids := gen.GenerateN(3)
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator defines the interface for ID generators.
type Generator interface {
	// Generate creates a new unique ID.
	Generate() string

	// GenerateN creates n unique IDs.
	GenerateN(n int) []string
}

// ULIDGenerator generates monotonic ULIDs. Safe for concurrent use.
type ULIDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

var _ Generator = (*ULIDGenerator)(nil)

// ULIDOption is a functional option for ULIDGenerator.
type ULIDOption func(*ulidConfig)

type ulidConfig struct {
	reader io.Reader
	now    func() time.Time
}

// WithULIDReader sets a custom random reader for ULID generation.
func WithULIDReader(r io.Reader) ULIDOption {
	return func(c *ulidConfig) {
		c.reader = r
	}
}

// WithULIDClock sets the time source used for the timestamp part.
func WithULIDClock(now func() time.Time) ULIDOption {
	return func(c *ulidConfig) {
		c.now = now
	}
}

// NewULIDGenerator creates a new ULID generator.
func NewULIDGenerator(opts ...ULIDOption) *ULIDGenerator {
	cfg := ulidConfig{reader: rand.Reader, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &ULIDGenerator{
		entropy: ulid.Monotonic(cfg.reader, 0),
		now:     cfg.now,
	}
}

// Generate creates a new ULID string.
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		// 单毫秒内熵溢出或读取失败，换一个非单调的随机源重试
		id = ulid.Make()
	}
	return id.String()
}

// GenerateN creates n ULID strings.
func (g *ULIDGenerator) GenerateN(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = g.Generate()
	}
	return ids
}

var (
	defaultULID Generator
	initOnce    sync.Once
)

// NewULID generates a new ULID string with the shared default generator.
func NewULID() string {
	initOnce.Do(func() {
		defaultULID = NewULIDGenerator()
	})
	return defaultULID.Generate()
}

// ParseULID parses a ULID string and returns its creation time.
func ParseULID(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidULID, err)
	}
	return ulid.Time(u.Time()), nil
}

// IsValidULID checks if a string is a valid ULID format.
func IsValidULID(s string) bool {
	_, err := ParseULID(s)
	return err == nil
}
