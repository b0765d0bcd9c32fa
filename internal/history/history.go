// Package history keeps analysis results so they can be listed after the session ends.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/skin-analyzer/pkg/types"
)

// ErrNotFound is returned when no result has the requested ID
var ErrNotFound = errors.New("history: result not found")

// Origins of a stored result
const (
	OriginCamera = "camera"
	OriginUpload = "upload"
	OriginBatch  = "batch"
)

// Entry is one stored result
type Entry struct {
	Origin string                `json:"origin"`
	Result *types.AnalysisResult `json:"result"`
}

// Store persists analysis results
type Store interface {
	Save(ctx context.Context, origin string, r *types.AnalysisResult) error
	// List returns up to limit entries, newest first
	List(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Close()
}

// Open returns the store for driver "memory" or "postgres"
func Open(ctx context.Context, driver, url string, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch driver {
	case "", "memory":
		logger.Debug("Using in-memory history")
		return NewMemory(DefaultMemoryLimit), nil
	case "postgres":
		s, err := NewPostgres(ctx, url)
		if err != nil {
			return nil, err
		}
		logger.Info("Connected to history database")
		return s, nil
	default:
		return nil, fmt.Errorf("history: unknown driver %q", driver)
	}
}

// DefaultMemoryLimit bounds the in-memory store
const DefaultMemoryLimit = 500

// Memory is a bounded in-process Store; the oldest entries are evicted first
type Memory struct {
	mu      sync.RWMutex
	limit   int
	entries []Entry
}

// NewMemory creates a Memory store holding at most limit entries
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{limit: limit}
}

func (m *Memory) Save(ctx context.Context, origin string, r *types.AnalysisResult) error {
	if r == nil || r.ID == "" {
		return errors.New("history: result without id")
	}
	stored := r.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, Entry{Origin: origin, Result: stored})
	if over := len(m.entries) - m.limit; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
	return nil
}

func (m *Memory) List(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.entries[i]
		out = append(out, Entry{Origin: e.Origin, Result: e.Result.Clone()})
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if e := m.entries[i]; e.Result.ID == id {
			return &Entry{Origin: e.Origin, Result: e.Result.Clone()}, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Close() {}
