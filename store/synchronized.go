package store

import (
	"context"
	"sync"
	"time"

	"github.com/lightartw/textanalyze/types"
)

var (
	_ Repository = &synchronized{}
)

// Synchronized serialises every call to repo. Concurrent runs share one
// repository through it, each call is still its own transaction.
func Synchronized(repo Repository) Repository {
	if s, ok := repo.(*synchronized); ok {
		return s
	}
	return &synchronized{repo: repo}
}

type synchronized struct {
	mu   sync.Mutex
	repo Repository
}

func (s *synchronized) Save(ctx context.Context, data types.Data) (*EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Save(ctx, data)
}

func (s *synchronized) Get(ctx context.Context, newsID string) (*EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Get(ctx, newsID)
}

func (s *synchronized) GetSimilar(ctx context.Context, category string, lookback time.Duration, limit int) ([]*EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.GetSimilar(ctx, category, lookback, limit)
}

func (s *synchronized) GetAll(ctx context.Context, filter *Filter, limit int) ([]*EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.GetAll(ctx, filter, limit)
}

func (s *synchronized) GetByDate(ctx context.Context, from, to time.Time, oilRelatedOnly bool, limit int) ([]*EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.GetByDate(ctx, from, to, oilRelatedOnly, limit)
}

func (s *synchronized) Stats(ctx context.Context, lookback time.Duration) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Stats(ctx, lookback)
}

func (s *synchronized) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Count(ctx)
}

func (s *synchronized) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Clear(ctx)
}

func (s *synchronized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repo.Close()
}
