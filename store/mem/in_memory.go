package mem

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/types"
)

var (
	_ store.Repository = &memStore{}
)

func NewMemStore() store.Repository {
	return &memStore{
		m: make(map[string]*store.EventRecord),
		// setup no error as default
		mockErrHandler: defaultNoErr,
	}
}

func NewMemStoreWithErrHandler(errHandler func() error) store.Repository {
	return &memStore{
		m:              make(map[string]*store.EventRecord),
		mockErrHandler: errHandler,
	}
}

func defaultNoErr() error {
	return nil
}

/**
 * memStore is a repository based on pure memory, it aims to provide a method for debug & testing
 * NEVER use it in the Production!
 */
type memStore struct {
	mu sync.Mutex

	mockErrHandler func() error

	m map[string]*store.EventRecord
}

func (m *memStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.m))
	for key := range m.m {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sb := &strings.Builder{}
	sb.WriteString("\n----------\n")
	for _, key := range keys {
		r := m.m[key]
		fmt.Fprintf(sb, "%s: %s related=%v factor=%v\n", key, r.Title, r.IsOilRelated, r.FactorValue)
	}
	sb.WriteString("----------\n")
	return sb.String()
}

func (m *memStore) Save(ctx context.Context, data types.Data) (*store.EventRecord, error) {
	record, err := store.RecordFromData(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := m.mockErrHandler(); err != nil {
		return nil, errors.Trace(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	record.CreatedAt, record.UpdatedAt = now, now
	if existing, exists := m.m[record.NewsID]; exists {
		record.CreatedAt = existing.CreatedAt
	}
	m.m[record.NewsID] = record
	return record.Clone(), nil
}

func (m *memStore) Get(ctx context.Context, newsID string) (*store.EventRecord, error) {
	if err := m.mockErrHandler(); err != nil {
		return nil, errors.Trace(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.m[newsID]
	if !exists {
		return nil, errors.NotFoundf("event %s", newsID)
	}
	return record.Clone(), nil
}

func (m *memStore) GetSimilar(ctx context.Context, category string, lookback time.Duration, limit int) ([]*store.EventRecord, error) {
	filter := &store.Filter{
		OilRelatedOnly: true,
		Category:       category,
		Since:          time.Now().UTC().Add(-lookback),
	}
	records, err := m.list(filter)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return math.Abs(records[i].FactorValue) > math.Abs(records[j].FactorValue)
	})
	return truncate(records, limit), nil
}

func (m *memStore) GetAll(ctx context.Context, filter *store.Filter, limit int) ([]*store.EventRecord, error) {
	records, err := m.list(filter)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return truncate(records, limit), nil
}

func (m *memStore) GetByDate(ctx context.Context, from, to time.Time, oilRelatedOnly bool, limit int) ([]*store.EventRecord, error) {
	records, err := m.list(&store.Filter{OilRelatedOnly: oilRelatedOnly})
	if err != nil {
		return nil, errors.Trace(err)
	}
	matched := records[:0]
	for _, r := range records {
		if r.InDateRange(from, to) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].EventDate.Equal(*matched[j].EventDate) {
			return matched[i].NewsID < matched[j].NewsID
		}
		return matched[i].EventDate.After(*matched[j].EventDate)
	})
	return truncate(matched, limit), nil
}

func (m *memStore) Stats(ctx context.Context, lookback time.Duration) (*store.Stats, error) {
	records, err := m.list(&store.Filter{Since: time.Now().UTC().Add(-lookback)})
	if err != nil {
		return nil, errors.Trace(err)
	}
	related := 0
	var sum float64
	for _, r := range records {
		if r.IsOilRelated {
			related++
			sum += r.FactorValue
		}
	}
	var avg float64
	if related > 0 {
		avg = sum / float64(related)
	}
	return store.NewStats(len(records), related, avg, lookback), nil
}

// list returns clones of the matching records, newest first.
func (m *memStore) list(filter *store.Filter) ([]*store.EventRecord, error) {
	if err := m.mockErrHandler(); err != nil {
		return nil, errors.Trace(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]*store.EventRecord, 0, len(m.m))
	for _, record := range m.m {
		if filter.Match(record) {
			records = append(records, record.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].NewsID < records[j].NewsID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func truncate(records []*store.EventRecord, limit int) []*store.EventRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

func (m *memStore) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.m), m.mockErrHandler()
}

func (m *memStore) Clear(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := len(m.m)
	m.m = make(map[string]*store.EventRecord)
	return deleted, m.mockErrHandler()
}

func (m *memStore) Close() error {
	return nil
}
