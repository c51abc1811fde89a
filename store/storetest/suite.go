// Package storetest holds the behaviour every Repository implementation
// shares, run against each backend from its own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/types"
)

// Run executes the shared cases, newRepo must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	cases := []struct {
		name string
		fn   func(t *testing.T, repo store.Repository)
	}{
		{"SaveAndGet", testSaveAndGet},
		{"Upsert", testUpsert},
		{"Invalid", testInvalid},
		{"GetSimilar", testGetSimilar},
		{"GetAll", testGetAll},
		{"GetByDate", testGetByDate},
		{"Stats", testStats},
		{"Clear", testClear},
		{"ConcurrentSave", testConcurrentSave},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			repo := newRepo(t)
			defer repo.Close()
			c.fn(t, repo)
		})
	}
}

func event(id, category string, related bool, factor float64) types.Data {
	return types.Data{
		"id":             id,
		"title":          "title of " + id,
		"date":           "2024-03-05",
		"category":       category,
		"url":            "https://example.com/" + id,
		"is_oil_related": related,
		"factor_value":   factor,
	}
}

func ids(records []*store.EventRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.NewsID)
	}
	return out
}

func testSaveAndGet(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	data := event("n1", "geopolitical", true, -0.42)
	data["similar_events"] = []any{"n0"}
	data["transmission_path"] = "cut -> supply -> price"

	saved, err := repo.Save(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, "n1", saved.NewsID)

	got, err := repo.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "title of n1", got.Title)
	assert.Equal(t, "geopolitical", got.Category)
	assert.True(t, got.IsOilRelated)
	assert.InDelta(t, -0.42, got.FactorValue, 1e-9)
	require.NotNil(t, got.EventDate)
	assert.True(t, got.EventDate.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.False(t, got.CreatedAt.IsZero())

	assert.Equal(t, "cut -> supply -> price", got.Data["transmission_path"])
	assert.NotContains(t, got.Data, "similar_events")
	// the caller's context is left alone
	assert.Contains(t, data, "similar_events")

	flat := got.Flatten()
	assert.Equal(t, "n1", flat["news_id"])
	assert.Contains(t, flat, "created_at")

	_, err = repo.Get(ctx, "missing")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func testUpsert(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	first, err := repo.Save(ctx, event("n1", "macro", false, 0))
	require.NoError(t, err)

	update := event("n1", "macro", true, 0.8)
	update["title"] = "revised"
	second, err := repo.Save(ctx, update)
	require.NoError(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "revised", got.Title)
	assert.True(t, got.IsOilRelated)
	assert.True(t, got.CreatedAt.Equal(first.CreatedAt))
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

func testInvalid(t *testing.T, repo store.Repository) {
	_, err := repo.Save(context.Background(), types.Data{"title": "no id"})
	assert.True(t, errors.Is(err, errors.BadRequest))

	data := event("n2", "other", false, 0)
	data["date"] = "not a date"
	saved, err := repo.Save(context.Background(), data)
	require.NoError(t, err)
	assert.Nil(t, saved.EventDate)
}

func saveAll(t *testing.T, repo store.Repository, events ...types.Data) {
	for _, e := range events {
		_, err := repo.Save(context.Background(), e)
		require.NoError(t, err)
	}
}

func testGetSimilar(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	saveAll(t, repo,
		event("a", "geopolitical", true, -0.9),
		event("b", "geopolitical", true, 0.3),
		event("c", "macro", true, 0.6),
		event("d", "geopolitical", false, 0.99),
	)

	similar, err := repo.GetSimilar(ctx, "", 30*24*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(similar))

	similar, err = repo.GetSimilar(ctx, "geopolitical", 30*24*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(similar))

	similar, err = repo.GetSimilar(ctx, "", 30*24*time.Hour, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(similar))

	similar, err = repo.GetSimilar(ctx, "weather", 30*24*time.Hour, 5)
	require.NoError(t, err)
	assert.Empty(t, similar)
}

func testGetAll(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	saveAll(t, repo,
		event("a", "geopolitical", true, -0.9),
		event("b", "geopolitical", true, 0.3),
		event("c", "macro", true, 0.6),
		event("d", "geopolitical", false, 0.99),
	)

	all, err := repo.GetAll(ctx, nil, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, ids(all))

	related, err := repo.GetAll(ctx, &store.Filter{OilRelatedOnly: true}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids(related))

	macro, err := repo.GetAll(ctx, &store.Filter{Category: "macro"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(macro))

	limited, err := repo.GetAll(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	future, err := repo.GetAll(ctx, &store.Filter{Since: time.Now().Add(time.Hour)}, 0)
	require.NoError(t, err)
	assert.Empty(t, future)
}

func dated(id, date string, related bool) types.Data {
	e := event(id, "geopolitical", related, 0.5)
	e["date"] = date
	return e
}

func testGetByDate(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	undated := dated("e", "", true)
	delete(undated, "date")
	saveAll(t, repo,
		dated("a", "2024-03-05", true),
		dated("b", "2024-03-04", true),
		dated("c", "2024-03-01", true),
		dated("d", "2024-03-05", false),
		dated("f", "2024-03-06", true),
		undated,
	)
	from := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)

	related, err := repo.GetByDate(ctx, from, to, true, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(related))

	all, err := repo.GetByDate(ctx, from, to, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d", "b"}, ids(all))

	limited, err := repo.GetByDate(ctx, from, to, false, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(limited))

	none, err := repo.GetByDate(ctx, to.AddDate(1, 0, 0), to.AddDate(1, 0, 1), false, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testStats(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	stats, err := repo.Stats(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, &store.Stats{PeriodDays: 30}, stats)

	saveAll(t, repo,
		event("a", "geopolitical", true, -0.9),
		event("b", "macro", true, 0.3),
		event("c", "macro", false, 0),
	)
	stats, err = repo.Stats(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEvents)
	assert.Equal(t, 2, stats.OilRelatedEvents)
	assert.Equal(t, 1, stats.UnrelatedEvents)
	assert.InDelta(t, -0.3, stats.AvgFactorValue, 1e-9)
	assert.Equal(t, 30, stats.PeriodDays)
}

func testClear(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	saveAll(t, repo, event("a", "macro", true, 0.1), event("b", "macro", false, 0))

	deleted, err := repo.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func testConcurrentSave(t *testing.T, repo store.Repository) {
	repo = store.Synchronized(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// every other writer hits the same key
			id := "shared"
			if i%2 == 0 {
				id = "item-" + string(rune('a'+i))
			}
			_, err := repo.Save(ctx, event(id, "macro", true, float64(i)/20))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, count)
}
