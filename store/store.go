package store

import (
	"context"
	"math"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/lightartw/textanalyze/types"
)

// Context keys that are derived into index columns on save.
const (
	KeyNewsID       = "news_id"
	KeyID           = "id"
	KeyDate         = "date"
	KeyTitle        = "title"
	KeyCategory     = "category"
	KeyIsOilRelated = "is_oil_related"
	KeyFactorValue  = "factor_value"
	KeySimilar      = "similar_events"
)

// EventRecord is one analysed news item. Data carries the whole run
// context as it was when the item was saved.
type EventRecord struct {
	NewsID       string     `json:"news_id"`
	EventDate    *time.Time `json:"event_date,omitempty"`
	Title        string     `json:"title"`
	Category     string     `json:"category"`
	IsOilRelated bool       `json:"is_oil_related"`
	FactorValue  float64    `json:"factor_value"`
	Data         types.Data `json:"data"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Flatten returns the saved data plus the record's bookkeeping fields.
func (r *EventRecord) Flatten() types.Data {
	out := r.Data.Clone()
	out[KeyNewsID] = r.NewsID
	out["created_at"] = r.CreatedAt.Format(time.RFC3339)
	out["updated_at"] = r.UpdatedAt.Format(time.RFC3339)
	return out
}

func (r *EventRecord) Clone() *EventRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = r.Data.Clone()
	if r.EventDate != nil {
		d := *r.EventDate
		c.EventDate = &d
	}
	return &c
}

type Filter struct {
	OilRelatedOnly bool
	Category       string
	// Since keeps records created at or after it, ignored when zero.
	Since time.Time
}

func (f *Filter) Match(r *EventRecord) bool {
	if f == nil {
		return true
	}
	if f.OilRelatedOnly && !r.IsOilRelated {
		return false
	}
	if f.Category != "" && f.Category != r.Category {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// InDateRange reports whether the event date of r falls in [from, to).
func (r *EventRecord) InDateRange(from, to time.Time) bool {
	if r.EventDate == nil {
		return false
	}
	return !r.EventDate.Before(from) && r.EventDate.Before(to)
}

// Stats counts the records created within a lookback window.
type Stats struct {
	TotalEvents      int     `json:"total_events"`
	OilRelatedEvents int     `json:"oil_related_events"`
	UnrelatedEvents  int     `json:"unrelated_events"`
	AvgFactorValue   float64 `json:"avg_factor_value"`
	PeriodDays       int     `json:"period_days"`
}

// NewStats derives the remaining fields from what a backend counted.
// avgFactor is the mean factor value of the oil related records.
func NewStats(total, related int, avgFactor float64, lookback time.Duration) *Stats {
	return &Stats{
		TotalEvents:      total,
		OilRelatedEvents: related,
		UnrelatedEvents:  total - related,
		AvgFactorValue:   math.Round(avgFactor*1e4) / 1e4,
		PeriodDays:       int(lookback / (24 * time.Hour)),
	}
}

/**
 * Repository persists analysed events keyed by news id. Save is an upsert:
 * the first save creates the record, later saves replace its data and keep
 * its creation time.
 */
type Repository interface {
	Save(ctx context.Context, data types.Data) (*EventRecord, error)
	/**
	 * Get returns errors.NotFound when no record has the news id.
	 */
	Get(ctx context.Context, newsID string) (*EventRecord, error)
	/**
	 * GetSimilar returns oil related records created within lookback,
	 * strongest factor value first. An empty category matches all.
	 */
	GetSimilar(ctx context.Context, category string, lookback time.Duration, limit int) ([]*EventRecord, error)
	// GetAll returns the newest records first, limit <= 0 means no limit.
	GetAll(ctx context.Context, filter *Filter, limit int) ([]*EventRecord, error)
	/**
	 * GetByDate returns the records whose event date falls in [from, to),
	 * latest event first. Records without an event date never match.
	 */
	GetByDate(ctx context.Context, from, to time.Time, oilRelatedOnly bool, limit int) ([]*EventRecord, error)
	Stats(ctx context.Context, lookback time.Duration) (*Stats, error)
	Count(ctx context.Context) (int, error)
	// Clear deletes every record and returns how many were deleted.
	Clear(ctx context.Context) (int, error)
	Close() error
}

// RecordFromData derives the index columns of a record from a run context.
func RecordFromData(data types.Data) (*EventRecord, error) {
	newsID, _ := data.GetString(KeyNewsID)
	if newsID == "" {
		newsID, _ = data.GetString(KeyID)
	}
	if newsID == "" {
		return nil, errors.BadRequestf("record has no %s nor %s", KeyNewsID, KeyID)
	}

	record := &EventRecord{
		NewsID: newsID,
		Data:   data.Clone(),
	}
	delete(record.Data, KeySimilar)

	record.Title, _ = data.GetString(KeyTitle)
	record.Category, _ = data.GetString(KeyCategory)
	record.IsOilRelated = data.Truthy(KeyIsOilRelated)
	record.FactorValue, _ = data.GetFloat64(KeyFactorValue)

	if raw, exists := data.Get(KeyDate); exists {
		if date, err := cast.ToTimeE(raw); err == nil && !date.IsZero() {
			record.EventDate = &date
		}
	}
	return record, nil
}
