package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"
	_ "modernc.org/sqlite"

	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/types"
	"github.com/lightartw/textanalyze/utils"
)

var (
	_ store.Repository = &sqliteStore{}
)

const (
	MemoryPath = ":memory:"

	// fixed width UTC text sorts the same way as the instants it encodes
	timeLayout = "2006-01-02 15:04:05.000000000"

	recordColumns = `news_id, event_date, title, category, is_oil_related, factor_value, data, created_at, updated_at`
)

// sqliteStore implements Repository on an embedded SQLite database file.
type sqliteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and creates when missing) the database at path.
func NewSQLiteStore(path string) (store.Repository, error) {
	if path == "" {
		return nil, errors.BadRequestf("sqlite path is empty")
	}
	dsn := path
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Annotatef(err, "failed to create directory %s", dir)
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open sqlite %s", path)
	}
	// sqlite has a single writer; one connection also keeps :memory: alive
	db.SetMaxOpenConns(1)

	s := &sqliteStore{db: db, path: path}
	if err := s.initTable(context.Background()); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "failed to initialize table")
	}
	return s, nil
}

func (s *sqliteStore) initTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS event_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			news_id TEXT NOT NULL UNIQUE,
			event_date TEXT,
			title TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			is_oil_related INTEGER NOT NULL DEFAULT 0,
			factor_value REAL NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_event_records_event_date ON event_records(event_date);
		CREATE INDEX IF NOT EXISTS idx_event_records_oil ON event_records(is_oil_related);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Annotatef(err, "failed to create table")
	}
	return errors.Trace(s.ensureSchema(ctx))
}

// ensureSchema adds the columns that older databases were created without.
func (s *sqliteStore) ensureSchema(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(event_records)`)
	if err != nil {
		return errors.Annotatef(err, "failed to read table info")
	}
	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			rows.Close()
			return errors.Annotatef(err, "failed to scan table info")
		}
		columns[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Trace(err)
	}

	if !columns["category"] {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE event_records ADD COLUMN category TEXT NOT NULL DEFAULT ''`); err != nil {
			return errors.Annotatef(err, "failed to add category column")
		}
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_event_records_category ON event_records(category)`)
	return errors.Trace(err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	return t, errors.Annotatef(err, "bad timestamp %q", s)
}

func (s *sqliteStore) Save(ctx context.Context, data types.Data) (*store.EventRecord, error) {
	record, err := store.RecordFromData(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	payload, err := utils.Serialize(record.Data)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to encode data of %s", record.NewsID)
	}

	var eventDate sql.NullString
	if record.EventDate != nil {
		eventDate = sql.NullString{String: formatTime(*record.EventDate), Valid: true}
	}
	now := formatTime(time.Now())

	query := `
		INSERT INTO event_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (news_id) DO UPDATE SET
			event_date = excluded.event_date,
			title = excluded.title,
			category = excluded.category,
			is_oil_related = excluded.is_oil_related,
			factor_value = excluded.factor_value,
			data = excluded.data,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		record.NewsID, eventDate, record.Title, record.Category, record.IsOilRelated,
		record.FactorValue, string(payload), now, now)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to save event %s", record.NewsID)
	}
	return s.Get(ctx, record.NewsID)
}

func (s *sqliteStore) Get(ctx context.Context, newsID string) (*store.EventRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM event_records WHERE news_id = ?`
	record, err := scanRecord(s.db.QueryRowContext(ctx, query, newsID))
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundf("event %s", newsID)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "failed to get event %s", newsID)
	}
	return record, nil
}

func (s *sqliteStore) GetSimilar(ctx context.Context, category string, lookback time.Duration, limit int) ([]*store.EventRecord, error) {
	conds := []string{"is_oil_related = 1", "created_at >= ?"}
	args := []any{formatTime(time.Now().Add(-lookback))}
	if category != "" {
		conds = append(conds, "category = ?")
		args = append(args, category)
	}
	query := `SELECT ` + recordColumns + ` FROM event_records WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY abs(factor_value) DESC, created_at DESC LIMIT ?`
	return s.query(ctx, query, append(args, sqlLimit(limit))...)
}

func (s *sqliteStore) GetAll(ctx context.Context, filter *store.Filter, limit int) ([]*store.EventRecord, error) {
	conds := []string{"1 = 1"}
	args := []any{}
	if filter != nil {
		if filter.OilRelatedOnly {
			conds = append(conds, "is_oil_related = 1")
		}
		if filter.Category != "" {
			conds = append(conds, "category = ?")
			args = append(args, filter.Category)
		}
		if !filter.Since.IsZero() {
			conds = append(conds, "created_at >= ?")
			args = append(args, formatTime(filter.Since))
		}
	}
	query := `SELECT ` + recordColumns + ` FROM event_records WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY created_at DESC, news_id ASC LIMIT ?`
	return s.query(ctx, query, append(args, sqlLimit(limit))...)
}

func (s *sqliteStore) GetByDate(ctx context.Context, from, to time.Time, oilRelatedOnly bool, limit int) ([]*store.EventRecord, error) {
	conds := []string{"event_date >= ?", "event_date < ?"}
	args := []any{formatTime(from), formatTime(to)}
	if oilRelatedOnly {
		conds = append(conds, "is_oil_related = 1")
	}
	query := `SELECT ` + recordColumns + ` FROM event_records WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY event_date DESC, news_id ASC LIMIT ?`
	return s.query(ctx, query, append(args, sqlLimit(limit))...)
}

func (s *sqliteStore) Stats(ctx context.Context, lookback time.Duration) (*store.Stats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(is_oil_related), 0),
			COALESCE(AVG(CASE WHEN is_oil_related = 1 THEN factor_value END), 0.0)
		FROM event_records WHERE created_at >= ?
	`
	var (
		total, related int
		avg            float64
	)
	err := s.db.QueryRowContext(ctx, query, formatTime(time.Now().Add(-lookback))).Scan(&total, &related, &avg)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to compute statistics")
	}
	return store.NewStats(total, related, avg, lookback), nil
}

// sqlLimit maps "no limit" to sqlite's negative LIMIT.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *sqliteStore) query(ctx context.Context, query string, args ...any) ([]*store.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to query events")
	}
	defer rows.Close()

	records := make([]*store.EventRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to scan event")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Annotatef(err, "error iterating rows")
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*store.EventRecord, error) {
	var (
		record    store.EventRecord
		eventDate sql.NullString
		payload   string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&record.NewsID, &eventDate, &record.Title, &record.Category, &record.IsOilRelated,
		&record.FactorValue, &payload, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := utils.Unserialize([]byte(payload), &record.Data); err != nil {
		return nil, errors.Annotatef(err, "bad data of event %s", record.NewsID)
	}
	if eventDate.Valid {
		date, err := parseTime(eventDate.String)
		if err != nil {
			return nil, errors.Trace(err)
		}
		record.EventDate = &date
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, errors.Trace(err)
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, errors.Trace(err)
	}
	return &record, nil
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_records`).Scan(&count); err != nil {
		return 0, errors.Annotatef(err, "failed to count events")
	}
	return count, nil
}

func (s *sqliteStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM event_records`)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to clear events")
	}
	deleted, err := res.RowsAffected()
	return int(deleted), errors.Trace(err)
}

func (s *sqliteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
