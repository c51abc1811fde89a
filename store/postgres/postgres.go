package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/spf13/cast"

	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/types"
	"github.com/lightartw/textanalyze/utils"
)

var (
	_ store.Repository = &pgStore{}
)

const recordColumns = `news_id, event_date, title, category, is_oil_related, factor_value, data, created_at, updated_at`

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "textanalyze",
		SSLMode:  "disable",
	}
}

// FromOptions converts the store options' connection settings, empty fields
// keep their defaults.
func FromOptions(opts *types.PostgresConfig) *Config {
	config := DefaultConfig()
	if opts == nil {
		return config
	}
	if opts.Host != "" {
		config.Host = opts.Host
	}
	if opts.Port != 0 {
		config.Port = opts.Port
	}
	if opts.User != "" {
		config.User = opts.User
	}
	if opts.Password != "" {
		config.Password = opts.Password
	}
	if opts.Database != "" {
		config.Database = opts.Database
	}
	if opts.SSLMode != "" {
		config.SSLMode = opts.SSLMode
	}
	return config
}

// pgStore implements Repository using PostgreSQL
type pgStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL repository with the given configuration
func NewPostgresStore(config *Config) (store.Repository, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open postgres connection")
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "failed to ping postgres")
	}

	s := &pgStore{db: db}

	if err := s.initTable(context.Background()); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "failed to initialize table")
	}

	return s, nil
}

// NewPostgresStoreWithDB creates a new PostgreSQL repository with an existing database connection
func NewPostgresStoreWithDB(db *sql.DB) (store.Repository, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	s := &pgStore{db: db}

	if err := s.initTable(context.Background()); err != nil {
		return nil, errors.Annotatef(err, "failed to initialize table")
	}

	return s, nil
}

// initTable creates the event_records table if it doesn't exist
func (p *pgStore) initTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS event_records (
			id BIGSERIAL PRIMARY KEY,
			news_id VARCHAR(64) NOT NULL UNIQUE,
			event_date TIMESTAMPTZ,
			title TEXT NOT NULL DEFAULT '',
			category VARCHAR(64) NOT NULL DEFAULT '',
			is_oil_related BOOLEAN NOT NULL DEFAULT FALSE,
			factor_value DOUBLE PRECISION NOT NULL DEFAULT 0,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		);

		ALTER TABLE event_records ADD COLUMN IF NOT EXISTS category VARCHAR(64) NOT NULL DEFAULT '';

		CREATE INDEX IF NOT EXISTS idx_event_records_event_date ON event_records(event_date);
		CREATE INDEX IF NOT EXISTS idx_event_records_oil ON event_records(is_oil_related);
		CREATE INDEX IF NOT EXISTS idx_event_records_category ON event_records(category);
	`

	_, err := p.db.ExecContext(ctx, query)
	if err != nil {
		return errors.Annotatef(err, "failed to create table")
	}

	return nil
}

// Save upserts the record derived from data by its news id
func (p *pgStore) Save(ctx context.Context, data types.Data) (*store.EventRecord, error) {
	record, err := store.RecordFromData(data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	payload, err := utils.Serialize(record.Data)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to encode data of %s", record.NewsID)
	}

	var eventDate sql.NullTime
	if record.EventDate != nil {
		eventDate = sql.NullTime{Time: *record.EventDate, Valid: true}
	}

	query := `
		INSERT INTO event_records (news_id, event_date, title, category, is_oil_related, factor_value, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, CURRENT_TIMESTAMP)
		ON CONFLICT (news_id)
		DO UPDATE SET
			event_date = EXCLUDED.event_date,
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			is_oil_related = EXCLUDED.is_oil_related,
			factor_value = EXCLUDED.factor_value,
			data = EXCLUDED.data,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + recordColumns

	saved, err := scanRecord(p.db.QueryRowContext(ctx, query,
		record.NewsID, eventDate, record.Title, record.Category, record.IsOilRelated,
		record.FactorValue, string(payload)))
	if err != nil {
		return nil, errors.Annotatef(err, "failed to save event %s", record.NewsID)
	}
	return saved, nil
}

// Get retrieves a record by news id
func (p *pgStore) Get(ctx context.Context, newsID string) (*store.EventRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM event_records WHERE news_id = $1`

	record, err := scanRecord(p.db.QueryRowContext(ctx, query, newsID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFoundf("event %s", newsID)
		}
		return nil, errors.Annotatef(err, "failed to get event %s", newsID)
	}

	return record, nil
}

func (p *pgStore) GetSimilar(ctx context.Context, category string, lookback time.Duration, limit int) ([]*store.EventRecord, error) {
	q := newQueryBuilder()
	q.where("is_oil_related = TRUE")
	q.where("created_at >= %s", time.Now().Add(-lookback))
	if category != "" {
		q.where("category = %s", category)
	}
	query, args := q.build("ABS(factor_value) DESC, created_at DESC", limit)
	return p.query(ctx, query, args)
}

func (p *pgStore) GetAll(ctx context.Context, filter *store.Filter, limit int) ([]*store.EventRecord, error) {
	q := newQueryBuilder()
	if filter != nil {
		if filter.OilRelatedOnly {
			q.where("is_oil_related = TRUE")
		}
		if filter.Category != "" {
			q.where("category = %s", filter.Category)
		}
		if !filter.Since.IsZero() {
			q.where("created_at >= %s", filter.Since)
		}
	}
	query, args := q.build("created_at DESC, news_id ASC", limit)
	return p.query(ctx, query, args)
}

func (p *pgStore) GetByDate(ctx context.Context, from, to time.Time, oilRelatedOnly bool, limit int) ([]*store.EventRecord, error) {
	q := newQueryBuilder()
	q.where("event_date >= %s", from)
	q.where("event_date < %s", to)
	if oilRelatedOnly {
		q.where("is_oil_related = TRUE")
	}
	query, args := q.build("event_date DESC, news_id ASC", limit)
	return p.query(ctx, query, args)
}

func (p *pgStore) Stats(ctx context.Context, lookback time.Duration) (*store.Stats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_oil_related),
			COALESCE(AVG(factor_value) FILTER (WHERE is_oil_related), 0)
		FROM event_records WHERE created_at >= $1
	`
	var (
		total, related int
		avg            float64
	)
	err := p.db.QueryRowContext(ctx, query, time.Now().Add(-lookback)).Scan(&total, &related, &avg)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to compute statistics")
	}
	return store.NewStats(total, related, avg, lookback), nil
}

// queryBuilder numbers the $n placeholders of a record query.
type queryBuilder struct {
	conds []string
	args  []any
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{}
}

func (q *queryBuilder) where(cond string, arg ...any) {
	if len(arg) > 0 {
		q.args = append(q.args, arg[0])
		cond = fmt.Sprintf(cond, fmt.Sprintf("$%d", len(q.args)))
	}
	q.conds = append(q.conds, cond)
}

func (q *queryBuilder) build(orderBy string, limit int) (string, []any) {
	query := `SELECT ` + recordColumns + ` FROM event_records`
	if len(q.conds) > 0 {
		query += ` WHERE ` + strings.Join(q.conds, " AND ")
	}
	query += ` ORDER BY ` + orderBy
	if limit > 0 {
		q.args = append(q.args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(q.args))
	}
	return query, q.args
}

func (p *pgStore) query(ctx context.Context, query string, args []any) ([]*store.EventRecord, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
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
		eventDate sql.NullTime
		payload   []byte
	)
	err := row.Scan(&record.NewsID, &eventDate, &record.Title, &record.Category, &record.IsOilRelated,
		&record.FactorValue, &payload, &record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := utils.Unserialize(payload, &record.Data); err != nil {
		return nil, errors.Annotatef(err, "bad data of event %s", record.NewsID)
	}
	if eventDate.Valid {
		date := eventDate.Time.UTC()
		record.EventDate = &date
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return &record, nil
}

func (p *pgStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_records`).Scan(&count); err != nil {
		return 0, errors.Annotatef(err, "failed to count events")
	}
	return count, nil
}

func (p *pgStore) Clear(ctx context.Context) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM event_records`)
	if err != nil {
		return 0, errors.Annotatef(err, "failed to clear events")
	}
	deleted, err := res.RowsAffected()
	return int(deleted), errors.Trace(err)
}

// Close closes the database connection
func (p *pgStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// DSN builds a PostgreSQL connection string from Config
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

var sslModes = map[string]bool{
	"disable":     true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate reports the first bad field as NotValid. An empty sslmode is
// set to disable.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.NotValidf("empty host")
	case c.Port <= 0 || c.Port > 65535:
		return errors.NotValidf("port %d", c.Port)
	case c.User == "":
		return errors.NotValidf("empty user")
	case c.Database == "":
		return errors.NotValidf("empty database")
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if !sslModes[c.SSLMode] {
		return errors.NotValidf("sslmode %q", c.SSLMode)
	}
	return nil
}

// ParseDSN reads a key=value connection string such as
// "host=localhost port=5432 user=postgres dbname=textanalyze sslmode=disable".
// Unknown keys are ignored and missing ones keep their defaults.
func ParseDSN(dsn string) (*Config, error) {
	config := DefaultConfig()
	for _, part := range strings.Fields(dsn) {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch key {
		case "host":
			config.Host = value
		case "port":
			port, err := cast.ToIntE(value)
			if err != nil {
				return nil, errors.NotValidf("port %q", value)
			}
			config.Port = port
		case "user":
			config.User = value
		case "password":
			config.Password = value
		case "dbname":
			config.Database = value
		case "sslmode":
			config.SSLMode = value
		}
	}
	return config, config.Validate()
}
