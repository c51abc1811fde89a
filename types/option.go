package types

import (
	"time"

	"github.com/mcuadros/go-defaults"
	log "github.com/sirupsen/logrus"
)

func NewPipelineOptions() *PipelineOptions {
	opts := &PipelineOptions{Logger: log.StandardLogger()}
	defaults.SetDefaults(opts)
	return opts
}

type PipelineOptions struct {
	Logger *log.Logger
	/**
	 * default: 0s
	 * wait between handler attempts for nodes that set no RetryBackoff
	 * and whose handler error carries no backoff.
	 */
	RetryBackoff time.Duration `default:"0s"`
	/**
	 * default: 0
	 * when positive, a run stops with a routing error once it executed
	 * this many nodes. 0 leaves runs unbounded, so a graph that loops
	 * through next overrides runs until a node ends it.
	 */
	MaxSteps int `default:"0"`
}

type PipelineOption func(*PipelineOptions)

func WithLogger(logger *log.Logger) PipelineOption {
	return func(opts *PipelineOptions) {
		opts.Logger = logger
	}
}

func WithRetryBackoff(backoff time.Duration) PipelineOption {
	return func(opts *PipelineOptions) {
		opts.RetryBackoff = backoff
	}
}

func WithMaxSteps(steps int) PipelineOption {
	return func(opts *PipelineOptions) {
		opts.MaxSteps = steps
	}
}

type RunOptions struct {
	StartNode string
	RequestID string
}

type RunOption func(*RunOptions)

func WithStartNode(name string) RunOption {
	return func(opts *RunOptions) {
		opts.StartNode = name
	}
}

func WithRequestID(requestID string) RunOption {
	return func(opts *RunOptions) {
		opts.RequestID = requestID
	}
}

func NewBatchOptions() *BatchOptions {
	opts := &BatchOptions{Logger: log.StandardLogger()}
	defaults.SetDefaults(opts)
	return opts
}

type BatchOptions struct {
	Logger *log.Logger
	/**
	 * default: true
	 * when false, or when the batch holds a single item, items run one
	 * by one in input order.
	 */
	Parallel bool `default:"true"`
	/**
	 * default: 5
	 * fixed size of the worker pool in parallel mode.
	 */
	MaxWorkers int `default:"5"`
}

type BatchOption func(*BatchOptions)

func SetMaxWorkers(workers int) BatchOption {
	return func(opts *BatchOptions) {
		opts.MaxWorkers = workers
	}
}

func DisableParallel() BatchOption {
	return func(opts *BatchOptions) {
		opts.Parallel = false
	}
}

func WithBatchLogger(logger *log.Logger) BatchOption {
	return func(opts *BatchOptions) {
		opts.Logger = logger
	}
}

func NewStoreOptions() *StoreOptions {
	opts := &StoreOptions{}
	defaults.SetDefaults(opts)
	return opts
}

type StoreOptions struct {
	/**
	 * default: data/text_factor.db
	 */
	SQLitePath string `default:"data/text_factor.db"`
	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// If both MemStore and PostgresConfig are set, PostgresConfig takes precedence
	PostgresConfig *PostgresConfig
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"` // disable, require, verify-ca, verify-full
}

type StoreOption func(*StoreOptions)

func EnableMemStore() StoreOption {
	return func(opts *StoreOptions) {
		opts.MemStore = true
	}
}

func WithSQLitePath(path string) StoreOption {
	return func(opts *StoreOptions) {
		opts.SQLitePath = path
	}
}

// WithPostgresConfig configures the repository to use PostgreSQL
func WithPostgresConfig(config *PostgresConfig) StoreOption {
	return func(opts *StoreOptions) {
		opts.PostgresConfig = config
	}
}
