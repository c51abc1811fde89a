package textanalyze

import (
	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/runtime"
	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/store/mem"
	"github.com/lightartw/textanalyze/store/postgres"
	"github.com/lightartw/textanalyze/store/sqlite"
	"github.com/lightartw/textanalyze/types"
)

// NewPipeline creates an empty pipeline with the given options
func NewPipeline(name string, opts ...types.PipelineOption) types.Pipeline {
	return runtime.NewPipeline(name, opts...)
}

// NewRepository opens the event repository selected by the options. The
// returned repository is safe for concurrent use.
func NewRepository(opts ...types.StoreOption) (store.Repository, error) {
	options := types.NewStoreOptions()
	for _, opt := range opts {
		opt(options)
	}

	var repo store.Repository
	var err error

	// PostgresConfig takes precedence over MemStore
	if options.PostgresConfig != nil {
		repo, err = postgres.NewPostgresStore(postgres.FromOptions(options.PostgresConfig))
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create PostgreSQL repository")
		}
	} else if options.MemStore {
		repo = mem.NewMemStore()
	} else {
		repo, err = sqlite.NewSQLiteStore(options.SQLitePath)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to create SQLite repository")
		}
	}

	return store.Synchronized(repo), nil
}
