package types

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWithPostgresConfig(t *testing.T) {
	config := &PostgresConfig{
		Host:     "dbhost",
		Port:     5433,
		User:     "user",
		Password: "pass",
		Database: "db",
		SSLMode:  "require",
	}

	opts := NewStoreOptions()
	opt := WithPostgresConfig(config)
	opt(opts)

	assert.NotNil(t, opts.PostgresConfig)
	assert.Equal(t, "dbhost", opts.PostgresConfig.Host)
	assert.Equal(t, 5433, opts.PostgresConfig.Port)
	assert.Equal(t, "user", opts.PostgresConfig.User)
	assert.Equal(t, "pass", opts.PostgresConfig.Password)
	assert.Equal(t, "db", opts.PostgresConfig.Database)
	assert.Equal(t, "require", opts.PostgresConfig.SSLMode)
}

func TestStoreOptionsDefaults(t *testing.T) {
	opts := NewStoreOptions()
	assert.Equal(t, "data/text_factor.db", opts.SQLitePath)
	assert.False(t, opts.MemStore)
	assert.Nil(t, opts.PostgresConfig)

	EnableMemStore()(opts)
	WithSQLitePath("/tmp/x.db")(opts)
	assert.True(t, opts.MemStore)
	assert.Equal(t, "/tmp/x.db", opts.SQLitePath)
}

func TestPipelineOptions(t *testing.T) {
	opts := NewPipelineOptions()
	assert.Equal(t, time.Duration(0), opts.RetryBackoff)
	assert.Zero(t, opts.MaxSteps)
	assert.Equal(t, log.StandardLogger(), opts.Logger)

	logger := log.New()
	WithLogger(logger)(opts)
	WithRetryBackoff(time.Second)(opts)
	WithMaxSteps(8)(opts)
	assert.Equal(t, logger, opts.Logger)
	assert.Equal(t, time.Second, opts.RetryBackoff)
	assert.Equal(t, 8, opts.MaxSteps)
}

func TestMultipleBatchOptions(t *testing.T) {
	opts := NewBatchOptions()
	assert.True(t, opts.Parallel)
	assert.Equal(t, 5, opts.MaxWorkers)

	SetMaxWorkers(50)(opts)
	DisableParallel()(opts)

	assert.Equal(t, 50, opts.MaxWorkers)
	assert.False(t, opts.Parallel)
}

func TestRunOptions(t *testing.T) {
	opts := &RunOptions{}
	WithStartNode("b")(opts)
	WithRequestID("news-1")(opts)
	assert.Equal(t, "b", opts.StartNode)
	assert.Equal(t, "news-1", opts.RequestID)
}

func TestNodeBuilder(t *testing.T) {
	handler := func(ctx Context, data Data) (*NodeResult, error) {
		return Succeed(nil), nil
	}

	_, err := NewNode("a").Build()
	assert.NotNil(t, err)
	_, err = NewNode("").Handler(handler).Build()
	assert.NotNil(t, err)
	_, err = NewNode("a").Handler(handler).Retry(-1).Build()
	assert.NotNil(t, err)

	spec, err := NewNode("a").Handler(handler).Describe("first").Then("b").
		Branch("ok", "c", "d").Retry(2).Backoff(time.Millisecond).Build()
	assert.Nil(t, err)
	assert.Equal(t, "a", spec.Name)
	assert.Equal(t, "first", spec.Description)
	assert.Equal(t, "b", spec.Next)
	assert.Equal(t, "ok", spec.BranchField)
	assert.Equal(t, "c", spec.BranchTrue)
	assert.Equal(t, "d", spec.BranchFalse)
	assert.Equal(t, 2, spec.Retry)
	assert.Equal(t, time.Millisecond, spec.RetryBackoff)
}

func TestStatus(t *testing.T) {
	assert.True(t, Success.IsContinue())
	assert.True(t, Skipped.IsContinue())
	assert.False(t, Failed.IsContinue())
	assert.False(t, Pending.IsContinue())
	assert.Equal(t, "skipped", Skipped.String())

	b, err := Failed.MarshalJSON()
	assert.Nil(t, err)
	assert.Equal(t, `"failed"`, string(b))

	var s StatusType
	assert.Nil(t, s.UnmarshalJSON([]byte(`"success"`)))
	assert.Equal(t, Success, s)
	assert.NotNil(t, s.UnmarshalJSON([]byte(`"bogus"`)))

	r := Fail("boom %d", 1).WithNext("x")
	assert.Equal(t, Failed, r.Status)
	assert.Equal(t, "boom 1", r.Error)
	assert.Equal(t, "x", r.Next)
}
