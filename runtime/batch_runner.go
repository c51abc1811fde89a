package runtime

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gammazero/workerpool"
	log "github.com/sirupsen/logrus"

	"github.com/lightartw/textanalyze/types"
)

// BatchItem is one independent input of a batch. ID doubles as the request
// id of its run.
type BatchItem struct {
	ID    string
	Label string
	Data  types.Data
}

type BatchRunner struct {
	pipeline types.Pipeline
	opts     *types.BatchOptions
}

func NewBatchRunner(pipeline types.Pipeline, opts ...types.BatchOption) *BatchRunner {
	options := types.NewBatchOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.MaxWorkers <= 0 {
		options.MaxWorkers = 1
	}
	return &BatchRunner{pipeline: pipeline, opts: options}
}

/**
 * Run drives one pipeline run per item and waits for all of them. A failed
 * or panicking item is counted and never aborts the others. Outcomes are
 * tallied in completion order and returned sorted by input index.
 */
func (b *BatchRunner) Run(ctx context.Context, items []BatchItem) *types.BatchSummary {
	startTime := time.Now()
	summary := &types.BatchSummary{
		Total:    len(items),
		Outcomes: make([]*types.ItemOutcome, 0, len(items)),
	}
	if len(items) == 0 {
		return summary
	}

	logger := b.opts.Logger.WithField("pipeline", b.pipeline.Name())
	if !b.opts.Parallel || len(items) <= 1 {
		logger.Infof("running %d items sequentially", len(items))
		for i := range items {
			b.collect(logger, summary, b.runItem(ctx, i, items[i]), items)
		}
	} else {
		logger.Infof("running %d items on %d workers", len(items), b.opts.MaxWorkers)
		b.runParallel(ctx, logger, summary, items)
	}

	sort.Slice(summary.Outcomes, func(i, j int) bool {
		return summary.Outcomes[i].Index < summary.Outcomes[j].Index
	})
	summary.Duration = time.Since(startTime)
	logger.Infof("batch finished in %v: total=%d success=%d failed=%d",
		summary.Duration, summary.Total, summary.Success, summary.Failed)
	return summary
}

func (b *BatchRunner) runParallel(ctx context.Context, logger *log.Entry, summary *types.BatchSummary, items []BatchItem) {
	wp := workerpool.New(b.opts.MaxWorkers)
	defer wp.StopWait()

	results := make(chan *types.ItemOutcome, len(items))
	for i := range items {
		idx, item := i, items[i]
		wp.Submit(func() {
			results <- b.runItem(ctx, idx, item)
		})
	}
	for range items {
		b.collect(logger, summary, <-results, items)
	}
}

func (b *BatchRunner) collect(logger *log.Entry, summary *types.BatchSummary, outcome *types.ItemOutcome, items []BatchItem) {
	summary.Outcomes = append(summary.Outcomes, outcome)
	status := "ok"
	if outcome.Success {
		summary.Success++
	} else {
		summary.Failed++
		status = "failed: " + outcome.Error
	}
	label := items[outcome.Index].Label
	if label == "" {
		label = outcome.ID
	}
	logger.Infof("[%d/%d] %s - %s", len(summary.Outcomes), summary.Total, label, status)
}

// runItem owns its private copy of the item's data for the whole run.
func (b *BatchRunner) runItem(ctx context.Context, idx int, item BatchItem) (outcome *types.ItemOutcome) {
	outcome = &types.ItemOutcome{Index: idx, ID: item.ID}
	defer func() {
		if r := recover(); r != nil {
			b.opts.Logger.WithField("item", item.ID).Errorf("run panicked: %v", r)
			outcome.Success = false
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	runOpts := make([]types.RunOption, 0, 1)
	if item.ID != "" {
		runOpts = append(runOpts, types.WithRequestID(item.ID))
	}
	result := b.pipeline.Run(ctx, item.Data.Clone(), runOpts...)
	outcome.Result = result
	outcome.Success = result.Success
	outcome.Error = result.Error
	return outcome
}
