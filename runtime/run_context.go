package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/lightartw/textanalyze/types"
)

var (
	_ types.Context = &runContext{}
)

// runContext is private to one Run call and never shared across goroutines.
type runContext struct {
	context.Context

	pipeline  string
	requestID string
	runID     string
	current   string

	logger *log.Entry

	records []*types.ExecutionRecord
	record  *types.ExecutionRecord
}

func newRunContext(ctx context.Context, logger *log.Logger, pipeline, requestID string) *runContext {
	rc := &runContext{
		Context:   ctx,
		pipeline:  pipeline,
		requestID: requestID,
		runID:     uuid.NewString(),
	}
	if rc.requestID == "" {
		rc.requestID = rc.runID
	}
	rc.logger = logger.WithFields(log.Fields{
		"pipeline":   pipeline,
		"request_id": rc.requestID,
		"run_id":     rc.runID,
	})
	return rc
}

func (r *runContext) GetRequestID() string {
	return r.requestID
}

func (r *runContext) GetRunID() string {
	return r.runID
}

func (r *runContext) GetPipeline() string {
	return r.pipeline
}

func (r *runContext) GetCurrentNode() string {
	return r.current
}

func (r *runContext) Logger() *log.Entry {
	if r.current == "" {
		return r.logger
	}
	return r.logger.WithField("node", r.current)
}

func (r *runContext) startRecord(node string) {
	r.current = node
	r.record = &types.ExecutionRecord{
		Node:      node,
		Status:    types.Running,
		StartTime: time.Now(),
	}
	r.Logger().Debugf("running %s", node)
}

func (r *runContext) endRecord(result *types.NodeResult, attempts int) {
	r.record.EndTime = time.Now()
	r.record.Duration = r.record.EndTime.Sub(r.record.StartTime)
	r.record.Status = result.Status
	r.record.Error = result.Error
	r.record.Attempts = attempts
	r.records = append(r.records, r.record)
	r.record = nil
}
