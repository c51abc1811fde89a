package analysis

import (
	"context"
	"time"

	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/agents"
	"github.com/lightartw/textanalyze/report"
	"github.com/lightartw/textanalyze/runtime"
	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/types"
)

const DailyPipelineName = "DailyReportPipeline"

// node names of the daily report graph
const (
	NodeLoadEvents   = "load_events"
	NodeEventMetrics = "event_metrics"
	NodeDailySummary = "daily_summary"
)

const (
	keyMaxEvents      = "max_events"
	keyOilRelatedOnly = "oil_related_only"
	keyStatistics     = "period_statistics"
)

// DailyRequest selects the events of a daily report. Zero values take the
// configured defaults, a zero Date means today.
type DailyRequest struct {
	Date           time.Time
	DaysBack       int
	MaxEvents      int
	OilRelatedOnly bool
}

func (a *Analyzer) buildDailyPipeline() (types.Pipeline, error) {
	builders := []*types.NodeBuilder{
		types.NewNode(NodeLoadEvents).Describe("read the events of the report window").
			Handler(a.loadEvents).Retry(a.cfg.Workflow.RetryCount).Then(NodeEventMetrics),
		types.NewNode(NodeEventMetrics).Describe("aggregate the event scores").
			Handler(a.eventMetrics).Then(NodeDailySummary),
		types.NewNode(NodeDailySummary).Describe("market assessment of the window").
			Handler(a.runAgent(a.daily)).Retry(a.cfg.Workflow.RetryCount),
	}

	pipeline := runtime.NewPipeline(DailyPipelineName,
		types.WithLogger(a.logger),
		types.WithRetryBackoff(a.cfg.Workflow.RetryDelay))
	for _, b := range builders {
		spec, err := b.Build()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err := pipeline.Register(spec); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if err := pipeline.SetStart(NodeLoadEvents); err != nil {
		return nil, errors.Trace(err)
	}
	return pipeline, errors.Trace(pipeline.Validate())
}

// window returns [from, to) covering daysBack event days ending on date.
func window(date time.Time, daysBack int) (time.Time, time.Time) {
	to := date.AddDate(0, 0, 1)
	return to.AddDate(0, 0, -daysBack), to
}

func (a *Analyzer) loadEvents(ctx types.Context, data types.Data) (*types.NodeResult, error) {
	day, _ := data.GetString(agents.KeyAnalysisDate)
	date, err := time.Parse(report.DateLayout, day)
	if err != nil {
		return nil, types.NewFatalError(errors.NotValidf("analysis date %q", day))
	}
	daysBack, _ := data.GetInt(agents.KeyDaysBack)
	maxEvents, _ := data.GetInt(keyMaxEvents)

	from, to := window(date, daysBack)
	records, err := a.repo.GetByDate(ctx, from, to, data.Truthy(keyOilRelatedOnly), maxEvents)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read events")
	}
	if len(records) == 0 {
		return types.Fail("no matching events between %s and %s",
			from.Format(report.DateLayout), to.AddDate(0, 0, -1).Format(report.DateLayout)), nil
	}
	ctx.Logger().Infof("%d events for the daily report of %s", len(records), day)
	return types.Succeed(types.Data{agents.KeyDailyEvents: report.DailyEvents(records)}), nil
}

func (a *Analyzer) eventMetrics(ctx types.Context, data types.Data) (*types.NodeResult, error) {
	raw, _ := data.Get(agents.KeyDailyEvents)
	events, _ := raw.([]report.DailyEvent)
	daysBack, _ := data.GetInt(agents.KeyDaysBack)

	out := types.Data{agents.KeyEventMetrics: report.ComputeMetrics(events)}
	stats, err := a.repo.Stats(ctx, time.Duration(daysBack)*24*time.Hour)
	if err != nil {
		// the report stands without the store statistics
		ctx.Logger().Warnf("failed to read statistics: %v", err)
	} else {
		out[keyStatistics] = stats
	}
	return types.Succeed(out), nil
}

/**
 * Daily runs the daily report pipeline: it reads the events dated within
 * the DaysBack days ending on the report date, at most MaxEvents of them,
 * and asks the daily summary agent for the market assessment. It fails
 * when no event falls in the window.
 */
func (a *Analyzer) Daily(ctx context.Context, req DailyRequest) (*report.DailyReport, error) {
	if req.DaysBack <= 0 {
		req.DaysBack = a.cfg.Daily.DaysBack
	}
	if req.MaxEvents <= 0 {
		req.MaxEvents = a.cfg.Daily.MaxEvents
	}
	if req.Date.IsZero() {
		req.Date = time.Now()
	}
	y, m, d := req.Date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format(report.DateLayout)

	result := a.dailyPipeline.Run(ctx, types.Data{
		agents.KeyAnalysisDate: day,
		agents.KeyDaysBack:     req.DaysBack,
		keyMaxEvents:           req.MaxEvents,
		keyOilRelatedOnly:      req.OilRelatedOnly,
	}, types.WithRequestID("daily-"+day))
	if !result.Success {
		return nil, errors.Annotatef(result.Err, "daily report of %s", day)
	}

	r, ok := result.Context[agents.KeyDailyReport].(*report.DailyReport)
	if !ok {
		return nil, errors.Errorf("daily report of %s: %s left no report", day, result.FinalNode)
	}
	if stats, ok := result.Context[keyStatistics]; ok {
		r.Statistics, _ = stats.(*store.Stats)
	}
	return r, nil
}

func (a *Analyzer) DailyPipeline() types.Pipeline {
	return a.dailyPipeline
}
