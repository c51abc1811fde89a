package analysis

import (
	"context"
	"fmt"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lightartw/textanalyze/agents"
	"github.com/lightartw/textanalyze/config"
	"github.com/lightartw/textanalyze/crawler"
	"github.com/lightartw/textanalyze/llm"
	"github.com/lightartw/textanalyze/loader"
	"github.com/lightartw/textanalyze/runtime"
	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/types"
)

const PipelineName = "TextFactorPipeline"

// node names of the analysis graph
const (
	NodeCrawl        = "crawl"
	NodeClassify     = "agent1_classify"
	NodeMarkSkip     = "mark_skip"
	NodeIEA          = "agent2_iea_analyze"
	NodeSentiment    = "agent3_sentiment_score"
	NodeQuerySimilar = "db_query"
	NodeCausal       = "agent4_causal_validate"
	NodeSave         = "save_event"
)

const SkipReason = "not related to the oil price"

/**
 * Analyzer owns the four agent pipeline:
 *
 *	crawl -> agent1_classify -(is_oil_related)-> agent2_iea_analyze -> agent3_sentiment_score
 *	      -> db_query -> agent4_causal_validate -> save_event
 *	                    -(otherwise)-> mark_skip -> save_event
 *
 * One Analyzer serves any number of concurrent runs; the repository is
 * the only state they share and every call to it is serialised.
 */
type Analyzer struct {
	cfg     *config.Config
	repo    store.Repository
	fetcher crawler.Fetcher
	logger  *log.Logger

	classifier agents.Agent
	iea        agents.Agent
	sentiment  agents.Agent
	causal     agents.Agent
	daily      agents.Agent

	pipeline      types.Pipeline
	dailyPipeline types.Pipeline
}

type Option func(*Analyzer)

func WithLogger(logger *log.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

func WithFetcher(fetcher crawler.Fetcher) Option {
	return func(a *Analyzer) {
		a.fetcher = fetcher
	}
}

func NewAnalyzer(cfg *config.Config, repo store.Repository, completer llm.Completer, opts ...Option) (*Analyzer, error) {
	if cfg == nil || repo == nil || completer == nil {
		return nil, errors.BadRequestf("analyzer needs a config, a repository and a completer")
	}
	maxContent := cfg.Analysis.MaxContentLength
	a := &Analyzer{
		cfg:        cfg,
		repo:       store.Synchronized(repo),
		logger:     log.StandardLogger(),
		classifier: agents.NewEventClassifier(completer, maxContent),
		iea:        agents.NewIEAAnalyzer(completer, maxContent),
		sentiment:  agents.NewSentimentScorer(completer, maxContent),
		causal:     agents.NewCausalValidator(completer, maxContent, cfg.Analysis.SimilarLimit),
		daily:      agents.NewDailySummary(completer),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.fetcher == nil {
		a.fetcher = crawler.NewCrawler(cfg.Crawler)
	}

	pipeline, err := a.buildPipeline()
	if err != nil {
		return nil, errors.Annotatef(err, "failed to build %s", PipelineName)
	}
	a.pipeline = pipeline

	if a.dailyPipeline, err = a.buildDailyPipeline(); err != nil {
		return nil, errors.Annotatef(err, "failed to build %s", DailyPipelineName)
	}
	return a, nil
}

func (a *Analyzer) Pipeline() types.Pipeline {
	return a.pipeline
}

func (a *Analyzer) Repository() store.Repository {
	return a.repo
}

func (a *Analyzer) buildPipeline() (types.Pipeline, error) {
	retry := a.cfg.Workflow.RetryCount
	builders := []*types.NodeBuilder{
		types.NewNode(NodeCrawl).Describe("fetch the article body").
			Handler(a.crawl).Then(NodeClassify),
		types.NewNode(NodeClassify).Describe("Agent1: event type and oil price relevance").
			Handler(a.runAgent(a.classifier)).Retry(retry).
			Branch("is_oil_related", NodeIEA, NodeMarkSkip),
		types.NewNode(NodeMarkSkip).Describe("mark news unrelated to the oil price").
			Handler(a.markSkip).Then(NodeSave),
		types.NewNode(NodeIEA).Describe("Agent2: entities and transmission path").
			Handler(a.runAgent(a.iea)).Retry(retry).Then(NodeSentiment),
		types.NewNode(NodeSentiment).Describe("Agent3: sentiment and shock intensity").
			Handler(a.runAgent(a.sentiment)).Retry(retry).Then(NodeQuerySimilar),
		types.NewNode(NodeQuerySimilar).Describe("look up similar past events").
			Handler(a.querySimilar).Retry(retry).Then(NodeCausal),
		types.NewNode(NodeCausal).Describe("Agent4: causal check and intensity calibration").
			Handler(a.validate).Then(NodeSave),
		types.NewNode(NodeSave).Describe("save the event").
			Handler(a.save),
	}

	pipeline := runtime.NewPipeline(PipelineName,
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
	if err := pipeline.SetStart(NodeCrawl); err != nil {
		return nil, errors.Trace(err)
	}
	return pipeline, errors.Trace(pipeline.Validate())
}

func (a *Analyzer) crawl(ctx types.Context, data types.Data) (*types.NodeResult, error) {
	url, _ := data.GetString("url")
	if url == "" {
		return types.Fail("url is empty"), nil
	}

	content, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		ctx.Logger().Warnf("fetch failed: %v", err)
	}
	if content == "" {
		// keep going on the title alone
		title, _ := data.GetString("title")
		ctx.Logger().Infof("using the title as content: %.50s", title)
		content = fmt.Sprintf("Title: %s\nContent: the article body could not be fetched, the title stands in for it.", title)
	}
	return types.Succeed(types.Data{"content": content}), nil
}

func (a *Analyzer) runAgent(agent agents.Agent) types.NodeHandler {
	return func(ctx types.Context, data types.Data) (*types.NodeResult, error) {
		out, err := agent.Execute(ctx, data)
		if err != nil {
			return nil, err
		}
		return types.Succeed(out), nil
	}
}

func (a *Analyzer) markSkip(ctx types.Context, data types.Data) (*types.NodeResult, error) {
	return types.Skip(types.Data{"skip_reason": SkipReason}), nil
}

func (a *Analyzer) querySimilar(ctx types.Context, data types.Data) (*types.NodeResult, error) {
	category, _ := data.GetString("category")
	records, err := a.repo.GetSimilar(ctx, category, a.cfg.SimilarLookback(), a.cfg.Analysis.SimilarLimit)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to query similar events")
	}
	similar := make([]map[string]any, 0, len(records))
	for _, r := range records {
		similar = append(similar, r.Flatten())
	}
	return types.Succeed(types.Data{store.KeySimilar: similar}), nil
}

// validate never fails the run: without a verdict the scores stand as they are.
func (a *Analyzer) validate(ctx types.Context, data types.Data) (*types.NodeResult, error) {
	out, err := a.causal.Execute(ctx, data)
	if err != nil {
		ctx.Logger().Warnf("causal validation failed, keeping the scores: %v", err)
		return types.Succeed(agents.Fallback(data, err)), nil
	}
	return types.Succeed(out), nil
}

// FactorValue is the signed strength of an event: sentiment scaled by the
// calibrated intensity, 0 for news unrelated to the oil price.
func FactorValue(data types.Data) float64 {
	if !data.Truthy("is_oil_related") {
		return 0
	}
	sentiment, _ := data.GetFloat64("sentiment")
	intensity, _ := data.GetFloat64("adjusted_intensity")
	return sentiment * intensity
}

func (a *Analyzer) save(ctx types.Context, data types.Data) (*types.NodeResult, error) {
	factor := FactorValue(data)
	record := data.Clone()
	record[store.KeyFactorValue] = factor
	if _, err := a.repo.Save(ctx, record); err != nil {
		return types.Fail("save failed: %v", err), nil
	}
	return types.Succeed(types.Data{"saved": true, store.KeyFactorValue: factor}), nil
}

// Analyze runs the pipeline for a single item.
func (a *Analyzer) Analyze(ctx context.Context, item *loader.NewsItem) *types.RunResult {
	return a.pipeline.Run(ctx, item.ToData(), types.WithRequestID(item.ID))
}

// AnalyzeBatch runs every item through the pipeline and counts the outcomes.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, items []*loader.NewsItem) *types.BatchSummary {
	batch := make([]runtime.BatchItem, 0, len(items))
	for _, item := range items {
		batch = append(batch, runtime.BatchItem{
			ID:    item.ID,
			Label: item.Title,
			Data:  item.ToData(),
		})
	}
	opts := append(a.cfg.BatchOptions(), types.WithBatchLogger(a.logger))
	return runtime.NewBatchRunner(a.pipeline, opts...).Run(ctx, batch)
}

// Collect reads back the records saved by the successful runs of a batch.
func (a *Analyzer) Collect(ctx context.Context, summary *types.BatchSummary) ([]*store.EventRecord, error) {
	records := make([]*store.EventRecord, 0, summary.Success)
	for _, outcome := range summary.Outcomes {
		if !outcome.Success {
			continue
		}
		record, err := a.repo.Get(ctx, outcome.ID)
		if errors.Is(err, errors.NotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Trace(err)
		}
		records = append(records, record)
	}
	return records, nil
}
