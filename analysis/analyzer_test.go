package analysis

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightartw/textanalyze/config"
	"github.com/lightartw/textanalyze/llm"
	"github.com/lightartw/textanalyze/loader"
	"github.com/lightartw/textanalyze/runtime"
	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/store/mem"
)

type stubFetcher struct {
	content string
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	return f.content, f.err
}

const article = "Saudi Arabia announced it will extend its voluntary cut of one million barrels per day through the end of the quarter."

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Workflow.RetryDelay = 0
	cfg.Workflow.MaxWorkers = 4
	return cfg
}

func newTestAnalyzer(t *testing.T, mock *llm.Mock, fetcher *stubFetcher) (*Analyzer, store.Repository) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	repo := mem.NewMemStore()
	a, err := NewAnalyzer(testConfig(), repo, mock, WithLogger(logger), WithFetcher(fetcher))
	require.NoError(t, err)
	return a, repo
}

func newsItem(id string) *loader.NewsItem {
	return &loader.NewsItem{
		ID:       id,
		Title:    "Saudi extends output cut " + id,
		Date:     "2024-03-05",
		Category: "energy",
		URL:      "https://example.com/" + id,
	}
}

func TestAnalyzeRelated(t *testing.T) {
	mock := llm.NewMock()
	a, repo := newTestAnalyzer(t, mock, &stubFetcher{content: article})

	result := a.Analyze(context.Background(), newsItem("1"))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "1", result.RequestID)
	assert.Equal(t, []string{
		NodeCrawl, NodeClassify, NodeIEA, NodeSentiment,
		NodeQuerySimilar, NodeCausal, NodeSave,
	}, result.Visited())
	assert.Equal(t, NodeSave, result.FinalNode)
	assert.Equal(t, article, result.Context["content"])
	assert.Equal(t, true, result.Context["saved"])
	assert.InDelta(t, 0.64, result.Context[store.KeyFactorValue], 1e-9)

	record, err := repo.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.True(t, record.IsOilRelated)
	assert.InDelta(t, 0.64, record.FactorValue, 1e-9)
	assert.Equal(t, "geopolitical", record.Data["event_type"])
	assert.Equal(t, true, record.Data["is_causal"])
	assert.NotContains(t, record.Data, store.KeySimilar)

	for _, agent := range []string{llm.AgentClassifier, llm.AgentIEA, llm.AgentSentiment, llm.AgentCausal} {
		assert.Equal(t, 1, mock.Calls(agent), agent)
	}
}

func TestAnalyzeUnrelated(t *testing.T) {
	mock := llm.NewMock().Answer(llm.AgentClassifier, `{"event_type": "macro", "keywords": [], "is_oil_related": false}`)
	a, repo := newTestAnalyzer(t, mock, &stubFetcher{content: article})

	result := a.Analyze(context.Background(), newsItem("2"))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, []string{NodeCrawl, NodeClassify, NodeMarkSkip, NodeSave}, result.Visited())
	assert.Equal(t, SkipReason, result.Context["skip_reason"])
	assert.Equal(t, 0.0, result.Context[store.KeyFactorValue])
	assert.Zero(t, mock.Calls(llm.AgentIEA))

	record, err := repo.Get(context.Background(), "2")
	require.NoError(t, err)
	assert.False(t, record.IsOilRelated)
	assert.Zero(t, record.FactorValue)
}

func TestAnalyzeEmptyURL(t *testing.T) {
	a, repo := newTestAnalyzer(t, llm.NewMock(), &stubFetcher{content: article})

	item := newsItem("3")
	item.URL = ""
	result := a.Analyze(context.Background(), item)
	assert.False(t, result.Success)
	assert.Equal(t, "url is empty", result.Error)
	assert.Equal(t, []string{NodeCrawl}, result.Visited())

	_, err := repo.Get(context.Background(), "3")
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestAnalyzeFetchFailure(t *testing.T) {
	a, _ := newTestAnalyzer(t, llm.NewMock(), &stubFetcher{err: fmt.Errorf("connection refused")})

	result := a.Analyze(context.Background(), newsItem("4"))
	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Context["content"], "Title: Saudi extends output cut 4")
}

func TestAnalyzeCausalFallback(t *testing.T) {
	mock := llm.NewMock().Fail(llm.AgentCausal, fmt.Errorf("endpoint down"))
	a, repo := newTestAnalyzer(t, mock, &stubFetcher{content: article})

	result := a.Analyze(context.Background(), newsItem("5"))
	require.True(t, result.Success, result.Error)
	assert.Equal(t, false, result.Context["is_causal"])
	assert.Contains(t, result.Context["warning"], "endpoint down")
	// the sentiment scorer's intensity stands uncalibrated
	assert.InDelta(t, 0.8*0.85, result.Context[store.KeyFactorValue], 1e-9)
	assert.Equal(t, 1, mock.Calls(llm.AgentCausal))

	record, err := repo.Get(context.Background(), "5")
	require.NoError(t, err)
	assert.InDelta(t, 0.68, record.FactorValue, 1e-9)
}

func TestAnalyzeAgentRetry(t *testing.T) {
	mock := llm.NewMock().Fail(llm.AgentIEA, fmt.Errorf("overloaded"))
	a, repo := newTestAnalyzer(t, mock, &stubFetcher{content: article})

	result := a.Analyze(context.Background(), newsItem("6"))
	assert.False(t, result.Success)
	assert.Equal(t, NodeIEA, result.FinalNode)
	assert.Contains(t, result.Error, "node agent2_iea_analyze failed after 2 retries")
	assert.Equal(t, 3, mock.Calls(llm.AgentIEA))
	assert.Zero(t, mock.Calls(llm.AgentSentiment))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAnalyzeUsesHistory(t *testing.T) {
	a, _ := newTestAnalyzer(t, llm.NewMock(), &stubFetcher{content: article})

	require.True(t, a.Analyze(context.Background(), newsItem("7")).Success)
	result := a.Analyze(context.Background(), newsItem("8"))
	require.True(t, result.Success, result.Error)

	similar, ok := result.Context[store.KeySimilar].([]map[string]any)
	require.True(t, ok)
	require.Len(t, similar, 1)
	assert.Equal(t, "7", similar[0][store.KeyNewsID])
}

func TestAnalyzeBatch(t *testing.T) {
	a, repo := newTestAnalyzer(t, llm.NewMock(), &stubFetcher{content: article})

	items := make([]*loader.NewsItem, 0, 10)
	for i := 0; i < 10; i++ {
		items = append(items, newsItem(fmt.Sprintf("n%d", i)))
	}
	items[3].URL = ""

	summary := a.AnalyzeBatch(context.Background(), items)
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 9, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Outcomes, 10)

	failed := make([]string, 0)
	for _, outcome := range summary.Outcomes {
		if !outcome.Success {
			failed = append(failed, outcome.ID)
		}
	}
	assert.Equal(t, []string{"n3"}, failed)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}

func TestPipelineShape(t *testing.T) {
	a, _ := newTestAnalyzer(t, llm.NewMock(), &stubFetcher{})
	p := a.Pipeline()

	assert.Equal(t, PipelineName, p.Name())
	assert.Equal(t, NodeCrawl, p.Start())
	assert.NoError(t, p.Validate())

	expected := []string{
		NodeCrawl, NodeClassify, NodeMarkSkip, NodeIEA,
		NodeSentiment, NodeQuerySimilar, NodeCausal, NodeSave,
	}
	if diff := cmp.Diff(expected, p.NodeNames()); diff != "" {
		t.Errorf("node names mismatch (-want +got):\n%s", diff)
	}

	classify, ok := p.Node(NodeClassify)
	require.True(t, ok)
	assert.Equal(t, "is_oil_related", classify.BranchField)
	assert.Equal(t, NodeIEA, classify.BranchTrue)
	assert.Equal(t, NodeMarkSkip, classify.BranchFalse)

	assert.Contains(t, runtime.Describe(p), NodeCausal)
}

func TestNewAnalyzerErrors(t *testing.T) {
	_, err := NewAnalyzer(nil, mem.NewMemStore(), llm.NewMock())
	assert.True(t, errors.Is(err, errors.BadRequest))
	_, err = NewAnalyzer(testConfig(), nil, llm.NewMock())
	assert.True(t, errors.Is(err, errors.BadRequest))
}

func TestFactorValue(t *testing.T) {
	assert.Zero(t, FactorValue(map[string]any{"sentiment": 0.5, "adjusted_intensity": 0.5}))
	assert.Equal(t, -0.25, FactorValue(map[string]any{
		"is_oil_related": true, "sentiment": -0.5, "adjusted_intensity": 0.5,
	}))
}

func TestCollect(t *testing.T) {
	a, repo := newTestAnalyzer(t, llm.NewMock(), &stubFetcher{content: article})

	items := []*loader.NewsItem{newsItem("a"), newsItem("b"), newsItem("c")}
	items[1].URL = ""
	_, err := repo.Save(context.Background(), newsItem("old").ToData())
	require.NoError(t, err)

	summary := a.AnalyzeBatch(context.Background(), items)
	records, err := a.Collect(context.Background(), summary)
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.NewsID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
}
