package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/types"
)

func dailyRecord(id, date, eventType string, sentiment any) *store.EventRecord {
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if date != "" {
		d, _ = time.Parse(DateLayout, date)
	}
	return &store.EventRecord{
		NewsID:       id,
		Title:        "title " + id,
		Category:     "energy",
		IsOilRelated: true,
		EventDate:    &d,
		Data: types.Data{
			"event_type":        eventType,
			"sentiment":         sentiment,
			"intensity":         "1.7",
			"confidence":        "not a number",
			"keywords":          []any{"opec", "cut"},
			"transmission_path": "cut -> supply -> price",
			"content":           "body of " + id,
		},
	}
}

func TestDailyEvents(t *testing.T) {
	events := DailyEvents([]*store.EventRecord{
		dailyRecord("a", "2024-03-04", "geopolitical", 0.5),
		dailyRecord("b", "2024-03-06", "macro", "-3"),
		dailyRecord("c", "2024-03-05", "", nil),
	})
	require.Len(t, events, 3)

	assert.Equal(t, []string{"b", "c", "a"}, []string{events[0].ID, events[1].ID, events[2].ID})
	b := events[0]
	assert.Equal(t, "2024-03-06", b.Date)
	assert.Equal(t, -1.0, b.Sentiment)
	assert.Equal(t, 1.0, b.Intensity)
	assert.Zero(t, b.Confidence)
	assert.Equal(t, []string{"opec", "cut"}, b.Keywords)
	assert.Equal(t, "body of b", b.Content)
	assert.Zero(t, events[1].Sentiment)
}

func TestComputeMetrics(t *testing.T) {
	assert.Nil(t, ComputeMetrics(nil))

	events := []DailyEvent{
		{EventType: "geopolitical", Sentiment: 0.6, Intensity: 0.8, Confidence: 0.9},
		{EventType: "geopolitical", Sentiment: 0.2, Intensity: 0.4, Confidence: 0.5},
		{EventType: "macro", Sentiment: -0.5, Intensity: 0.3, Confidence: 0.4},
		{Sentiment: 0, Intensity: 0.1, Confidence: 0.2},
	}
	m := ComputeMetrics(events)
	require.NotNil(t, m)
	assert.Equal(t, 4, m.TotalEvents)
	assert.InDelta(t, 0.075, m.AverageSentiment, 1e-9)
	assert.InDelta(t, 0.4, m.AverageIntensity, 1e-9)
	assert.InDelta(t, 0.5, m.AverageConfidence, 1e-9)
	assert.Equal(t, map[string]int{"geopolitical": 2, "macro": 1, "unknown": 1}, m.EventTypeDistribution)
	assert.Equal(t, map[string]int{"positive": 2, "negative": 1, "neutral": 1}, m.SentimentDistribution)
	assert.Equal(t, "geopolitical", m.MostCommonEventType)
	assert.Equal(t, SentimentPositive, m.DominantSentiment)
}

func TestDominantSentiment(t *testing.T) {
	cases := []struct {
		name     string
		dist     map[string]int
		expected string
	}{
		{"single winner", map[string]int{"positive": 0, "negative": 3, "neutral": 1}, SentimentNegative},
		{"tie", map[string]int{"positive": 2, "negative": 2, "neutral": 0}, SentimentMixed},
		{"tie below the winner", map[string]int{"positive": 1, "negative": 1, "neutral": 4}, SentimentNeutral},
		{"empty", map[string]int{}, SentimentNeutral},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, dominantSentiment(c.dist))
		})
	}
}

func sampleDaily() *DailyReport {
	return &DailyReport{
		AnalysisDate:   "2024-03-05",
		MarketOverview: strings.Repeat("Supply is tightening. ", 20),
		ShortTermRisk: RiskAssessment{
			Assessment:  "prices likely to rise",
			Forecast:    "+3% within a week",
			RiskFactors: []string{"cut compliance"},
			RiskLevel:   RiskHigh,
			Confidence:  0.8,
			KeyMetrics:  map[string]any{"market_volatility": "high"},
		},
		LongTermRisk: RiskAssessment{RiskLevel: RiskMedium, Confidence: 0.6, RiskFactors: []string{}},
		KeyEvents: []KeyEvent{
			{ID: "1", Title: "Saudi extends cut", Reason: "largest supply change", MonitoringMetrics: []string{"exports", "OSP"}},
			{ID: "2", Title: "OPEC+ meets"},
			{ID: "3", Title: "US inventories fall"},
			{ID: "4", Title: "China imports rise"},
		},
		OilPriceStrategies: OilPriceStrategies{
			ShortTerm:     "hedge the next quarter",
			ByStakeholder: StakeholderAdvice{Investors: "stay long"},
		},
		RiskMitigation:      "diversify suppliers",
		TotalEventsAnalyzed: 4,
		EventMetrics:        ComputeMetrics([]DailyEvent{{EventType: "geopolitical", Sentiment: 0.5}}),
		Statistics:          store.NewStats(5, 4, 0.31, 30*24*time.Hour),
	}
}

func TestRenderDaily(t *testing.T) {
	now := time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC)
	out := RenderDaily(sampleDaily(), now)
	for _, expected := range []string{
		"Daily Oil Market Report",
		"2024-03-05 18:00:00",
		"2. Short term risk (1-7 days)",
		"Risk level: high",
		"market_volatility: high",
		"  - cut compliance",
		"1. Saudi extends cut",
		"Monitor: exports, OSP",
		"4. China imports rise",
		"6. Oil price risk strategies",
		"hedge the next quarter",
		"stay long",
		"Stored in the last 30 days",
	} {
		assert.Contains(t, out, expected)
	}
	// the strategies replace the plain mitigation text
	assert.NotContains(t, out, "diversify suppliers")

	r := sampleDaily()
	r.OilPriceStrategies = OilPriceStrategies{}
	r.KeyEvents = nil
	out = RenderDaily(r, now)
	assert.Contains(t, out, "6. Risk mitigation")
	assert.Contains(t, out, "diversify suppliers")
	assert.Contains(t, out, "No key events")
}

func TestRenderDailySummary(t *testing.T) {
	out := RenderDailySummary(sampleDaily(), time.Now())
	assert.Contains(t, out, "Short term: high (confidence 0.80)")
	assert.Contains(t, out, "Long term: medium (confidence 0.60)")
	assert.Contains(t, out, "3. US inventories fall")
	assert.NotContains(t, out, "China imports rise")
	assert.Contains(t, out, "... 4 events in total")
	assert.Contains(t, out, "Supply is tightening")
	assert.NotContains(t, out, strings.Repeat("Supply is tightening. ", 20))
}

func TestSaveDaily(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "daily")
	files, err := SaveDaily(dir, sampleDaily(), true, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "daily_report_2024-03-05.json"), files.JSON)
	assert.Equal(t, filepath.Join(dir, "daily_report_2024-03-05.txt"), files.Text)
	assert.Empty(t, files.Summary)

	content, err := os.ReadFile(files.JSON)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(content, &decoded))
	assert.Equal(t, "2024-03-05", decoded["analysis_date"])
	assert.EqualValues(t, 4, decoded["total_events_analyzed"])
	assert.Contains(t, decoded, "event_metrics")
	assert.Contains(t, decoded, "period_statistics")

	files, err = SaveDaily(dir, sampleDaily(), false, true, time.Now())
	require.NoError(t, err)
	assert.Empty(t, files.Text)
	assert.FileExists(t, files.Summary)
}
