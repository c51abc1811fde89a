package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/utils"
)

const (
	DateLayout = "2006-01-02"

	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"

	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
	SentimentMixed    = "mixed"

	unknownEventType = "unknown"
	overviewRunes    = 200
	summaryKeyEvents = 3
)

// DailyEvent is the view of a stored event the daily report works on.
type DailyEvent struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Date             string   `json:"date"`
	EventType        string   `json:"event_type"`
	IsOilRelated     bool     `json:"is_oil_related"`
	Sentiment        float64  `json:"sentiment"`
	Intensity        float64  `json:"intensity"`
	Confidence       float64  `json:"confidence"`
	Keywords         []string `json:"keywords"`
	TransmissionPath string   `json:"transmission_path"`
	Category         string   `json:"category"`
	Content          string   `json:"-"`
}

/**
 * DailyEvents reads the report view out of stored records. Scores that do
 * not parse count as 0 and are clamped to their ranges. Events are ordered
 * latest date first.
 */
func DailyEvents(records []*store.EventRecord) []DailyEvent {
	events := make([]DailyEvent, 0, len(records))
	for _, r := range records {
		data := r.Data.Clone()
		e := DailyEvent{
			ID:           r.NewsID,
			Title:        r.Title,
			Category:     r.Category,
			IsOilRelated: r.IsOilRelated,
		}
		if r.EventDate != nil {
			e.Date = r.EventDate.Format(DateLayout)
		} else {
			e.Date, _ = data.GetString("date")
		}
		e.EventType, _ = data.GetString("event_type")
		e.Keywords, _ = data.GetStringSlice("keywords")
		if e.Keywords == nil {
			e.Keywords = []string{}
		}
		e.TransmissionPath, _ = data.GetString("transmission_path")
		e.Content, _ = data.GetString("content")

		sentiment, _ := data.GetFloat64("sentiment")
		intensity, _ := data.GetFloat64("intensity")
		confidence, _ := data.GetFloat64("confidence")
		e.Sentiment = clamp(sentiment, -1, 1)
		e.Intensity = clamp(intensity, 0, 1)
		e.Confidence = clamp(confidence, 0, 1)
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Date > events[j].Date
	})
	return events
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

type DailyMetrics struct {
	AverageSentiment      float64        `json:"average_sentiment"`
	AverageIntensity      float64        `json:"average_intensity"`
	AverageConfidence     float64        `json:"average_confidence"`
	TotalEvents           int            `json:"total_events"`
	EventTypeDistribution map[string]int `json:"event_type_distribution"`
	SentimentDistribution map[string]int `json:"sentiment_distribution"`
	MostCommonEventType   string         `json:"most_common_event_type"`
	DominantSentiment     string         `json:"dominant_sentiment"`
}

// ComputeMetrics aggregates the scores of events, nil for no events.
func ComputeMetrics(events []DailyEvent) *DailyMetrics {
	if len(events) == 0 {
		return nil
	}
	m := &DailyMetrics{
		TotalEvents:           len(events),
		EventTypeDistribution: make(map[string]int),
		SentimentDistribution: map[string]int{
			SentimentPositive: 0,
			SentimentNegative: 0,
			SentimentNeutral:  0,
		},
	}
	for _, e := range events {
		m.AverageSentiment += e.Sentiment
		m.AverageIntensity += e.Intensity
		m.AverageConfidence += e.Confidence

		eventType := e.EventType
		if eventType == "" {
			eventType = unknownEventType
		}
		m.EventTypeDistribution[eventType]++

		switch {
		case e.Sentiment > 0:
			m.SentimentDistribution[SentimentPositive]++
		case e.Sentiment < 0:
			m.SentimentDistribution[SentimentNegative]++
		default:
			m.SentimentDistribution[SentimentNeutral]++
		}
	}
	n := float64(len(events))
	m.AverageSentiment /= n
	m.AverageIntensity /= n
	m.AverageConfidence /= n
	m.MostCommonEventType = mostCommon(m.EventTypeDistribution)
	m.DominantSentiment = dominantSentiment(m.SentimentDistribution)
	return m
}

// mostCommon breaks ties by name so the answer does not depend on map order.
func mostCommon(counts map[string]int) string {
	best, bestCount := unknownEventType, 0
	for _, k := range utils.SortedKeys(counts) {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

func dominantSentiment(dist map[string]int) string {
	best, bestCount, tied := SentimentNeutral, -1, false
	for _, k := range utils.SortedKeys(dist) {
		switch {
		case dist[k] > bestCount:
			best, bestCount, tied = k, dist[k], false
		case dist[k] == bestCount:
			tied = true
		}
	}
	if tied {
		return SentimentMixed
	}
	return best
}

type RiskAssessment struct {
	Assessment  string         `json:"assessment"`
	Forecast    string         `json:"forecast"`
	RiskFactors []string       `json:"risk_factors"`
	RiskLevel   string         `json:"risk_level"`
	Confidence  float64        `json:"confidence"`
	KeyMetrics  map[string]any `json:"key_metrics"`
}

type KeyEvent struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Reason            string   `json:"reason"`
	PotentialImpact   string   `json:"potential_impact"`
	SuggestedAction   string   `json:"suggested_action"`
	MonitoringMetrics []string `json:"monitoring_metrics"`
}

type StakeholderAdvice struct {
	Producers    string `json:"producers"`
	Consumers    string `json:"consumers"`
	Investors    string `json:"investors"`
	Policymakers string `json:"policymakers"`
}

func (a StakeholderAdvice) empty() bool {
	return a == StakeholderAdvice{}
}

type OilPriceStrategies struct {
	ShortTerm        string            `json:"short_term"`
	LongTerm         string            `json:"long_term"`
	ByStakeholder    StakeholderAdvice `json:"by_stakeholder"`
	MonitoringSystem string            `json:"monitoring_system"`
}

func (s OilPriceStrategies) empty() bool {
	return s.ShortTerm == "" && s.LongTerm == "" && s.MonitoringSystem == "" && s.ByStakeholder.empty()
}

// DailyReport is the market assessment over the events of a few days.
type DailyReport struct {
	AnalysisDate        string             `json:"analysis_date"`
	MarketOverview      string             `json:"market_overview"`
	ShortTermRisk       RiskAssessment     `json:"short_term_risk"`
	LongTermRisk        RiskAssessment     `json:"long_term_risk"`
	KeyEvents           []KeyEvent         `json:"key_events"`
	EventCorrelation    string             `json:"event_correlation"`
	RiskMitigation      string             `json:"risk_mitigation"`
	OilPriceStrategies  OilPriceStrategies `json:"oil_price_strategies"`
	TotalEventsAnalyzed int                `json:"total_events_analyzed"`
	EventMetrics        *DailyMetrics      `json:"event_metrics"`
	Statistics          *store.Stats       `json:"period_statistics,omitempty"`
}

func orNoData(s string) string {
	if s == "" {
		return "no data"
	}
	return s
}

func writeSection(sb *strings.Builder, title string) {
	rule := strings.Repeat("-", ruleWidth)
	fmt.Fprintf(sb, "%s\n%s\n%s\n", rule, title, rule)
}

func writeRisk(sb *strings.Builder, title string, r RiskAssessment) {
	writeSection(sb, title)
	fmt.Fprintf(sb, "Risk level: %s\nConfidence: %.2f\n\n", orNoData(r.RiskLevel), r.Confidence)
	if len(r.KeyMetrics) > 0 {
		sb.WriteString("Key metrics:\n")
		for _, k := range utils.SortedKeys(r.KeyMetrics) {
			fmt.Fprintf(sb, "  - %s: %v\n", k, r.KeyMetrics[k])
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "Assessment:\n%s\n\nForecast:\n%s\n\nRisk factors:\n", orNoData(r.Assessment), orNoData(r.Forecast))
	for _, f := range r.RiskFactors {
		fmt.Fprintf(sb, "  - %s\n", f)
	}
	sb.WriteString("\n")
}

// RenderDaily renders the full daily report.
func RenderDaily(r *DailyReport, now time.Time) string {
	rule := strings.Repeat("=", ruleWidth)
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%s\nDaily Oil Market Report\n%s\n", rule, rule)

	overview := newTable("")
	overview.AppendRows([]table.Row{
		{"Analysis date", r.AnalysisDate},
		{"Generated at", now.Format("2006-01-02 15:04:05")},
		{"Events analysed", r.TotalEventsAnalyzed},
	})
	if m := r.EventMetrics; m != nil {
		overview.AppendRows([]table.Row{
			{"Average sentiment", fmt.Sprintf("%.2f", m.AverageSentiment)},
			{"Average intensity", fmt.Sprintf("%.2f", m.AverageIntensity)},
			{"Dominant sentiment", m.DominantSentiment},
			{"Most common event type", m.MostCommonEventType},
		})
	}
	if s := r.Statistics; s != nil {
		overview.AppendRow(table.Row{
			fmt.Sprintf("Stored in the last %d days", s.PeriodDays),
			fmt.Sprintf("%d (%d oil related, avg factor %.4f)", s.TotalEvents, s.OilRelatedEvents, s.AvgFactorValue),
		})
	}
	sb.WriteString(overview.Render())
	sb.WriteString("\n\n")

	writeSection(sb, "1. Market overview")
	fmt.Fprintf(sb, "%s\n\n", orNoData(r.MarketOverview))

	writeRisk(sb, "2. Short term risk (1-7 days)", r.ShortTermRisk)
	writeRisk(sb, "3. Long term risk (7-30 days)", r.LongTermRisk)

	writeSection(sb, "4. Key events")
	if len(r.KeyEvents) == 0 {
		sb.WriteString("No key events\n\n")
	}
	for i, e := range r.KeyEvents {
		fmt.Fprintf(sb, "%d. %s\n", i+1, orNoData(e.Title))
		fmt.Fprintf(sb, "   Why it matters: %s\n", orNoData(e.Reason))
		fmt.Fprintf(sb, "   Potential impact: %s\n", orNoData(e.PotentialImpact))
		fmt.Fprintf(sb, "   Suggested action: %s\n", orNoData(e.SuggestedAction))
		if len(e.MonitoringMetrics) > 0 {
			fmt.Fprintf(sb, "   Monitor: %s\n", strings.Join(e.MonitoringMetrics, ", "))
		}
		sb.WriteString("\n")
	}

	writeSection(sb, "5. Event correlation")
	fmt.Fprintf(sb, "%s\n\n", orNoData(r.EventCorrelation))

	s := r.OilPriceStrategies
	if s.empty() {
		writeSection(sb, "6. Risk mitigation")
		fmt.Fprintf(sb, "%s\n\n", orNoData(r.RiskMitigation))
	} else {
		writeSection(sb, "6. Oil price risk strategies")
		if s.ShortTerm != "" {
			fmt.Fprintf(sb, "Short term:\n%s\n\n", s.ShortTerm)
		}
		if s.LongTerm != "" {
			fmt.Fprintf(sb, "Long term:\n%s\n\n", s.LongTerm)
		}
		if !s.ByStakeholder.empty() {
			advice := newTable("By stakeholder")
			for _, row := range []struct{ who, what string }{
				{"Producers", s.ByStakeholder.Producers},
				{"Consumers", s.ByStakeholder.Consumers},
				{"Investors", s.ByStakeholder.Investors},
				{"Policymakers", s.ByStakeholder.Policymakers},
			} {
				if row.what != "" {
					advice.AppendRow(table.Row{row.who, row.what})
				}
			}
			advice.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 60}})
			sb.WriteString(advice.Render())
			sb.WriteString("\n\n")
		}
		if s.MonitoringSystem != "" {
			fmt.Fprintf(sb, "Monitoring and early warning:\n%s\n\n", s.MonitoringSystem)
		}
	}

	fmt.Fprintf(sb, "%s\nEnd of report\n%s\n", rule, rule)
	return sb.String()
}

// RenderDailySummary renders the short form: overview, risk levels and the
// first key events.
func RenderDailySummary(r *DailyReport, now time.Time) string {
	rule := strings.Repeat("=", 60)
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%s\nDaily Oil Market Summary\n%s\n", rule, rule)
	fmt.Fprintf(sb, "Analysis date: %s\nGenerated at: %s\n\n", r.AnalysisDate, now.Format("2006-01-02 15:04:05"))

	if r.MarketOverview != "" {
		overview := r.MarketOverview
		if runes := []rune(overview); len(runes) > overviewRunes {
			overview = string(runes[:overviewRunes]) + "..."
		}
		fmt.Fprintf(sb, "Market overview:\n%s\n\n", overview)
	}

	sb.WriteString("Risk:\n")
	fmt.Fprintf(sb, "Short term: %s (confidence %.2f)\n", orNoData(r.ShortTermRisk.RiskLevel), r.ShortTermRisk.Confidence)
	fmt.Fprintf(sb, "Long term: %s (confidence %.2f)\n\n", orNoData(r.LongTermRisk.RiskLevel), r.LongTermRisk.Confidence)

	if len(r.KeyEvents) > 0 {
		sb.WriteString("Key events:\n")
		for i, e := range r.KeyEvents {
			if i == summaryKeyEvents {
				fmt.Fprintf(sb, "... %d events in total\n", len(r.KeyEvents))
				break
			}
			fmt.Fprintf(sb, "%d. %s\n", i+1, orNoData(e.Title))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(sb, "%s\nSee the full report for details\n%s\n", rule, rule)
	return sb.String()
}

// DailyFiles lists what SaveDaily wrote, empty paths were not requested.
type DailyFiles struct {
	JSON    string
	Text    string
	Summary string
}

/**
 * SaveDaily writes daily_report_<date>.json and, when asked for, the full
 * text report (daily_report_<date>.txt) and the summary
 * (daily_summary_<date>.txt) under dir. A later run for the same date
 * replaces the files.
 */
func SaveDaily(dir string, r *DailyReport, detailed, summary bool, now time.Time) (*DailyFiles, error) {
	content, err := utils.SerializeIndent(r)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to encode the daily report")
	}
	files := &DailyFiles{}
	if files.JSON, err = write(dir, fmt.Sprintf("daily_report_%s.json", r.AnalysisDate), content); err != nil {
		return nil, errors.Trace(err)
	}
	if detailed {
		if files.Text, err = write(dir, fmt.Sprintf("daily_report_%s.txt", r.AnalysisDate), []byte(RenderDaily(r, now))); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if summary {
		if files.Summary, err = write(dir, fmt.Sprintf("daily_summary_%s.txt", r.AnalysisDate), []byte(RenderDailySummary(r, now))); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return files, nil
}
