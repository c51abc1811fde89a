package report

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/store"
	"github.com/lightartw/textanalyze/utils"
)

const (
	defaultSkipReason = "not related to the oil price"
	unrelated         = "unrelated"
	ruleWidth         = 70
)

type EventAnalysis struct {
	NewsID            string   `json:"news_id"`
	Title             string   `json:"title"`
	Category          string   `json:"category"`
	EventType         string   `json:"event_type"`
	Keywords          []string `json:"keywords"`
	FactorValue       float64  `json:"factor_value"`
	Sentiment         float64  `json:"sentiment"`
	Intensity         float64  `json:"intensity"`
	AdjustedIntensity float64  `json:"adjusted_intensity"`
	Confidence        float64  `json:"final_confidence"`
	IsCausal          bool     `json:"is_causal"`
	TransmissionPath  string   `json:"transmission_path"`
	Reason            string   `json:"reason"`
	Warning           string   `json:"warning,omitempty"`
}

type SkippedEvent struct {
	NewsID     string `json:"news_id"`
	Title      string `json:"title"`
	SkipReason string `json:"skip_reason"`
}

// Summary is the daily aggregate of the analysed events.
type Summary struct {
	Date             time.Time       `json:"summary_date"`
	TotalEvents      int             `json:"total_events"`
	OilRelatedEvents int             `json:"oil_related_events"`
	AvgFactorValue   float64         `json:"avg_factor_value"`
	CategoryCounts   map[string]int  `json:"factor_category_counts"`
	EventAnalyses    []EventAnalysis `json:"event_analyses"`
	SkippedEvents    []SkippedEvent  `json:"skipped_events"`
}

/**
 * Aggregate summarises events for the day of date. Oil related events
 * contribute to the average factor value (rounded to 4 places) and to the
 * counts per event type; the others are listed with their skip reason.
 */
func Aggregate(events []*store.EventRecord, date time.Time) *Summary {
	y, m, d := date.Date()
	summary := &Summary{
		Date:           time.Date(y, m, d, 0, 0, 0, 0, date.Location()),
		TotalEvents:    len(events),
		CategoryCounts: make(map[string]int),
		EventAnalyses:  make([]EventAnalysis, 0),
		SkippedEvents:  make([]SkippedEvent, 0),
	}

	var total float64
	for _, e := range events {
		data := e.Data.Clone()
		if !e.IsOilRelated {
			reason, _ := data.GetString("skip_reason")
			if reason == "" {
				reason = defaultSkipReason
			}
			summary.SkippedEvents = append(summary.SkippedEvents, SkippedEvent{
				NewsID:     e.NewsID,
				Title:      e.Title,
				SkipReason: reason,
			})
			continue
		}

		analysis := EventAnalysis{
			NewsID:      e.NewsID,
			Title:       e.Title,
			Category:    e.Category,
			FactorValue: e.FactorValue,
		}
		analysis.EventType, _ = data.GetString("event_type")
		analysis.Keywords, _ = data.GetStringSlice("keywords")
		analysis.Sentiment, _ = data.GetFloat64("sentiment")
		analysis.Intensity, _ = data.GetFloat64("intensity")
		analysis.AdjustedIntensity, _ = data.GetFloat64("adjusted_intensity")
		analysis.Confidence, _ = data.GetFloat64("final_confidence")
		analysis.IsCausal, _ = data.GetBool("is_causal")
		analysis.TransmissionPath, _ = data.GetString("transmission_path")
		analysis.Reason, _ = data.GetString("reason")
		if data.Truthy("warning") {
			analysis.Warning, _ = data.GetString("warning")
		}
		summary.EventAnalyses = append(summary.EventAnalyses, analysis)

		key := analysis.EventType
		if key == "" {
			key = e.Category
		}
		if key == "" {
			key = unrelated
		}
		summary.CategoryCounts[key]++
		total += e.FactorValue
	}

	summary.OilRelatedEvents = len(summary.EventAnalyses)
	if summary.OilRelatedEvents > 0 {
		avg := total / float64(summary.OilRelatedEvents)
		summary.AvgFactorValue = math.Round(avg*1e4) / 1e4
	}
	return summary
}

// MarketTrend names the overall direction the average factor value points to.
func MarketTrend(avg float64) string {
	switch {
	case avg > 0.3:
		return "strongly bullish"
	case avg > 0.1:
		return "mildly bullish"
	case avg > -0.1:
		return "neutral"
	case avg > -0.3:
		return "mildly bearish"
	default:
		return "strongly bearish"
	}
}

func (s *Summary) categoryText() string {
	if len(s.CategoryCounts) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(s.CategoryCounts))
	for _, k := range utils.SortedKeys(s.CategoryCounts) {
		parts = append(parts, fmt.Sprintf("%s:%d", k, s.CategoryCounts[k]))
	}
	return strings.Join(parts, ", ")
}

func newTable(title string) table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.SetTitle(title)
	return w
}

// RenderText renders the summary as a plain text report.
func RenderText(s *Summary) string {
	rule := strings.Repeat("=", ruleWidth)
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%s\nText Factor Daily Report\n%s\n\n", rule, rule)

	stats := newTable("Overview")
	stats.AppendRows([]table.Row{
		{"Report date", s.Date.Format("2006-01-02")},
		{"Total events", s.TotalEvents},
		{"Oil related events", s.OilRelatedEvents},
		{"Average factor value", s.AvgFactorValue},
		{"Market trend", MarketTrend(s.AvgFactorValue)},
		{"Event types", s.categoryText()},
	})
	sb.WriteString(stats.Render())
	sb.WriteString("\n\n")

	if len(s.EventAnalyses) > 0 {
		events := newTable("Event analyses")
		events.AppendHeader(table.Row{"#", "Title", "Type", "Factor", "Sentiment", "Intensity", "Causal", "Transmission path"})
		events.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, WidthMax: 40},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
			{Number: 6, Align: text.AlignRight},
			{Number: 8, WidthMax: 50},
		})
		for i, e := range s.EventAnalyses {
			intensity := fmt.Sprintf("%.2f", e.AdjustedIntensity)
			if math.Abs(e.AdjustedIntensity-e.Intensity) > 0.001 {
				intensity = fmt.Sprintf("%.2f (was %.2f)", e.AdjustedIntensity, e.Intensity)
			}
			events.AppendRow(table.Row{
				i + 1,
				shorten(e.Title, 60),
				e.EventType,
				fmt.Sprintf("%.4f", e.FactorValue),
				fmt.Sprintf("%.2f", e.Sentiment),
				intensity,
				e.IsCausal,
				e.TransmissionPath,
			})
		}
		sb.WriteString(events.Render())
		sb.WriteString("\n")
		for i, e := range s.EventAnalyses {
			if e.Warning != "" {
				fmt.Fprintf(sb, "  warning on event %d: %s\n", i+1, e.Warning)
			}
		}
		sb.WriteString("\n")
	}

	if len(s.SkippedEvents) > 0 {
		skipped := newTable("Skipped events")
		skipped.AppendHeader(table.Row{"#", "Title", "Reason"})
		for i, e := range s.SkippedEvents {
			skipped.AppendRow(table.Row{i + 1, shorten(e.Title, 50), e.SkipReason})
		}
		sb.WriteString(skipped.Render())
		sb.WriteString("\n\n")
	}

	fmt.Fprintf(sb, "%s\nEnd of report\n%s\n", rule, rule)
	return sb.String()
}

func shorten(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

// SaveJSON writes the flattened events to a timestamped file under dir and
// returns its path.
func SaveJSON(dir string, events []*store.EventRecord, now time.Time) (string, error) {
	rows := make([]map[string]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, e.Flatten())
	}
	content, err := utils.SerializeIndent(rows)
	if err != nil {
		return "", errors.Annotatef(err, "failed to encode events")
	}
	return write(dir, fmt.Sprintf("text_factors_%s.json", now.Format("20060102_150405")), content)
}

// SaveText writes a rendered report next to the JSON files.
func SaveText(dir string, report string, now time.Time) (string, error) {
	return write(dir, fmt.Sprintf("daily_report_%s.txt", now.Format("20060102_150405")), []byte(report))
}

func write(dir, name string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Annotatef(err, "failed to create %s", dir)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", errors.Annotatef(err, "failed to write %s", path)
	}
	return path, nil
}
