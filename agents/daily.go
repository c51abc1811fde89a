package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/lightartw/textanalyze/llm"
	"github.com/lightartw/textanalyze/report"
	"github.com/lightartw/textanalyze/types"
	"github.com/lightartw/textanalyze/utils"
)

// context keys of the daily summary
const (
	KeyAnalysisDate = "analysis_date"
	KeyDaysBack     = "days_back"
	KeyDailyEvents  = "daily_events"
	KeyEventMetrics = "event_metrics"
	KeyDailyReport  = "daily_report"
)

// promptEvents bounds the events listed in the prompt, the metrics still
// cover all of them.
const promptEvents = 20

// DailySummary writes the market assessment of a few days of events.
type DailySummary struct {
	base
}

func NewDailySummary(completer llm.Completer) *DailySummary {
	return &DailySummary{base{
		name:        llm.AgentDaily,
		system:      "You are a senior oil market analyst writing the daily market report.",
		completer:   completer,
		temperature: 0.3,
		timeout:     120 * time.Second,
	}}
}

/**
 * Execute reads the events ([]report.DailyEvent) and their metrics from
 * input and adds a *report.DailyReport. Fields the model left out get
 * empty defaults, risk levels other than low, medium and high become low,
 * and a missing confidence counts as 0.5.
 */
func (d *DailySummary) Execute(ctx context.Context, input types.Data) (types.Data, error) {
	raw, _ := input.Get(KeyDailyEvents)
	events, _ := raw.([]report.DailyEvent)
	if len(events) == 0 {
		return nil, missingInput(d.name, "no events to summarise")
	}
	raw, _ = input.Get(KeyEventMetrics)
	metrics, _ := raw.(*report.DailyMetrics)
	if metrics == nil {
		metrics = report.ComputeMetrics(events)
	}
	date, _ := input.GetString(KeyAnalysisDate)
	daysBack, _ := input.GetInt(KeyDaysBack)

	prompt, err := d.prompt(date, daysBack, events, metrics)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", d.name)
	}
	parsed, err := d.ask(ctx, prompt)
	if err != nil {
		return nil, errors.Trace(err)
	}

	strategies := cast.ToStringMap(parsed["oil_price_strategies"])
	stakeholders := cast.ToStringMap(strategies["by_stakeholder"])
	r := &report.DailyReport{
		AnalysisDate:     date,
		MarketOverview:   cast.ToString(parsed["market_overview"]),
		ShortTermRisk:    riskAssessment(parsed["short_term_risk"]),
		LongTermRisk:     riskAssessment(parsed["long_term_risk"]),
		KeyEvents:        keyEvents(parsed["key_events"]),
		EventCorrelation: cast.ToString(parsed["event_correlation"]),
		RiskMitigation:   cast.ToString(parsed["risk_mitigation"]),
		OilPriceStrategies: report.OilPriceStrategies{
			ShortTerm: cast.ToString(strategies["short_term"]),
			LongTerm:  cast.ToString(strategies["long_term"]),
			ByStakeholder: report.StakeholderAdvice{
				Producers:    cast.ToString(stakeholders["producers"]),
				Consumers:    cast.ToString(stakeholders["consumers"]),
				Investors:    cast.ToString(stakeholders["investors"]),
				Policymakers: cast.ToString(stakeholders["policymakers"]),
			},
			MonitoringSystem: cast.ToString(strategies["monitoring_system"]),
		},
		TotalEventsAnalyzed: len(events),
		EventMetrics:        metrics,
	}
	return types.Data{KeyDailyReport: r}, nil
}

// RiskLevel maps an answered level onto low, medium or high.
func RiskLevel(v any) string {
	switch strings.ToLower(strings.TrimSpace(cast.ToString(v))) {
	case report.RiskMedium, "中":
		return report.RiskMedium
	case report.RiskHigh, "高":
		return report.RiskHigh
	default:
		return report.RiskLow
	}
}

func riskAssessment(v any) report.RiskAssessment {
	m := cast.ToStringMap(v)
	confidence, err := number(m, "confidence", 0.5)
	if err != nil {
		confidence = 0.5
	}
	keyMetrics := cast.ToStringMap(m["key_metrics"])
	if keyMetrics == nil {
		keyMetrics = map[string]any{}
	}
	return report.RiskAssessment{
		Assessment:  cast.ToString(m["assessment"]),
		Forecast:    cast.ToString(m["forecast"]),
		RiskFactors: stringList(m["risk_factors"]),
		RiskLevel:   RiskLevel(m["risk_level"]),
		Confidence:  clamp(confidence, 0, 1),
		KeyMetrics:  keyMetrics,
	}
}

func keyEvents(v any) []report.KeyEvent {
	list, _ := v.([]any)
	events := make([]report.KeyEvent, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		events = append(events, report.KeyEvent{
			ID:                cast.ToString(m["id"]),
			Title:             cast.ToString(m["title"]),
			Reason:            cast.ToString(m["reason"]),
			PotentialImpact:   cast.ToString(m["potential_impact"]),
			SuggestedAction:   cast.ToString(m["suggested_action"]),
			MonitoringMetrics: stringList(m["monitoring_metrics"]),
		})
	}
	return events
}

func (d *DailySummary) prompt(date string, daysBack int, events []report.DailyEvent, metrics *report.DailyMetrics) (string, error) {
	listed := events
	if len(listed) > promptEvents {
		listed = listed[:promptEvents]
	}
	encodedEvents, err := utils.SerializeIndent(listed)
	if err != nil {
		return "", errors.Annotatef(err, "failed to encode events")
	}
	encodedMetrics, err := utils.SerializeIndent(metrics)
	if err != nil {
		return "", errors.Annotatef(err, "failed to encode metrics")
	}

	return fmt.Sprintf(`Write the daily oil market report from the events and metrics below.
Stay with the data, look at supply, demand, geopolitics and the macro economy,
and give every risk a level and a confidence.

Tasks:
1. market_overview: the state of the market over the last %[2]d days, its main trends and mood.
2. short_term_risk (1-7 days): price impact, forecast, risk factors, risk level (low, medium, high), confidence (0-1).
3. long_term_risk (7-30 days): transmission paths and lagged effects, forecast, risk factors, risk level, confidence.
4. key_events: the up to 5 events that deserve the most attention, why, their potential impact,
   a suggested action and the metrics to monitor.
5. event_correlation: how the events relate, chain reactions and their combined effect.
6. oil_price_strategies: short and long term responses, advice per stakeholder
   (producers, consumers, investors, policymakers) and a monitoring and early warning system.

Analysis date: %[1]s
Window: last %[2]d days
Total events: %[3]d

Event metrics:
%[4]s

Events:
%[5]s

Answer with JSON only:
{
  "market_overview": "...",
  "short_term_risk": {
    "assessment": "...",
    "forecast": "...",
    "risk_factors": ["..."],
    "risk_level": "low|medium|high",
    "confidence": 0.7,
    "key_metrics": {"sentiment_average": 0.0, "intensity_average": 0.0, "market_volatility": "..."}
  },
  "long_term_risk": {
    "assessment": "...",
    "forecast": "...",
    "risk_factors": ["..."],
    "risk_level": "low|medium|high",
    "confidence": 0.6,
    "key_metrics": {"trend_strength": "...", "fundamental_balance": "...", "geopolitical_stability": "..."}
  },
  "key_events": [
    {"id": "...", "title": "...", "reason": "...", "potential_impact": "...", "suggested_action": "...", "monitoring_metrics": ["..."]}
  ],
  "event_correlation": "...",
  "risk_mitigation": "...",
  "oil_price_strategies": {
    "short_term": "...",
    "long_term": "...",
    "by_stakeholder": {"producers": "...", "consumers": "...", "investors": "...", "policymakers": "..."},
    "monitoring_system": "..."
  }
}`, date, daysBack, len(events), encodedMetrics, encodedEvents), nil
}
