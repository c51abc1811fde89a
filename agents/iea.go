package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/lightartw/textanalyze/llm"
	"github.com/lightartw/textanalyze/types"
)

// IEAAnalyzer extracts the entities, metrics and transmission path that
// link an event to the oil price, the way an energy agency analyst would.
type IEAAnalyzer struct {
	base
}

func NewIEAAnalyzer(completer llm.Completer, maxContent int) *IEAAnalyzer {
	return &IEAAnalyzer{base{
		name:        llm.AgentIEA,
		system:      "You are a senior analyst at the International Energy Agency.",
		completer:   completer,
		temperature: 0.1,
		timeout:     60 * time.Second,
		maxContent:  maxContent,
	}}
}

func defaultMetrics() map[string]any {
	return map[string]any{
		"supply_impact":    nil,
		"demand_impact":    nil,
		"inventory_change": nil,
		"other_metrics": map[string]any{
			"price_impact": nil,
			"time_horizon": "short",
		},
	}
}

func (a *IEAAnalyzer) Execute(ctx context.Context, input types.Data) (types.Data, error) {
	content := a.content(input)
	if content == "" {
		return nil, missingInput(a.name, "news content is empty")
	}
	title, _ := input.GetString("title")
	eventType, _ := input.GetString("event_type")
	keywords, _ := input.GetStringSlice("keywords")

	parsed, err := a.ask(ctx, a.prompt(title, content, eventType, keywords))
	if err != nil {
		return nil, errors.Trace(err)
	}

	confidence := cast.ToString(parsed["confidence"])
	if confidence == "" {
		confidence = "medium"
	}
	return types.Data{
		"reason":               cast.ToString(parsed["reason"]),
		"key_entities":         stringList(parsed["key_entities"]),
		"quantitative_metrics": objectOr(parsed["quantitative_metrics"], defaultMetrics()),
		"transmission_path":    cast.ToString(parsed["transmission_path"]),
		"confidence":           confidence,
		"uncertainties":        stringList(parsed["uncertainties"]),
	}, nil
}

func (a *IEAAnalyzer) prompt(title, content, eventType string, keywords []string) string {
	return fmt.Sprintf(`Analyse the causal chain between the event below and the oil price.

1. Identify which of supply, demand and financial factors the event touches.
2. Extract the key entities: countries, organisations (OPEC, OPEC+, IEA), companies, data sources (EIA, API).
3. Quantify supply impact and demand impact in barrels per day, inventory change in 10k barrels, and any other metric.
4. Build the transmission path: cause -> intermediate mechanism -> oil price impact.
5. Check the chain for confounders and list what stays uncertain.

Event type: %s
Keywords: %v
Title: %s
Content:
%s

Answer with JSON only, use null for values you can not determine:
{
  "reason": "which factors apply (supply/demand/financial)",
  "key_entities": ["entity 1", "entity 2"],
  "quantitative_metrics": {
    "supply_impact": "bpd or null",
    "demand_impact": "bpd or null",
    "inventory_change": "10k barrels or null",
    "other_metrics": {"price_impact": "USD/bbl or null", "time_horizon": "short|medium|long"}
  },
  "transmission_path": "cause -> mechanism -> oil price impact",
  "confidence": "high|medium|low",
  "uncertainties": ["uncertainty 1", "uncertainty 2"]
}`, eventType, keywords, title, content)
}
