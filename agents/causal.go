package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/lightartw/textanalyze/llm"
	"github.com/lightartw/textanalyze/types"
	"github.com/lightartw/textanalyze/utils"
)

// CausalValidator checks that the scored correlation is a causal effect and
// calibrates the intensity against similar past events.
type CausalValidator struct {
	base
	historyLimit int
}

func NewCausalValidator(completer llm.Completer, maxContent, historyLimit int) *CausalValidator {
	return &CausalValidator{
		base: base{
			name:        llm.AgentCausal,
			system:      "You are an expert in causal inference on commodity markets.",
			completer:   completer,
			temperature: 0.1,
			timeout:     60 * time.Second,
			maxContent:  maxContent,
		},
		historyLimit: historyLimit,
	}
}

/**
 * Execute adds is_causal (true unless the model says otherwise),
 * adjusted_intensity in [0, 1] defaulting to the scored intensity,
 * final_confidence defaulting to the scored confidence, logic_analysis,
 * warning and calibration_reasoning.
 */
func (v *CausalValidator) Execute(ctx context.Context, input types.Data) (types.Data, error) {
	content := v.content(input)
	if content == "" {
		return nil, missingInput(v.name, "news content is empty")
	}

	parsed, err := v.ask(ctx, v.prompt(input, content))
	if err != nil {
		return nil, errors.Trace(err)
	}

	intensity, _ := input.GetFloat64("intensity")
	confidence, _ := input.GetFloat64("confidence")
	adjusted, err := number(parsed, "adjusted_intensity", intensity)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", v.name)
	}
	finalConfidence, err := number(parsed, "confidence", confidence)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", v.name)
	}

	isCausal := true
	if raw, exists := parsed["is_causal"]; exists && raw != nil {
		isCausal = cast.ToBool(raw)
	}
	return types.Data{
		"is_causal":             isCausal,
		"adjusted_intensity":    clamp(adjusted, 0, 1),
		"logic_analysis":        objectOr(parsed["logic_analysis"], map[string]any{}),
		"final_confidence":      clamp(finalConfidence, 0, 1),
		"warning":               parsed["warning"],
		"calibration_reasoning": parsed["calibration_reasoning"],
	}, nil
}

/**
 * Fallback is what the pipeline records when validation itself failed:
 * the scored values stand uncalibrated and the event is not marked causal.
 */
func Fallback(input types.Data, cause error) types.Data {
	intensity, _ := input.GetFloat64("intensity")
	confidence, _ := input.GetFloat64("confidence")
	warning := "causal validation failed"
	if cause != nil {
		warning = cause.Error()
	}
	return types.Data{
		"is_causal":          false,
		"adjusted_intensity": intensity,
		"logic_analysis":     map[string]any{},
		"final_confidence":   confidence,
		"warning":            warning,
	}
}

// history renders the similar events found for the item, one per line.
func (v *CausalValidator) history(similar any) string {
	events := cast.ToSlice(similar)
	if v.historyLimit > 0 && len(events) > v.historyLimit {
		events = events[:v.historyLimit]
	}
	lines := make([]string, 0, len(events))
	for _, e := range events {
		event := cast.ToStringMap(e)
		lines = append(lines, fmt.Sprintf("- %s | factor=%v",
			truncate(cast.ToString(event["title"]), 50), cast.ToFloat64(event["factor_value"])))
	}
	if len(lines) == 0 {
		return "none"
	}
	return strings.Join(lines, "\n")
}

func (v *CausalValidator) prompt(input types.Data, content string) string {
	title, _ := input.GetString("title")
	eventType, _ := input.GetString("event_type")
	path, _ := input.GetString("transmission_path")
	sentiment, _ := input.GetFloat64("sentiment")
	intensity, _ := input.GetFloat64("intensity")
	confidence, _ := input.GetFloat64("confidence")
	reasoning, _ := input.Get("reasoning")
	encoded, _ := utils.Serialize(reasoning)
	similar, _ := input.Get("similar_events")

	return fmt.Sprintf(`Verify whether the event below causes the oil price move that was scored for it.

1. Path completeness: a clear cause, at least two intermediate mechanisms, a clear price effect.
2. Confounders: macro, geopolitical, market and seasonal factors.
3. Historical consistency: compare with the similar events listed.
4. Calibrate the intensity by evidence strength, uncertainty and history.
5. Tell correlation from causation, use a counterfactual.

Event type: %s
Transmission path: %s
Current scores: sentiment=%v, intensity=%v, confidence=%v
Scoring reasoning: %s
Similar past events:
%s
Title: %s
Content:
%s

Answer with JSON only:
{
  "is_causal": true|false,
  "adjusted_intensity": 0.75,
  "logic_analysis": {
    "transmission_path_valid": true|false,
    "path_issues": ["issue"],
    "confounding_variables": ["variable"],
    "historical_consistency": "how it compares",
    "counterfactual_analysis": "what happens without the event"
  },
  "confidence": 0.8,
  "warning": "warning or null",
  "calibration_reasoning": "why the intensity was adjusted"
}`, eventType, path, sentiment, intensity, confidence, encoded, v.history(similar), title, content)
}
