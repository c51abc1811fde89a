package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/llm"
	"github.com/lightartw/textanalyze/types"
	"github.com/lightartw/textanalyze/utils"
)

// SentimentScorer rates direction, strength and certainty of the price impact.
type SentimentScorer struct {
	base
}

func NewSentimentScorer(completer llm.Completer, maxContent int) *SentimentScorer {
	return &SentimentScorer{base{
		name:        llm.AgentSentiment,
		system:      "You are a quantitative analyst of the oil market.",
		completer:   completer,
		temperature: 0.2,
		timeout:     60 * time.Second,
		maxContent:  maxContent,
	}}
}

/**
 * Execute adds sentiment in [-1, 1] (positive is bullish), intensity and
 * confidence in [0, 1] and the model's reasoning. Out of range answers are
 * clamped, missing ones count as 0.
 */
func (s *SentimentScorer) Execute(ctx context.Context, input types.Data) (types.Data, error) {
	content := s.content(input)
	if content == "" {
		return nil, missingInput(s.name, "news content is empty")
	}

	parsed, err := s.ask(ctx, s.prompt(input, content))
	if err != nil {
		return nil, errors.Trace(err)
	}

	sentiment, err := number(parsed, "sentiment", 0)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", s.name)
	}
	intensity, err := number(parsed, "intensity", 0)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", s.name)
	}
	confidence, err := number(parsed, "confidence", 0)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", s.name)
	}
	return types.Data{
		"sentiment":  clamp(sentiment, -1, 1),
		"intensity":  clamp(intensity, 0, 1),
		"confidence": clamp(confidence, 0, 1),
		"reasoning":  objectOr(parsed["reasoning"], map[string]any{}),
	}, nil
}

func (s *SentimentScorer) prompt(input types.Data, content string) string {
	title, _ := input.GetString("title")
	eventType, _ := input.GetString("event_type")
	entities, _ := input.GetStringSlice("key_entities")
	path, _ := input.GetString("transmission_path")
	metrics, _ := input.Get("quantitative_metrics")
	encoded, _ := utils.Serialize(metrics)

	return fmt.Sprintf(`Rate the impact of the event below on the oil price.

Event type: %s
Key entities: %v
Quantitative metrics: %s
Transmission path: %s
Title: %s
Content:
%s

Rate:
1. sentiment: -1.0 to 1.0, positive is bullish, negative is bearish
2. intensity: 0.0 to 1.0, larger means a bigger shock
3. confidence: 0.0 to 1.0, larger means more certain

Answer with JSON only:
{
  "sentiment": 0.8,
  "intensity": 0.85,
  "confidence": 0.85,
  "reasoning": {
    "event_type": "kind of shock",
    "sentiment_basis": "why this direction",
    "intensity_basis": "why this strength",
    "historical_reference": "comparable past events",
    "cross_validation": "do the dimensions agree"
  }
}`, eventType, entities, encoded, path, title, content)
}
