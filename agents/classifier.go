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
)

// EventClassifier decides whether a news item moves the oil price and which
// kind of event it reports.
type EventClassifier struct {
	base
}

func NewEventClassifier(completer llm.Completer, maxContent int) *EventClassifier {
	return &EventClassifier{base{
		name:        llm.AgentClassifier,
		system:      "You are an expert in classifying oil market events.",
		completer:   completer,
		temperature: 0.1,
		timeout:     40 * time.Second,
		maxContent:  maxContent,
	}}
}

// Execute adds event_type (nil when unknown), keywords and is_oil_related.
func (c *EventClassifier) Execute(ctx context.Context, input types.Data) (types.Data, error) {
	title, _ := input.GetString("title")
	content := c.content(input)
	if title == "" && content == "" {
		return nil, missingInput(c.name, "news title and content are empty")
	}

	parsed, err := c.ask(ctx, c.prompt(title, content))
	if err != nil {
		return nil, errors.Trace(err)
	}

	var eventType any
	related := cast.ToBool(parsed["is_oil_related"])
	if v := parsed["event_type"]; v != nil {
		if name := cast.ToString(v); IsEventType(name) {
			eventType = name
		} else {
			related = false
		}
	}
	return types.Data{
		"event_type":     eventType,
		"keywords":       stringList(parsed["keywords"]),
		"is_oil_related": related,
	}, nil
}

func (c *EventClassifier) prompt(title, content string) string {
	return fmt.Sprintf(`Decide whether the news below is related to the crude oil price and name its event type.

Event types:
- geopolitical: war, conflict, sanctions, OPEC decisions
- macro: GDP, interest rates, PMI, inflation
- sentiment: panic, sell-offs, speculation
- weather: hurricanes, cold waves, refinery outages
- inventory: EIA/API stocks, strategic reserves
- policy: energy policy, taxes, quotas
- technology: extraction and refining technology
- other: substitutes, supply and demand fundamentals

Title: %s
Content:
%s

Answer with JSON only:
{
  "event_type": "%s|null",
  "keywords": ["keyword 1", "keyword 2"],
  "is_oil_related": true|false
}`, title, content, strings.Join(EventTypes, "|"))
}
