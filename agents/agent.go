package agents

import (
	"context"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/lightartw/textanalyze/llm"
	"github.com/lightartw/textanalyze/types"
	"github.com/lightartw/textanalyze/utils"
)

// EventTypes are the categories the classifier may assign.
var EventTypes = []string{
	"geopolitical",
	"macro",
	"sentiment",
	"weather",
	"inventory",
	"policy",
	"technology",
	"other",
}

func IsEventType(name string) bool {
	for _, t := range EventTypes {
		if t == name {
			return true
		}
	}
	return false
}

/**
 * Agent runs one analysis step: it renders a prompt from the input fields,
 * asks the model, and normalises the parsed answer into the fields it adds
 * to the pipeline context. Errors of the completer are passed on unchanged
 * in kind, so the node decides whether to retry; missing input is fatal.
 */
type Agent interface {
	Name() string
	Execute(ctx context.Context, input types.Data) (types.Data, error)
}

type base struct {
	name        string
	system      string
	completer   llm.Completer
	temperature float64
	timeout     time.Duration
	maxContent  int
}

func (b *base) Name() string {
	return b.name
}

func (b *base) ask(ctx context.Context, prompt string) (map[string]any, error) {
	temperature := b.temperature
	text, err := b.completer.Complete(ctx, &llm.Request{
		Agent:       b.name,
		System:      b.system,
		Prompt:      prompt,
		Temperature: &temperature,
		Timeout:     b.timeout,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "%s", b.name)
	}
	parsed := llm.ParseJSON(text)
	if len(parsed) == 0 {
		log.WithField("agent", b.name).Warnf("no JSON object in answer: %.80q", text)
	}
	return parsed, nil
}

// content returns the article text cut to the configured length.
func (b *base) content(input types.Data) string {
	content, _ := input.GetString("content")
	return truncate(content, b.maxContent)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func missingInput(agent, what string) error {
	return types.NewFatalError(errors.BadRequestf("%s: %s", agent, what))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// number reads a numeric answer field, def is used when the field is absent.
func number(parsed map[string]any, key string, def float64) (float64, error) {
	v, exists := parsed[key]
	if !exists || v == nil {
		return def, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, errors.NotValidf("%s %v", key, v)
	}
	return f, nil
}

func stringList(v any) []string {
	list := cast.ToStringSlice(v)
	if list == nil {
		return []string{}
	}
	return utils.UniqueSlice(list)
}

func objectOr(v any, def map[string]any) any {
	if v == nil {
		return def
	}
	return v
}
