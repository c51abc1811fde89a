package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat completion call made on behalf of an agent.
type Request struct {
	// Agent names the caller, the mock completer answers per agent.
	Agent  string
	System string
	Prompt string

	// a nil Temperature and a zero Timeout fall back to the completer's
	// configuration, so 0 stays a valid temperature
	Temperature *float64
	Timeout     time.Duration
}

func (r *Request) Messages() []Message {
	messages := make([]Message, 0, 2)
	if r.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: r.System})
	}
	return append(messages, Message{Role: RoleUser, Content: r.Prompt})
}

// Completer returns the raw text the model answered with.
type Completer interface {
	Complete(ctx context.Context, req *Request) (string, error)
}

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

/**
 * ParseJSON extracts a JSON object from free model output. It tries the
 * whole text, then the first fenced code block, then the substring from the
 * first '{' to the last '}'. Text that holds no object yields an empty map.
 */
func ParseJSON(text string) map[string]any {
	if parsed, ok := decodeObject(text); ok {
		return parsed
	}
	if match := fencedBlock.FindStringSubmatch(text); match != nil {
		if parsed, ok := decodeObject(match[1]); ok {
			return parsed
		}
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if parsed, ok := decodeObject(text[start : end+1]); ok {
			return parsed
		}
	}
	return map[string]any{}
}

func decodeObject(text string) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil || parsed == nil {
		return nil, false
	}
	return parsed, true
}
