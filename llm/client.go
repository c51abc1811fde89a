package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lightartw/textanalyze/config"
	"github.com/lightartw/textanalyze/types"
)

var (
	_ Completer = &Client{}
)

const (
	// wait before retrying a rate limited or unavailable endpoint
	overloadBackoff = 2 * time.Second
	networkBackoff  = time.Second
)

// Client calls an OpenAI compatible chat completions endpoint.
type Client struct {
	cfg        config.LLMConfig
	endpoint   string
	httpClient *http.Client
}

func NewClient(cfg config.LLMConfig) *Client {
	return NewClientWithHTTP(cfg, &http.Client{})
}

func NewClientWithHTTP(cfg config.LLMConfig, httpClient *http.Client) *Client {
	return &Client{
		cfg:        cfg,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		httpClient: httpClient,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

/**
 * Complete posts the request and returns the content of the first choice.
 * Transport failures, timeouts, rate limits and server errors come back as
 * RetryError; a rejected request (bad key, bad model) is a FatalError since
 * repeating it can not help.
 */
func (c *Client) Complete(ctx context.Context, req *Request) (string, error) {
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	body, err := json.Marshal(&chatRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages(),
		Temperature: temperature,
	})
	if err != nil {
		return "", types.NewFatalError(errors.Annotatef(err, "failed to encode request"))
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", types.NewFatalError(errors.Annotatef(err, "failed to build request"))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", types.NewRetryError(errors.Annotatef(err, "llm call failed"), networkBackoff)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.NewRetryError(errors.Annotatef(err, "failed to read llm response"), networkBackoff)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return "", types.NewRetryErrorf(overloadBackoff, "llm endpoint returned %d: %s", resp.StatusCode, snippet(payload))
	case resp.StatusCode >= http.StatusBadRequest:
		return "", types.NewFatalErrorf("llm endpoint rejected the request with %d: %s", resp.StatusCode, snippet(payload))
	}

	var decoded chatResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", errors.Annotatef(err, "unexpected llm response %s", snippet(payload))
	}
	if len(decoded.Choices) == 0 {
		if decoded.Error != nil {
			return "", errors.Errorf("llm api error: %s", decoded.Error.Message)
		}
		return "", errors.Errorf("llm response has no choices: %s", snippet(payload))
	}
	log.WithFields(log.Fields{"agent": req.Agent, "usage": decoded.Usage}).Debug("llm call finished")
	return decoded.Choices[0].Message.Content, nil
}

func snippet(payload []byte) string {
	const max = 200
	s := strings.TrimSpace(string(payload))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
