// Package dialog talks to the remote dialog service. One request, one
// response, no retries; the controller decides user-visible fallback.
package dialog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mateonavarro/clara/internal/history"
)

// CodeNetworkError covers transport failures, bad statuses and malformed
// bodies alike: from the controller's point of view they are one outcome.
const CodeNetworkError = "network_error"

// Reply is a successful exchange result.
type Reply struct {
	Message string
	Emotion *history.EmotionTag
	Action  string
}

// ExchangeError is the only error type Send returns.
type ExchangeError struct {
	Code string
	Err  error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("dialog exchange %s: %v", e.Code, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is an exchange failure.
func IsNetworkError(err error) bool {
	var ee *ExchangeError
	return errors.As(err, &ee) && ee.Code == CodeNetworkError
}

// Client posts user text to a fixed endpoint.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient builds a client with a bounded timeout. The source widget waited
// on the network forever; here a stuck call surfaces as network_error instead.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type exchangeRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type exchangeResponse struct {
	Message string `json:"message"`
	Emotion *struct {
		Detected   string  `json:"detected"`
		Confidence float64 `json:"confidence"`
		Emoji      string  `json:"emoji"`
	} `json:"emotion"`
	Action string `json:"action"`
}

func (c *Client) Send(ctx context.Context, sessionID, text string) (Reply, error) {
	payload, err := json.Marshal(exchangeRequest{Message: text, SessionID: sessionID})
	if err != nil {
		return Reply{}, &ExchangeError{Code: CodeNetworkError, Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, &ExchangeError{Code: CodeNetworkError, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Reply{}, &ExchangeError{Code: CodeNetworkError, Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Reply{}, &ExchangeError{
			Code: CodeNetworkError,
			Err:  fmt.Errorf("dialog service status %d: %s", res.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Reply{}, &ExchangeError{Code: CodeNetworkError, Err: fmt.Errorf("read response: %w", err)}
	}

	var parsed exchangeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Reply{}, &ExchangeError{Code: CodeNetworkError, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(parsed.Message) == "" {
		return Reply{}, &ExchangeError{Code: CodeNetworkError, Err: errors.New("response missing message")}
	}

	reply := Reply{
		Message: parsed.Message,
		Action:  strings.TrimSpace(parsed.Action),
	}
	if parsed.Emotion != nil && strings.TrimSpace(parsed.Emotion.Detected) != "" {
		reply.Emotion = &history.EmotionTag{
			Detected:   parsed.Emotion.Detected,
			Confidence: clampConfidence(parsed.Emotion.Confidence),
			Emoji:      parsed.Emotion.Emoji,
		}
	}
	return reply, nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
