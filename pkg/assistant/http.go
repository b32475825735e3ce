package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	streamPath = "/chat/stream"
	sendPath   = "/chat"

	defaultTimeout = 120 * time.Second
)

// HTTPClient implements Client against the assistant service's HTTP API.
// Requests are single-shot: retry policy is left to callers.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the service at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// The transport timeout caps the whole exchange, so streaming
		// requests get no client timeout; the per-turn context bounds them.
		client: &http.Client{},
	}
}

// StreamTurn sends a turn and returns its event sequence.
func (c *HTTPClient) StreamTurn(ctx context.Context, req TurnRequest) (EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+streamPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, NewAssistantError(ErrorCodeTimeout, err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, c.handleErrorResponse(resp)
	}

	return &sseStream{reader: bufio.NewReader(resp.Body), closer: resp.Body}, nil
}

// SendTurn sends a turn and waits for the single-response answer.
func (c *HTTPClient) SendTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal turn request: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(sendCtx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, NewAssistantError(ErrorCodeTimeout, err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var turnResp TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turnResp); err != nil {
		return nil, NewAssistantError(ErrorCodeUnknown, "decode turn response: "+err.Error(), err)
	}
	return &turnResp, nil
}

func (c *HTTPClient) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	code := ErrorCodeUnknown
	switch resp.StatusCode {
	case http.StatusBadRequest:
		code = ErrorCodeInvalidRequest
	case http.StatusNotFound:
		code = ErrorCodeNotFound
	case http.StatusTooManyRequests:
		code = ErrorCodeRateLimit
	default:
		if resp.StatusCode >= 500 {
			code = ErrorCodeServerError
		}
	}

	var errBody struct {
		Error string `json:"error"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error != "" {
		message = errBody.Error
	}

	return &AssistantError{
		Code:        code,
		Message:     message,
		StatusCode:  resp.StatusCode,
		IsRetryable: code == ErrorCodeRateLimit || code == ErrorCodeServerError,
	}
}
