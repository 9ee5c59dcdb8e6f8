package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/resilience"
	"relay-ai/internal/usecase"
)

const methodSendMessage = "message/send"

// Client invokes backend agents over JSON-RPC 2.0. It is stateless with
// respect to sessions: the orchestrator owns session bookkeeping, the
// client only forwards and returns ids.
type Client struct {
	baseURL    string
	http       *http.Client
	timeout    time.Duration
	retry      resilience.RetryConfig
	classifier *usecase.ErrorClassifier
	logger     *slog.Logger
}

// NewClient creates an invocation client from config.
func NewClient(cfg config.InvokeConfig, logger *slog.Logger) *Client {
	classifier := usecase.NewErrorClassifier()
	return &Client{
		baseURL: trimSlash(cfg.BaseURL),
		http: &http.Client{
			Transport: newPooledTransport(),
		},
		timeout: cfg.TimeoutDuration(),
		retry: resilience.RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialDelay:    cfg.InitialBackoffDuration(),
			MaxDelay:        cfg.MaxBackoffDuration(),
			Multiplier:      2.0,
			RandomizeFactor: 0.1,
			RetryIf:         classifier.IsRetryable,
		},
		classifier: classifier,
		logger:     logger,
	}
}

// newPooledTransport returns an http.Transport sized for a small number
// of backend hosts with high per-host concurrency.
func newPooledTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     120 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// Invoke sends one message to the agent and returns its reply. An empty
// sessionID asks the backend to allocate a new session; the id to reuse
// on the next turn is in the result. Transport failures and timeouts are
// retried with backoff up to the configured bound; a JSON-RPC error
// object is surfaced immediately.
func (c *Client) Invoke(ctx context.Context, agent domain.AgentRef, sessionID, userID, message string) (domain.InvocationResult, error) {
	start := time.Now()

	var reply, nextSessionID string
	err := resilience.Do(ctx, c.retry, func() error {
		var attemptErr error
		reply, nextSessionID, attemptErr = c.attempt(ctx, agent, sessionID, userID, message)
		return attemptErr
	})
	if err != nil {
		return domain.InvocationResult{Elapsed: time.Since(start)}, domain.WrapOp("a2a.invoke", err)
	}

	c.logger.Info("agent invocation successful",
		"agent", agent.String(),
		"elapsed", time.Since(start),
	)
	return domain.InvocationResult{
		Text:      reply,
		SessionID: nextSessionID,
		Elapsed:   time.Since(start),
		OK:        true,
	}, nil
}

// attempt performs a single bounded JSON-RPC exchange.
func (c *Client) attempt(ctx context.Context, agent domain.AgentRef, sessionID, userID, message string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      ulid.Make().String(),
		Method:  methodSendMessage,
		Params: sendParams{
			Message: messagePayload{
				Kind:      "message",
				Role:      "user",
				Parts:     []messagePart{{Kind: "text", Text: message}},
				ContextID: sessionID,
			},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/a2a/%s/%s/", c.baseURL, agent.Namespace, agent.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return "", "", fmt.Errorf("%w: agent %s did not answer within %s", domain.ErrTimeout, agent, c.timeout)
		}
		return "", "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", "", fmt.Errorf("%w: agent endpoint returned HTTP %d", domain.ErrTransport, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("%w: agent endpoint returned HTTP %d", domain.ErrRPC, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return "", "", fmt.Errorf("%w: malformed response: %v", domain.ErrTransport, err)
	}
	if rpcResp.Error != nil {
		return "", "", fmt.Errorf("%w: %s", domain.ErrRPC, rpcResp.Error.Error())
	}
	if rpcResp.Result == nil {
		return "", "", fmt.Errorf("%w: response has neither result nor error", domain.ErrTransport)
	}

	nextSessionID := rpcResp.Result.ContextID
	if nextSessionID == "" {
		nextSessionID = sessionID
	}
	return rpcResp.Result.replyText(), nextSessionID, nil
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

var _ domain.Invoker = (*Client)(nil)
