package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"relay-ai/internal/domain"
	"relay-ai/internal/infra/config"
	"relay-ai/internal/infra/logger"
)

func testInvokeConfig(baseURL string) config.InvokeConfig {
	return config.InvokeConfig{
		BaseURL:        baseURL,
		Timeout:        "200ms",
		MaxRetries:     2,
		InitialBackoff: "1ms",
		MaxBackoff:     "5ms",
	}
}

func taskResponse(contextID, reply string) string {
	resp := map[string]any{
		"jsonrpc": "2.0",
		"id":      "1",
		"result": map[string]any{
			"context_id": contextID,
			"history": []map[string]any{
				{"kind": "message", "role": "user", "parts": []map[string]any{{"kind": "text", "text": "question"}}},
				{"kind": "message", "role": "agent", "parts": []map[string]any{{"kind": "text", "text": reply}}},
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestClientInvokeSuccess(t *testing.T) {
	var gotPath, gotUserID string
	var gotBody rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUserID = r.Header.Get("X-User-Id")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, taskResponse("s1", "3 pods are pending"))
	}))
	defer srv.Close()

	client := NewClient(testInvokeConfig(srv.URL), logger.Discard())
	agent := domain.AgentRef{Namespace: "kagent", Name: "k8s-agent"}

	res, err := client.Invoke(context.Background(), agent, "", "U7", "why are my pods pending?")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !res.OK {
		t.Error("result not OK")
	}
	if res.Text != "3 pods are pending" {
		t.Errorf("text = %q", res.Text)
	}
	if res.SessionID != "s1" {
		t.Errorf("session id = %q", res.SessionID)
	}

	if gotPath != "/api/a2a/kagent/k8s-agent/" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUserID != "U7" {
		t.Errorf("X-User-Id = %q", gotUserID)
	}
	if gotBody.JSONRPC != "2.0" || gotBody.Method != "message/send" {
		t.Errorf("envelope = %+v", gotBody)
	}
	if gotBody.ID == "" {
		t.Error("request id empty")
	}
	msg := gotBody.Params.Message
	if msg.Kind != "message" || msg.Role != "user" {
		t.Errorf("message = %+v", msg)
	}
	if len(msg.Parts) != 1 || msg.Parts[0].Text != "why are my pods pending?" {
		t.Errorf("parts = %+v", msg.Parts)
	}
	if msg.ContextID != "" {
		t.Errorf("first turn carried context id %q", msg.ContextID)
	}
}

func TestClientForwardsSessionID(t *testing.T) {
	var gotContextID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		gotContextID = req.Params.Message.ContextID
		io.WriteString(w, taskResponse("s1", "ok"))
	}))
	defer srv.Close()

	client := NewClient(testInvokeConfig(srv.URL), logger.Discard())
	agent := domain.AgentRef{Namespace: "kagent", Name: "k8s-agent"}

	if _, err := client.Invoke(context.Background(), agent, "s1", "U7", "follow-up"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if gotContextID != "s1" {
		t.Errorf("context id = %q, want s1", gotContextID)
	}
}

func TestClientSessionIDFallsBackToSubmitted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, taskResponse("", "ok"))
	}))
	defer srv.Close()

	client := NewClient(testInvokeConfig(srv.URL), logger.Discard())
	agent := domain.AgentRef{Namespace: "kagent", Name: "k8s-agent"}

	res, err := client.Invoke(context.Background(), agent, "s-old", "U7", "hi")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.SessionID != "s-old" {
		t.Errorf("session id = %q, want s-old", res.SessionID)
	}
}

func TestClientRPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{"jsonrpc":"2.0","id":"1","error":{"code":-32000,"message":"agent exploded"}}`)
	}))
	defer srv.Close()

	client := NewClient(testInvokeConfig(srv.URL), logger.Discard())
	agent := domain.AgentRef{Namespace: "kagent", Name: "k8s-agent"}

	_, err := client.Invoke(context.Background(), agent, "", "U7", "hi")
	if !errors.Is(err, domain.ErrRPC) {
		t.Fatalf("err = %v, want ErrRPC", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, rpc errors must not be retried", calls.Load())
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		io.WriteString(w, taskResponse("s1", "recovered"))
	}))
	defer srv.Close()

	client := NewClient(testInvokeConfig(srv.URL), logger.Discard())
	agent := domain.AgentRef{Namespace: "kagent", Name: "k8s-agent"}

	res, err := client.Invoke(context.Background(), agent, "", "U7", "hi")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Text != "recovered" {
		t.Errorf("text = %q", res.Text)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(time.Second)
		io.WriteString(w, taskResponse("s1", "too late"))
	}))
	defer srv.Close()

	cfg := testInvokeConfig(srv.URL)
	cfg.Timeout = "50ms"
	cfg.MaxRetries = 1
	client := NewClient(cfg, logger.Discard())
	agent := domain.AgentRef{Namespace: "kagent", Name: "k8s-agent"}

	start := time.Now()
	_, err := client.Invoke(context.Background(), agent, "", "U7", "hi")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("took %v, per-attempt timeout not applied", elapsed)
	}
}

func TestClientHTTPClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such agent", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testInvokeConfig(srv.URL), logger.Discard())
	agent := domain.AgentRef{Namespace: "kagent", Name: "missing"}

	_, err := client.Invoke(context.Background(), agent, "", "U7", "hi")
	if !errors.Is(err, domain.ErrRPC) {
		t.Fatalf("err = %v, want ErrRPC for 4xx", err)
	}
}

func TestReplyTextFallsBackToStatusMessage(t *testing.T) {
	task := &taskResult{
		Status: taskStatus{
			State:   "completed",
			Message: &messagePayload{Parts: []messagePart{{Kind: "text", Text: "from status"}}},
		},
	}
	if got := task.replyText(); got != "from status" {
		t.Errorf("replyText = %q", got)
	}
}

func TestReplyTextSkipsUserMessages(t *testing.T) {
	task := &taskResult{
		History: []messagePayload{
			{Role: "agent", Parts: []messagePart{{Kind: "text", Text: "earlier answer"}}},
			{Role: "user", Parts: []messagePart{{Kind: "text", Text: "latest question"}}},
		},
	}
	if got := task.replyText(); got != "earlier answer" {
		t.Errorf("replyText = %q", got)
	}
}
