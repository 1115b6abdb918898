// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_ToolName(t *testing.T) {
	data, err := json.Marshal(Message{Role: "tool", Content: `{"success":true}`, ToolName: "update_diagram"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"tool_name":"update_diagram"`) {
		t.Errorf("encoded message %s lacks tool_name", data)
	}

	data, _ = json.Marshal(Message{Role: "user", Content: "x"})
	if strings.Contains(string(data), "tool_name") {
		t.Errorf("user message should omit tool_name, got %s", data)
	}
}

func TestChatResponse_TokensPerSecond(t *testing.T) {
	r := &ChatResponse{EvalCount: 100, EvalDuration: int64(2 * time.Second)}
	if got := r.TokensPerSecond(); got != 50 {
		t.Errorf("TokensPerSecond() = %v, want 50", got)
	}
	if got := (&ChatResponse{}).TokensPerSecond(); got != 0 {
		t.Errorf("TokensPerSecond() on zero duration = %v, want 0", got)
	}
}

// =============================================================================
// TOOL ARGUMENT TESTS
// =============================================================================

func TestToolArguments_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"object", `{"mermaid_code":"graph TD"}`, "graph TD", false},
		{"string encoded", `"{\"mermaid_code\":\"graph TD\"}"`, "graph TD", false},
		{"empty string", `""`, "", false},
		{"null", `null`, "", false},
		{"bad string", `"not json"`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args ToolArguments
			err := json.Unmarshal([]byte(tt.input), &args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal error = %v, wantErr %v", err, tt.wantErr)
			}
			got, _ := args["mermaid_code"].(string)
			if got != tt.want {
				t.Errorf("mermaid_code = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToolArguments_JSON(t *testing.T) {
	if got := ToolArguments(nil).JSON(); got != "{}" {
		t.Errorf("nil JSON() = %q, want {}", got)
	}
	got := ToolArguments{"d2_code": "a -> b"}.JSON()
	if got != `{"d2_code":"a -> b"}` {
		t.Errorf("JSON() = %q", got)
	}
}

// =============================================================================
// STREAM READER TESTS
// =============================================================================

func TestStreamReader_Process(t *testing.T) {
	stream := strings.Join([]string{
		`{"model":"m","message":{"role":"assistant","content":"Hel"},"done":false}`,
		``,
		`not json at all`,
		`{"model":"m","message":{"role":"assistant","content":"lo"},"done":false}`,
		`{"model":"m","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":3,"eval_count":2}`,
		`{"model":"m","message":{"role":"assistant","content":"ignored"},"done":false}`,
	}, "\n")

	reader := NewStreamReader(strings.NewReader(stream))
	acc := NewStreamAccumulator()
	if err := reader.Process(context.Background(), acc.Add); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if got := acc.Content(); got != "Hello" {
		t.Errorf("Content() = %q, want %q", got, "Hello")
	}
	if !acc.Done {
		t.Error("accumulator should be done")
	}
	if acc.PromptTokens != 3 || acc.CompletionTokens != 2 {
		t.Errorf("tokens = %d/%d, want 3/2", acc.PromptTokens, acc.CompletionTokens)
	}
}

func TestStreamAccumulator_TokensPerSecond(t *testing.T) {
	stream := `{"model":"m","message":{"content":"x"},"done":false}
{"model":"m","message":{"content":""},"done":true,"eval_count":100,"eval_duration":2000000000}
`
	acc := NewStreamAccumulator()
	if got := acc.TokensPerSecond(); got != 0 {
		t.Errorf("TokensPerSecond() before done = %v, want 0", got)
	}

	var models []string
	err := NewStreamReader(strings.NewReader(stream)).Process(context.Background(), func(c StreamChunk) {
		models = append(models, c.Model)
		acc.Add(c)
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := acc.TokensPerSecond(); got != 50 {
		t.Errorf("TokensPerSecond() = %v, want 50", got)
	}
	if acc.EvalDuration != 2*time.Second {
		t.Errorf("EvalDuration = %v, want 2s", acc.EvalDuration)
	}
	if len(models) != 2 || models[1] != "m" {
		t.Errorf("chunk models = %v", models)
	}
}

func TestStreamReader_ToolCalls(t *testing.T) {
	stream := `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"update_diagram","arguments":{"mermaid_code":"graph TD; A-->B"}}}]},"done":false}
{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"update_diagram","arguments":"{\"mermaid_code\":\"graph LR\"}"}}]},"done":false}
{"message":{"role":"assistant","content":""},"done":true}
`
	acc := NewStreamAccumulator()
	if err := NewStreamReader(strings.NewReader(stream)).Process(context.Background(), acc.Add); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	calls := acc.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("len(ToolCalls()) = %d, want 2", len(calls))
	}
	if calls[0].Function.Arguments["mermaid_code"] != "graph TD; A-->B" {
		t.Errorf("first call args = %v", calls[0].Function.Arguments)
	}
	if calls[1].Function.Arguments["mermaid_code"] != "graph LR" {
		t.Errorf("second call args = %v", calls[1].Function.Arguments)
	}
}

func TestStreamReader_NoTrailingNewline(t *testing.T) {
	stream := `{"message":{"content":"only"},"done":false}`
	acc := NewStreamAccumulator()
	if err := NewStreamReader(strings.NewReader(stream)).Process(context.Background(), acc.Add); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if got := acc.Content(); got != "only" {
		t.Errorf("Content() = %q, want 'only'", got)
	}
}

func TestStreamReader_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStreamReader(strings.NewReader(`{"done":true}`)).Process(ctx, func(StreamChunk) {})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// CLIENT TESTS
// =============================================================================

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithConfig(&ClientConfig{BaseURL: srv.URL})
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	cfg := NewClientWithConfig(&ClientConfig{}).config

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.DefaultModel != "gpt-oss:20b" {
		t.Errorf("DefaultModel = %q, want gpt-oss:20b", cfg.DefaultModel)
	}
	if cfg.HealthTimeout != 5*time.Second {
		t.Errorf("HealthTimeout = %v, want 5s", cfg.HealthTimeout)
	}
}

func TestCheckRunning(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "Ollama is running")
	})
	if err := c.CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning() error = %v", err)
	}
}

func TestCheckRunning_BadStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if err := c.CheckRunning(context.Background()); err == nil {
		t.Error("CheckRunning() should fail on 500")
	}
}

func TestCheckRunning_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClientWithConfig(&ClientConfig{BaseURL: url})
	err := c.CheckRunning(context.Background())
	if !IsNotRunning(err) {
		t.Errorf("CheckRunning() error = %v, want not running", err)
	}
}

func TestListModels(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
		io.WriteString(w, `{"models":[{"name":"gpt-oss:20b","size":42}]}`)
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 1 || models[0].Name != "gpt-oss:20b" {
		t.Errorf("models = %+v", models)
	}
}

func TestChatWithOptions(t *testing.T) {
	var got ChatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, `{"model":"gpt-oss:20b","message":{"role":"assistant","content":"[\"a\"]"},"done":true}`)
	})

	resp, err := c.ChatWithOptions(context.Background(), "", []Message{Message{Role: "user", Content: "x"}},
		&Options{Temperature: 0.3, NumCtx: 8192, NumPredict: 4096})
	if err != nil {
		t.Fatalf("ChatWithOptions() error = %v", err)
	}
	if resp.Message.Content != `["a"]` {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if got.Stream {
		t.Error("non-streaming request sent stream=true")
	}
	if got.Model != "gpt-oss:20b" {
		t.Errorf("Model = %q, want default model", got.Model)
	}
	if got.Options == nil || got.Options.NumCtx != 8192 || got.Options.NumPredict != 4096 {
		t.Errorf("Options = %+v", got.Options)
	}
}

func TestChatStreamWithTools(t *testing.T) {
	var got ChatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Here"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":" you go"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	})

	tools := []Tool{{Type: "function", Function: ToolSchema{Name: "update_diagram"}}}
	acc := NewStreamAccumulator()
	err := c.ChatStreamWithTools(context.Background(), "m", []Message{Message{Role: "user", Content: "x"}}, tools, acc.Add)
	if err != nil {
		t.Fatalf("ChatStreamWithTools() error = %v", err)
	}

	if !got.Stream {
		t.Error("streaming request sent stream=false")
	}
	if len(got.Tools) != 1 || got.Tools[0].Function.Name != "update_diagram" {
		t.Errorf("Tools = %+v", got.Tools)
	}
	if acc.Content() != "Here you go" {
		t.Errorf("Content() = %q", acc.Content())
	}
}

func TestChat_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		wantModel bool
	}{
		{"not found", http.StatusNotFound, `{"error":"model 'x' not found"}`, "Ollama API error: 404 Not Found - model 'x' not found", true},
		{"server error", http.StatusInternalServerError, ``, "Ollama API error: 500 Internal Server Error", false},
		{"rate limited", http.StatusTooManyRequests, ``, "Ollama API error: 429 Too Many Requests", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			err := c.ChatStreamWithTools(context.Background(), "x", nil, nil, func(StreamChunk) {})
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
			if IsModelNotFound(err) != tt.wantModel {
				t.Errorf("IsModelNotFound() = %v, want %v", IsModelNotFound(err), tt.wantModel)
			}
		})
	}
}

func TestChatStream_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.ChatStreamWithTools(ctx, "m", nil, nil, func(StreamChunk) {})
	if !IsTimeout(err) {
		t.Errorf("ChatStreamWithTools() error = %v, want timeout", err)
	}
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestClientError_Is(t *testing.T) {
	cause := errors.New("dial tcp: connect: connection refused")
	err := fmt.Errorf("chat: %w", &ClientError{Type: ErrTypeNotRunning, Message: "connection refused", Cause: cause})

	if !errors.Is(err, ErrNotRunning) {
		t.Error("errors.Is(err, ErrNotRunning) = false")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(err, ErrTimeout) = true")
	}
	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() = %q", err.Error())
	}
}
