package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribo-go/internal/config"
)

func testConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "test-model",
	}
}

func TestInvoke(t *testing.T) {
	var gotWire chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotWire); err != nil {
			t.Fatalf("decode wire request: %v", err)
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "こんにちは"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	got, err := client.Invoke(context.Background(), ChatRequest{
		System:    "あなたはメンターです",
		Messages:  []Message{{Role: "user", Content: "はじめまして"}},
		MaxTokens: 500,
	})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if got != "こんにちは" {
		t.Errorf("Invoke() = %q", got)
	}

	// system 指令は先頭メッセージとして送られる
	if len(gotWire.Messages) != 2 || gotWire.Messages[0].Role != "system" {
		t.Errorf("wire messages = %+v, want system first", gotWire.Messages)
	}
	if gotWire.Stream {
		t.Error("Invoke should not set stream")
	}
	if gotWire.MaxTokens == nil || *gotWire.MaxTokens != 500 {
		t.Errorf("MaxTokens = %v, want 500", gotWire.MaxTokens)
	}
}

func TestInvokeNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.Invoke(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})

	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("err = %v, want *InvocationError", err)
	}
	if invErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", invErr.Status)
	}
	if !strings.Contains(invErr.Body, "rate limited") {
		t.Errorf("Body = %q, should carry the response body", invErr.Body)
	}
}

func TestInvokeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var wire chatRequest
		json.NewDecoder(r.Body).Decode(&wire)
		if !wire.Stream {
			t.Error("InvokeStream should set stream=true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"choices":[{"delta":{"content":"なる"}}]}`,
			`: heartbeat comment`,
			`data: {"choices":[{"delta":{"content":"ほど"}}]}`,
			`data: {"choices":[{"delta":{"content":""}}]}`,
			`data: [DONE]`,
			`data: {"choices":[{"delta":{"content":"after done"}}]}`,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n\n"))
		}
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	ch, err := client.InvokeStream(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})
	if err != nil {
		t.Fatalf("InvokeStream() error: %v", err)
	}

	var got []string
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		got = append(got, chunk.Content)
	}
	want := []string{"なる", "ほど"}
	if len(got) != len(want) {
		t.Fatalf("chunks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInvokeStreamUpfrontFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL))
	_, err := client.InvokeStream(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}})

	var invErr *InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("err = %v, want *InvocationError before first chunk", err)
	}
	if invErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", invErr.Status)
	}
}

func TestBuildWireRequestFallsBackToConfig(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.Generation = config.LLMGenerationConfig{Temperature: 0.7, TopP: 0.9, MaxTokens: 2048}
	c := &openAIClient{cfg: cfg, client: http.DefaultClient}

	wire := c.buildWireRequest(ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}}, false)
	if wire.Temperature == nil || *wire.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want config default 0.7", wire.Temperature)
	}
	if wire.TopP == nil || *wire.TopP != 0.9 {
		t.Errorf("TopP = %v, want config default 0.9", wire.TopP)
	}
	if wire.MaxTokens == nil || *wire.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %v, want config default 2048", wire.MaxTokens)
	}

	// 明示的な指定は設定より優先される
	temp := 0.5
	wire = c.buildWireRequest(ChatRequest{
		Messages:    []Message{{Role: "user", Content: "x"}},
		Temperature: &temp,
		MaxTokens:   4000,
	}, true)
	if *wire.Temperature != 0.5 || *wire.MaxTokens != 4000 {
		t.Errorf("explicit params should win: temp=%v max=%v", *wire.Temperature, *wire.MaxTokens)
	}
	if !wire.Stream {
		t.Error("stream flag should be carried")
	}
}
