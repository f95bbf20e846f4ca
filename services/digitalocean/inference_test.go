package digitalocean

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestInferenceServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *InferenceClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewInferenceClient(InferenceConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	// No pacing delay in tests
	client.limiter.minInterval = 0
	return server, client
}

func TestSimpleCompletion(t *testing.T) {
	var gotReq InferenceRequest
	_, client := newTestInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)

		json.NewEncoder(w).Encode(InferenceResponse{
			Choices: []InferenceChoice{
				{Message: InferenceMessage{Role: "assistant", Content: "hello"}},
			},
		})
	})

	got, err := client.SimpleCompletion(context.Background(), "system prompt", "user prompt",
		WithInferenceMaxTokens(128),
		WithInferenceTemperature(0),
		WithResponseFormatJSON())
	if err != nil {
		t.Fatalf("SimpleCompletion failed: %v", err)
	}
	if got != "hello" {
		t.Errorf("content = %q, want hello", got)
	}

	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", gotReq.Messages)
	}
	if gotReq.MaxTokens != 128 {
		t.Errorf("max_tokens = %d, want 128", gotReq.MaxTokens)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v, want json_object", gotReq.ResponseFormat)
	}
}

func TestSimpleCompletionRateLimitedStatus(t *testing.T) {
	_, client := newTestInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "rate limited"}`))
	})
	before := client.limiter.refillRate

	_, err := client.SimpleCompletion(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Errorf("error %q should carry the status code so retry gating can classify it", err)
	}
	if client.limiter.refillRate >= before {
		t.Errorf("refill rate %v not reduced from %v after a 429", client.limiter.refillRate, before)
	}
}

func TestSimpleCompletionNoChoices(t *testing.T) {
	_, client := newTestInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(InferenceResponse{})
	})

	if _, err := client.SimpleCompletion(context.Background(), "s", "u"); err == nil {
		t.Error("expected error for empty choices")
	}
}
