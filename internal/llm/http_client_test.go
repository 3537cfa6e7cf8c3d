package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientRequiresConfig(t *testing.T) {
	if _, err := NewHTTPClient(HTTPConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewHTTPClient(HTTPConfig{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestHTTPClientCompleteReturnsContent(t *testing.T) {
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "SELECT 1"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, APIKey: "secret", Model: "m1"})
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}

	content, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
	}, Options{MaxTokens: 100, Temperature: 0.2, ForceJSON: true})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if content != "SELECT 1" {
		t.Fatalf("content = %q", content)
	}
	if gotPayload["model"] != "m1" {
		t.Fatalf("model = %v", gotPayload["model"])
	}
	if gotPayload["max_tokens"] != float64(100) {
		t.Fatalf("max_tokens = %v", gotPayload["max_tokens"])
	}
	if _, ok := gotPayload["response_format"]; !ok {
		t.Fatal("expected response_format in payload")
	}
}

func TestHTTPClientClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusInternalServerError, KindUnavailable},
		{http.StatusBadRequest, KindInvalidResponse},
	}
	for _, tc := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, APIKey: "k"})
		if err != nil {
			t.Fatalf("NewHTTPClient() error = %v", err)
		}
		_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "u"}}, Options{})
		server.Close()
		if err == nil {
			t.Fatalf("status %d: expected error", tc.status)
		}
		if got := KindOf(err); got != tc.want {
			t.Fatalf("status %d: kind = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func TestHTTPClientClassifiesInvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "u"}}, Options{})
	if got := KindOf(err); got != KindInvalidResponse {
		t.Fatalf("kind = %q, want %q", got, KindInvalidResponse)
	}
}

func TestHTTPClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, APIKey: "k", Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}
	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "u"}}, Options{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if got := KindOf(err); got != KindTimeout {
		t.Fatalf("kind = %q, want %q", got, KindTimeout)
	}
}

func TestHTTPClientCancellationIsNotWrapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only notices the client disconnect once the request body
		// has been consumed; without this drain, Close below blocks forever.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	client, err := NewHTTPClient(HTTPConfig{BaseURL: server.URL, APIKey: "k", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewHTTPClient() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = client.Complete(ctx, []Message{{Role: RoleUser, Content: "u"}}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestKindOfUnknownErrorIsUnavailable(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindUnavailable {
		t.Fatalf("kind = %q", got)
	}
}
