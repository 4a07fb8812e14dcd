package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newAnthropicTestClient(url string) *AnthropicClient {
	return NewAnthropicClientWithConfig(AnthropicConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
	})
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"hello there"}],"usage":{"input_tokens":5,"output_tokens":3}}`)
	}))
	defer server.Close()

	client := newAnthropicTestClient(server.URL)
	result, err := client.Complete(context.Background(), "hi", 256)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result != "hello there" {
		t.Errorf("expected 'hello there', got %q", result)
	}
}

func TestAnthropicRetryOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"recovered"}]}`)
	}))
	defer server.Close()

	client := newAnthropicTestClient(server.URL)
	result, err := client.Complete(context.Background(), "hi", 256)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result != "recovered" {
		t.Errorf("expected 'recovered', got %q", result)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestAnthropicAuthErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newAnthropicTestClient(server.URL)
	_, err := client.Complete(context.Background(), "hi", 256)
	if !errors.Is(err, ErrAuth) {
		t.Errorf("expected ErrAuth, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth failures should not retry, got %d calls", calls.Load())
	}
}

func TestAnthropicMissingKey(t *testing.T) {
	client := NewAnthropicClient("")
	_, err := client.Complete(context.Background(), "hi", 256)
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestAnthropicTimeoutClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"content":[{"type":"text","text":"late"}]}`)
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
		Timeout: 50 * time.Millisecond,
	})

	_, err := client.Complete(context.Background(), "hi", 256)
	if !IsTimeout(err) {
		t.Errorf("expected timeout error, got %v", err)
	}
}

func TestZAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing bearer token")
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"zai reply"}}]}`)
	}))
	defer server.Close()

	client := NewZAIClientWithConfig(ZAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "GLM-4.6",
		Timeout: 5 * time.Second,
	})

	result, err := client.Complete(context.Background(), "hi", 256)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if result != "zai reply" {
		t.Errorf("expected 'zai reply', got %q", result)
	}
}

// mockClient lets tests inject completion behavior.
type mockClient struct {
	completeFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)
	calls        []string
}

func (m *mockClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.calls = append(m.calls, prompt)
	return m.completeFunc(ctx, prompt, maxTokens)
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	return m.Complete(ctx, prompt, maxTokens)
}

func TestShrinkRetryOnTimeout(t *testing.T) {
	longPrompt := strings.Repeat("x", 6000)

	first := true
	mock := &mockClient{
		completeFunc: func(ctx context.Context, prompt string, maxTokens int) (string, error) {
			if first {
				first = false
				return "", fmt.Errorf("%w: deadline", ErrTimeout)
			}
			return "shrunk ok", nil
		},
	}

	result, err := CompleteWithShrinkRetry(context.Background(), mock, longPrompt, 256, DefaultShrinkRetryOptions())
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if result != "shrunk ok" {
		t.Errorf("unexpected result %q", result)
	}
	if len(mock.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(mock.calls))
	}
	kept := strings.Count(mock.calls[1], "x")
	if kept != int(6000*0.7) {
		t.Errorf("expected 70%% of the prompt kept, got %d chars", kept)
	}
	if !strings.Contains(mock.calls[1], "已被截断") {
		t.Error("retry prompt should carry the truncation notice")
	}
}

func TestShrinkRetrySkipsShortPrompts(t *testing.T) {
	mock := &mockClient{
		completeFunc: func(ctx context.Context, prompt string, maxTokens int) (string, error) {
			return "", fmt.Errorf("%w: deadline", ErrTimeout)
		},
	}

	_, err := CompleteWithShrinkRetry(context.Background(), mock, "short prompt", 256, DefaultShrinkRetryOptions())
	if !IsTimeout(err) {
		t.Errorf("expected timeout error, got %v", err)
	}
	if len(mock.calls) != 1 {
		t.Errorf("short prompts should not retry, got %d calls", len(mock.calls))
	}
}

func TestShrinkRetryFreshDeadlinePerAttempt(t *testing.T) {
	longPrompt := strings.Repeat("需", 6000)

	first := true
	mock := &mockClient{
		completeFunc: func(ctx context.Context, prompt string, maxTokens int) (string, error) {
			if first {
				first = false
				<-ctx.Done()
				return "", classifyTransportError(ctx.Err())
			}
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Error("retry attempt should carry its own deadline")
			} else if time.Until(deadline) <= 0 {
				t.Errorf("retry attempt started with a spent deadline (%v remaining)", time.Until(deadline))
			}
			return "shrunk ok", nil
		},
	}

	opts := ShrinkRetryOptions{Threshold: 5000, Ratio: 0.7, AttemptTimeout: 50 * time.Millisecond}
	result, err := CompleteWithShrinkRetry(context.Background(), mock, longPrompt, 256, opts)
	if err != nil {
		t.Fatalf("expected recovery after the first attempt timed out, got %v", err)
	}
	if result != "shrunk ok" {
		t.Errorf("unexpected result %q", result)
	}
	if len(mock.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(mock.calls))
	}
}

func TestShrinkRetryThresholdCountsRunes(t *testing.T) {
	// 2000 runes but 6000 bytes; stays under the 5000-rune threshold
	prompt := strings.Repeat("需", 2000)

	mock := &mockClient{
		completeFunc: func(ctx context.Context, prompt string, maxTokens int) (string, error) {
			return "", fmt.Errorf("%w: deadline", ErrTimeout)
		},
	}

	_, err := CompleteWithShrinkRetry(context.Background(), mock, prompt, 256, DefaultShrinkRetryOptions())
	if !IsTimeout(err) {
		t.Errorf("expected timeout error, got %v", err)
	}
	if len(mock.calls) != 1 {
		t.Errorf("prompts under the rune threshold should not retry, got %d calls", len(mock.calls))
	}
}

func TestShrinkRetryNonTimeoutPassthrough(t *testing.T) {
	mock := &mockClient{
		completeFunc: func(ctx context.Context, prompt string, maxTokens int) (string, error) {
			return "", errors.New("boom")
		},
	}

	_, err := CompleteWithShrinkRetry(context.Background(), mock, strings.Repeat("x", 6000), 256, DefaultShrinkRetryOptions())
	if err == nil || IsTimeout(err) {
		t.Errorf("expected passthrough error, got %v", err)
	}
	if len(mock.calls) != 1 {
		t.Errorf("non-timeout errors should not retry, got %d calls", len(mock.calls))
	}
}
