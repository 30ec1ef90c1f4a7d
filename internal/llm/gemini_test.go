package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...GeminiOption) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewGeminiClient("k-test", "gemini-test", 5*time.Second, append([]GeminiOption{WithBaseURL(srv.URL + "/")}, opts...)...)
	if err != nil {
		t.Fatalf("NewGeminiClient: %v", err)
	}
	return c
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	if _, err := NewGeminiClient("  ", "m", 0); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestComplete_RecordsSpan(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"[]"}]}}]}`)
	})
	if _, err := c.Complete(context.Background(), "p"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	ended := rec.Ended()
	if len(ended) != 1 || ended[0].Name() != "gemini.generateContent" {
		t.Fatalf("spans = %d", len(ended))
	}
	if got := ended[0].InstrumentationScope().Name; got != "ideagen/llm" {
		t.Fatalf("scope = %q; want ideagen/llm", got)
	}
}

func TestComplete_RequestShapeAndReply(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"[{\"idea\":"},{"text":"\"x\"}]"}]},"finishReason":"STOP"}]}`)
	}, WithTemperature(0.5))

	out, err := c.Complete(context.Background(), "give me ideas")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `[{"idea":"x"}]` {
		t.Fatalf("reply text = %q", out)
	}
	if gotPath != "/v1beta/models/gemini-test:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "k-test" {
		t.Fatalf("api key header = %q", gotKey)
	}
	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if parts[0].(map[string]any)["text"] != "give me ideas" {
		t.Fatalf("prompt not sent as the single text part: %#v", gotBody)
	}
	if gotBody["generationConfig"].(map[string]any)["temperature"].(float64) != 0.5 {
		t.Fatalf("temperature missing: %#v", gotBody)
	}
}

func TestComplete_Non200IsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	})
	_, err := c.Complete(context.Background(), "p")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.Message != "quota exhausted" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestComplete_Non200PlainBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	_, err := c.Complete(context.Background(), "p")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway || !strings.Contains(apiErr.Message, "upstream down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestComplete_EmptyCandidates(t *testing.T) {
	cases := map[string]string{
		"none":    `{"candidates":[]}`,
		"blocked": `{"promptFeedback":{"blockReason":"SAFETY"}}`,
		"no text": `{"candidates":[{"content":{"parts":[]}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			if _, err := c.Complete(context.Background(), "p"); !errors.Is(err, ErrNoCandidates) {
				t.Fatalf("expected ErrNoCandidates, got %v", err)
			}
		})
	}
}

func TestComplete_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	})
	_, err := c.Complete(context.Background(), "p")
	var apiErr *APIError
	if err == nil || errors.As(err, &apiErr) {
		t.Fatalf("expected a decode error, got %v", err)
	}
}

func TestComplete_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Complete(ctx, "p"); err == nil {
		t.Fatalf("expected an error for a canceled context")
	}
}

func TestAPIError_Message(t *testing.T) {
	e := &APIError{Status: 500, Message: "boom"}
	if !strings.Contains(e.Error(), "500") || !strings.Contains(e.Error(), "boom") {
		t.Fatalf("Error() = %q", e.Error())
	}
}
