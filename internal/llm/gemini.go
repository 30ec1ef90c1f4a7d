// Package llm is the dispatch layer for the text-generation service.
//
// It exposes a minimal Model interface (prompt in, reply text out) and a
// Gemini implementation on the google.golang.org/genai SDK. Retry, quota and
// throttling live one layer up; this package performs exactly one request per
// call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"github.com/tbourn/go-idea-generator/internal/observability"
)

// apiVersion is the Generative Language API version the client targets.
const apiVersion = "v1beta"

var (
	// ErrMissingAPIKey is returned by NewGeminiClient when no key is given.
	ErrMissingAPIKey = errors.New("llm: api key is required")
	// ErrNoCandidates is returned when a successful reply carries no text.
	ErrNoCandidates = errors.New("llm: reply has no candidates")
)

// APIError is an error status returned by the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: api error (status %d): %s", e.Status, e.Message)
}

// Model sends one prompt and returns the reply text.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiOption configures a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithBaseURL overrides the API root (proxies, tests).
func WithBaseURL(u string) GeminiOption {
	return func(c *GeminiClient) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) GeminiOption {
	return func(c *GeminiClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GeminiOption {
	return func(c *GeminiClient) {
		v := float32(t)
		c.temperature = &v
	}
}

// GeminiClient calls models.generateContent through a genai.Client.
type GeminiClient struct {
	model       string
	baseURL     string
	temperature *float32
	httpClient  *http.Client
	client      *genai.Client
}

// NewGeminiClient returns a client for model. timeout bounds each request.
func NewGeminiClient(apiKey, model string, timeout time.Duration, opts ...GeminiOption) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &GeminiClient{
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}

	gc, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    c.baseURL,
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: new genai client: %w", err)
	}
	c.client = gc
	return c, nil
}

// Complete sends prompt as a single user turn and returns the concatenated
// text parts of the first candidate.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := observability.Tracer("llm").Start(ctx, "gemini.generateContent")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.model))

	text, err := c.complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.reply_bytes", len(text)))
	return text, nil
}

func (c *GeminiClient) complete(ctx context.Context, prompt string) (string, error) {
	var cfg *genai.GenerateContentConfig
	if c.temperature != nil {
		cfg = &genai.GenerateContentConfig{Temperature: c.temperature}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		if apiErr := asAPIError(err); apiErr != nil {
			return "", apiErr
		}
		return "", fmt.Errorf("llm: call gemini: %w", err)
	}
	return replyText(resp)
}

// asAPIError maps a genai status error onto APIError, or returns nil.
func asAPIError(err error) *APIError {
	var val genai.APIError
	if errors.As(err, &val) {
		return &APIError{Status: val.Code, Message: strings.TrimSpace(val.Message)}
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return &APIError{Status: ptr.Code, Message: strings.TrimSpace(ptr.Message)}
	}
	return nil
}

func replyText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: blocked (%s)", ErrNoCandidates, resp.PromptFeedback.BlockReason)
		}
		return "", ErrNoCandidates
	}

	var sb strings.Builder
	if content := resp.Candidates[0].Content; content != nil {
		for _, p := range content.Parts {
			if p != nil {
				sb.WriteString(p.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return "", ErrNoCandidates
	}
	return sb.String(), nil
}
