// Package summarize generates TL;DR summaries for posts through OpenAI's
// chat completion API.
//
// The summarizer is an opaque capability from the caller's point of view:
// title and body in, short text out. Transient provider failures are retried
// with bounded exponential backoff; everything else surfaces immediately.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"github.com/subfeed/subfeed/internal/apierr"
)

const (
	// NoContentMessage is returned for empty or whitespace-only bodies
	// without calling the provider.
	NoContentMessage = "No content to summarize."

	// FallbackMessage replaces a summary when the provider call ultimately
	// fails; batch enhancement degrades per post instead of failing.
	FallbackMessage = "Unable to generate summary."

	// maxBodyChars bounds the body submitted to the provider; longer bodies
	// are truncated with an ellipsis.
	maxBodyChars = 6000

	// systemPrompt steers the model toward short summaries.
	systemPrompt = "You are a helpful assistant that creates concise TL;DR " +
		"summaries of Reddit posts. Keep your summary to 4 sentences."

	defaultModel           = openai.GPT3Dot5Turbo
	defaultMaxOutputTokens = 500
	defaultTemperature     = 0.4

	// Retry policy: transient provider failures only, never rate-limit
	// storms of our own making.
	defaultMaxRetries = 3
	defaultBaseDelay  = 1 * time.Second
	defaultMaxDelay   = 30 * time.Second
)

// Summarizer produces a short summary for a post.
type Summarizer interface {
	Summarize(ctx context.Context, title, body string) (string, error)
}

// chatCompleter abstracts the OpenAI client for testing.
// *openai.Client satisfies it.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Compile-time interface compliance checks.
var (
	_ Summarizer    = (*OpenAISummarizer)(nil)
	_ chatCompleter = (*openai.Client)(nil)
)

// OpenAISummarizer implements Summarizer on OpenAI chat completions.
type OpenAISummarizer struct {
	client     chatCompleter
	model      string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option configures an OpenAISummarizer.
type Option func(*OpenAISummarizer)

// WithModel sets the chat completion model.
func WithModel(model string) Option {
	return func(s *OpenAISummarizer) {
		if model != "" {
			s.model = model
		}
	}
}

// WithMaxRetries sets the maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(s *OpenAISummarizer) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryDelays sets the base and max delays for exponential backoff.
func WithRetryDelays(base, max time.Duration) Option {
	return func(s *OpenAISummarizer) {
		if base > 0 {
			s.baseDelay = base
		}
		if max > 0 {
			s.maxDelay = max
		}
	}
}

// NewOpenAISummarizer creates an OpenAISummarizer around an OpenAI client.
func NewOpenAISummarizer(client chatCompleter, opts ...Option) *OpenAISummarizer {
	s := &OpenAISummarizer{
		client:     client,
		model:      defaultModel,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize produces a TL;DR for the given post content.
// Empty or whitespace-only bodies short-circuit to NoContentMessage without
// touching the provider.
func (s *OpenAISummarizer) Summarize(ctx context.Context, title, body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return NoContentMessage, nil
	}

	body = truncate(body, maxBodyChars)

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   defaultMaxOutputTokens,
		Temperature: defaultTemperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Title: %s\n\nContent: %s\n\nWrite a TL;DR:", title, body),
			},
		},
	}

	backoff := apierr.Backoff{
		MaxRetries: s.maxRetries,
		Base:       s.baseDelay,
		Cap:        s.maxDelay,
	}
	return apierr.RetryWithBackoff(ctx, backoff, func() (string, error) {
		resp, err := s.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return "", classifyProviderError(err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no response from provider")
		}
		return stripPrefix(resp.Choices[0].Message.Content), nil
	}, apierr.Retryable)
}

// truncate cuts s to at most n runes, appending an ellipsis when it does.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// stripPrefix removes a leading "TL;DR:" the model sometimes includes.
func stripPrefix(summary string) string {
	summary = strings.TrimSpace(summary)
	if strings.HasPrefix(strings.ToLower(summary), "tl;dr:") {
		summary = strings.TrimSpace(summary[len("tl;dr:"):])
	}
	return summary
}

// classifyProviderError maps OpenAI API errors to apierr sentinels.
func classifyProviderError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			// Distinguish a temporary rate limit from an exhausted quota
			// (billing issue, pointless to retry).
			if strings.Contains(apiErr.Message, "quota") ||
				strings.Contains(apiErr.Message, "billing") {
				return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
			}
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrRateLimit)
		case 401, 403:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrAuthFailed)
		case 402:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrQuotaExceeded)
		case 408, 500, 502, 503, 504:
			return fmt.Errorf("%s: %w", apiErr.Message, apierr.ErrTimeout)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}
