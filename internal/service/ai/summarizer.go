package ai

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"
)

// maxInputRunes caps the article text sent to the model.
const maxInputRunes = 12000

var ErrNoContent = errors.New("no content to summarize")

// Summarizer produces short markdown summaries of feed entries through a
// rate-limited provider.
type Summarizer struct {
	provider Provider
	limiter  *RateLimiter
	language string
}

func NewSummarizer(provider Provider, limiter *RateLimiter, language string) *Summarizer {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit)
	}
	if language == "" {
		language = "en-US"
	}
	return &Summarizer{provider: provider, limiter: limiter, language: language}
}

// Summarize converts htmlContent to text and asks the provider for a summary.
func (s *Summarizer) Summarize(ctx context.Context, title, htmlContent string) (string, error) {
	text := HTMLToText(htmlContent)
	if text == "" {
		text = strings.TrimSpace(title)
	}
	if text == "" {
		return "", ErrNoContent
	}
	if utf8.RuneCountInString(text) > maxInputRunes {
		text = string([]rune(text)[:maxInputRunes])
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	out, err := s.provider.Complete(ctx, SummaryPrompt(title, s.language), WrapInput(text))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
