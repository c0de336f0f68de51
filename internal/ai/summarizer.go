package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/hcpcrm/internal/retry"
)

// The three outcome labels the classifier is prompted for.
const (
	OutcomeInterested     = "interested"
	OutcomeNotInterested  = "not interested"
	OutcomeFollowUpNeeded = "follow-up needed"
)

// Generator issues a single text completion. Implemented by Connector.
type Generator interface {
	Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error)
}

// Summarizer derives a factual summary and a coarse outcome label from
// interaction notes via two independent generation calls.
type Summarizer struct {
	generator Generator
	limiter   *rate.Limiter
	timeout   time.Duration
	retry     retry.Config
}

// NewSummarizer wraps a generator with a call timeout, a rate limiter, and
// retries for transient provider failures.
func NewSummarizer(generator Generator) *Summarizer {
	return &Summarizer{
		generator: generator,
		limiter:   rate.NewLimiter(rate.Limit(5), 10),
		timeout:   30 * time.Second,
		retry:     retry.GenerationConfig(),
	}
}

// Summarize produces a concise factual summary of the meeting notes.
func (s *Summarizer) Summarize(ctx context.Context, interactionType, notes string) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze the following %s notes and provide a concise, factual summary. "+
			"Focus on key discussion points, decisions made, concerns raised, and any action items. "+
			"Avoid generic or instructional responses. Notes:\n%s",
		orDefault(interactionType, "meeting"), notes,
	)

	completion, err := s.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	return strings.TrimSpace(completion), nil
}

// ClassifyOutcome asks for one of the three fixed labels and normalizes the
// completion against them. A completion that matches none of the labels
// falls back to "follow-up needed" rather than being stored verbatim.
func (s *Summarizer) ClassifyOutcome(ctx context.Context, notes string) (string, error) {
	prompt := fmt.Sprintf(
		"Based on these notes, classify the outcome as 'interested', 'not interested', or 'follow-up needed'. "+
			"Only return one of these three labels. Notes:\n%s",
		notes,
	)

	completion, err := s.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("outcome classification failed: %w", err)
	}

	outcome := NormalizeOutcome(completion)
	log.Debug().
		Str("raw", strings.TrimSpace(completion)).
		Str("outcome", outcome).
		Msg("Outcome classified")
	return outcome, nil
}

func (s *Summarizer) generate(ctx context.Context, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var completion string
	err := retry.Do(ctx, s.retry, func() error {
		out, err := s.generator.Call(ctx, prompt)
		if err != nil {
			return err
		}
		completion = out
		return nil
	})
	return completion, err
}

// NormalizeOutcome maps a free-form completion onto the label set. The
// order matters: "not interested" contains "interested".
func NormalizeOutcome(raw string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.Trim(cleaned, `"'.`)

	switch {
	case strings.Contains(cleaned, "not interested"):
		return OutcomeNotInterested
	case strings.Contains(cleaned, "follow"):
		return OutcomeFollowUpNeeded
	case strings.Contains(cleaned, "interested"):
		return OutcomeInterested
	default:
		return OutcomeFollowUpNeeded
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
