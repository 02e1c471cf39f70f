package marking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/nbmark/nbmark/pkg/ai"
)

// DefaultPlaceholderLimit is the code length under which a marker phrase
// counts as placeholder code. Inherited from the original rubric tooling;
// not yet calibrated against real grading data.
const DefaultPlaceholderLimit = 50

// placeholderPhrases mark a submission as a stub when the code body is short.
var placeholderPhrases = []string{
	"your code here",
	"your solution here",
	"todo",
	"implement this",
	"raise notimplementederror",
}

// EvaluatorConfig carries the retry and pre-check knobs of the criterion
// evaluator.
type EvaluatorConfig struct {
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	PlaceholderLimit int
}

func (c *EvaluatorConfig) applyDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = time.Minute
	}
	if c.PlaceholderLimit <= 0 {
		c.PlaceholderLimit = DefaultPlaceholderLimit
	}
}

// CriterionEvaluator scores one (code, criterion) pair at a time. It never
// returns a Go error: every failure mode resolves into an EvaluationResult
// carrying an error code, so a batch run cannot be crashed by a single
// criterion.
type CriterionEvaluator struct {
	scorers ai.ScorerFactory
	cfg     EvaluatorConfig
	logger  zerolog.Logger
}

// NewCriterionEvaluator constructs an evaluator backed by the given scorer
// factory.
func NewCriterionEvaluator(scorers ai.ScorerFactory, cfg EvaluatorConfig, logger zerolog.Logger) *CriterionEvaluator {
	cfg.applyDefaults()
	return &CriterionEvaluator{
		scorers: scorers,
		cfg:     cfg,
		logger:  logger.With().Str("component", "criterion_evaluator").Logger(),
	}
}

// Evaluate produces exactly one EvaluationResult for the given inputs.
// Pre-checks run in a fixed order and short-circuit on the first match; only
// code that survives them reaches the oracle.
func (e *CriterionEvaluator) Evaluate(ctx context.Context, code, taskDescription, criterion string, maxPoints int) EvaluationResult {
	if strings.TrimSpace(code) == "" {
		e.logger.Warn().Msg("empty code provided for evaluation")
		return EvaluationResult{Score: 0, Confidence: 1.0, RawResponse: "Empty code", Err: ErrCodeEmptyCode}
	}

	if strings.TrimSpace(criterion) == "" {
		e.logger.Error().Msg("empty criterion provided for evaluation")
		return EvaluationResult{Score: 0, Confidence: 0.0, Err: ErrCodeEmptyCriterion}
	}

	if maxPoints <= 0 {
		e.logger.Error().Int("max_points", maxPoints).Msg("invalid max points")
		return EvaluationResult{Score: 0, Confidence: 0.0, Err: ErrCodeInvalidMaxPoints}
	}

	// The syntax check must run before the placeholder check: a broken stub
	// is a syntax error, not a placeholder.
	if problem := checkSyntax(code); problem != "" {
		e.logger.Info().Str("problem", problem).Msg("syntax error detected")
		return EvaluationResult{
			Score:       0,
			Confidence:  1.0,
			RawResponse: fmt.Sprintf("Syntax error: %s", problem),
			Err:         ErrCodeSyntaxError,
		}
	}

	if e.isPlaceholder(code) {
		e.logger.Info().Msg("detected placeholder code")
		return EvaluationResult{
			Score:       0,
			Confidence:  1.0,
			RawResponse: "Placeholder code detected",
			Err:         ErrCodePlaceholderCode,
		}
	}

	scorer, err := e.scorers.ScorerFor(maxPoints)
	if err != nil {
		// Unsupported point scale: fail fast, no oracle call, no retries.
		e.logger.Error().Err(err).Int("max_points", maxPoints).Msg("no scorer for point scale")
		return EvaluationResult{Score: 0, Confidence: 0.0, Err: err.Error()}
	}

	return e.evaluateWithRetry(ctx, scorer, code, taskDescription, criterion, maxPoints)
}

func (e *CriterionEvaluator) evaluateWithRetry(ctx context.Context, scorer ai.Scorer, code, taskDescription, criterion string, maxPoints int) EvaluationResult {
	var (
		resp     ai.ScoreResponse
		attempts int
	)

	operation := func() error {
		attempts++
		r, err := scorer.Score(ctx, ai.ScoreRequest{
			Code:            code,
			TaskDescription: taskDescription,
			Criterion:       criterion,
		})
		if err != nil {
			e.logger.Warn().Err(err).Int("attempt", attempts).Msg("evaluation attempt failed")
			return err
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(operation, e.newBackOff(ctx)); err != nil {
		e.logger.Error().Err(err).Msg("all evaluation attempts failed")
		return EvaluationResult{
			Score:      0,
			Confidence: 0.0,
			Err:        err.Error(),
			RetryCount: e.cfg.MaxRetries,
		}
	}

	raw, ok := parseRawScore(resp.Score)
	if !ok {
		raw = 0
	}
	score := ParseScore(resp.Score, maxPoints)
	confidence := calculateConfidence(resp.Score, resp.Reasoning, raw, maxPoints)

	e.logger.Info().
		Int("score", score).
		Int("max_points", maxPoints).
		Float64("confidence", confidence).
		Msg("criterion evaluated")

	return EvaluationResult{
		Score:       score,
		Confidence:  confidence,
		RawResponse: fmt.Sprintf("Score: %s | Reasoning: %s", resp.Score, resp.Reasoning),
		RetryCount:  attempts - 1,
	}
}

// newBackOff yields delays of base, base*2, base*4, ... capped at the max
// delay, with no jitter so retry timing stays predictable.
func (e *CriterionEvaluator) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.BaseDelay
	b.MaxInterval = e.cfg.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.MaxRetries)), ctx)
}

// isPlaceholder reports whether the code is a stub: a lone pass statement, or
// a short body containing one of the marker phrases.
func (e *CriterionEvaluator) isPlaceholder(code string) bool {
	lower := strings.ToLower(strings.TrimSpace(code))
	if lower == "pass" {
		return true
	}
	if len(lower) >= e.cfg.PlaceholderLimit {
		return false
	}
	for _, phrase := range placeholderPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// calculateConfidence grades the quality of an oracle response. A completely
// empty response takes a single severe penalty instead of stacking the
// individual ones; the range check on the pre-clamp score always applies.
func calculateConfidence(rawScore, rawReasoning string, parsedScore, maxPoints int) float64 {
	confidence := 1.0

	if rawScore == "" && rawReasoning == "" {
		confidence -= 0.7
	} else {
		if !isPlainNumber(rawScore) {
			confidence -= 0.3
		}
		if len(strings.TrimSpace(rawReasoning)) < 10 {
			confidence -= 0.2
		}
	}

	if parsedScore < 0 || parsedScore > maxPoints {
		confidence -= 0.3
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func isPlainNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
