package marking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nbmark/nbmark/pkg/ai"
)

type stubScorer struct {
	fn func(ai.ScoreRequest) (ai.ScoreResponse, error)
}

func (s stubScorer) Score(_ context.Context, req ai.ScoreRequest) (ai.ScoreResponse, error) {
	return s.fn(req)
}

type stubFactory struct {
	scorer ai.Scorer
	err    error
}

func (f stubFactory) ScorerFor(int) (ai.Scorer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scorer, nil
}

func newTestEvaluator(t *testing.T, scorer ai.Scorer) *CriterionEvaluator {
	t.Helper()
	return NewCriterionEvaluator(stubFactory{scorer: scorer}, EvaluatorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}, zerolog.Nop())
}

func fixedScorer(score, reasoning string) ai.Scorer {
	return stubScorer{fn: func(ai.ScoreRequest) (ai.ScoreResponse, error) {
		return ai.ScoreResponse{Score: score, Reasoning: reasoning}, nil
	}}
}

const validCode = "def add(a, b):\n    return a + b"

func TestEvaluatePreChecks(t *testing.T) {
	e := newTestEvaluator(t, fixedScorer("8", "should never be called"))
	ctx := context.Background()

	t.Run("empty code", func(t *testing.T) {
		result := e.Evaluate(ctx, "   \n\t", "task", "criterion", 10)
		require.Equal(t, ErrCodeEmptyCode, result.Err)
		require.Equal(t, 0, result.Score)
		require.Equal(t, 1.0, result.Confidence)
	})

	t.Run("empty criterion", func(t *testing.T) {
		result := e.Evaluate(ctx, validCode, "task", "  ", 10)
		require.Equal(t, ErrCodeEmptyCriterion, result.Err)
		require.Equal(t, 0.0, result.Confidence)
	})

	t.Run("invalid max points", func(t *testing.T) {
		result := e.Evaluate(ctx, validCode, "task", "criterion", 0)
		require.Equal(t, ErrCodeInvalidMaxPoints, result.Err)
	})

	t.Run("syntax error beats placeholder", func(t *testing.T) {
		result := e.Evaluate(ctx, "def func(\n    pass", "task", "criterion", 10)
		require.Equal(t, ErrCodeSyntaxError, result.Err)
		require.Equal(t, 1.0, result.Confidence)
	})

	t.Run("lone pass is placeholder", func(t *testing.T) {
		result := e.Evaluate(ctx, "pass", "task", "criterion", 10)
		require.Equal(t, ErrCodePlaceholderCode, result.Err)
		require.Equal(t, 1.0, result.Confidence)
	})

	t.Run("marker phrase in short code", func(t *testing.T) {
		result := e.Evaluate(ctx, "# Your code here", "task", "criterion", 10)
		require.Equal(t, ErrCodePlaceholderCode, result.Err)
	})
}

func TestEvaluateSuccess(t *testing.T) {
	e := newTestEvaluator(t, fixedScorer("8", "solid use of the required construct"))

	result := e.Evaluate(context.Background(), validCode, "task", "criterion", 10)

	require.Empty(t, result.Err)
	require.Equal(t, 8, result.Score)
	require.Equal(t, 1.0, result.Confidence)
	require.Equal(t, 0, result.RetryCount)
	require.Contains(t, result.RawResponse, "Score: 8")
	require.Contains(t, result.RawResponse, "Reasoning:")
}

func TestEvaluateClampsOutOfRangeScore(t *testing.T) {
	e := newTestEvaluator(t, fixedScorer("15", "confused but verbose reasoning"))

	result := e.Evaluate(context.Background(), validCode, "task", "criterion", 10)

	require.Empty(t, result.Err)
	require.Equal(t, 10, result.Score)
	// Range penalty applies against the pre-clamp value.
	require.InDelta(t, 0.7, result.Confidence, 1e-9)
}

func TestEvaluateRetryCeiling(t *testing.T) {
	attempts := 0
	failing := stubScorer{fn: func(ai.ScoreRequest) (ai.ScoreResponse, error) {
		attempts++
		return ai.ScoreResponse{}, errors.New("oracle unavailable")
	}}

	e := newTestEvaluator(t, failing)
	result := e.Evaluate(context.Background(), validCode, "task", "criterion", 10)

	require.Equal(t, 3, attempts, "max_retries+1 total attempts")
	require.Equal(t, 2, result.RetryCount)
	require.NotEmpty(t, result.Err)
	require.Equal(t, 0, result.Score)
	require.Equal(t, 0.0, result.Confidence)
}

func TestEvaluateRecoversAfterTransientFailure(t *testing.T) {
	attempts := 0
	flaky := stubScorer{fn: func(ai.ScoreRequest) (ai.ScoreResponse, error) {
		attempts++
		if attempts == 1 {
			return ai.ScoreResponse{}, errors.New("rate limited")
		}
		return ai.ScoreResponse{Score: "6", Reasoning: "recovered on second attempt"}, nil
	}}

	e := newTestEvaluator(t, flaky)
	result := e.Evaluate(context.Background(), validCode, "task", "criterion", 10)

	require.Empty(t, result.Err)
	require.Equal(t, 6, result.Score)
	require.Equal(t, 1, result.RetryCount)
}

func TestEvaluateUnsupportedScale(t *testing.T) {
	e := NewCriterionEvaluator(stubFactory{err: errors.New("unsupported point scale 5")}, EvaluatorConfig{}, zerolog.Nop())

	result := e.Evaluate(context.Background(), validCode, "task", "criterion", 5)

	require.Equal(t, 0, result.Score)
	require.Equal(t, 0, result.RetryCount)
	require.Contains(t, result.Err, "unsupported point scale")
}

func TestCalculateConfidence(t *testing.T) {
	cases := []struct {
		name      string
		score     string
		reasoning string
		parsed    int
		want      float64
	}{
		{name: "perfect response", score: "8", reasoning: "a reasoning of sufficient length", parsed: 8, want: 1.0},
		{name: "empty everything", score: "", reasoning: "", parsed: 0, want: 0.3},
		{name: "non numeric score", score: "eight", reasoning: "a reasoning of sufficient length", parsed: 0, want: 0.7},
		{name: "short reasoning", score: "8", reasoning: "ok", parsed: 8, want: 0.8},
		{name: "non numeric and short", score: "eight", reasoning: "ok", parsed: 0, want: 0.5},
		{name: "out of range", score: "15", reasoning: "a reasoning of sufficient length", parsed: 15, want: 0.7},
		{name: "all penalties stack", score: "way over", reasoning: "no", parsed: -3, want: 0.2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calculateConfidence(tc.score, tc.reasoning, tc.parsed, 10)
			require.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestIsPlaceholderRespectsLimit(t *testing.T) {
	e := NewCriterionEvaluator(stubFactory{scorer: fixedScorer("1", "x")}, EvaluatorConfig{PlaceholderLimit: 50}, zerolog.Nop())

	long := "def solve():\n    # TODO revisit edge cases after refactor\n    return compute_answer(42)"
	require.Greater(t, len(long), 50)
	require.False(t, e.isPlaceholder(long), "phrase in long code is not a placeholder")

	require.True(t, e.isPlaceholder("# todo"))
}
