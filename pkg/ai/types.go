package ai

import "context"

// ScoreRequest carries the artefacts needed to score one rubric criterion.
type ScoreRequest struct {
	Code            string
	TaskDescription string
	Criterion       string
}

// ScoreResponse is the oracle's raw answer. Score is free text on purpose:
// models routinely reply "8/10" or "Score: 8", and the marking layer owns
// turning that text into a number.
type ScoreResponse struct {
	Score     string
	Reasoning string
}

// Scorer describes an LLM-backed oracle that grades code against a single
// criterion. Identical inputs may yield different responses across calls.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResponse, error)
}

// ScorerFactory hands out a Scorer tuned to a point scale. Implementations
// cache one scorer per scale and reject unsupported scales.
type ScorerFactory interface {
	ScorerFor(maxPoints int) (Scorer, error)
}
