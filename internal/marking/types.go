package marking

import "time"

// Evaluator error codes. A criterion evaluation never fails with a Go error;
// it resolves into a result carrying one of these (or a free-form message for
// oracle failures).
const (
	ErrCodeEmptyCode        = "EMPTY_CODE"
	ErrCodeEmptyCriterion   = "EMPTY_CRITERION"
	ErrCodeInvalidMaxPoints = "INVALID_MAX_POINTS"
	ErrCodeSyntaxError      = "SYNTAX_ERROR"
	ErrCodePlaceholderCode  = "PLACEHOLDER_CODE"
)

// Report-level flags attached to criterion records and issue strings.
const (
	FlagMissingTask     = "MISSING_TASK"
	FlagIncompleteCode  = "INCOMPLETE_CODE"
	FlagParsingError    = "PARSING_ERROR"
	FlagProcessingError = "PROCESSING_ERROR"
)

// Final statuses of a marking run.
const (
	StatusCompleted       = "Completed"
	StatusCompletedIssues = "Completed with Issues"
	StatusCompletedZero   = "Completed - Zero Score"
	StatusFailedNoTasks   = "Failed - No Tasks Processed"
	StatusFailedNotebook  = "Failed - Notebook Error"
	StatusFailedRubric    = "Failed - Rubric Error"
	statusFailedPrefix    = "Failed - "
	statusUnknown         = "Unknown"
)

// EvaluationResult is the outcome of scoring one (code, criterion) pair.
// Immutable once returned by the criterion evaluator.
type EvaluationResult struct {
	Score       int
	Confidence  float64
	RawResponse string
	// Err is empty on a clean numeric response (even when the score is 0).
	// Otherwise it holds one of the ErrCode constants or the last oracle
	// failure message.
	Err        string
	RetryCount int
}

// CriterionRecord is the per-criterion entry handed to the report writer.
type CriterionRecord struct {
	CriterionIndex int
	Criterion      string
	MaxPoints      int
	Score          int
	// ErrorFlag is empty for clean scores; a flagged criterion contributes
	// nothing to any total even if Score is nonzero.
	ErrorFlag   string
	Confidence  float64
	RawResponse string
}

// TaskResult aggregates the evaluation of one task.
type TaskResult struct {
	TaskNumber      int
	Code            string
	CriteriaResults []CriterionRecord
	TotalScore      int
	MaxPoints       int
	Issues          []string
	Missing         bool
}

// MarkingResult is the complete outcome for one student.
type MarkingResult struct {
	StudentID      string
	TotalScore     int
	MaxPoints      int
	TaskResults    map[int]*TaskResult
	Issues         []string
	ProcessingTime time.Duration
	Status         string
}

// StudentSummary is the slice of a MarkingResult the batch summary needs.
type StudentSummary struct {
	TotalScore int
	MaxPoints  int
	Issues     []string
	Status     string
}

// Statistics captures cumulative counters across one marker's lifetime.
type Statistics struct {
	AssignmentsProcessed  int
	TotalAPICalls         int
	TotalErrors           int
	TotalProcessingTime   time.Duration
	AverageProcessingTime time.Duration
	ErrorRate             float64
}
