package marking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nbmark/nbmark/internal/rubric"
)

// DefaultIssueThreshold is the issue count above which a completed run is
// labelled "Completed with Issues". Inherited from the original tooling; not
// yet calibrated against real grading data.
const DefaultIssueThreshold = 2

// NotebookLoader produces the task->code mapping of one student notebook.
type NotebookLoader interface {
	Load(path string) (map[int]string, []string, error)
}

// RubricLoader produces the task->criteria mapping of one rubric file.
type RubricLoader interface {
	Load(path string) (map[int][]rubric.Criterion, []string, error)
}

// ReportWriter renders marking output. Failures are never fatal to a run.
type ReportWriter interface {
	MarkingSheet(studentID string, rubricData map[int][]rubric.Criterion, results map[int][]CriterionRecord, issues []string) (string, error)
	BatchSummary(summaries map[string]StudentSummary) (string, error)
}

// Assignment identifies one student's notebook within a batch.
type Assignment struct {
	StudentID    string `validate:"required"`
	NotebookPath string `validate:"required"`
}

// MarkerConfig carries the orchestration knobs.
type MarkerConfig struct {
	IssueThreshold int
}

// AssignmentMarker coordinates the complete marking pipeline for a student:
// notebook parse, rubric parse (cached per path), per-task evaluation and
// report generation. One marker instance owns its rubric cache and
// statistics; instances do not share state.
type AssignmentMarker struct {
	evaluator *CriterionEvaluator
	notebooks NotebookLoader
	rubrics   RubricLoader
	reports   ReportWriter
	validate  *validator.Validate
	logger    zerolog.Logger

	issueThreshold int

	mu          sync.Mutex
	rubricCache map[string]map[int][]rubric.Criterion

	statsMu              sync.Mutex
	assignmentsProcessed int
	totalAPICalls        int
	totalErrors          int
	totalProcessing      time.Duration
}

// NewAssignmentMarker constructs a marker from its collaborators.
func NewAssignmentMarker(evaluator *CriterionEvaluator, notebooks NotebookLoader, rubrics RubricLoader, reports ReportWriter, validate *validator.Validate, cfg MarkerConfig, logger zerolog.Logger) *AssignmentMarker {
	if cfg.IssueThreshold <= 0 {
		cfg.IssueThreshold = DefaultIssueThreshold
	}

	runID := uuid.NewString()
	return &AssignmentMarker{
		evaluator:      evaluator,
		notebooks:      notebooks,
		rubrics:        rubrics,
		reports:        reports,
		validate:       validate,
		logger:         logger.With().Str("component", "assignment_marker").Str("run_id", runID).Logger(),
		issueThreshold: cfg.IssueThreshold,
		rubricCache:    make(map[string]map[int][]rubric.Criterion),
	}
}

// MarkAssignment marks one student's notebook against a rubric. Notebook and
// rubric load failures are fatal: the partial result (with a Failed status)
// is returned together with the error. Everything past that point is
// non-fatal and accumulates as issues.
func (m *AssignmentMarker) MarkAssignment(ctx context.Context, studentID, notebookPath, rubricPath string) (*MarkingResult, error) {
	start := time.Now()

	result := &MarkingResult{
		StudentID:   studentID,
		TaskResults: make(map[int]*TaskResult),
		Status:      statusUnknown,
	}

	m.logger.Info().Str("student_id", studentID).Msg("starting marking")

	taskCodes, notebookIssues, err := m.loadNotebook(notebookPath)
	if err != nil {
		result.Status = StatusFailedNotebook
		result.ProcessingTime = time.Since(start)
		return result, err
	}
	result.Issues = append(result.Issues, notebookIssues...)

	rubricData, rubricIssues, err := m.loadRubric(rubricPath)
	if err != nil {
		result.Status = StatusFailedRubric
		result.ProcessingTime = time.Since(start)
		return result, err
	}
	result.Issues = append(result.Issues, rubricIssues...)
	result.MaxPoints = rubric.TotalMaxPoints(rubricData)

	for _, taskNumber := range rubric.TaskNumbers(rubricData) {
		criteria := rubricData[taskNumber]
		code := taskCodes[taskNumber]

		m.logger.Info().Int("task", taskNumber).Msg("processing task")

		taskResult, err := m.evaluateTaskSafe(ctx, taskNumber, code, criteria)
		if err != nil {
			m.countError()
			m.logger.Error().Err(err).Int("task", taskNumber).Msg("error processing task")
			taskResult = &TaskResult{
				TaskNumber: taskNumber,
				Code:       code,
				MaxPoints:  rubric.TaskMaxPoints(criteria),
				Issues:     []string{fmt.Sprintf("Task %d: %s - %v", taskNumber, FlagProcessingError, err)},
			}
		}

		result.TaskResults[taskNumber] = taskResult
		result.TotalScore += taskResult.TotalScore
		result.Issues = append(result.Issues, taskResult.Issues...)
	}

	if err := m.writeReport(result, rubricData); err != nil {
		m.logger.Error().Err(err).Msg("error generating report")
		result.Issues = append(result.Issues, fmt.Sprintf("Excel generation failed: %v", err))
	}

	result.Status = m.decideStatus(result)
	result.ProcessingTime = time.Since(start)

	m.statsMu.Lock()
	m.assignmentsProcessed++
	m.totalProcessing += result.ProcessingTime
	m.statsMu.Unlock()

	m.logger.Info().
		Str("student_id", studentID).
		Int("total_score", result.TotalScore).
		Int("max_points", result.MaxPoints).
		Str("status", result.Status).
		Msg("marking completed")

	return result, nil
}

// MarkBatch marks a set of assignments against one rubric. A failure for one
// student is recorded as a Failed result and never aborts the batch. A batch
// summary report is generated at the end.
func (m *AssignmentMarker) MarkBatch(ctx context.Context, assignments []Assignment, rubricPath string) map[string]*MarkingResult {
	results := make(map[string]*MarkingResult, len(assignments))

	m.logger.Info().Int("assignments", len(assignments)).Msg("starting batch marking")

	for i, assignment := range assignments {
		m.logger.Info().
			Int("index", i+1).
			Int("total", len(assignments)).
			Str("student_id", assignment.StudentID).
			Msg("processing assignment")

		if err := m.validate.Struct(assignment); err != nil {
			results[assignment.StudentID] = failedResult(assignment.StudentID, err)
			continue
		}

		result, err := m.MarkAssignment(ctx, assignment.StudentID, assignment.NotebookPath, rubricPath)
		if err != nil {
			m.logger.Error().Err(err).Str("student_id", assignment.StudentID).Msg("failed to mark assignment")
			results[assignment.StudentID] = failedResult(assignment.StudentID, err)
			continue
		}
		results[assignment.StudentID] = result
	}

	summaries := make(map[string]StudentSummary, len(results))
	for studentID, result := range results {
		summaries[studentID] = StudentSummary{
			TotalScore: result.TotalScore,
			MaxPoints:  result.MaxPoints,
			Issues:     result.Issues,
			Status:     result.Status,
		}
	}

	if _, err := m.reports.BatchSummary(summaries); err != nil {
		m.logger.Error().Err(err).Msg("failed to generate batch summary")
	}

	m.logger.Info().Int("results", len(results)).Msg("batch marking completed")
	return results
}

// Statistics returns a snapshot of the marker's cumulative counters.
func (m *AssignmentMarker) Statistics() Statistics {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	stats := Statistics{
		AssignmentsProcessed: m.assignmentsProcessed,
		TotalAPICalls:        m.totalAPICalls,
		TotalErrors:          m.totalErrors,
		TotalProcessingTime:  m.totalProcessing,
	}
	if m.assignmentsProcessed > 0 {
		stats.AverageProcessingTime = m.totalProcessing / time.Duration(m.assignmentsProcessed)
	}
	if m.totalAPICalls > 0 {
		stats.ErrorRate = float64(m.totalErrors) / float64(m.totalAPICalls)
	}
	return stats
}

// ValidateSetup probes the input files without any oracle calls. Returns the
// problems found; empty means ready to mark.
func (m *AssignmentMarker) ValidateSetup(notebookPath, rubricPath string) []string {
	var problems []string

	if _, _, err := m.loadNotebook(notebookPath); err != nil {
		problems = append(problems, fmt.Sprintf("Notebook parsing failed: %v", err))
	}

	if _, _, err := m.loadRubric(rubricPath); err != nil {
		problems = append(problems, fmt.Sprintf("Rubric parsing failed: %v", err))
	}

	return problems
}

// evaluateTask applies the criterion evaluator across one task's criteria.
// A missing task short-circuits: every criterion scores 0 with MISSING_TASK
// and no oracle call is made.
func (m *AssignmentMarker) evaluateTask(ctx context.Context, taskNumber int, code string, criteria []rubric.Criterion) *TaskResult {
	result := &TaskResult{
		TaskNumber: taskNumber,
		Code:       code,
		MaxPoints:  rubric.TaskMaxPoints(criteria),
	}

	if isBlank(code) {
		result.Missing = true
		result.Issues = append(result.Issues, fmt.Sprintf("Task %d: %s", taskNumber, FlagMissingTask))
		m.logger.Warn().Int("task", taskNumber).Msg("task has no code")

		for idx, criterion := range criteria {
			result.CriteriaResults = append(result.CriteriaResults, CriterionRecord{
				CriterionIndex: idx,
				Criterion:      criterion.Description,
				MaxPoints:      criterion.MaxPoints,
				Score:          0,
				ErrorFlag:      FlagMissingTask,
				Confidence:     1.0,
				RawResponse:    "Task not found",
			})
		}
		return result
	}

	taskDescription := fmt.Sprintf("Programming task %d from student assignment", taskNumber)

	m.logger.Info().Int("task", taskNumber).Int("criteria", len(criteria)).Msg("evaluating task")

	for idx, criterion := range criteria {
		record := m.evaluateCriterion(ctx, taskNumber, idx, code, taskDescription, criterion)
		result.CriteriaResults = append(result.CriteriaResults, record.record)
		result.Issues = append(result.Issues, record.issues...)
		if record.record.ErrorFlag == "" {
			result.TotalScore += record.record.Score
		}
	}

	m.logger.Info().
		Int("task", taskNumber).
		Int("score", result.TotalScore).
		Int("max_points", result.MaxPoints).
		Msg("task completed")

	return result
}

type criterionOutcome struct {
	record CriterionRecord
	issues []string
}

// evaluateCriterion runs one criterion through the evaluator and maps its
// error codes onto report-level flags. A panic out of the evaluator is
// downgraded to a PARSING_ERROR record; orchestration must not crash.
func (m *AssignmentMarker) evaluateCriterion(ctx context.Context, taskNumber, idx int, code, taskDescription string, criterion rubric.Criterion) (outcome criterionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			m.countError()
			m.logger.Error().
				Int("task", taskNumber).
				Int("criterion", idx+1).
				Interface("panic", r).
				Msg("criterion evaluation panicked")
			outcome = criterionOutcome{
				record: CriterionRecord{
					CriterionIndex: idx,
					Criterion:      criterion.Description,
					MaxPoints:      criterion.MaxPoints,
					Score:          0,
					ErrorFlag:      FlagParsingError,
					Confidence:     0.0,
					RawResponse:    fmt.Sprintf("Evaluation failed: %v", r),
				},
				issues: []string{fmt.Sprintf("Task %d Criterion %d: %s - %v", taskNumber, idx+1, FlagParsingError, r)},
			}
		}
	}()

	eval := m.evaluator.Evaluate(ctx, code, taskDescription, criterion.Description, criterion.MaxPoints)

	m.statsMu.Lock()
	m.totalAPICalls += eval.RetryCount + 1
	m.statsMu.Unlock()

	record := CriterionRecord{
		CriterionIndex: idx,
		Criterion:      criterion.Description,
		MaxPoints:      criterion.MaxPoints,
		Score:          eval.Score,
		Confidence:     eval.Confidence,
		RawResponse:    eval.RawResponse,
	}

	var issues []string
	switch eval.Err {
	case "":
	case ErrCodeEmptyCode, ErrCodePlaceholderCode:
		record.ErrorFlag = FlagIncompleteCode
		issues = append(issues, fmt.Sprintf("Task %d Criterion %d: %s", taskNumber, idx+1, FlagIncompleteCode))
	case ErrCodeSyntaxError:
		// Reported as a parsing error, but the issue text keeps the
		// underlying code for traceability.
		record.ErrorFlag = FlagParsingError
		issues = append(issues, fmt.Sprintf("Task %d Criterion %d: %s", taskNumber, idx+1, ErrCodeSyntaxError))
	default:
		record.ErrorFlag = FlagParsingError
		issues = append(issues, fmt.Sprintf("Task %d Criterion %d: %s - %s", taskNumber, idx+1, FlagParsingError, eval.Err))
	}

	return criterionOutcome{record: record, issues: issues}
}

func (m *AssignmentMarker) evaluateTaskSafe(ctx context.Context, taskNumber int, code string, criteria []rubric.Criterion) (result *TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%v", r)
		}
	}()
	return m.evaluateTask(ctx, taskNumber, code, criteria), nil
}

func (m *AssignmentMarker) loadNotebook(path string) (map[int]string, []string, error) {
	m.logger.Info().Str("notebook", path).Msg("loading notebook")

	tasks, issues, err := m.notebooks.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse notebook: %w", err)
	}

	m.logger.Info().Int("tasks", len(tasks)).Int("issues", len(issues)).Msg("notebook loaded")
	return tasks, issues, nil
}

// loadRubric returns the cached rubric for a path when available. Cache hits
// report no issues; they were surfaced when the rubric was first parsed.
func (m *AssignmentMarker) loadRubric(path string) (map[int][]rubric.Criterion, []string, error) {
	m.mu.Lock()
	if cached, ok := m.rubricCache[path]; ok {
		m.mu.Unlock()
		m.logger.Debug().Str("rubric", path).Msg("using cached rubric")
		return cached, nil, nil
	}
	m.mu.Unlock()

	m.logger.Info().Str("rubric", path).Msg("loading rubric")

	data, issues, err := m.rubrics.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse rubric: %w", err)
	}

	m.mu.Lock()
	m.rubricCache[path] = data
	m.mu.Unlock()

	m.logger.Info().Int("tasks", len(data)).Int("issues", len(issues)).Msg("rubric loaded")
	return data, issues, nil
}

func (m *AssignmentMarker) writeReport(result *MarkingResult, rubricData map[int][]rubric.Criterion) error {
	records := make(map[int][]CriterionRecord, len(result.TaskResults))
	for taskNumber, taskResult := range result.TaskResults {
		records[taskNumber] = taskResult.CriteriaResults
	}

	_, err := m.reports.MarkingSheet(result.StudentID, rubricData, records, result.Issues)
	return err
}

// decideStatus applies the fixed decision order for the final status label.
func (m *AssignmentMarker) decideStatus(result *MarkingResult) string {
	switch {
	case len(result.TaskResults) == 0:
		return StatusFailedNoTasks
	case result.TotalScore == 0:
		return StatusCompletedZero
	case len(result.Issues) > m.issueThreshold:
		return StatusCompletedIssues
	default:
		return StatusCompleted
	}
}

func (m *AssignmentMarker) countError() {
	m.statsMu.Lock()
	m.totalErrors++
	m.statsMu.Unlock()
}

func failedResult(studentID string, err error) *MarkingResult {
	return &MarkingResult{
		StudentID:   studentID,
		TaskResults: make(map[int]*TaskResult),
		Status:      fmt.Sprintf("%s%v", statusFailedPrefix, err),
		Issues:      []string{fmt.Sprintf("Critical error: %v", err)},
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
