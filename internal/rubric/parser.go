// Package rubric loads marking criteria from CSV rubric files.
//
// The expected layout is four columns (task, criterion, score, max points)
// without a header row. A "Task N" cell opens a task context; following rows
// contribute criteria to it until the next task cell. SUBTOTAL and empty rows
// are skipped.
package rubric

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidRubric indicates the rubric file is structurally unreadable.
// A rubric failure is fatal to a marking run: without criteria there is
// nothing to score against.
var ErrInvalidRubric = errors.New("invalid rubric")

// ExpectedTotalPoints is the point total the standard assignment rubric
// carries across all tasks.
const ExpectedTotalPoints = 83

// ExpectedTaskPoints is the expected per-task point distribution. Deviations
// are surfaced as issues, not errors, so a locally edited rubric still marks.
var ExpectedTaskPoints = map[int]int{
	2: 8,
	3: 10,
	4: 15,
	5: 15,
	6: 15,
	7: 20,
}

var taskPattern = regexp.MustCompile(`(?i)Task\s+(\d+)`)

// Criterion is one scored line item within a task's rubric.
type Criterion struct {
	TaskNumber  int
	Description string
	MaxPoints   int
}

// Parser extracts marking criteria from a CSV rubric file.
type Parser struct {
	path   string
	logger zerolog.Logger
}

// NewParser constructs a parser for the given rubric path.
func NewParser(path string, logger zerolog.Logger) *Parser {
	return &Parser{
		path:   path,
		logger: logger.With().Str("component", "rubric_parser").Str("rubric", path).Logger(),
	}
}

// Parse reads the rubric and returns criteria grouped by task number plus any
// non-fatal issues found along the way.
func (p *Parser) Parse() (map[int][]Criterion, []string, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRubric, err)
	}

	// Tolerate a UTF-8 BOM from spreadsheet exports.
	text := strings.TrimPrefix(string(raw), "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("%w: rubric file is empty", ErrInvalidRubric)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRubric, err)
	}

	p.logger.Info().Int("rows", len(rows)).Msg("loaded rubric")

	var issues []string
	tasks := make(map[int][]Criterion)
	currentTask := 0

	for idx, row := range rows {
		taskCell := cell(row, 0)
		criterionCell := cell(row, 1)
		pointsCell := cell(row, 3)

		if taskCell == "" && criterionCell == "" && pointsCell == "" {
			continue
		}
		if strings.Contains(strings.ToUpper(criterionCell), "SUBTOTAL") {
			continue
		}

		if num, ok := extractTaskNumber(taskCell); ok {
			currentTask = num
			if _, seen := tasks[num]; !seen {
				tasks[num] = nil
			}
			p.logger.Debug().Int("task", num).Msg("found task")
		}

		maxPoints, ok := parseMaxPoints(pointsCell)
		if criterionCell == "" || !ok {
			continue
		}

		if currentTask == 0 {
			issue := fmt.Sprintf("Found criterion without task context at row %d: %s", idx, criterionCell)
			issues = append(issues, issue)
			p.logger.Warn().Msg(issue)
			continue
		}

		tasks[currentTask] = append(tasks[currentTask], Criterion{
			TaskNumber:  currentTask,
			Description: criterionCell,
			MaxPoints:   maxPoints,
		})
	}

	issues = append(issues, validateStructure(tasks, p.logger)...)

	p.logger.Info().
		Int("tasks", len(tasks)).
		Int("criteria", criteriaCount(tasks)).
		Msg("parsed rubric")

	return tasks, issues, nil
}

// TaskNumbers returns the task numbers of a parsed rubric in ascending order.
func TaskNumbers(tasks map[int][]Criterion) []int {
	numbers := make([]int, 0, len(tasks))
	for n := range tasks {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// TaskMaxPoints sums the points of one task's criteria.
func TaskMaxPoints(criteria []Criterion) int {
	total := 0
	for _, c := range criteria {
		total += c.MaxPoints
	}
	return total
}

// TotalMaxPoints sums the points across all tasks.
func TotalMaxPoints(tasks map[int][]Criterion) int {
	total := 0
	for _, criteria := range tasks {
		total += TaskMaxPoints(criteria)
	}
	return total
}

func validateStructure(tasks map[int][]Criterion, logger zerolog.Logger) []string {
	var issues []string

	expectedNumbers := make([]int, 0, len(ExpectedTaskPoints))
	for n := range ExpectedTaskPoints {
		expectedNumbers = append(expectedNumbers, n)
	}
	sort.Ints(expectedNumbers)

	for _, expected := range expectedNumbers {
		if _, ok := tasks[expected]; !ok {
			issues = append(issues, fmt.Sprintf("Missing Task %d", expected))
		}
	}

	for _, num := range TaskNumbers(tasks) {
		expected, ok := ExpectedTaskPoints[num]
		if !ok {
			continue
		}
		actual := TaskMaxPoints(tasks[num])
		if actual != expected {
			issue := fmt.Sprintf("Task %d: Expected %d points, found %d", num, expected, actual)
			issues = append(issues, issue)
			logger.Warn().Msg(issue)
		}
	}

	if total := TotalMaxPoints(tasks); total != ExpectedTotalPoints {
		issue := fmt.Sprintf("Total points: Expected %d, found %d", ExpectedTotalPoints, total)
		issues = append(issues, issue)
		logger.Warn().Msg(issue)
	}

	return issues
}

func extractTaskNumber(text string) (int, bool) {
	m := taskPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	num, err := strconv.Atoi(m[1])
	if err != nil || num < 2 || num > 7 {
		return 0, false
	}
	return num, true
}

func parseMaxPoints(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func criteriaCount(tasks map[int][]Criterion) int {
	n := 0
	for _, criteria := range tasks {
		n += len(criteria)
	}
	return n
}
