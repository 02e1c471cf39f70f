// Package notebook extracts per-task student code from Jupyter notebooks.
//
// Solutions are located by marker cells ("#### Your Solution" or
// "# Your Solution:") in markdown; the code is taken from the next code cell,
// looking ahead up to two cells. Tasks are numbered 2-7 and missing tasks are
// represented by an empty code string so downstream marking can treat
// "absent" and "empty" identically.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidNotebook indicates the notebook file is not structurally valid
// ipynb JSON. Fatal to a marking run.
var ErrInvalidNotebook = errors.New("invalid notebook")

const (
	primaryMarker   = "#### Your Solution"
	secondaryMarker = "# Your Solution:"

	// FirstTask and LastTask bound the task numbering of the assignment.
	FirstTask = 2
	LastTask  = 7

	// ExpectedTaskCount is the number of solutions a complete notebook has.
	ExpectedTaskCount = LastTask - FirstTask + 1

	// codeLookahead is how many cells past a marker may hold the solution.
	codeLookahead = 2
)

// expectedFunctions maps task numbers to the function each solution should
// define. Used for debug-level validation of the sequential mapping only.
var expectedFunctions = map[int]string{
	2: "bot_whisper",
	3: "bot_multiply",
	4: "bot_count",
	5: "bot_topic",
	6: "dispatch_bot_command",
	7: "chatbot_interaction",
}

var placeholderLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*#.*your.*solution.*here.*$`),
	regexp.MustCompile(`^\s*pass\s*$`),
	regexp.MustCompile(`^\s*\.\.\.\s*$`),
	regexp.MustCompile(`(?i)^\s*#\s*TODO\s*$`),
}

// notebookSchema pins down the minimum ipynb shape the parser relies on.
const notebookSchema = `{
	"type": "object",
	"required": ["cells"],
	"properties": {
		"cells": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["cell_type"],
				"properties": {
					"cell_type": {"type": "string"},
					"source": {
						"anyOf": [
							{"type": "string"},
							{"type": "array", "items": {"type": "string"}}
						]
					}
				}
			}
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("notebook.schema.json", notebookSchema)

type cell struct {
	CellType string          `json:"cell_type"`
	Source   json.RawMessage `json:"source"`
}

type document struct {
	Cells []cell `json:"cells"`
}

// Parser extracts task solutions from one notebook file.
type Parser struct {
	path   string
	logger zerolog.Logger
}

// NewParser constructs a parser for the given notebook path.
func NewParser(path string, logger zerolog.Logger) *Parser {
	return &Parser{
		path:   path,
		logger: logger.With().Str("component", "notebook_parser").Str("notebook", path).Logger(),
	}
}

// Parse reads the notebook and returns a complete task->code mapping (every
// expected task present, empty string when no solution was found) plus any
// non-fatal issues.
func (p *Parser) Parse() (map[int]string, []string, error) {
	doc, err := p.load()
	if err != nil {
		return nil, nil, err
	}

	p.logger.Info().Int("cells", len(doc.Cells)).Msg("loaded notebook")

	var issues []string
	tasks := make(map[int]string)
	taskIndex := 0

	for i, c := range doc.Cells {
		if c.CellType != "markdown" {
			continue
		}
		if !isSolutionMarker(sourceText(c.Source)) {
			continue
		}

		p.logger.Debug().Int("cell", i).Msg("found solution marker")

		code, found := p.findCode(doc.Cells, i)
		if !found {
			issue := fmt.Sprintf("No code cell found after solution marker in cell %d", i)
			issues = append(issues, issue)
			p.logger.Warn().Msg(issue)
			continue
		}

		taskNumber := p.identifyTask(taskIndex, code)
		if _, dup := tasks[taskNumber]; dup {
			p.logger.Warn().Int("task", taskNumber).Msg("duplicate task number, overwriting previous")
		}

		if issue := validateCode(code); issue != "" {
			issues = append(issues, fmt.Sprintf("Task %d: %s", taskNumber, issue))
		}

		tasks[taskNumber] = code
		taskIndex++
	}

	if len(tasks) < ExpectedTaskCount {
		issues = append(issues, fmt.Sprintf("Expected %d tasks, found %d", ExpectedTaskCount, len(tasks)))
	}

	// Every expected task is present in the mapping even without a solution.
	for n := FirstTask; n <= LastTask; n++ {
		if _, ok := tasks[n]; !ok {
			tasks[n] = ""
			issues = append(issues, fmt.Sprintf("Task %d: MISSING_TASK", n))
		}
	}

	withCode := 0
	for _, code := range tasks {
		if strings.TrimSpace(code) != "" {
			withCode++
		}
	}
	p.logger.Info().Int("tasks_with_code", withCode).Msg("parsed notebook")

	return tasks, issues, nil
}

// TaskNumbers returns the mapping's task numbers in ascending order.
func TaskNumbers(tasks map[int]string) []int {
	numbers := make([]int, 0, len(tasks))
	for n := range tasks {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

func (p *Parser) load() (document, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return document{}, fmt.Errorf("%w: %v", ErrInvalidNotebook, err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return document{}, fmt.Errorf("%w: corrupted JSON: %v", ErrInvalidNotebook, err)
	}

	if err := compiledSchema.Validate(generic); err != nil {
		return document{}, fmt.Errorf("%w: %v", ErrInvalidNotebook, err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return document{}, fmt.Errorf("%w: %v", ErrInvalidNotebook, err)
	}

	return doc, nil
}

func (p *Parser) findCode(cells []cell, markerIdx int) (string, bool) {
	for j := markerIdx + 1; j <= markerIdx+codeLookahead && j < len(cells); j++ {
		if cells[j].CellType == "code" {
			return strings.TrimSpace(sourceText(cells[j].Source)), true
		}
	}
	return "", false
}

// identifyTask maps the sequential marker index to the assignment's task
// numbering. Notebooks are ordered, so position is the primary signal; the
// expected function name is only logged as validation.
func (p *Parser) identifyTask(taskIndex int, code string) int {
	taskNumber := taskIndex + FirstTask
	if taskNumber > LastTask {
		p.logger.Warn().Int("task_index", taskIndex).Msg("task index exceeds expected range")
		return LastTask
	}

	if fn := expectedFunctions[taskNumber]; fn != "" {
		if strings.Contains(code, "def "+fn+"(") {
			p.logger.Debug().Int("task", taskNumber).Str("function", fn).Msg("sequential mapping validated")
		} else {
			p.logger.Debug().Int("task", taskNumber).Str("expected_function", fn).Msg("sequential mapping unvalidated")
		}
	}

	return taskNumber
}

func isSolutionMarker(text string) bool {
	return strings.Contains(text, primaryMarker) || strings.Contains(text, secondaryMarker)
}

// validateCode flags empty and placeholder-only cells. Marking applies its
// own, stricter pre-checks; this only feeds the parser's issue list.
func validateCode(code string) string {
	if strings.TrimSpace(code) == "" {
		return "EMPTY_CODE"
	}

	var lines []string
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) <= 2 {
		for _, line := range lines {
			for _, pattern := range placeholderLinePatterns {
				if pattern.MatchString(line) {
					return "PLACEHOLDER_CODE"
				}
			}
		}
	}

	return ""
}

func sourceText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.Join(parts, "")
	}

	return ""
}
