// Package report renders marking results into Excel workbooks.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/nbmark/nbmark/internal/marking"
	"github.com/nbmark/nbmark/internal/rubric"
)

// ErrReportFailed indicates a workbook could not be written. Report failures
// are surfaced as issues by the marker, never as fatal errors.
var ErrReportFailed = errors.New("report generation failed")

const (
	markingSheetName = "Marking"
	summarySheetName = "Summary"

	batchSummaryFile = "batch_summary.xlsx"
)

// manualReviewFlags are the error flags that require a human to look at the
// submission before the grade is released.
var manualReviewFlags = map[string]bool{
	marking.FlagParsingError: true,
	"API_ERROR":              true,
	"TIMEOUT_ERROR":          true,
}

// ExcelWriter writes per-student marking sheets and batch summaries into an
// output directory, creating it on first use.
type ExcelWriter struct {
	outputDir string
	logger    zerolog.Logger
}

// NewExcelWriter constructs a writer rooted at outputDir.
func NewExcelWriter(outputDir string, logger zerolog.Logger) *ExcelWriter {
	return &ExcelWriter{
		outputDir: outputDir,
		logger:    logger.With().Str("component", "excel_writer").Logger(),
	}
}

// MarkingSheet writes one student's detailed marking workbook and returns the
// path it was written to. Rows follow the rubric's task order; criteria the
// rubric knows but the results lack are rendered as NOT_EVALUATED.
func (w *ExcelWriter) MarkingSheet(studentID string, rubricData map[int][]rubric.Criterion, results map[int][]marking.CriterionRecord, issues []string) (string, error) {
	if err := w.ensureOutputDir(); err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), markingSheetName)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDDDDD"}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportFailed, err)
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportFailed, err)
	}

	row := 1
	setRow(f, markingSheetName, row, "Task Name", "Criterion Description", "Student Score", "Max Points")
	f.SetCellStyle(markingSheetName, cellRef(1, row), cellRef(4, row), headerStyle)
	row++

	grandTotal := 0
	grandMax := 0

	for _, taskNumber := range rubric.TaskNumbers(rubricData) {
		criteria := rubricData[taskNumber]
		records := results[taskNumber]

		subtotal := 0
		taskMax := 0

		for idx, criterion := range criteria {
			taskLabel := ""
			if idx == 0 {
				taskLabel = fmt.Sprintf("Task %d", taskNumber)
			}

			var scoreCell interface{}
			if idx < len(records) {
				record := records[idx]
				if record.ErrorFlag != "" {
					scoreCell = record.ErrorFlag
				} else {
					scoreCell = record.Score
					subtotal += record.Score
				}
			} else {
				scoreCell = "NOT_EVALUATED"
			}

			setRow(f, markingSheetName, row, taskLabel, criterion.Description, scoreCell, criterion.MaxPoints)
			taskMax += criterion.MaxPoints
			row++
		}

		setRow(f, markingSheetName, row, "", "SUBTOTAL", subtotal, taskMax)
		f.SetCellStyle(markingSheetName, cellRef(1, row), cellRef(4, row), boldStyle)
		row++

		grandTotal += subtotal
		grandMax += taskMax
	}

	setRow(f, markingSheetName, row, "", "GRAND TOTAL", grandTotal, grandMax)
	f.SetCellStyle(markingSheetName, cellRef(1, row), cellRef(4, row), boldStyle)
	row += 2

	if len(issues) > 0 {
		setRow(f, markingSheetName, row, "ISSUES FOUND")
		f.SetCellStyle(markingSheetName, cellRef(1, row), cellRef(1, row), boldStyle)
		row++
		for _, issue := range issues {
			setRow(f, markingSheetName, row, "", issue)
			row++
		}
	}

	if reviews := manualReviewCount(results); reviews > 0 {
		row++
		setRow(f, markingSheetName, row, "", fmt.Sprintf("%d criteria require manual review", reviews))
		f.SetCellStyle(markingSheetName, cellRef(2, row), cellRef(2, row), boldStyle)
	}

	f.SetColWidth(markingSheetName, "A", "A", 12)
	f.SetColWidth(markingSheetName, "B", "B", 60)
	f.SetColWidth(markingSheetName, "C", "D", 14)

	path := filepath.Join(w.outputDir, fmt.Sprintf("%s_marks.xlsx", sanitizeFilename(studentID)))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportFailed, err)
	}

	w.logger.Info().Str("student_id", studentID).Str("path", path).Msg("marking sheet written")
	return path, nil
}

// BatchSummary writes one row per student, sorted by student ID, and returns
// the path of the workbook.
func (w *ExcelWriter) BatchSummary(summaries map[string]marking.StudentSummary) (string, error) {
	if err := w.ensureOutputDir(); err != nil {
		return "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), summarySheetName)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDDDDD"}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportFailed, err)
	}

	setRow(f, summarySheetName, 1, "Student ID", "Total Score", "Max Points", "Percentage", "Issues Count", "Status")
	f.SetCellStyle(summarySheetName, cellRef(1, 1), cellRef(6, 1), headerStyle)

	studentIDs := make([]string, 0, len(summaries))
	for id := range summaries {
		studentIDs = append(studentIDs, id)
	}
	sort.Strings(studentIDs)

	for i, id := range studentIDs {
		summary := summaries[id]

		percentage := 0.0
		if summary.MaxPoints > 0 {
			percentage = float64(summary.TotalScore) / float64(summary.MaxPoints) * 100
		}

		setRow(f, summarySheetName, i+2,
			id,
			summary.TotalScore,
			summary.MaxPoints,
			fmt.Sprintf("%.1f%%", percentage),
			len(summary.Issues),
			summary.Status,
		)
	}

	f.SetColWidth(summarySheetName, "A", "A", 20)
	f.SetColWidth(summarySheetName, "B", "E", 14)
	f.SetColWidth(summarySheetName, "F", "F", 28)

	path := filepath.Join(w.outputDir, batchSummaryFile)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrReportFailed, err)
	}

	w.logger.Info().Int("students", len(summaries)).Str("path", path).Msg("batch summary written")
	return path, nil
}

func (w *ExcelWriter) ensureOutputDir() error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrReportFailed, err)
	}
	return nil
}

func manualReviewCount(results map[int][]marking.CriterionRecord) int {
	n := 0
	for _, records := range results {
		for _, record := range records {
			if manualReviewFlags[record.ErrorFlag] {
				n++
			}
		}
	}
	return n
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) {
	for col, value := range values {
		f.SetCellValue(sheet, cellRef(col+1, row), value)
	}
}

func cellRef(col, row int) string {
	ref, _ := excelize.CoordinatesToCellName(col, row)
	return ref
}

// sanitizeFilename keeps student IDs filesystem safe.
func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(s)
}
