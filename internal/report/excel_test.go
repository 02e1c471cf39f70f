package report

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nbmark/nbmark/internal/marking"
	"github.com/nbmark/nbmark/internal/rubric"
)

func testRubric() map[int][]rubric.Criterion {
	return map[int][]rubric.Criterion{
		2: {
			{TaskNumber: 2, Description: "Uses a function definition", MaxPoints: 4},
			{TaskNumber: 2, Description: "Returns the transformed string", MaxPoints: 4},
		},
	}
}

func cellValue(t *testing.T, f *excelize.File, sheet, ref string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, ref)
	require.NoError(t, err)
	return v
}

func TestMarkingSheet(t *testing.T) {
	dir := t.TempDir()
	writer := NewExcelWriter(dir, zerolog.Nop())

	results := map[int][]marking.CriterionRecord{
		2: {
			{CriterionIndex: 0, Criterion: "Uses a function definition", MaxPoints: 4, Score: 3, Confidence: 1.0},
			{CriterionIndex: 1, Criterion: "Returns the transformed string", MaxPoints: 4, Score: 2, ErrorFlag: marking.FlagParsingError, Confidence: 0.0},
		},
	}

	path, err := writer.MarkingSheet("s1", testRubric(), results, []string{"Task 2: something odd"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "s1_marks.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, "Task Name", cellValue(t, f, "Marking", "A1"))
	require.Equal(t, "Task 2", cellValue(t, f, "Marking", "A2"))
	require.Equal(t, "", cellValue(t, f, "Marking", "A3"), "task label only on the first criterion row")

	require.Equal(t, "3", cellValue(t, f, "Marking", "C2"))
	require.Equal(t, marking.FlagParsingError, cellValue(t, f, "Marking", "C3"), "flagged rows show the flag, not a score")

	// Subtotal excludes the flagged criterion.
	require.Equal(t, "SUBTOTAL", cellValue(t, f, "Marking", "B4"))
	require.Equal(t, "3", cellValue(t, f, "Marking", "C4"))
	require.Equal(t, "8", cellValue(t, f, "Marking", "D4"))

	require.Equal(t, "GRAND TOTAL", cellValue(t, f, "Marking", "B5"))
	require.Equal(t, "3", cellValue(t, f, "Marking", "C5"))

	require.Equal(t, "ISSUES FOUND", cellValue(t, f, "Marking", "A7"))
	require.Equal(t, "Task 2: something odd", cellValue(t, f, "Marking", "B8"))

	require.Equal(t, "1 criteria require manual review", cellValue(t, f, "Marking", "B10"))
}

func TestMarkingSheetMissingRecords(t *testing.T) {
	writer := NewExcelWriter(t.TempDir(), zerolog.Nop())

	path, err := writer.MarkingSheet("s1", testRubric(), map[int][]marking.CriterionRecord{}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, "NOT_EVALUATED", cellValue(t, f, "Marking", "C2"))
	require.Equal(t, "NOT_EVALUATED", cellValue(t, f, "Marking", "C3"))
	require.Equal(t, "0", cellValue(t, f, "Marking", "C4"))
}

func TestBatchSummarySortedByStudent(t *testing.T) {
	dir := t.TempDir()
	writer := NewExcelWriter(dir, zerolog.Nop())

	summaries := map[string]marking.StudentSummary{
		"zoe": {TotalScore: 40, MaxPoints: 83, Status: marking.StatusCompleted},
		"amy": {TotalScore: 0, MaxPoints: 83, Issues: []string{"a", "b"}, Status: marking.StatusCompletedZero},
	}

	path, err := writer.BatchSummary(summaries)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "batch_summary.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, "Student ID", cellValue(t, f, "Summary", "A1"))
	require.Equal(t, "amy", cellValue(t, f, "Summary", "A2"))
	require.Equal(t, "zoe", cellValue(t, f, "Summary", "A3"))

	require.Equal(t, "0.0%", cellValue(t, f, "Summary", "D2"))
	require.Equal(t, "48.2%", cellValue(t, f, "Summary", "D3"))
	require.Equal(t, "2", cellValue(t, f, "Summary", "E2"))
	require.Equal(t, marking.StatusCompletedZero, cellValue(t, f, "Summary", "F2"))
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "a_b_c_d", sanitizeFilename("a/b:c d"))
}
