package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/nbmark/nbmark/internal/marking"
)

func displayResult(result *marking.MarkingResult) {
	bold := color.New(color.Bold)

	fmt.Println()
	bold.Printf("Results for %s\n", result.StudentID)
	fmt.Println(strings.Repeat("-", 50))

	taskNumbers := make([]int, 0, len(result.TaskResults))
	for n := range result.TaskResults {
		taskNumbers = append(taskNumbers, n)
	}
	sort.Ints(taskNumbers)

	for _, n := range taskNumbers {
		task := result.TaskResults[n]
		line := fmt.Sprintf("  Task %d: %d/%d", n, task.TotalScore, task.MaxPoints)
		switch {
		case task.Missing:
			color.Red("%s  (missing)", line)
		case task.TotalScore == task.MaxPoints:
			color.Green(line)
		default:
			fmt.Println(line)
		}
	}

	fmt.Println(strings.Repeat("-", 50))
	bold.Printf("  Total: %d/%d  [%s]\n", result.TotalScore, result.MaxPoints, statusColored(result.Status))

	if len(result.Issues) > 0 {
		fmt.Println()
		color.Yellow("Issues (%d):", len(result.Issues))
		for _, issue := range result.Issues {
			fmt.Printf("  - %s\n", issue)
		}
	}
}

func displayBatch(results map[string]*marking.MarkingResult) {
	bold := color.New(color.Bold)

	studentIDs := make([]string, 0, len(results))
	for id := range results {
		studentIDs = append(studentIDs, id)
	}
	sort.Strings(studentIDs)

	fmt.Println()
	bold.Printf("Batch results (%d students)\n", len(results))
	fmt.Println(strings.Repeat("-", 50))

	for _, id := range studentIDs {
		result := results[id]
		fmt.Printf("  %-24s %3d/%-3d  %s\n",
			id, result.TotalScore, result.MaxPoints, statusColored(result.Status))
	}

	displayIssueHistogram(results)
}

// displayIssueHistogram aggregates issues across the batch by category so a
// marker can spot systemic problems (a broken rubric, a misnamed solution
// marker) at a glance.
func displayIssueHistogram(results map[string]*marking.MarkingResult) {
	categories := []string{
		marking.FlagMissingTask,
		marking.ErrCodePlaceholderCode,
		marking.ErrCodeEmptyCode,
		marking.ErrCodeSyntaxError,
		marking.FlagIncompleteCode,
		marking.FlagParsingError,
		marking.FlagProcessingError,
	}

	counts := make(map[string]int)
	other := 0
	total := 0

	for _, result := range results {
		for _, issue := range result.Issues {
			total++
			matched := false
			for _, category := range categories {
				if strings.Contains(issue, category) {
					counts[category]++
					matched = true
					break
				}
			}
			if !matched {
				other++
			}
		}
	}

	if total == 0 {
		return
	}

	fmt.Println()
	color.New(color.Bold).Printf("Issues (%d)\n", total)
	for _, category := range categories {
		if counts[category] > 0 {
			fmt.Printf("  %-20s %d\n", category, counts[category])
		}
	}
	if other > 0 {
		fmt.Printf("  %-20s %d\n", "other", other)
	}
}

func displayStatistics(stats marking.Statistics) {
	fmt.Println()
	color.New(color.Bold).Println("Statistics")
	fmt.Printf("  Assignments processed: %d\n", stats.AssignmentsProcessed)
	fmt.Printf("  API calls:             %d\n", stats.TotalAPICalls)
	fmt.Printf("  Errors:                %d\n", stats.TotalErrors)
	fmt.Printf("  Error rate:            %.1f%%\n", stats.ErrorRate*100)
	fmt.Printf("  Total time:            %s\n", stats.TotalProcessingTime.Round(10*time.Millisecond))
	fmt.Printf("  Average per student:   %s\n", stats.AverageProcessingTime.Round(10*time.Millisecond))
}

func statusColored(status string) string {
	switch {
	case status == marking.StatusCompleted:
		return color.GreenString(status)
	case status == marking.StatusCompletedIssues:
		return color.YellowString(status)
	case strings.HasPrefix(status, "Failed"):
		return color.RedString(status)
	default:
		return status
	}
}
