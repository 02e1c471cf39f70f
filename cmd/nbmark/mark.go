package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nbmark/nbmark/internal/config"
	"github.com/nbmark/nbmark/internal/notebook"
	"github.com/nbmark/nbmark/internal/rubric"
)

func newMarkCommand(root *rootOptions) *cobra.Command {
	var (
		notebookPath string
		rubricPath   string
		model        string
		outputDir    string
		studentID    string
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark one student notebook against a rubric",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := root.newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Model = model
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}

			if err := validateNotebookFile(notebookPath); err != nil {
				return err
			}
			if err := validateRubricFile(rubricPath); err != nil {
				return err
			}

			if studentID == "" {
				studentID = studentIDFromPath(notebookPath)
			}

			if dryRun {
				return runDryRun(notebookPath, rubricPath, logger)
			}

			if cfg.OpenAIAPIKey == "" {
				return errors.New("NBMARK_OPENAI_API_KEY is not set (use --dry-run to validate inputs without marking)")
			}

			if err := ensureOutputDir(cfg.OutputDir); err != nil {
				return err
			}

			marker, err := buildMarker(cfg, logger)
			if err != nil {
				return err
			}

			result, err := marker.MarkAssignment(cmd.Context(), studentID, notebookPath, rubricPath)
			if err != nil {
				return err
			}

			displayResult(result)
			displayStatistics(marker.Statistics())
			return nil
		},
	}

	cmd.Flags().StringVarP(&notebookPath, "notebook", "n", "", "path to the student notebook (.ipynb)")
	cmd.Flags().StringVarP(&rubricPath, "rubric", "r", "", "path to the rubric file (.csv)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "override the scoring model")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "override the report output directory")
	cmd.Flags().StringVarP(&studentID, "student-id", "s", "", "student identifier (defaults to the notebook filename)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate inputs without any scoring calls")

	_ = cmd.MarkFlagRequired("notebook")
	_ = cmd.MarkFlagRequired("rubric")

	return cmd
}

// runDryRun parses both inputs and reports what a marking run would see. No
// scorer is constructed, so no API key is needed.
func runDryRun(notebookPath, rubricPath string, logger zerolog.Logger) error {
	tasks, notebookIssues, err := notebook.NewParser(notebookPath, logger).Parse()
	if err != nil {
		return err
	}

	rubricData, rubricIssues, err := rubric.NewParser(rubricPath, logger).Parse()
	if err != nil {
		return err
	}

	displayDryRun(tasks, rubricData, append(notebookIssues, rubricIssues...))
	return nil
}

func displayDryRun(tasks map[int]string, rubricData map[int][]rubric.Criterion, issues []string) {
	bold := color.New(color.Bold)

	bold.Println("Dry run: inputs parsed successfully")
	fmt.Println()

	for _, taskNumber := range rubric.TaskNumbers(rubricData) {
		criteria := rubricData[taskNumber]
		state := color.GreenString("code found")
		if tasks[taskNumber] == "" {
			state = color.RedString("missing")
		}
		fmt.Printf("  Task %d: %d criteria, %d points, %s\n",
			taskNumber, len(criteria), rubric.TaskMaxPoints(criteria), state)
	}

	fmt.Println()
	if len(issues) == 0 {
		color.Green("No issues found")
		return
	}

	color.Yellow("%d issue(s) found:", len(issues))
	for _, issue := range issues {
		fmt.Printf("  - %s\n", issue)
	}
}
