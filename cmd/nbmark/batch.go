package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nbmark/nbmark/internal/config"
	"github.com/nbmark/nbmark/internal/marking"
)

func newBatchCommand(root *rootOptions) *cobra.Command {
	var (
		dir        string
		rubricPath string
		model      string
		outputDir  string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Mark every notebook in a directory against one rubric",
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

			if err := validateRubricFile(rubricPath); err != nil {
				return err
			}

			assignments, err := discoverAssignments(dir)
			if err != nil {
				return err
			}
			if len(assignments) == 0 {
				return fmt.Errorf("no .ipynb files found in %s", dir)
			}

			if cfg.OpenAIAPIKey == "" {
				return errors.New("NBMARK_OPENAI_API_KEY is not set")
			}

			if err := ensureOutputDir(cfg.OutputDir); err != nil {
				return err
			}

			marker, err := buildMarker(cfg, logger)
			if err != nil {
				return err
			}

			results := marker.MarkBatch(cmd.Context(), assignments, rubricPath)

			displayBatch(results)
			displayStatistics(marker.Statistics())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory containing student notebooks")
	cmd.Flags().StringVarP(&rubricPath, "rubric", "r", "", "path to the rubric file (.csv)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "override the scoring model")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "override the report output directory")

	_ = cmd.MarkFlagRequired("dir")
	_ = cmd.MarkFlagRequired("rubric")

	return cmd
}

// discoverAssignments lists the notebooks of a batch directory, using each
// filename (without extension) as the student ID. Sorted for stable runs.
func discoverAssignments(dir string) ([]marking.Assignment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read batch directory: %w", err)
	}

	var assignments []marking.Assignment
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".ipynb") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		assignments = append(assignments, marking.Assignment{
			StudentID:    studentIDFromPath(path),
			NotebookPath: path,
		})
	}

	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].StudentID < assignments[j].StudentID
	})

	return assignments, nil
}
