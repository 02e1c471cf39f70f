package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nbmark/nbmark/internal/config"
	"github.com/nbmark/nbmark/internal/marking"
	"github.com/nbmark/nbmark/internal/notebook"
	"github.com/nbmark/nbmark/internal/report"
	"github.com/nbmark/nbmark/internal/rubric"
	"github.com/nbmark/nbmark/pkg/ai"
)

type rootOptions struct {
	verbose bool
	debug   bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "nbmark",
		Short: "Automated marking of programming assignment notebooks",
		Long: `nbmark marks Jupyter notebook assignments against a CSV rubric.

Each rubric criterion is scored by an AI oracle; static pre-checks reject
empty, placeholder and syntactically broken submissions before any API call.
Results are written as Excel marking sheets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable info-level logging")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug-level logging")

	cmd.AddCommand(newMarkCommand(opts))
	cmd.AddCommand(newBatchCommand(opts))

	return cmd
}

func (o *rootOptions) newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if o.verbose {
		level = zerolog.InfoLevel
	}
	if o.debug {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// notebookLoaderFunc adapts the notebook parser to the marker's interface.
type notebookLoaderFunc struct {
	logger zerolog.Logger
}

func (l notebookLoaderFunc) Load(path string) (map[int]string, []string, error) {
	return notebook.NewParser(path, l.logger).Parse()
}

type rubricLoaderFunc struct {
	logger zerolog.Logger
}

func (l rubricLoaderFunc) Load(path string) (map[int][]rubric.Criterion, []string, error) {
	return rubric.NewParser(path, l.logger).Parse()
}

func buildMarker(cfg config.Config, logger zerolog.Logger) (*marking.AssignmentMarker, error) {
	factory, err := ai.NewOpenAIScorerFactory(ai.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	evaluator := marking.NewCriterionEvaluator(factory, marking.EvaluatorConfig{
		MaxRetries:       cfg.MaxRetries,
		BaseDelay:        cfg.BaseDelay,
		MaxDelay:         cfg.MaxDelay,
		PlaceholderLimit: cfg.PlaceholderLimit,
	}, logger)

	marker := marking.NewAssignmentMarker(
		evaluator,
		notebookLoaderFunc{logger: logger},
		rubricLoaderFunc{logger: logger},
		report.NewExcelWriter(cfg.OutputDir, logger),
		validator.New(),
		marking.MarkerConfig{IssueThreshold: cfg.IssueThreshold},
		logger,
	)

	return marker, nil
}

// validateNotebookFile checks extension and sniffed content type before any
// parsing happens, so obvious mix-ups fail with a clear message.
func validateNotebookFile(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".ipynb") {
		return fmt.Errorf("notebook file must have .ipynb extension: %s", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("cannot read notebook %s: %w", path, err)
	}
	if !mt.Is("application/json") && !mt.Is("text/plain") {
		return fmt.Errorf("%s does not look like a notebook (detected %s)", path, mt)
	}

	return nil
}

func validateRubricFile(path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return fmt.Errorf("rubric file must have .csv extension: %s", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fmt.Errorf("cannot read rubric %s: %w", path, err)
	}
	if !mt.Is("text/csv") && !mt.Is("text/plain") && !mt.Is("application/csv") {
		return fmt.Errorf("%s does not look like a CSV rubric (detected %s)", path, mt)
	}

	return nil
}

// ensureOutputDir fails before any oracle call if reports cannot be written.
func ensureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output directory is not writable: %w", err)
	}
	return nil
}

func studentIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
