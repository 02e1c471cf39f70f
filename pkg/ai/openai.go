package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	scoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nbmark",
		Subsystem: "ai",
		Name:      "score_duration_seconds",
		Help:      "Duration of criterion scoring requests",
	}, []string{"model"})

	scoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nbmark",
		Subsystem: "ai",
		Name:      "score_failures_total",
		Help:      "Number of failed criterion scoring requests",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI scorer factory.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIScorerFactory builds and caches one scorer per point scale against
// the OpenAI chat completion API.
type OpenAIScorerFactory struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger

	mu      sync.Mutex
	scorers map[string]*openAIScorer
}

// NewOpenAIScorerFactory builds a new factory using the provided configuration.
func NewOpenAIScorerFactory(cfg OpenAIConfig) (*OpenAIScorerFactory, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}

	tracer := otel.Tracer("github.com/nbmark/nbmark/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIScorerFactory{
		client:  client,
		cfg:     cfg,
		tracer:  tracer,
		logger:  logger,
		scorers: make(map[string]*openAIScorer),
	}, nil
}

// ScorerFor returns the cached scorer for the given point scale, creating it
// on first use. Unsupported scales are rejected before any API traffic.
func (f *OpenAIScorerFactory) ScorerFor(maxPoints int) (Scorer, error) {
	sig, err := CriterionSignature(maxPoints)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.scorers[sig.Name]; ok {
		return s, nil
	}

	f.logger.Debug().Str("signature", sig.Name).Int("max_points", maxPoints).Msg("creating scorer")
	s := &openAIScorer{factory: f, signature: sig}
	f.scorers[sig.Name] = s
	return s, nil
}

type openAIScorer struct {
	factory   *OpenAIScorerFactory
	signature Signature
}

// Score sends one scoring request to OpenAI and extracts the score and
// reasoning fields from the response.
func (s *openAIScorer) Score(parent context.Context, req ScoreRequest) (ScoreResponse, error) {
	f := s.factory
	ctx, span := f.tracer.Start(parent, "openai.score", trace.WithAttributes(
		attribute.String("model", f.cfg.Model),
		attribute.Int("max_points", s.signature.MaxPoints),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       f.cfg.Model,
		MaxTokens:   f.cfg.MaxTokens,
		Temperature: f.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: s.signature.SystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: s.signature.UserPrompt(req),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := f.client.CreateChatCompletion(ctx, request)
	scoreDuration.WithLabelValues(f.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		scoreFailures.WithLabelValues(f.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoreResponse{}, fmt.Errorf("openai score: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		scoreFailures.WithLabelValues(f.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoreResponse{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	parsed, err := parseScoreResponse(content)
	if err != nil {
		scoreFailures.WithLabelValues(f.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ScoreResponse{}, err
	}

	return parsed, nil
}

// parseScoreResponse tolerates the model returning the score either as a JSON
// number or a string; the text is handed to the marking layer untouched.
func parseScoreResponse(content string) (ScoreResponse, error) {
	type payload struct {
		Score     json.RawMessage `json:"score"`
		Reasoning string          `json:"reasoning"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return ScoreResponse{}, fmt.Errorf("parse score json: %w", err)
	}

	score := strings.TrimSpace(string(data.Score))
	score = strings.Trim(score, `"`)

	return ScoreResponse{
		Score:     score,
		Reasoning: data.Reasoning,
	}, nil
}
