package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the marking tool.
type Config struct {
	Model            string
	OpenAIAPIKey     string
	Temperature      float64
	MaxTokens        int
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	PlaceholderLimit int
	IssueThreshold   int
	OutputDir        string
}

// Load reads configuration values from environment variables and an optional
// .env file. Flags layered on top by the CLI take precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("NBMARK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("temperature", 0.0)
	v.SetDefault("max_tokens", 1000)
	v.SetDefault("max_retries", 3)
	v.SetDefault("base_delay", "1s")
	v.SetDefault("max_delay", "1m")
	v.SetDefault("placeholder_limit", 50)
	v.SetDefault("issue_threshold", 2)
	v.SetDefault("output.dir", "marking_output")

	baseDelay, err := time.ParseDuration(v.GetString("base_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid base delay: %w", err)
	}

	maxDelay, err := time.ParseDuration(v.GetString("max_delay"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid max delay: %w", err)
	}

	cfg := Config{
		Model:            v.GetString("model"),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		Temperature:      v.GetFloat64("temperature"),
		MaxTokens:        v.GetInt("max_tokens"),
		MaxRetries:       v.GetInt("max_retries"),
		BaseDelay:        baseDelay,
		MaxDelay:         maxDelay,
		PlaceholderLimit: v.GetInt("placeholder_limit"),
		IssueThreshold:   v.GetInt("issue_threshold"),
		OutputDir:        v.GetString("output.dir"),
	}

	// The unprefixed variable is the conventional one; the prefixed form wins.
	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}

	return cfg, nil
}
