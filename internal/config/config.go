package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by TENET_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("TENET_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "openai" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// AnalyzerProvider returns the configured trace-analyzer provider.
// Defaults to "openai" if not set.
// Valid values: openai, anthropic, mock
func AnalyzerProvider() string {
	p := os.Getenv("ANALYZER_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// AnalyzerAPIKey returns the API key for the configured analyzer provider.
func AnalyzerAPIKey() string {
	switch AnalyzerProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// SimilarityThreshold is the minimum cosine similarity for dedupe
// merging. Defaults to 0.85.
func SimilarityThreshold() float64 {
	t, err := strconv.ParseFloat(os.Getenv("SIMILARITY_THRESHOLD"), 64)
	if err != nil || t <= 0 || t > 1 {
		return 0.85
	}
	return t
}

// MaxExamplesPerPrinciple caps how many trace examples a principle
// keeps. Defaults to 5.
func MaxExamplesPerPrinciple() int {
	n, err := strconv.Atoi(os.Getenv("MAX_EXAMPLES_PER_PRINCIPLE"))
	if err != nil || n <= 0 {
		return 5
	}
	return n
}

// DistillThreshold is how many undistilled traces trigger a
// distillation batch. Defaults to 10.
func DistillThreshold() int {
	n, err := strconv.Atoi(os.Getenv("DISTILL_THRESHOLD"))
	if err != nil || n <= 0 {
		return 10
	}
	return n
}

// DedupeInterval is how often the offline dedupe pass runs.
// Defaults to 6h.
func DedupeInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("DEDUPE_INTERVAL"))
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
