package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string

	// Document directories, one per vector namespace. Reference docs are
	// public material (plans, policies); customer docs are per-account
	// statements and invoices.
	ReferenceDocsDir string
	CustomerDocsDir  string

	// Retrieval settings. TopK is the number of chunks fetched per query:
	// too low risks missing multi-chunk answers, too high dilutes the context.
	RetrievalTopK int

	// Validator gate. Too high causes excessive rejection, too low lets
	// ungrounded answers through.
	ConfidenceThreshold float64

	// Chunking settings, in tokens. Overlap prevents a fact spanning two
	// chunks from being truncated at the boundary.
	ChunkSize    int
	ChunkOverlap int

	// Vector store namespaces. Evaluation runs use their own eval-* namespaces
	// and must never touch these.
	ReferenceNamespace string
	CustomerNamespace  string

	// Evaluation worker pool bound and backend request rate (per second).
	EvalWorkers     int
	EvalRequestRate float64
}

// Load reads configuration from the environment. It returns an error instead
// of exiting so main controls the process exit code.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is fine, rely on the environment.
	}

	cfg := &Config{
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:         getEnv("DATABASE_URL", "billing_assistant.db"),
		ReferenceDocsDir:    getEnv("REFERENCE_DOCS_DIR", "data/docs/reference"),
		CustomerDocsDir:     getEnv("CUSTOMER_DOCS_DIR", "data/docs/customer"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		RetrievalTopK:       getEnvAsInt("RETRIEVAL_TOP_K", 4),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.75),
		ChunkSize:           getEnvAsInt("CHUNK_SIZE", 400),
		ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 75),
		ReferenceNamespace:  getEnv("REFERENCE_NAMESPACE", "telecom-wiki"),
		CustomerNamespace:   getEnv("CUSTOMER_NAMESPACE", "customer-docs"),
		EvalWorkers:         getEnvAsInt("EVAL_WORKERS", 4),
		EvalRequestRate:     getEnvAsFloat("EVAL_REQUEST_RATE", 5),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("CONFIDENCE_THRESHOLD must be in [0,1], got %v", cfg.ConfidenceThreshold)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.RetrievalTopK <= 0 {
		return nil, fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", cfg.RetrievalTopK)
	}
	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}
