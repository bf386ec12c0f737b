package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector index providers
const (
	VectorProviderPinecone = "pinecone"
	VectorProviderQdrant   = "qdrant"
	VectorProviderMongo    = "mongo"
	VectorProviderMemory   = "memory"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string
	MaxFileSize int64

	// Model hub
	HFToken                  string
	ModelName                string
	ModelCacheDir            string
	HubURL                   string
	InferenceURL             string
	ModelDevice              string
	ModelLoadTimeout         time.Duration
	GenerationReturnFullText bool
	GenerationTimeout        time.Duration
	GenerationMaxConcurrency int
	GenerationRPS            float64

	// Retrieval-augmented generation
	RAGEnabled          bool
	RetrievalTopK       int
	EmbeddingsProvider  string // "huggingface" (default), "google", "ollama", "local"
	EmbeddingsModel     string
	VectorDimensions    int
	VectorIndexProvider string
	VectorIndexAPIKey   string
	VectorIndexURL      string
	VectorIndexName     string

	// Gemini / Ollama embeddings
	GeminiAPIKey          string
	GoogleEmbeddingsModel string
	OllamaURL             string

	// Databases
	DatabaseURL string
	MongoURI    string
	DBName      string

	// Redis Configuration
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RateLimitReqs   int
	RateLimitWindow int

	// Background ingestion worker
	WorkerConcurrency int

	// Conversation sessions
	SessionIdleTTL       time.Duration
	SessionSweepInterval time.Duration

	// Telemetry
	OTelEndpoint string
	ServiceName  string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8000"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 20971520), // 20MB

		HFToken:                  getEnv("HF_TOKEN", os.Getenv("HUGGINGFACE_TOKEN")),
		ModelName:                getEnv("MODEL_NAME", "deepseek-ai/DeepSeek-R1-Distill-Qwen-1.5B"),
		ModelCacheDir:            getEnv("MODEL_CACHE_DIR", "./model_cache"),
		HubURL:                   getEnv("HF_HUB_URL", "https://huggingface.co"),
		InferenceURL:             getEnv("HF_INFERENCE_URL", "https://router.huggingface.co/hf-inference"),
		ModelDevice:              getEnv("MODEL_DEVICE", "auto"),
		ModelLoadTimeout:         getEnvDuration("MODEL_LOAD_TIMEOUT", 2*time.Minute),
		GenerationReturnFullText: getEnvBool("GENERATION_RETURN_FULL_TEXT", true),
		GenerationTimeout:        getEnvDuration("GENERATION_TIMEOUT", 2*time.Minute),
		GenerationMaxConcurrency: getEnvInt("GENERATION_MAX_CONCURRENCY", 0),
		GenerationRPS:            getEnvFloat64("GENERATION_RPS", 0),

		RAGEnabled:          getEnvBool("RAG_ENABLED", true),
		RetrievalTopK:       getEnvInt("RETRIEVAL_TOP_K", 3),
		EmbeddingsProvider:  getEnv("EMBEDDINGS_PROVIDER", "huggingface"),
		EmbeddingsModel:     getEnv("EMBEDDINGS_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 384),
		VectorIndexProvider: getEnv("VECTOR_INDEX_PROVIDER", VectorProviderPinecone),
		VectorIndexAPIKey:   getEnv("VECTOR_INDEX_API_KEY", os.Getenv("PINECONE_API_KEY")),
		VectorIndexURL:      getEnv("VECTOR_INDEX_URL", ""),
		VectorIndexName:     getEnv("VECTOR_INDEX_NAME", "pdf-index"),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OllamaURL:             getEnv("OLLAMA_URL", "http://localhost:11434"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "llm_chatbot"),

		RedisURL:        getEnv("REDIS_URL", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),

		SessionIdleTTL:       getEnvDuration("SESSION_IDLE_TTL", 0),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),

		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "llm-chatbot"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the secrets the service cannot start without.
func (c *Config) Validate() error {
	if c.HFToken == "" {
		return fmt.Errorf("HF_TOKEN is required - set it in .env file")
	}

	if !c.RAGEnabled {
		return nil
	}

	switch c.VectorIndexProvider {
	case VectorProviderPinecone, VectorProviderQdrant:
		if c.VectorIndexAPIKey == "" {
			return fmt.Errorf("VECTOR_INDEX_API_KEY is required - set it in .env file")
		}
		if c.VectorIndexURL == "" {
			return fmt.Errorf("VECTOR_INDEX_URL is required for %s", c.VectorIndexProvider)
		}
	case VectorProviderMongo:
		// Atlas credentials travel in MONGO_URI.
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for %s", c.VectorIndexProvider)
		}
	case VectorProviderMemory:
	default:
		return fmt.Errorf("unknown vector index provider: %s", c.VectorIndexProvider)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required - set it in .env file")
	}

	if c.RetrievalTopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", c.RetrievalTopK)
	}

	return nil
}

// Mode reports which chat pipeline the service runs.
func (c *Config) Mode() string {
	if c.RAGEnabled {
		return "rag"
	}
	return "plain"
}

// AsyncIngestionEnabled is true when uploads can be handed to the worker. The
// memory index lives inside one process, so a separate worker could never
// make its documents visible to the API.
func (c *Config) AsyncIngestionEnabled() bool {
	return c.RAGEnabled && c.RedisURL != "" && c.VectorIndexProvider != VectorProviderMemory
}

// AllowAllOrigins is true when CORS_ORIGINS contains the "*" wildcard.
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
