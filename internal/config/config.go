package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI string
	DBName   string

	GeminiAPIKey string
	GeminiModel  string
	GeminiTier   string

	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis Configuration (retrieval cache)
	RedisURL      string
	RedisPassword string
	RedisDB       int
	CacheEnabled  bool
	CacheTTL      int // seconds

	// Retrieval
	RetrievalTopK    int
	TextSearchIndex  string
	TextSearchEnable bool

	// Job lifecycle
	JobMaxAge        int // seconds, jobs older than this are evicted
	JobSweepInterval int // seconds between eviction sweeps

	// Visualization synthesis
	VizEnabled      bool
	VizContextChars int

	// Telemetry
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/document_insights"),
		DBName:   getEnv("DB_NAME", "document_insights"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:   getEnv("GEMINI_TIER", "free"),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheEnabled:  getEnvBool("CACHE_ENABLED", true),
		CacheTTL:      getEnvInt("CACHE_TTL", 300),

		RetrievalTopK:    getEnvInt("RETRIEVAL_TOP_K", 5),
		TextSearchIndex:  getEnv("MONGODB_SEARCH_INDEX", "chunks_text"),
		TextSearchEnable: getEnvBool("MONGODB_SEARCH_ENABLED", false),

		JobMaxAge:        getEnvInt("JOB_MAX_AGE", 3600),
		JobSweepInterval: getEnvInt("JOB_SWEEP_INTERVAL", 300),

		VizEnabled:      getEnvBool("VIZ_ENABLED", true),
		VizContextChars: getEnvInt("VIZ_CONTEXT_CHARS", 3500),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.RetrievalTopK < 1 {
		return nil, fmt.Errorf("RETRIEVAL_TOP_K must be at least 1")
	}

	return cfg, nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
