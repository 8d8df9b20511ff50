package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストレージバックエンドの種別。
const (
	StoreBackendPostgres = "postgres"
	StoreBackendSQLite   = "sqlite"
	StoreBackendMemory   = "memory"
)

// トークン検証方式の種別。
const (
	AuthModeGoogle = "google"
	AuthModeJWT    = "jwt"
)

// AIプロバイダーの種別。
const (
	AIProviderOpenRouter = "openrouter"
	AIProviderGemini     = "gemini"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	StoreBackend   string
	DatabaseURL    string
	SQLitePath     string
	StoreNamespace string

	// Auth
	AuthMode       string
	GoogleClientID string
	JWTSecret      string

	// AI
	AIProvider        string
	AIAPIKey          string
	AIEndpoint        string
	AIModel           string
	AITimeout         time.Duration
	AIMaxResponseSize int64

	// Evaluation worker
	EvalMaxConcurrent int
	EvalQueueSize     int

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitAI      int

	// Resume
	ResumeRetentionDays int
	CleanupInterval     time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", StoreBackendPostgres))
	cfg.AuthMode = strings.ToLower(getEnvString("AUTH_MODE", AuthModeGoogle))
	cfg.AIProvider = strings.ToLower(getEnvString("AI_PROVIDER", AIProviderOpenRouter))

	switch cfg.StoreBackend {
	case StoreBackendPostgres, StoreBackendSQLite, StoreBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %q", cfg.StoreBackend)
	}
	switch cfg.AuthMode {
	case AuthModeGoogle, AuthModeJWT:
	default:
		return nil, fmt.Errorf("unsupported AUTH_MODE: %q", cfg.AuthMode)
	}
	switch cfg.AIProvider {
	case AIProviderOpenRouter, AIProviderGemini:
	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER: %q", cfg.AIProvider)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.StoreBackend == StoreBackendPostgres {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" && cfg.AuthMode == AuthModeGoogle {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" && cfg.AuthMode == AuthModeJWT {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.AIAPIKey = os.Getenv("AI_API_KEY")
	if cfg.AIAPIKey == "" {
		missing = append(missing, "AI_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SQLitePath = getEnvString("SQLITE_PATH", "mockprep.db")
	cfg.StoreNamespace = getEnvString("STORE_NAMESPACE", "mockprep")
	cfg.AIEndpoint = getEnvString("AI_ENDPOINT", defaultAIEndpoint(cfg.AIProvider))
	cfg.AIModel = getEnvString("AI_MODEL", defaultAIModel(cfg.AIProvider))
	cfg.AITimeout = getEnvDuration("AI_TIMEOUT", 60*time.Second)
	cfg.AIMaxResponseSize = getEnvInt64("AI_MAX_RESPONSE_SIZE", 1048576)
	cfg.EvalMaxConcurrent = getEnvInt("EVAL_MAX_CONCURRENT", 4)
	cfg.EvalQueueSize = getEnvInt("EVAL_QUEUE_SIZE", 100)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAI = getEnvInt("RATE_LIMIT_AI", 10)
	cfg.ResumeRetentionDays = getEnvInt("RESUME_RETENTION_DAYS", 90)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func defaultAIEndpoint(provider string) string {
	if provider == AIProviderGemini {
		return ""
	}
	return "https://openrouter.ai/api/v1/chat/completions"
}

func defaultAIModel(provider string) string {
	if provider == AIProviderGemini {
		return "gemini-2.5-flash"
	}
	return "meta-llama/llama-3.3-70b-instruct"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
