package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	OSS       OSSConfig
	JWT       JWTConfig
	Admin     AdminConfig
	GigaChat  GigaChatConfig
	Embedding EmbeddingConfig
	KB        KBConfig
	Learning  LearningConfig
	Logger    LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig configures the shared response cache. The cache is optional;
// with an empty Addr the server runs without it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// OSSConfig configures the blob log store holding newline-delimited chat logs
// under a date-based prefix. Optional; with an empty Bucket only the
// structured store is used.
type OSSConfig struct {
	Endpoint        string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	LogPrefix       string
	FallbackDays    int
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
}

// AdminConfig holds the single administrative account allowed to trigger
// reloads and inspect knowledge-store status.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint. With an
// empty BaseURL semantic matching is disabled and the matcher runs
// keyword-only.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// KBConfig holds the matcher thresholds and hybrid weights.
type KBConfig struct {
	SimilarityThreshold float64
	JaccardThreshold    float64
	SemanticThreshold   float64
	KeywordWeight       float64
	SemanticWeight      float64
	FetchTimeout        time.Duration
}

// LearningConfig drives the two background jobs: periodic full reload and
// periodic auto-learning from recent conversations.
type LearningConfig struct {
	AutoReloadEnabled  bool
	ReloadInterval     time.Duration
	AutoLearnEnabled   bool
	LearnInterval      time.Duration
	MinQualityScore    float64
	MaxItemsPerRun     int
	DuplicateThreshold float64
}

func Load() (*Config, error) {
	// Try to load .env from the current directory or the project root;
	// plain environment variables work too (Docker/K8s).
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "hokhau_ai"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("RESPONSE_CACHE_TTL", time.Hour),
		},
		OSS: OSSConfig{
			Endpoint:        getEnv("OSS_ENDPOINT", ""),
			AccessKeyID:     getEnv("OSS_ACCESS_KEY_ID", ""),
			AccessKeySecret: getEnv("OSS_ACCESS_KEY_SECRET", ""),
			Bucket:          getEnv("OSS_BUCKET", ""),
			LogPrefix:       getEnv("OSS_LOG_PREFIX", "chat-logs"),
			FallbackDays:    getEnvInt("OSS_FALLBACK_DAYS", 30),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: getEnvDuration("JWT_EXPIRATION", 24*time.Hour),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getEnvBool("GIGACHAT_INSECURE_SKIP_VERIFY", true),
			Timeout:            getEnvDuration("GIGACHAT_TIMEOUT", 45*time.Second),
		},
		Embedding: EmbeddingConfig{
			BaseURL: getEnv("EMBEDDING_BASE_URL", ""),
			APIKey:  getEnv("EMBEDDING_API_KEY", ""),
			Model:   getEnv("EMBEDDING_MODEL", "text-embedding-ada-002"),
		},
		KB: KBConfig{
			SimilarityThreshold: getEnvFloat("KB_SIMILARITY_THRESHOLD", 0.80),
			JaccardThreshold:    getEnvFloat("KB_JACCARD_THRESHOLD", 0.30),
			SemanticThreshold:   getEnvFloat("KB_SEMANTIC_THRESHOLD", 0.75),
			KeywordWeight:       getEnvFloat("KB_HYBRID_WEIGHT_KEYWORD", 0.30),
			SemanticWeight:      getEnvFloat("KB_HYBRID_WEIGHT_SEMANTIC", 0.70),
			FetchTimeout:        getEnvDuration("KB_FETCH_TIMEOUT", 30*time.Second),
		},
		Learning: LearningConfig{
			AutoReloadEnabled:  getEnvBool("LEARNING_AUTO_RELOAD_ENABLED", true),
			ReloadInterval:     getEnvDuration("LEARNING_AUTO_RELOAD_INTERVAL", 10*time.Minute),
			AutoLearnEnabled:   getEnvBool("LEARNING_AUTO_LEARN_ENABLED", true),
			LearnInterval:      getEnvDuration("LEARNING_AUTO_LEARN_INTERVAL", 30*time.Minute),
			MinQualityScore:    getEnvFloat("LEARNING_MIN_SCORE_THRESHOLD", 0.60),
			MaxItemsPerRun:     getEnvInt("LEARNING_MAX_AUTO_LEARN_ITEMS", 10),
			DuplicateThreshold: getEnvFloat("LEARNING_DUPLICATE_THRESHOLD", 0.85),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("45s", "10m") and, for
// compatibility with older deployments, bare integers meaning seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
