package config

import (
	"os"
	"strconv"
	"time"

	"docflow/internal/apperrors"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	GigaChat   GigaChatConfig
	Extraction ExtractionConfig
	Upload     UploadConfig
	Logger     LoggerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	MigrationsDir string
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	RefreshExp time.Duration
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
}

// ExtractionConfig bounds the AI calls: every extraction carries
// Timeout, splitting fans out at most SplitConcurrency pages at once,
// and bulk analysis processes AnalyzeBatchSize documents per call.
type ExtractionConfig struct {
	Timeout          time.Duration
	SplitConcurrency int
	AnalyzeBatchSize int
}

type UploadConfig struct {
	MaxFiles     int
	MaxFileSize  int64
	MaxTotalSize int64
}

type LoggerConfig struct {
	Level string
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work for Docker/K8s.
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "8"))
	refreshExp, _ := strconv.Atoi(getEnv("JWT_REFRESH_EXPIRATION_HOURS", "168"))
	extractionTimeout, _ := strconv.Atoi(getEnv("EXTRACTION_TIMEOUT_SECONDS", "90"))
	splitConcurrency, _ := strconv.Atoi(getEnv("SPLIT_CONCURRENCY", "3"))
	analyzeBatchSize, _ := strconv.Atoi(getEnv("ANALYZE_BATCH_SIZE", "3"))
	maxFiles, _ := strconv.Atoi(getEnv("UPLOAD_MAX_FILES", "20"))
	maxFileSize, _ := strconv.ParseInt(getEnv("UPLOAD_MAX_FILE_SIZE", "10485760"), 10, 64)
	maxTotalSize, _ := strconv.ParseInt(getEnv("UPLOAD_MAX_TOTAL_SIZE", "104857600"), 10, 64)

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:          getEnv("DB_HOST", "localhost"),
			Port:          getEnv("DB_PORT", "5432"),
			User:          getEnv("DB_USER", "postgres"),
			Password:      getEnv("DB_PASSWORD", "postgres"),
			DBName:        getEnv("DB_NAME", "docflow"),
			SSLMode:       getEnv("DB_SSLMODE", "disable"),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "migrations"),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
			RefreshExp: time.Duration(refreshExp) * time.Hour,
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "false") == "true",
		},
		Extraction: ExtractionConfig{
			Timeout:          time.Duration(extractionTimeout) * time.Second,
			SplitConcurrency: splitConcurrency,
			AnalyzeBatchSize: analyzeBatchSize,
		},
		Upload: UploadConfig{
			MaxFiles:     maxFiles,
			MaxFileSize:  maxFileSize,
			MaxTotalSize: maxTotalSize,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.GigaChat.APIKey == "" {
		return nil, apperrors.Configuration("GIGACHAT_API_KEY is not set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
