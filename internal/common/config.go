package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
	Secrets  SecretsConfig
	Session  SessionConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "pgx" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	ExtractRate    float64 // requests per second per client on /extract
	ExtractBurst   int
	MaxUploadBytes int64
	WasmDir        string // holds intake.wasm and wasm_exec.js
}

// AppConfig holds user-facing settings
type AppConfig struct {
	MaxFileCount   int
	OutputFilename string
	DriveFolderID  string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Backend     string // "gemini" or "local"
	Model       string
	Temperature float32
	Timeout     time.Duration
	TessdataDir string
}

// LLMConfig holds the analysis model configuration
type LLMConfig struct {
	Model   string
	Timeout time.Duration
}

// PipelineConfig sizes the extraction worker pool
type PipelineConfig struct {
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	GroupByFile bool
}

// SecretsConfig holds the stored-secret ids and the values used in local mode
type SecretsConfig struct {
	UseLocalEnv   bool
	CacheTTL      time.Duration
	GoogleAPIKey  string
	OpenAIAPIKey  string
	AdminPassword string

	IDGoogleKey     string
	IDOpenAIKey     string
	IDAdminPassword string
	IDDriveFolder   string
}

// SessionConfig holds admin session settings
type SessionConfig struct {
	SecretKey string
	MaxAge    time.Duration
}

const (
	DefaultOutputFilename = "明細書EXCEL出力"
	DefaultDriveFolderID  = "1BsdbbCisTpP7mxzOuDSnASxpEqGTdcEL"
	defaultSessionSecret  = "change-me-in-production"
)

// LoadDotEnv loads the first .env file found among paths (default ".env").
// A missing file is not an error; variables already set are not overridden.
func LoadDotEnv(paths ...string) string {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "sqlite"),
			DSN:              getEnv("DB_URL", "file:bill-extractor.db?_pragma=busy_timeout(5000)"),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			GRPCAddr:       getEnv("GRPC_ADDR", ":9090"),
			ExtractRate:    getEnvAsFloat64("EXTRACT_RATE", 1),
			ExtractBurst:   getEnvAsInt("EXTRACT_BURST", 5),
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 100)) << 20,
			WasmDir:        getEnv("WASM_DIR", "web/wasm"),
		},
		App: AppConfig{
			MaxFileCount:   getEnvAsInt("MAX_FILE_COUNT", 10),
			OutputFilename: getEnv("OUTPUT_FILENAME", DefaultOutputFilename),
			DriveFolderID:  getEnv("DRIVE_FOLDER_ID", DefaultDriveFolderID),
		},
		OCR: OCRConfig{
			Backend:     getEnv("OCR_BACKEND", "gemini"),
			Model:       getEnv("OCR_MODEL", "gemini-2.5-flash"),
			Temperature: getEnvAsFloat32("OCR_TEMPERATURE", 0.7),
			Timeout:     getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
		},
		LLM: LLMConfig{
			Model:   getEnv("ANALYZE_MODEL", "gpt-4.1"),
			Timeout: getEnvAsDuration("LLM_TIMEOUT", 2*time.Minute),
		},
		Pipeline: PipelineConfig{
			Workers:     getEnvAsInt("PIPELINE_WORKERS", 4),
			QueueSize:   getEnvAsInt("PIPELINE_QUEUE_SIZE", 64),
			Timeout:     getEnvAsDuration("PIPELINE_TIMEOUT", 10*time.Minute),
			GroupByFile: getEnvAsBool("PIPELINE_GROUP_BY_FILE", false),
		},
		Secrets: SecretsConfig{
			UseLocalEnv:     getEnvAsBool("USE_LOCAL_ENV", false),
			CacheTTL:        getEnvAsDuration("SECRET_CACHE_TTL", 5*time.Minute),
			GoogleAPIKey:    getEnv("GOOGLE_API_KEY", ""),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			AdminPassword:   getEnv("ADMIN_PASSWORD", ""),
			IDGoogleKey:     getEnv("SECRET_ID_GOOGLE_KEY", "meisaisyo-google-api-key"),
			IDOpenAIKey:     getEnv("SECRET_ID_OPENAI_KEY", "meisaisyo-openai-api-key"),
			IDAdminPassword: getEnv("SECRET_ID_ADMIN_PASSWORD", "meisaisyo-admin-password"),
			IDDriveFolder:   getEnv("SECRET_ID_DRIVE_FOLDER", "meisaisyo-drive-folder-id"),
		},
		Session: SessionConfig{
			SecretKey: getEnv("SESSION_SECRET_KEY", defaultSessionSecret),
			MaxAge:    time.Duration(getEnvAsInt("SESSION_MAX_AGE", 86400)) * time.Second,
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("DB_URL", c.Database.DSN, Required).
		Field("DB_DRIVER", c.Database.Driver, OneOf("pgx", "sqlite")).
		Field("HTTP_ADDR", c.Server.HTTPAddr, Required).
		Field("OCR_BACKEND", c.OCR.Backend, OneOf("gemini", "local")).
		Field("OUTPUT_FILENAME", c.App.OutputFilename, Required, MaxLength(100)).
		Field("MAX_FILE_COUNT", c.App.MaxFileCount, Positive).
		Field("PIPELINE_WORKERS", c.Pipeline.Workers, Positive)
	if !c.Secrets.UseLocalEnv && c.Session.SecretKey == defaultSessionSecret {
		v.Field("SESSION_SECRET_KEY", c.Session.SecretKey, func(name string, value interface{}) *ValidationError {
			return &ValidationError{Field: name, Value: "***", Message: "must be changed outside local mode"}
		})
	}
	if v.HasErrors() {
		return NewAppError(CodeConfig, v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
