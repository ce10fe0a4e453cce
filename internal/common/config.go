package common

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Driver          string        `envconfig:"DB_DRIVER" default:"sqlite"` // sqlite | postgres
	DSN             string        `envconfig:"DB_URL" default:"comparador.db"`
	MaxOpenConns    int           `envconfig:"DB_MAX_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthTimeout   time.Duration `envconfig:"DB_HEALTH_TIMEOUT" default:"3s"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string        `envconfig:"HTTP_ADDR" default:":8080"`
	AllowedOrigins []string      `envconfig:"CORS_ORIGINS" default:"*"`
	ReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"33554432"` // 32 MiB per request
}

// OCRConfig holds text-extraction configuration.
type OCRConfig struct {
	Provider string        `envconfig:"OCR_PROVIDER" default:"api"` // api | tesseract
	APIURL   string        `envconfig:"OCR_API_URL" default:"https://api.ocr.space/parse/image"`
	APIKey   string        `envconfig:"OCR_API_KEY"`
	Language string        `envconfig:"OCR_LANGUAGE" default:"spa"`
	Timeout  time.Duration `envconfig:"OCR_TIMEOUT" default:"60s"`

	// Local-binary adapter settings.
	Pdftotext string `envconfig:"OCR_PDFTOTEXT" default:"pdftotext"`
	Pdftoppm  string `envconfig:"OCR_PDFTOPPM" default:"pdftoppm"`
	Tesseract string `envconfig:"OCR_TESSERACT" default:"tesseract"`
	DPI       int    `envconfig:"OCR_DPI" default:"300"`
}

// LLMConfig holds comparison-backend configuration.
type LLMConfig struct {
	BaseURL       string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	APIKey        string        `envconfig:"OPENAI_API_KEY"`
	Model         string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	FallbackModel string        `envconfig:"OPENAI_FALLBACK_MODEL" default:"gpt-4o"`
	Temperature   float32       `envconfig:"OPENAI_TEMPERATURE" default:"0.0"`
	Timeout       time.Duration `envconfig:"OPENAI_TIMEOUT" default:"90s"`
}

// PipelineConfig holds batch-processing configuration.
type PipelineConfig struct {
	UploadDir   string        `envconfig:"UPLOAD_DIR" default:"./tmp/uploads"`
	PairTimeout time.Duration `envconfig:"PAIR_TIMEOUT" default:"5m"` // ceiling for one OCR+compare round trip
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, WrapError(err, "load config")
	}
	return &cfg, nil
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.OCR.Provider == "api" && c.OCR.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OCR_API_KEY is required when OCR_PROVIDER=api", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
