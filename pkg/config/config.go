package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Analysis modes
const (
	ModeWholeBatch    = "whole"
	ModeSlidingWindow = "sliding"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig   `envconfig:"SERVER"`
	Database DatabaseConfig `envconfig:"DB"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Storage  StorageConfig  `envconfig:"STORAGE"`
	LLM      LLMConfig      `envconfig:"LLM"`
	Analysis AnalysisConfig `envconfig:"ANALYSIS"`
	Media    MediaConfig    `envconfig:"MEDIA"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string   `split_words:"true" default:"8080"`
	Host            string   `split_words:"true" default:"127.0.0.1"`
	Environment     string   `split_words:"true" default:"development"`
	AllowedOrigins  []string `split_words:"true" default:"http://localhost:3000"`
	ShutdownTimeout int      `split_words:"true" default:"10"`
	APIToken        string   `split_words:"true"`              // optional bearer token for /v1
	RunTTL          int      `split_words:"true" default:"24"` // hours reprocess runs stay queryable
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver      string `split_words:"true" default:"sqlite"` // "sqlite" or "postgres"
	Path        string `split_words:"true" default:"timeline.db"`
	Host        string `split_words:"true" default:"localhost"`
	Port        string `split_words:"true" default:"5432"`
	User        string `split_words:"true" default:"postgres"`
	Password    string `split_words:"true" default:"postgres"`
	Name        string `split_words:"true" default:"timeline_assistant"`
	SSLMode     string `split_words:"true" default:"disable"`
	MaxConns    int    `split_words:"true" default:"10"`
	MinConns    int    `split_words:"true" default:"2"`
	AutoMigrate bool   `split_words:"true" default:"true"`
}

// RedisConfig holds Redis configuration. When disabled, run progress is kept in memory.
type RedisConfig struct {
	Enabled  bool   `split_words:"true" default:"false"`
	Host     string `split_words:"true" default:"localhost"`
	Port     string `split_words:"true" default:"6379"`
	Password string `split_words:"true"`
	DB       int    `split_words:"true" default:"0"`
}

// StorageConfig holds media storage configuration
type StorageConfig struct {
	Type            string `split_words:"true" default:"local"` // "local" or "minio"
	LocalDir        string `split_words:"true" default:"recordings"`
	Endpoint        string `split_words:"true" default:"localhost:9000"`
	AccessKeyID     string `split_words:"true" default:"minioadmin"`
	SecretAccessKey string `split_words:"true" default:"minioadmin"`
	BucketName      string `split_words:"true" default:"timeline-assistant"`
	UseSSL          bool   `split_words:"true" default:"false"`
}

// LLMConfig holds provider configuration. Provider may be overridden at runtime
// through the persisted settings table.
type LLMConfig struct {
	Provider     string        `split_words:"true"` // gemini | openai | local | managed
	CallTimeout  time.Duration `split_words:"true" default:"5m"`
	ReadyTimeout time.Duration `split_words:"true" default:"6m"`
	PollInterval time.Duration `split_words:"true" default:"5s"`
	Gemini       GeminiConfig  `envconfig:"GEMINI"`
	OpenAI       OpenAIConfig  `envconfig:"OPENAI"`
	Local        LocalConfig   `envconfig:"LOCAL"`
	Managed      ManagedConfig `envconfig:"MANAGED"`
}

// GeminiConfig holds hosted multimodal API settings
type GeminiConfig struct {
	APIKey  string `split_words:"true"`
	Model   string `split_words:"true" default:"gemini-2.5-flash"`
	BaseURL string `split_words:"true" default:"https://generativelanguage.googleapis.com"`
}

// OpenAIConfig holds settings for the hosted OpenAI provider
type OpenAIConfig struct {
	APIKey  string `split_words:"true"`
	Model   string `split_words:"true" default:"gpt-4o-mini"`
	BaseURL string `split_words:"true"`
}

// LocalConfig holds settings for an OpenAI-compatible local inference endpoint
type LocalConfig struct {
	BaseURL     string `split_words:"true" default:"http://localhost:11434/v1"`
	Model       string `split_words:"true" default:"qwen2.5vl:7b"`
	TextModel   string `split_words:"true"`
	APIKey      string `split_words:"true" default:"local"`
	MaxCaptions int    `split_words:"true" default:"30"`
}

// ManagedConfig holds settings for the managed analysis backend
type ManagedConfig struct {
	BaseURL string `split_words:"true"`
	Token   string `split_words:"true"`
}

// AnalysisConfig holds batching, validation and scheduling thresholds
type AnalysisConfig struct {
	Mode                string        `split_words:"true" default:"whole"`
	Interval            time.Duration `split_words:"true" default:"60s"`
	MaxGap              time.Duration `split_words:"true" default:"120s"`
	TargetDuration      time.Duration `split_words:"true" default:"900s"`
	MinBatchDuration    time.Duration `split_words:"true" default:"300s"`
	Lookback            time.Duration `split_words:"true" default:"24h"`
	MinCardDuration     time.Duration `split_words:"true" default:"10m"`
	MinDistraction      time.Duration `split_words:"true" default:"30s"`
	CoverageGap         time.Duration `split_words:"true" default:"3m"`
	MinCoverage         float64       `split_words:"true" default:"0.9"`
	ValidationAttempts  int           `split_words:"true" default:"3"`
	TransientRetries    int           `split_words:"true" default:"3"`
	RetryBaseDelay      time.Duration `split_words:"true" default:"2s"`
	SlidingWindow       time.Duration `split_words:"true" default:"1h"`
	DispatchConcurrency int           `split_words:"true" default:"4"`
	StaleProcessing     time.Duration `split_words:"true" default:"30m"`
	ReprocessPoll       time.Duration `split_words:"true" default:"2s"`
	ReprocessWait       time.Duration `split_words:"true" default:"20m"`
	Timezone            string        `split_words:"true" default:"Local"`
	CategoriesFile      string        `split_words:"true" default:"categories.yaml"`
	VideoSummaries      bool          `split_words:"true" default:"false"`
}

// MediaConfig holds local media assembly settings
type MediaConfig struct {
	FFmpegPath    string        `split_words:"true" default:"ffmpeg"`
	WorkDir       string        `split_words:"true"`
	FrameInterval time.Duration `split_words:"true" default:"10s"`
	MaxFrames     int           `split_words:"true" default:"60"`
	TimelapseRate float64       `split_words:"true" default:"20"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables or defaults")
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration. Missing provider credentials are not
// an error here; they surface per batch when the provider is resolved.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	switch c.Storage.Type {
	case "local", "minio":
	default:
		return fmt.Errorf("STORAGE_TYPE must be local or minio, got %q", c.Storage.Type)
	}
	a := c.Analysis
	if a.Mode != ModeWholeBatch && a.Mode != ModeSlidingWindow {
		return fmt.Errorf("ANALYSIS_MODE must be %q or %q", ModeWholeBatch, ModeSlidingWindow)
	}
	if a.Interval <= 0 || a.TargetDuration <= 0 || a.MaxGap <= 0 {
		return fmt.Errorf("analysis interval, target duration and max gap must be positive")
	}
	if a.MinDistraction <= 0 || a.MinDistraction >= a.MinCardDuration {
		return fmt.Errorf("ANALYSIS_MIN_DISTRACTION must be positive and below ANALYSIS_MIN_CARD_DURATION")
	}
	if a.MinCoverage <= 0 || a.MinCoverage > 1 {
		return fmt.Errorf("ANALYSIS_MIN_COVERAGE must be in (0, 1]")
	}
	if a.ValidationAttempts < 1 {
		return fmt.Errorf("ANALYSIS_VALIDATION_ATTEMPTS must be at least 1")
	}
	if _, err := a.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the time zone used for logical days
func (a AnalysisConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYSIS_TIMEZONE %q: %w", a.Timezone, err)
	}
	return loc, nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// DefaultAnalysis returns the analysis thresholds used when nothing is configured
func DefaultAnalysis() AnalysisConfig {
	return AnalysisConfig{
		Mode:                ModeWholeBatch,
		Interval:            60 * time.Second,
		MaxGap:              120 * time.Second,
		TargetDuration:      900 * time.Second,
		MinBatchDuration:    300 * time.Second,
		Lookback:            24 * time.Hour,
		MinCardDuration:     10 * time.Minute,
		MinDistraction:      30 * time.Second,
		CoverageGap:         3 * time.Minute,
		MinCoverage:         0.9,
		ValidationAttempts:  3,
		TransientRetries:    3,
		RetryBaseDelay:      2 * time.Second,
		SlidingWindow:       time.Hour,
		DispatchConcurrency: 4,
		StaleProcessing:     30 * time.Minute,
		ReprocessPoll:       2 * time.Second,
		ReprocessWait:       20 * time.Minute,
		Timezone:            "Local",
	}
}
