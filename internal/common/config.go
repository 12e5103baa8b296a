// Package common provides shared utilities for Planhound
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Planhound
type Config struct {
	Environment string            `toml:"environment"`
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	Clients     ClientsConfig     `toml:"clients"`
	SMTP        SMTPConfig        `toml:"smtp"`
	Scan        ScanConfig        `toml:"scan"`
	Logging     LoggingConfig     `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds SurrealDB connection configuration.
type StorageConfig struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// ObjectStoreConfig holds S3 (or S3-compatible) configuration for the
// planning-document bucket.
type ObjectStoreConfig struct {
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`   // Key prefix for planning documents, e.g. "planning-files"
	Region    string `toml:"region"`   // AWS region (e.g. "eu-west-1")
	Endpoint  string `toml:"endpoint"` // Custom endpoint for S3-compatible stores (MinIO, R2)
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`

	MaxObjectMB       int `toml:"max_object_mb"`        // Hard per-object size cap (default 25)
	StreamToDiskMB    int `toml:"stream_to_disk_mb"`    // Objects above this spill to a temp file (default 8)
	FolderCacheTTLSec int `toml:"folder_cache_ttl_sec"` // Top-level folder enumeration cache (default 300)
}

// MaxObjectBytes returns the hard per-object size cap in bytes.
func (c *ObjectStoreConfig) MaxObjectBytes() int64 {
	mb := c.MaxObjectMB
	if mb <= 0 {
		mb = 25
	}
	return int64(mb) * 1024 * 1024
}

// StreamToDiskBytes returns the threshold above which object bodies are
// streamed to a temp file instead of held in memory.
func (c *ObjectStoreConfig) StreamToDiskBytes() int64 {
	mb := c.StreamToDiskMB
	if mb <= 0 {
		mb = 8
	}
	return int64(mb) * 1024 * 1024
}

// FolderCacheTTL returns the folder enumeration cache TTL.
func (c *ObjectStoreConfig) FolderCacheTTL() time.Duration {
	sec := c.FolderCacheTTLSec
	if sec <= 0 {
		sec = 300
	}
	return time.Duration(sec) * time.Second
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	Gemini   GeminiConfig   `toml:"gemini"`
	Planning PlanningConfig `toml:"planning"`
	OCR      OCRConfig      `toml:"ocr"`
}

// GeminiConfig holds Gemini classifier configuration.
type GeminiConfig struct {
	APIKey     string `toml:"api_key"`
	Model      string `toml:"model"`       // Full FI detection / type matching
	CheapModel string `toml:"cheap_model"` // Stage 3 pre-filter
	Timeout    string `toml:"timeout"`     // Per-call wall clock, default "60s"
}

// GetTimeout parses and returns the per-call timeout duration
func (c *GeminiConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// PlanningConfig holds planning-metadata API configuration
type PlanningConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *PlanningConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// OCRConfig holds the OCR sidecar configuration.
type OCRConfig struct {
	BaseURL     string `toml:"base_url"`
	MaxPages    int    `toml:"max_pages"`    // Per-document OCR page cap (default 10)
	DPI         int    `toml:"dpi"`          // Rasterisation DPI (default 200)
	PageTimeout string `toml:"page_timeout"` // Per-page OCR timeout, default "30s"
}

// GetMaxPages returns the OCR page cap.
func (c *OCRConfig) GetMaxPages() int {
	if c.MaxPages <= 0 {
		return 10
	}
	return c.MaxPages
}

// GetPageTimeout parses and returns the per-page timeout.
func (c *OCRConfig) GetPageTimeout() time.Duration {
	d, err := time.ParseDuration(c.PageTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// SMTPConfig holds email dispatch configuration.
type SMTPConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	From      string `toml:"from"`
	AdminAddr string `toml:"admin_addr"` // Operator progress/summary mail
}

// ScanConfig holds scan orchestrator tuning.
type ScanConfig struct {
	SchedulerEnabled  bool   `toml:"scheduler_enabled"`
	WorkerConcurrency int    `toml:"worker_concurrency"`
	CheckpointEvery   int    `toml:"checkpoint_every"`     // Docs between checkpoint flushes (default 100)
	WarnRSSMB         int    `toml:"warn_rss_mb"`          // Cool-down threshold (default 1500)
	PauseRSSMB        int    `toml:"pause_rss_mb"`         // Pause threshold (default 1700)
	DocTimeout        string `toml:"doc_timeout"`          // Per-document budget, default "25s"
	MaxTextChars      int    `toml:"max_text_chars"`       // Extraction cap (default 10000)
	OCRMinChars       int    `toml:"ocr_min_chars"`        // Below this the OCR fallback runs (default 100)
	OCRMemoryMarginMB int    `toml:"ocr_memory_margin_mb"` // Free-memory margin required for OCR (default 256)
	AuditRunItems     bool   `toml:"audit_run_items"`      // Persist one DailyRunItem per processed document
}

// GetWorkerConcurrency returns the number of concurrent job processors.
func (c *ScanConfig) GetWorkerConcurrency() int {
	if c.WorkerConcurrency <= 0 {
		return 1
	}
	return c.WorkerConcurrency
}

// GetCheckpointEvery returns the checkpoint flush interval in documents.
func (c *ScanConfig) GetCheckpointEvery() int {
	if c.CheckpointEvery <= 0 {
		return 100
	}
	return c.CheckpointEvery
}

// GetDocTimeout parses and returns the per-document processing budget.
func (c *ScanConfig) GetDocTimeout() time.Duration {
	d, err := time.ParseDuration(c.DocTimeout)
	if err != nil {
		return 25 * time.Second
	}
	return d
}

// GetWarnRSSMB returns the RSS level that triggers a GC cool-down.
func (c *ScanConfig) GetWarnRSSMB() int {
	if c.WarnRSSMB <= 0 {
		return 1500
	}
	return c.WarnRSSMB
}

// GetPauseRSSMB returns the RSS level that pauses the run.
func (c *ScanConfig) GetPauseRSSMB() int {
	if c.PauseRSSMB <= 0 {
		return 1700
	}
	return c.PauseRSSMB
}

// GetMaxTextChars returns the global extracted-text cap.
func (c *ScanConfig) GetMaxTextChars() int {
	if c.MaxTextChars <= 0 {
		return 10000
	}
	return c.MaxTextChars
}

// GetOCRMinChars returns the minimum useful text length before OCR fallback.
func (c *ScanConfig) GetOCRMinChars() int {
	if c.OCRMinChars <= 0 {
		return 100
	}
	return c.OCRMinChars
}

// GetOCRMemoryMarginMB returns the free-memory margin required to run OCR.
func (c *ScanConfig) GetOCRMemoryMarginMB() int {
	if c.OCRMemoryMarginMB <= 0 {
		return 256
	}
	return c.OCRMemoryMarginMB
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000",
			Username:  "root",
			Password:  "root",
			Namespace: "planhound",
			Database:  "planhound",
		},
		ObjectStore: ObjectStoreConfig{
			Prefix:            "planning-files",
			Region:            "eu-west-1",
			MaxObjectMB:       25,
			StreamToDiskMB:    8,
			FolderCacheTTLSec: 300,
		},
		Clients: ClientsConfig{
			Gemini: GeminiConfig{
				Model:      "gemini-2.0-flash",
				CheapModel: "gemini-2.0-flash-lite",
				Timeout:    "60s",
			},
			Planning: PlanningConfig{
				RateLimit: 5,
				Timeout:   "30s",
			},
			OCR: OCRConfig{
				BaseURL:     "http://localhost:8090",
				MaxPages:    10,
				DPI:         200,
				PageTimeout: "30s",
			},
		},
		SMTP: SMTPConfig{
			Port: 587,
		},
		Scan: ScanConfig{
			SchedulerEnabled:  true,
			WorkerConcurrency: 1,
			CheckpointEvery:   100,
			WarnRSSMB:         1500,
			PauseRSSMB:        1700,
			DocTimeout:        "25s",
			MaxTextChars:      10000,
			OCRMinChars:       100,
			OCRMemoryMarginMB: 256,
			AuditRunItems:     true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PLANHOUND_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("PLANHOUND_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("PLANHOUND_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("PLANHOUND_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Storage overrides
	if v := os.Getenv("PLANHOUND_SURREAL_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("PLANHOUND_SURREAL_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("PLANHOUND_SURREAL_PASSWORD"); v != "" {
		config.Storage.Password = v
	}

	// Object store overrides
	if v := os.Getenv("PLANHOUND_S3_BUCKET"); v != "" {
		config.ObjectStore.Bucket = v
	}
	if v := os.Getenv("PLANHOUND_S3_PREFIX"); v != "" {
		config.ObjectStore.Prefix = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		config.ObjectStore.Region = v
	}
	if v := os.Getenv("PLANHOUND_S3_ENDPOINT"); v != "" {
		config.ObjectStore.Endpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.ObjectStore.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.ObjectStore.SecretKey = v
	}
	if v := os.Getenv("MAX_S3_OBJECT_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.ObjectStore.MaxObjectMB = n
		}
	}
	if v := os.Getenv("STREAMING_PDF_THRESHOLD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.ObjectStore.StreamToDiskMB = n
		}
	}

	// Scan overrides
	if v := os.Getenv("SCAN_SCHEDULER_ENABLED"); v != "" {
		config.Scan.SchedulerEnabled = parseBool(v, config.Scan.SchedulerEnabled)
	}
	if v := os.Getenv("SCAN_WORKER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scan.WorkerConcurrency = n
		}
	}
	if v := os.Getenv("OCR_MIN_CHAR_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Scan.OCRMinChars = n
		}
	}

	// Client overrides
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Clients.Gemini.APIKey = v
	}
	if v := os.Getenv("PLANHOUND_PLANNING_API_URL"); v != "" {
		config.Clients.Planning.BaseURL = v
	}
	if v := os.Getenv("PLANHOUND_PLANNING_API_KEY"); v != "" {
		config.Clients.Planning.APIKey = v
	}
	if v := os.Getenv("PLANHOUND_OCR_URL"); v != "" {
		config.Clients.OCR.BaseURL = v
	}

	// SMTP overrides
	if v := os.Getenv("PLANHOUND_SMTP_HOST"); v != "" {
		config.SMTP.Host = v
	}
	if v := os.Getenv("PLANHOUND_SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.SMTP.Port = p
		}
	}
	if v := os.Getenv("PLANHOUND_SMTP_USERNAME"); v != "" {
		config.SMTP.Username = v
	}
	if v := os.Getenv("PLANHOUND_SMTP_PASSWORD"); v != "" {
		config.SMTP.Password = v
	}
	if v := os.Getenv("PLANHOUND_SMTP_FROM"); v != "" {
		config.SMTP.From = v
	}
	if v := os.Getenv("PLANHOUND_ADMIN_ADDR"); v != "" {
		config.SMTP.AdminAddr = v
	}
}

// parseBool interprets common truthy/falsy strings, keeping fallback on junk.
func parseBool(s string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
