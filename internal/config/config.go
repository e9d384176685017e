// Package config provides engine configuration: defaults, validation, and
// loading from JSON or YAML files and LAKESCAN_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config represents the configuration of a dataset and its queries
type Config struct {
	// Execution
	WorkerPoolSize     int    `json:"worker_pool_size" yaml:"worker_pool_size"`         // Concurrent scan tasks (0 = runtime.NumCPU())
	BatchSize          int64  `json:"batch_size" yaml:"batch_size"`                     // Rows decoded per record batch
	PreviewBatchSize   int64  `json:"preview_batch_size" yaml:"preview_batch_size"`     // Rows decoded per batch when previewing
	ParallelColumnRead bool   `json:"parallel_column_read" yaml:"parallel_column_read"` // Decode the columns of one file concurrently
	OnError            string `json:"on_error" yaml:"on_error"`                         // abort or skip

	// Dataset layout
	SidecarSchema  bool     `json:"sidecar_schema" yaml:"sidecar_schema"`   // Use _common_metadata / _metadata when present
	FileExtensions []string `json:"file_extensions" yaml:"file_extensions"` // Data file suffixes

	// Observability
	LogLevel          string `json:"log_level" yaml:"log_level"`                   // debug, info, warn or error
	LogFormat         string `json:"log_format" yaml:"log_format"`                 // text or json
	MetricsCollection bool   `json:"metrics_collection" yaml:"metrics_collection"` // Enable metrics collection
}

// Global configuration instance
var (
	globalConfig Config
	configMutex  sync.RWMutex
)

// Default configuration values
const (
	DefaultBatchSize        = 64 * 1024
	DefaultPreviewBatchSize = 1024
	DefaultOnError          = "abort"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// DefaultFileExtensions are the data file suffixes listed by default.
var DefaultFileExtensions = []string{".parquet", ".parq"}

func init() {
	globalConfig = NewConfig()
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		WorkerPoolSize:   0, // Auto-detect
		BatchSize:        DefaultBatchSize,
		PreviewBatchSize: DefaultPreviewBatchSize,
		OnError:          DefaultOnError,

		SidecarSchema:  true,
		FileExtensions: append([]string(nil), DefaultFileExtensions...),

		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("WorkerPoolSize must be non-negative, got %d", c.WorkerPoolSize)
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("BatchSize must be positive, got %d", c.BatchSize)
	}

	if c.PreviewBatchSize <= 0 {
		return fmt.Errorf("PreviewBatchSize must be positive, got %d", c.PreviewBatchSize)
	}

	switch strings.ToLower(c.OnError) {
	case "abort", "skip":
	default:
		return fmt.Errorf("OnError must be abort or skip, got %q", c.OnError)
	}

	if len(c.FileExtensions) == 0 {
		return fmt.Errorf("FileExtensions must not be empty")
	}
	for _, ext := range c.FileExtensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("FileExtensions entries must look like .ext, got %q", ext)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LogLevel must be debug, info, warn or error, got %q", c.LogLevel)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LogFormat must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.BatchSize == 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.PreviewBatchSize == 0 {
		c.PreviewBatchSize = defaults.PreviewBatchSize
	}
	if c.OnError == "" {
		c.OnError = defaults.OnError
	}
	if len(c.FileExtensions) == 0 {
		c.FileExtensions = defaults.FileExtensions
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaults.LogFormat
	}

	// Boolean fields keep their zero value so an explicit false survives.
	// Use NewConfig() directly if you need boolean defaults.

	return c
}

// Workers returns the effective worker pool size.
func (c Config) Workers() int {
	if c.WorkerPoolSize <= 0 {
		return runtime.NumCPU()
	}
	return c.WorkerPoolSize
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = config
}

// GetGlobalConfig returns the current global configuration
func GetGlobalConfig() Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// LoadFromJSON loads configuration from JSON data
func LoadFromJSON(data []byte) (Config, error) {
	config := NewConfig()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromYAML loads configuration from YAML data
func LoadFromYAML(data []byte) (Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing YAML configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a .json, .yaml or .yml file. Keys
// absent from the file keep their NewConfig value.
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		config, err = LoadFromJSON(data)
	case ".yaml", ".yml":
		config, err = LoadFromYAML(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", filename, err)
	}

	return config, nil
}

// LoadFromEnv applies LAKESCAN_* environment variables on top of base.
// Unparseable values are ignored.
func LoadFromEnv(base Config) Config {
	config := base

	if val := os.Getenv("LAKESCAN_WORKER_POOL_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.WorkerPoolSize = parsed
		}
	}

	if val := os.Getenv("LAKESCAN_BATCH_SIZE"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.BatchSize = parsed
		}
	}

	if val := os.Getenv("LAKESCAN_PREVIEW_BATCH_SIZE"); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.PreviewBatchSize = parsed
		}
	}

	if val := os.Getenv("LAKESCAN_PARALLEL_COLUMN_READ"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.ParallelColumnRead = parsed
		}
	}

	if val := os.Getenv("LAKESCAN_ON_ERROR"); val != "" {
		config.OnError = val
	}

	if val := os.Getenv("LAKESCAN_SIDECAR_SCHEMA"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.SidecarSchema = parsed
		}
	}

	if val := os.Getenv("LAKESCAN_FILE_EXTENSIONS"); val != "" {
		var exts []string
		for _, e := range strings.Split(val, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, e)
			}
		}
		config.FileExtensions = exts
	}

	if val := os.Getenv("LAKESCAN_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	if val := os.Getenv("LAKESCAN_LOG_FORMAT"); val != "" {
		config.LogFormat = val
	}

	if val := os.Getenv("LAKESCAN_METRICS_COLLECTION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.MetricsCollection = parsed
		}
	}

	return config
}
