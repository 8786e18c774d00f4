package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/contextual-book-translator/internal/llm"
	"github.com/MimeLyc/contextual-book-translator/pkg/file"
	"github.com/MimeLyc/contextual-book-translator/pkg/icron"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Values are layered: defaults, then the YAML config file, then environment
// variables, then Options. Validate runs last.
//
// Environment Variables:
// LLM Configuration:
// - LLM_PROVIDER: "http" (built-in client) or "openai" (official SDK) (default: http)
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Per-call timeout in seconds (default: 300)
// - LLM_SITE_URL / LLM_APP_NAME: optional attribution headers
//
// Translate Configuration:
// - TRANSLATE_PROMPT: prompt template with {source_language}/{target_language}
// - TARGET_LANGUAGE: BCP 47 tag (default: zh-Hans)
// - MAX_CONNECTIONS: concurrent translation calls (default: 4)
// - MAX_ATTEMPTS: attempts per chapter (default: 3)
// - RETRY_DELAY: initial backoff, Go duration (default: 2s)
// - CRON_EXPR: schedule for --schedule mode (optional)
//
// Storage Configuration:
// - CACHE_DIR: translation cache directory (default: ./translation_cache)
// - CACHE_BACKEND: "file" or "sqlite" (default: file)
// - OUTPUT_DIR: where completed books are handed off (required, must exist)
// - PRUNE_COMPLETED: drop cache records once exported (default: true)
//
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - CONFIG_FILE: YAML config file (default: ./config.yaml)
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Translate TranslateConfig `json:"translate"`
	Storage   StorageConfig   `json:"storage"`
	Log       LogConfig       `json:"log"`
}

const (
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"

	DefaultConfigFile = "./config.yaml"
)

// LLMConfig holds the configuration for the translation backend.
type LLMConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"-"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// ClientConfig converts to the llm package configuration.
func (c LLMConfig) ClientConfig() *llm.Config {
	return &llm.Config{
		APIKey:      c.APIKey,
		APIURL:      c.APIURL,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		Timeout:     c.Timeout,
		SiteURL:     c.SiteURL,
		AppName:     c.AppName,
	}
}

// CallTimeout is the bound on one translation call.
func (c LLMConfig) CallTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

type TranslateConfig struct {
	Prompt         string        `json:"prompt"`
	TargetLanguage string        `json:"target_language"`
	MaxConnections int           `json:"max_connections"`
	MaxAttempts    int           `json:"max_attempts"`
	RetryDelay     time.Duration `json:"retry_delay"`
	CronExpr       string        `json:"cron_expr"`
}

// Target returns the parsed target language. Validate guarantees it parses.
func (c TranslateConfig) Target() language.Tag {
	tag, err := language.Parse(c.TargetLanguage)
	if err != nil {
		return language.Und
	}
	return tag
}

type StorageConfig struct {
	CacheDir       string `json:"cache_dir"`
	CacheBackend   string `json:"cache_backend"`
	OutputDir      string `json:"output_dir"`
	PruneCompleted bool   `json:"prune_completed"`
}

type LogConfig struct {
	Level string `json:"level"`
}

// FieldError reports an invalid configuration field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Option is a function type for configuring Config
type Option func(*Config)

func WithCronExpr(expr string) Option {
	return func(c *Config) { c.Translate.CronExpr = expr }
}

func WithLogLevel(level string) Option {
	return func(c *Config) { c.Log.Level = level }
}

func WithOutputDir(dir string) Option {
	return func(c *Config) { c.Storage.OutputDir = dir }
}

func WithCacheDir(dir string) Option {
	return func(c *Config) { c.Storage.CacheDir = dir }
}

func WithAPIKey(key string) Option {
	return func(c *Config) { c.LLM.APIKey = key }
}

func defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderHTTP,
			APIURL:      "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4o-mini",
			MaxTokens:   8000,
			Temperature: 0.3,
			Timeout:     300,
		},
		Translate: TranslateConfig{
			TargetLanguage: "zh-Hans",
			MaxConnections: 4,
			MaxAttempts:    3,
			RetryDelay:     2 * time.Second,
		},
		Storage: StorageConfig{
			CacheDir:       "./translation_cache",
			CacheBackend:   "file",
			PruneCompleted: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path names the YAML config file; when
// empty, CONFIG_FILE or ./config.yaml is used and a missing file is not an
// error.
func Load(path string, opts ...Option) (*Config, error) {
	config := defaults()

	explicit := path != ""
	if !explicit {
		path = getEnvString("CONFIG_FILE", "")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultConfigFile
	}
	if err := applyFile(config, file.ExpandHome(path), explicit); err != nil {
		return nil, err
	}

	applyEnv(config)

	for _, opt := range opts {
		opt(config)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: llm=%s/%s translate=%+v storage=%+v",
		config.LLM.Provider, config.LLM.Model, config.Translate, config.Storage)
	return config, nil
}

func applyEnv(c *Config) {
	c.LLM.Provider = getEnvString("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.APIKey = getEnvString("LLM_API_KEY", c.LLM.APIKey)
	c.LLM.APIURL = getEnvString("LLM_API_URL", c.LLM.APIURL)
	c.LLM.Model = getEnvString("LLM_MODEL", c.LLM.Model)
	c.LLM.MaxTokens = getEnvInt("LLM_MAX_TOKENS", c.LLM.MaxTokens)
	c.LLM.Temperature = getEnvFloat("LLM_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout = getEnvInt("LLM_TIMEOUT", c.LLM.Timeout)
	c.LLM.SiteURL = getEnvString("LLM_SITE_URL", c.LLM.SiteURL)
	c.LLM.AppName = getEnvString("LLM_APP_NAME", c.LLM.AppName)

	c.Translate.Prompt = getEnvString("TRANSLATE_PROMPT", c.Translate.Prompt)
	c.Translate.TargetLanguage = getEnvString("TARGET_LANGUAGE", c.Translate.TargetLanguage)
	c.Translate.MaxConnections = getEnvInt("MAX_CONNECTIONS", c.Translate.MaxConnections)
	c.Translate.MaxAttempts = getEnvInt("MAX_ATTEMPTS", c.Translate.MaxAttempts)
	c.Translate.RetryDelay = getEnvDuration("RETRY_DELAY", c.Translate.RetryDelay)
	c.Translate.CronExpr = getEnvString("CRON_EXPR", c.Translate.CronExpr)

	c.Storage.CacheDir = getEnvString("CACHE_DIR", c.Storage.CacheDir)
	c.Storage.CacheBackend = getEnvString("CACHE_BACKEND", c.Storage.CacheBackend)
	c.Storage.OutputDir = getEnvString("OUTPUT_DIR", c.Storage.OutputDir)
	c.Storage.PruneCompleted = getEnvBool("PRUNE_COMPLETED", c.Storage.PruneCompleted)

	c.Log.Level = getEnvString("LOG_LEVEL", c.Log.Level)
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Storage.CacheBackend = strings.ToLower(strings.TrimSpace(c.Storage.CacheBackend))
	c.Storage.CacheDir = absPath(c.Storage.CacheDir)
	c.Storage.OutputDir = absPath(c.Storage.OutputDir)
}

func absPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	p = file.ExpandHome(p)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Validate reports every invalid field, joined.
func (c *Config) Validate() error {
	var errs []error
	fail := func(field string, err error) {
		errs = append(errs, &FieldError{Field: field, Err: err})
	}

	switch c.LLM.Provider {
	case ProviderHTTP, ProviderOpenAI:
	default:
		fail("llm.provider", fmt.Errorf("unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		fail("api_key", errors.New("LLM_API_KEY is required"))
	}
	if c.LLM.APIURL == "" {
		fail("llm.api_url", errors.New("is required"))
	}
	if c.LLM.Model == "" {
		fail("llm.model", errors.New("is required"))
	}
	if c.LLM.MaxTokens < 1 {
		fail("llm.max_tokens", errors.New("must be greater than 0"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		fail("llm.temperature", errors.New("must be between 0 and 2"))
	}
	if c.LLM.Timeout < 1 {
		fail("llm.timeout", errors.New("must be greater than 0"))
	}

	if _, err := language.Parse(c.Translate.TargetLanguage); err != nil {
		fail("target_language", err)
	}
	if c.Translate.MaxConnections < 1 {
		fail("max_connections", errors.New("must be at least 1"))
	}
	if c.Translate.MaxAttempts < 1 {
		fail("max_attempts", errors.New("must be at least 1"))
	}
	if c.Translate.RetryDelay < 0 {
		fail("retry_delay", errors.New("must not be negative"))
	}
	if c.Translate.CronExpr != "" {
		if _, err := icron.Parse(c.Translate.CronExpr); err != nil {
			fail("cron_expr", err)
		}
	}

	switch c.Storage.CacheBackend {
	case "file", "sqlite":
	default:
		fail("cache_backend", fmt.Errorf("unknown backend %q", c.Storage.CacheBackend))
	}
	if c.Storage.CacheDir == "" {
		fail("cache_dir", errors.New("is required"))
	}
	if err := validateOutputDir(c.Storage.OutputDir); err != nil {
		fail("output_directory", err)
	}

	return errors.Join(errs...)
}

// validateOutputDir requires an existing, readable directory.
func validateOutputDir(dir string) error {
	if dir == "" {
		return errors.New("is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("path does not exist: %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory: %s", dir)
	}
	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("not readable: %s", dir)
	}
	_ = f.Close()
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn("Ignoring %s=%q: not an integer", key, value)
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Warn("Ignoring %s=%q: not a number", key, value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
		log.Warn("Ignoring %s=%q: not a boolean", key, value)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Warn("Ignoring %s=%q: not a duration", key, value)
	}
	return defaultValue
}
