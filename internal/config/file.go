package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileSettings mirrors config.yaml. The flat keys (api_key, prompt,
// max_connections, output_directory) are the long-standing ones; the
// nested blocks cover the rest. Zero values leave the default in place.
type fileSettings struct {
	APIKey          string `yaml:"api_key"`
	Prompt          string `yaml:"prompt"`
	MaxConnections  int    `yaml:"max_connections"`
	OutputDirectory string `yaml:"output_directory"`

	LLM struct {
		Provider    string   `yaml:"provider"`
		APIURL      string   `yaml:"api_url"`
		Model       string   `yaml:"model"`
		MaxTokens   int      `yaml:"max_tokens"`
		Temperature *float64 `yaml:"temperature"`
		Timeout     int      `yaml:"timeout"`
		SiteURL     string   `yaml:"site_url"`
		AppName     string   `yaml:"app_name"`
	} `yaml:"llm"`

	TargetLanguage string `yaml:"target_language"`
	MaxAttempts    int    `yaml:"max_attempts"`
	RetryDelay     string `yaml:"retry_delay"`
	CronExpr       string `yaml:"cron_expr"`

	CacheDir       string `yaml:"cache_dir"`
	CacheBackend   string `yaml:"cache_backend"`
	PruneCompleted *bool  `yaml:"prune_completed"`

	LogLevel string `yaml:"log_level"`
}

// applyFile overlays the YAML file at path onto c. A missing file is only
// an error when the path was requested explicitly.
func applyFile(c *Config, path string, explicit bool) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return &FieldError{Field: "config_file", Err: err}
	}

	var s fileSettings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return &FieldError{Field: "config_file", Err: fmt.Errorf("%s: %w", path, err)}
	}

	setString(&c.LLM.APIKey, s.APIKey)
	setString(&c.Translate.Prompt, s.Prompt)
	setInt(&c.Translate.MaxConnections, s.MaxConnections)
	setString(&c.Storage.OutputDir, s.OutputDirectory)

	setString(&c.LLM.Provider, s.LLM.Provider)
	setString(&c.LLM.APIURL, s.LLM.APIURL)
	setString(&c.LLM.Model, s.LLM.Model)
	setInt(&c.LLM.MaxTokens, s.LLM.MaxTokens)
	if s.LLM.Temperature != nil {
		c.LLM.Temperature = *s.LLM.Temperature
	}
	setInt(&c.LLM.Timeout, s.LLM.Timeout)
	setString(&c.LLM.SiteURL, s.LLM.SiteURL)
	setString(&c.LLM.AppName, s.LLM.AppName)

	setString(&c.Translate.TargetLanguage, s.TargetLanguage)
	setInt(&c.Translate.MaxAttempts, s.MaxAttempts)
	if s.RetryDelay != "" {
		d, err := time.ParseDuration(s.RetryDelay)
		if err != nil {
			return &FieldError{Field: "retry_delay", Err: err}
		}
		c.Translate.RetryDelay = d
	}
	setString(&c.Translate.CronExpr, s.CronExpr)

	setString(&c.Storage.CacheDir, s.CacheDir)
	setString(&c.Storage.CacheBackend, s.CacheBackend)
	if s.PruneCompleted != nil {
		c.Storage.PruneCompleted = *s.PruneCompleted
	}

	setString(&c.Log.Level, s.LogLevel)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
