package llm

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxChapterTokens caps the completion length of one chapter.
const maxChapterTokens = 128000

// Config describes the chat completions endpoint used for chapter
// translation. It is built from config.LLMConfig.
type Config struct {
	APIKey      string
	APIURL      string
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds one HTTP exchange, in seconds.
	Timeout int
	// SiteURL and AppName are optional OpenRouter attribution headers.
	SiteURL string
	AppName string
}

// Validate reports every unusable field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, errors.New("api key is empty"))
	}
	if _, err := c.endpoint(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model is empty"))
	}
	if c.MaxTokens < 1 || c.MaxTokens > maxChapterTokens {
		errs = append(errs, fmt.Errorf("max tokens %d outside 1..%d", c.MaxTokens, maxChapterTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %.2f outside 0..2", c.Temperature))
	}
	if c.Timeout < 1 {
		errs = append(errs, fmt.Errorf("timeout %ds must be positive", c.Timeout))
	}
	return errors.Join(errs...)
}

// BaseURL is APIURL without a trailing slash, ready for path joins.
func (c *Config) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// endpoint requires an absolute http(s) URL with a host.
func (c *Config) endpoint() (*url.URL, error) {
	raw := c.BaseURL()
	if raw == "" {
		return nil, errors.New("api url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api url %q: missing host", raw)
	}
	return u, nil
}

// Headers are set on every completion request.
func (c *Config) Headers() http.Header {
	h := make(http.Header, 4)
	h.Set("Authorization", "Bearer "+strings.TrimSpace(c.APIKey))
	h.Set("Content-Type", "application/json")
	if c.SiteURL != "" {
		h.Set("HTTP-Referer", c.SiteURL)
	}
	if c.AppName != "" {
		h.Set("X-Title", c.AppName)
	}
	return h
}
