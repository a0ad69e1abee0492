// Package config loads application configuration from an optional YAML file
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
)

// envPrefix is prepended to every key when read from the environment.
const envPrefix = "GITSENTINEL_"

// fileEnv names the environment variable pointing at the YAML config file.
const fileEnv = envPrefix + "CONFIG"

// keys lists every recognised configuration key. YAML files use the same
// names in lower case.
var keys = []string{
	"GITHUB_TOKEN",
	"GITHUB_API_URL",
	"RATE_LIMIT_PER_HOUR",
	"REQUEST_TIMEOUT",
	"MAX_CONCURRENT",
	"DAILY_SCAN_TIME",
	"WEEKLY_SCAN_DAY",
	"WEEKLY_SCAN_TIME",
	"SCHEDULER_TIMEZONE",
	"TASK_TIMEOUT",
	"LISTEN_ADDR",
	"DB_PATH",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"SMTP_HOST",
	"SMTP_PORT",
	"SMTP_USERNAME",
	"SMTP_PASSWORD",
	"SMTP_FROM",
	"SLACK_WEBHOOK_URL",
	"DISCORD_WEBHOOK_URL",
	"WEBHOOK_TIMEOUT",
}

// Config holds the validated application configuration.
type Config struct {
	GitHubToken      string `masq:"secret"`
	GitHubAPIURL     string
	// RateLimitPerHour of -1 disables the client-side budget.
	RateLimitPerHour int
	RequestTimeout   time.Duration
	MaxConcurrent    int

	DailyScanTime  model.TimeOfDay
	WeeklyScanDay  time.Weekday
	WeeklyScanTime model.TimeOfDay
	Location       *time.Location
	TaskTimeout    time.Duration

	ListenAddr string
	DBPath     string
	LogLevel   string
	LogFormat  string

	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string `masq:"secret"`
	SMTPFrom          string
	SlackWebhookURL   string `masq:"secret"`
	DiscordWebhookURL string `masq:"secret"`
	WebhookTimeout    time.Duration
}

// Load reads configuration and returns a validated Config. Values come from
// the YAML file named by GITSENTINEL_CONFIG, if set, overridden by
// GITSENTINEL_-prefixed environment variables. GITSENTINEL_GITHUB_TOKEN is
// required; every other key has a default.
func Load() (*Config, error) {
	values := make(map[string]string)

	if path := os.Getenv(fileEnv); path != "" {
		fileValues, err := readFile(path)
		if err != nil {
			return nil, err
		}
		values = fileValues
	}

	for _, key := range keys {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			values[key] = v
		}
	}

	return parse(values)
}

// readFile decodes a flat YAML mapping of lower-case keys to scalars.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(k)
		if !slices.Contains(keys, key) {
			return nil, fmt.Errorf("config file %s: unknown key %q", path, k)
		}
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config file %s: key %q must be a scalar", path, k)
		case nil:
			continue
		}
		values[key] = fmt.Sprint(v)
	}

	return values, nil
}

// parser reads typed values and collects every validation failure.
type parser struct {
	values map[string]string
	errs   []error
}

func (p *parser) fail(key, format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf("%s%s %s", envPrefix, key, fmt.Sprintf(format, args...)))
}

func (p *parser) str(key, def string) string {
	if v, ok := p.values[key]; ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, "has invalid integer %q", v)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, "has invalid duration %q", v)
		return def
	}
	if d <= 0 {
		p.fail(key, "must be positive, got %s", d)
		return def
	}
	return d
}

func (p *parser) timeOfDay(key string, def model.TimeOfDay) model.TimeOfDay {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	t, err := model.ParseTimeOfDay(v)
	if err != nil {
		p.fail(key, "%v", err)
		return def
	}
	return t
}

func (p *parser) oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(p.str(key, def))
	if !slices.Contains(allowed, v) {
		p.fail(key, "must be one of %s, got %q", strings.Join(allowed, ", "), v)
		return def
	}
	return v
}

func parse(values map[string]string) (*Config, error) {
	p := &parser{values: values}
	nine := model.TimeOfDay{Hour: 9}

	cfg := &Config{
		GitHubToken:      p.str("GITHUB_TOKEN", ""),
		GitHubAPIURL:     p.str("GITHUB_API_URL", "https://api.github.com/"),
		RateLimitPerHour: p.integer("RATE_LIMIT_PER_HOUR", 5000),
		RequestTimeout:   p.duration("REQUEST_TIMEOUT", 30*time.Second),
		MaxConcurrent:    p.integer("MAX_CONCURRENT", 5),
		DailyScanTime:    p.timeOfDay("DAILY_SCAN_TIME", nine),
		WeeklyScanTime:   p.timeOfDay("WEEKLY_SCAN_TIME", nine),
		TaskTimeout:      p.duration("TASK_TIMEOUT", 5*time.Minute),
		ListenAddr:       p.str("LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:           p.str("DB_PATH", "gitsentinel.db"),
		LogLevel:         p.oneOf("LOG_LEVEL", "info", "debug", "info", "warn", "error"),
		LogFormat:        p.oneOf("LOG_FORMAT", "text", "text", "json"),
		SMTPHost:         p.str("SMTP_HOST", ""),
		SMTPPort:         p.integer("SMTP_PORT", 587),
		SMTPUsername:     p.str("SMTP_USERNAME", ""),
		SMTPPassword:     p.str("SMTP_PASSWORD", ""),
		SMTPFrom:         p.str("SMTP_FROM", ""),
		WebhookTimeout:   p.duration("WEBHOOK_TIMEOUT", 10*time.Second),

		SlackWebhookURL:   p.str("SLACK_WEBHOOK_URL", ""),
		DiscordWebhookURL: p.str("DISCORD_WEBHOOK_URL", ""),
	}

	if cfg.GitHubToken == "" {
		p.errs = append(p.errs, errors.New(envPrefix+"GITHUB_TOKEN is required"))
	}
	if cfg.RateLimitPerHour == 0 || cfg.RateLimitPerHour < -1 {
		p.fail("RATE_LIMIT_PER_HOUR", "must be positive or -1 to disable, got %d", cfg.RateLimitPerHour)
	}
	if cfg.MaxConcurrent < 1 {
		p.fail("MAX_CONCURRENT", "must be at least 1, got %d", cfg.MaxConcurrent)
	}
	if cfg.SMTPPort < 1 || cfg.SMTPPort > 65535 {
		p.fail("SMTP_PORT", "must be a valid port, got %d", cfg.SMTPPort)
	}

	cfg.WeeklyScanDay = time.Monday
	if v, ok := values["WEEKLY_SCAN_DAY"]; ok {
		day, err := model.ParseWeekday(v)
		if err != nil {
			p.fail("WEEKLY_SCAN_DAY", "%v", err)
		} else {
			cfg.WeeklyScanDay = day
		}
	}

	cfg.Location = time.UTC
	if name := p.str("SCHEDULER_TIMEZONE", "UTC"); name != "UTC" {
		loc, err := time.LoadLocation(name)
		if err != nil {
			p.fail("SCHEDULER_TIMEZONE", "is not a known time zone: %q", name)
		} else {
			cfg.Location = loc
		}
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// HasSMTP reports whether outgoing mail is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != ""
}
