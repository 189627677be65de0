// Package config provides configuration loading and validation for the
// autopilot server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds everything the autopilot needs to run. Values come from a JSON
// file, with environment variables filling anything the file leaves empty.
// All fields are optional at load time; Validate enforces what a given
// command actually requires.
type Config struct {
	// Server
	Addr string `json:"addr,omitempty"` // Listen address, default ":8080"

	// Credentials
	GeminiAPIKey   string `json:"gemini_api_key,omitempty"`
	DeepgramAPIKey string `json:"deepgram_api_key,omitempty"`
	SlackBotToken  string `json:"slack_bot_token,omitempty"`

	// Email delivery
	SMTPHost      string `json:"smtp_host,omitempty"`
	SMTPPort      int    `json:"smtp_port,omitempty"`
	SMTPUsername  string `json:"smtp_username,omitempty"`
	SMTPPassword  string `json:"smtp_password,omitempty"`
	EmailFrom     string `json:"email_from,omitempty"`      // Default "noreply@example.com"
	EmailFromName string `json:"email_from_name,omitempty"` // Default "Voice Autopilot"

	// Action targets
	TicketWebhookURL string `json:"ticket_webhook_url,omitempty"`
	CalendarFormURL  string `json:"calendar_form_url,omitempty"`

	// Knowledge base
	KnowledgeDir string `json:"knowledge_dir,omitempty"` // Directory of .md/.txt/.html docs
	IndexPath    string `json:"index_path,omitempty"`    // SQLite file, default "autopilot_kb.sqlite"

	// Run storage. Empty means in-memory.
	DatabaseURL string `json:"database_url,omitempty"`

	// Timezone for date resolution, IANA name. Default "UTC".
	Timezone string `json:"timezone,omitempty"`
}

// Load reads a JSON config file (path may be empty for env-only operation)
// and fills unset fields from the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if !filepath.IsAbs(path) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get current directory: %w", err)
			}
			path = filepath.Join(cwd, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg.fillFromEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) fillFromEnv() {
	setIfEmpty(&c.Addr, "AUTOPILOT_ADDR")
	setIfEmpty(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setIfEmpty(&c.DeepgramAPIKey, "DEEPGRAM_API_KEY")
	setIfEmpty(&c.SlackBotToken, "SLACK_BOT_TOKEN")
	setIfEmpty(&c.SMTPHost, "SMTP_HOST")
	setIfEmpty(&c.SMTPUsername, "SMTP_USERNAME")
	setIfEmpty(&c.SMTPPassword, "SMTP_PASSWORD")
	setIfEmpty(&c.EmailFrom, "EMAIL_FROM")
	setIfEmpty(&c.EmailFromName, "EMAIL_FROM_NAME")
	setIfEmpty(&c.TicketWebhookURL, "TICKET_WEBHOOK_URL")
	setIfEmpty(&c.CalendarFormURL, "CALENDAR_FORM_URL")
	setIfEmpty(&c.KnowledgeDir, "KNOWLEDGE_DIR")
	setIfEmpty(&c.IndexPath, "INDEX_PATH")
	setIfEmpty(&c.DatabaseURL, "DATABASE_URL")
	setIfEmpty(&c.Timezone, "AUTOPILOT_TIMEZONE")

	if c.SMTPPort == 0 {
		if v := os.Getenv("SMTP_PORT"); v != "" {
			if port, err := strconv.Atoi(v); err == nil {
				c.SMTPPort = port
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.EmailFrom == "" {
		c.EmailFrom = "noreply@example.com"
	}
	if c.EmailFromName == "" {
		c.EmailFromName = "Voice Autopilot"
	}
	if c.IndexPath == "" {
		c.IndexPath = "autopilot_kb.sqlite"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
}

// Validate checks values a running server depends on. The Gemini key is the
// only hard requirement; action credentials may be absent, in which case the
// matching executor is simply not wired.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("config error: gemini_api_key is required (or set GEMINI_API_KEY)")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config error: invalid timezone %q: %w", c.Timezone, err)
	}
	if c.SMTPPort < 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("config error: smtp_port out of range: %d", c.SMTPPort)
	}
	if c.KnowledgeDir != "" {
		if _, err := os.Stat(c.KnowledgeDir); os.IsNotExist(err) {
			return fmt.Errorf("config error: knowledge_dir not found: %s", c.KnowledgeDir)
		}
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func setIfEmpty(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}
