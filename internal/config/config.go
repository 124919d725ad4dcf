package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config models onboardline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string        `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool          `yaml:"allow_legacy_actor_header"`
		CandidateTokenTTL      time.Duration `yaml:"candidate_token_ttl"`
	} `yaml:"auth"`
	Orchestrator struct {
		Timeout      time.Duration `yaml:"timeout"`
		AsyncWorkers int           `yaml:"async_workers"`
	} `yaml:"orchestrator"`
	Feed struct {
		BufferSize       int `yaml:"buffer_size"`
		SubscriberBuffer int `yaml:"subscriber_buffer"`
	} `yaml:"feed"`
	Mail  MailConfig `yaml:"mail"`
	Redis struct {
		URL     string        `yaml:"url"`
		LockTTL time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`
	Log struct {
		Path   string `yaml:"path"`
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	RBAC     struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

type MailConfig struct {
	Mode           string `yaml:"mode"`
	From           string `yaml:"from"`
	ITDefaultEmail string `yaml:"it_default_email"`
	OutboxPath     string `yaml:"outbox_path"`
	Async          bool   `yaml:"async"`
	SMTP           struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"smtp"`
}

const (
	MailModeOutbox = "outbox"
	MailModeSMTP   = "smtp"
)

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Load reads config from the workspace, falling back to defaults when no file exists.
// A .env file in the workspace is loaded into the process environment first.
func Load(workspace string) (*Config, error) {
	LoadEnv(workspace)
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadEnv loads <workspace>/.env without overriding variables already set.
func LoadEnv(workspace string) {
	if workspace == "" {
		workspace = "."
	}
	_ = godotenv.Load(filepath.Join(workspace, ".env"))
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	if c.Orchestrator.Timeout <= 0 {
		return fmt.Errorf("orchestrator.timeout must be positive")
	}
	if c.Orchestrator.AsyncWorkers < 0 {
		return fmt.Errorf("orchestrator.async_workers must not be negative")
	}
	if c.Feed.BufferSize <= 0 {
		return fmt.Errorf("feed.buffer_size must be positive")
	}
	if c.Feed.SubscriberBuffer <= 0 {
		return fmt.Errorf("feed.subscriber_buffer must be positive")
	}
	switch c.Mail.Mode {
	case MailModeOutbox:
		if c.Mail.OutboxPath == "" {
			return fmt.Errorf("mail.outbox_path is required for outbox mode")
		}
	case MailModeSMTP:
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.Port == 0 {
			return fmt.Errorf("mail.smtp.host and mail.smtp.port are required for smtp mode")
		}
	default:
		return fmt.Errorf("mail.mode must be outbox or smtp")
	}
	if c.Mail.From == "" {
		return fmt.Errorf("mail.from is required")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	for _, role := range []string{"hr_admin", "hr", "candidate"} {
		if _, ok := c.RBAC.Roles[role]; !ok {
			return fmt.Errorf("config.rbac.roles must include %s", role)
		}
	}
	for roleID, role := range c.RBAC.Roles {
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	return nil
}

// ValidateServe adds the checks that only matter when serving HTTP.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret (or ONBOARDLINE_JWT_SECRET) is required to serve")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "onboardline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config layered over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

auth:
  allow_legacy_actor_header: false
  candidate_token_ttl: 72h

orchestrator:
  timeout: 20s
  async_workers: 1

feed:
  buffer_size: 80
  subscriber_buffer: 32

mail:
  mode: outbox
  from: hr@onboardline.local
  it_default_email: it-servicedesk@onboardline.local
  outbox_path: .onboardline/outbox.jsonl
  async: false

redis:
  url: ""
  lock_ttl: 30s

log:
  path: .onboardline/onboardline.log
  level: info
  format: console

rbac:
  roles:
    hr_admin:
      description: "Manages HR users, keys and every case"
      permissions: [case.create, case.read, case.list, case.update, case.delete, case.status, case.resume, case.orchestrate, case.events.read, case.feed.read, employee.read, employee.update, it.stock, it.email, hr.users.manage]
    hr:
      description: "Handles onboarding cases"
      permissions: [case.create, case.read, case.list, case.update, case.status, case.resume, case.orchestrate, case.events.read, case.feed.read, employee.read, employee.update, it.stock, it.email]
    candidate:
      description: "Completes the onboarding wizard for one case"
      permissions: [case.read.own, case.step.submit, case.feed.read]
`
