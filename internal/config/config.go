package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"retentionline/internal/domain"
)

// Config models retentionline.yml.
type Config struct {
	Unit struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"unit"`
	Departments map[domain.Department]Department `yaml:"departments"`
	Roster      Roster                           `yaml:"roster"`
	Calendar    Calendar                         `yaml:"calendar"`
	Webhooks    []Webhook                        `yaml:"webhooks"`
	Logging     Logging                          `yaml:"logging"`
}

type Department struct {
	Members []Member `yaml:"members"`
}

type Member struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Handle string `yaml:"handle"`
}

// Roster selects the teacher lookup. With an empty URL the static class
// table is used.
type Roster struct {
	URL            string           `yaml:"url"`
	TimeoutSeconds int              `yaml:"timeout_seconds"`
	Classes        map[string]Class `yaml:"classes"`
}

type Class struct {
	TeacherID       string `yaml:"teacher_id"`
	TeacherName     string `yaml:"teacher_name"`
	MessagingHandle string `yaml:"messaging_handle"`
}

type Calendar struct {
	Enabled                bool   `yaml:"enabled"`
	URL                    string `yaml:"url"`
	Token                  string `yaml:"token"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
}

type Webhook struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Active reports whether the hook should receive deliveries.
func (w Webhook) Active() bool {
	return w.Enabled == nil || *w.Enabled
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err == nil && cfg == nil {
		return nil, fmt.Errorf("config %s not found; run rl init --unit <id> or pass --unit", Path(workspace))
	}
	return cfg, err
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Unit.ID == "" {
		return fmt.Errorf("config.unit.id is required")
	}
	for dept, d := range c.Departments {
		if !dept.Valid() {
			return fmt.Errorf("config.departments has unknown department %s", dept)
		}
		seen := map[string]bool{}
		for _, m := range d.Members {
			if m.ID == "" {
				return fmt.Errorf("department %s has member with empty id", dept)
			}
			if seen[m.ID] {
				return fmt.Errorf("department %s lists member %s twice", dept, m.ID)
			}
			seen[m.ID] = true
		}
	}
	if c.Roster.URL != "" {
		if err := checkURL("config.roster.url", c.Roster.URL); err != nil {
			return err
		}
	}
	for classID, cls := range c.Roster.Classes {
		if classID == "" {
			return fmt.Errorf("config.roster.classes contains empty class id")
		}
		if cls.TeacherID == "" {
			return fmt.Errorf("class %s has no teacher_id", classID)
		}
	}
	if c.Roster.TimeoutSeconds < 0 || c.Calendar.TimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Calendar.Enabled {
		if err := checkURL("config.calendar.url", c.Calendar.URL); err != nil {
			return err
		}
	}
	if c.Calendar.DefaultDurationMinutes < 0 {
		return fmt.Errorf("config.calendar.default_duration_minutes must not be negative")
	}
	for i, hook := range c.Webhooks {
		if err := checkURL(fmt.Sprintf("config.webhooks[%d].url", i), hook.URL); err != nil {
			return err
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d].events contains empty event", i)
			}
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.logging.format must be text or json")
	}
	return nil
}

func checkURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute url", field)
	}
	return nil
}

// Members returns the configured members of a department.
func (c *Config) Members(dept domain.Department) []Member {
	if c == nil {
		return nil
	}
	return c.Departments[dept].Members
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "retentionline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(unitID string) string {
	return fmt.Sprintf(defaultTemplate, unitID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := FromFile(Path(workspace))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return cfg, err
}

// Default returns the default Config struct for a unit.
func Default(unitID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, unitID))).Decode(&cfg)
	cfg.Unit.ID = unitID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `unit:
  id: %s
  name: ""

departments:
  administrative:
    members: []
  financial:
    members: []
  pedagogical:
    members: []
  front_desk:
    members: []

roster:
  url: ""
  timeout_seconds: 5
  classes: {}

calendar:
  enabled: false
  url: ""
  timeout_seconds: 5
  default_duration_minutes: 60

webhooks: []

logging:
  level: info
  format: text
`
