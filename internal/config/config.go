package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/S1monlol/notionCanvas/internal/models"
)

const DefaultPath = "notioncanvas.yaml"

// CalendarConfig describes the feed imported by the CLI.
type CalendarConfig struct {
	// URL is an ICS subscription (http, https, webcal) or a caldav+https collection.
	URL string `yaml:"url"`
	// Username and Password are only sent to CalDAV sources.
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NotionConfig holds the page service credentials and OAuth client.
type NotionConfig struct {
	APIKey       string        `yaml:"api_key,omitempty"`
	BaseURL      string        `yaml:"base_url"`
	APIVersion   string        `yaml:"api_version"`
	ClientID     string        `yaml:"client_id,omitempty"`
	ClientSecret string        `yaml:"client_secret,omitempty"`
	RedirectURI  string        `yaml:"redirect_uri,omitempty"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
}

type StoreConfig struct {
	// DSN selects the user store: memory://, file:///path/users.yaml or postgres://...
	DSN string `yaml:"dsn"`
}

// PropertiesConfig names the database columns to write.
type PropertiesConfig struct {
	Title    string   `yaml:"title,omitempty"`
	Category string   `yaml:"category"`
	DueDate  string   `yaml:"due_date"`
	Link     []string `yaml:"link"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen     string `yaml:"listen"`
	LogLevel   string `yaml:"log_level"`
	DatabaseID string `yaml:"database_id"`
	// Schedule is a cron expression; `import` keeps running on it unless --once is given.
	Schedule   string            `yaml:"schedule,omitempty"`
	Calendar   CalendarConfig    `yaml:"calendar"`
	Notion     NotionConfig      `yaml:"notion"`
	Store      StoreConfig       `yaml:"store"`
	Properties PropertiesConfig  `yaml:"properties"`
	Classes    []models.Category `yaml:"classes"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing values so partially-filled files still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Calendar.Timeout <= 0 {
		c.Calendar.Timeout = 15 * time.Second
	}
	if c.Notion.BaseURL == "" {
		c.Notion.BaseURL = "https://api.notion.com"
	}
	if c.Notion.APIVersion == "" {
		c.Notion.APIVersion = "2022-06-28"
	}
	if c.Notion.Timeout <= 0 {
		c.Notion.Timeout = 20 * time.Second
	}
	if c.Store.DSN == "" {
		c.Store.DSN = "memory://"
	}
	if c.Properties.Category == "" {
		c.Properties.Category = "Class"
	}
	if c.Properties.DueDate == "" {
		c.Properties.DueDate = "Due Date"
	}
	if len(c.Properties.Link) == 0 {
		c.Properties.Link = []string{"Link", "URL", "link", "url"}
	}
	if c.Classes == nil {
		c.Classes = []models.Category{}
	}
}

// Load reads the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename, with 0600
// permissions since the file may hold credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".notioncanvas-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}

// ApplyEnv overrides file values with environment variables. Invalid numeric
// values are logged and ignored.
func (c *Config) ApplyEnv(logger *slog.Logger) {
	stringEnv("NOTION_API_KEY", &c.Notion.APIKey)
	stringEnv("NOTION_DATABASE_ID", &c.DatabaseID)
	stringEnv("CANVAS_CALENDAR_URL", &c.Calendar.URL)
	stringEnv("NOTION_CLIENT_ID", &c.Notion.ClientID)
	stringEnv("NOTION_CLIENT_SECRET", &c.Notion.ClientSecret)
	stringEnv("NOTION_REDIRECT_URI", &c.Notion.RedirectURI)
	stringEnv("NOTION_BASE_URL", &c.Notion.BaseURL)
	stringEnv("STORE_DSN", &c.Store.DSN)
	stringEnv("LISTEN_ADDR", &c.Listen)
	stringEnv("LOG_LEVEL", &c.LogLevel)

	timeout := durationEnv(logger, "HTTP_TIMEOUT", 0)
	if timeout > 0 {
		c.Calendar.Timeout = timeout
		c.Notion.Timeout = timeout
	}
	c.Notion.MaxRetries = intEnv(logger, "NOTION_MAX_RETRIES", c.Notion.MaxRetries)
	c.Normalize()
}

// ClassNames returns the configured class names in order.
func (c *Config) ClassNames() []string {
	names := make([]string, 0, len(c.Classes))
	for _, cl := range c.Classes {
		names = append(names, cl.Name)
	}
	return names
}

func stringEnv(name string, dst *string) {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		*dst = raw
	}
}

func intEnv(logger *slog.Logger, name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("Ignoring invalid environment value.", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func durationEnv(logger *slog.Logger, name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("Ignoring invalid environment value.", "name", name, "value", raw, "fallback", fallback.String())
		return fallback
	}
	return value
}
