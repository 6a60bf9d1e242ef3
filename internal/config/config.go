// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Automation AutomationConfig `mapstructure:"automation" yaml:"automation"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Events     EventsConfig     `mapstructure:"events" yaml:"events"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the Chrome instance driven over CDP.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	ChatURL           string        `mapstructure:"chat_url" yaml:"chat_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// AutomationConfig carries every timing constant and policy knob of the
// automation flow. The values mirror the observed behavior of the chat
// application and are deliberately configurable rather than hard coded.
type AutomationConfig struct {
	// Readiness detection.
	ReadyTimeout   time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	ReadyPoll      time.Duration `mapstructure:"ready_poll" yaml:"ready_poll"`
	SettleInterval time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`

	// Input synthesis.
	KeystrokeDelay time.Duration `mapstructure:"keystroke_delay" yaml:"keystroke_delay"`

	// Mention autocomplete protocol.
	MentionToken      string        `mapstructure:"mention_token" yaml:"mention_token"`
	MentionFilter     string        `mapstructure:"mention_filter" yaml:"mention_filter"`
	SuggestionPoll    time.Duration `mapstructure:"suggestion_poll" yaml:"suggestion_poll"`
	SuggestionTimeout time.Duration `mapstructure:"suggestion_timeout" yaml:"suggestion_timeout"`
	CommitSettle      time.Duration `mapstructure:"commit_settle" yaml:"commit_settle"`
	CommitRetries     int           `mapstructure:"commit_retries" yaml:"commit_retries"`

	// Upload pipeline.
	UploadSettle time.Duration `mapstructure:"upload_settle" yaml:"upload_settle"`
	DragSettle   time.Duration `mapstructure:"drag_settle" yaml:"drag_settle"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
	// ProceedWithoutVerifiedUpload keeps the flow moving to submission even
	// when no injection strategy's verification confirmed success. The host
	// page may accept the upload through a side channel the check cannot see.
	ProceedWithoutVerifiedUpload bool `mapstructure:"proceed_without_verified_upload" yaml:"proceed_without_verified_upload"`

	// Request pickup.
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// DatabaseConfig holds the optional run-history database connection details.
// An empty URL disables run-history recording.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// EventsConfig configures the outbound event channel.
type EventsConfig struct {
	// Output is a file path for JSON-line events; "-" means stdout.
	Output string `mapstructure:"output" yaml:"output"`
}

// NewDefaultConfig returns a Config populated purely from defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	// Unmarshalling defaults cannot fail with a fresh viper instance.
	_ = v.Unmarshal(cfg)
	return cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// Logger defaults.
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "synthcheck-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// Browser defaults.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.chat_url", "https://gemini.google.com/app")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.debug", false)

	// Automation defaults. These are the constants of the flow; see the
	// component documentation for where each one is applied.
	v.SetDefault("automation.ready_timeout", "30s")
	v.SetDefault("automation.ready_poll", "500ms")
	v.SetDefault("automation.settle_interval", "300ms")
	v.SetDefault("automation.keystroke_delay", "50ms")
	v.SetDefault("automation.mention_token", "@SynthID")
	v.SetDefault("automation.mention_filter", "SynthID")
	v.SetDefault("automation.suggestion_poll", "100ms")
	v.SetDefault("automation.suggestion_timeout", "3s")
	v.SetDefault("automation.commit_settle", "300ms")
	v.SetDefault("automation.commit_retries", 1)
	v.SetDefault("automation.upload_settle", "2s")
	v.SetDefault("automation.drag_settle", "500ms")
	v.SetDefault("automation.fetch_timeout", "20s")
	v.SetDefault("automation.proceed_without_verified_upload", true)
	v.SetDefault("automation.stale_after", "30s")

	// Database defaults (disabled unless a URL is provided).
	v.SetDefault("database.url", "")

	// Events default to stdout.
	v.SetDefault("events.output", "-")
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the automation flow depends on.
func (c *Config) Validate() error {
	if c.Browser.ChatURL == "" {
		return fmt.Errorf("config: browser.chat_url must not be empty")
	}
	if c.Automation.ReadyTimeout <= 0 {
		return fmt.Errorf("config: automation.ready_timeout must be positive")
	}
	if c.Automation.ReadyPoll <= 0 {
		return fmt.Errorf("config: automation.ready_poll must be positive")
	}
	if c.Automation.CommitRetries < 0 {
		return fmt.Errorf("config: automation.commit_retries must not be negative")
	}
	if c.Automation.MentionToken == "" {
		return fmt.Errorf("config: automation.mention_token must not be empty")
	}
	if c.Automation.StaleAfter <= 0 {
		return fmt.Errorf("config: automation.stale_after must be positive")
	}
	return nil
}

// DefaultConfigDir resolves the per-user configuration directory.
func DefaultConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".synthcheck"), nil
}
