package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/faize-ai/termlink/internal/terminal"
)

// EnvPrefix prefixes environment overrides, e.g. TERMLINK_SERVER_URL.
const EnvPrefix = "TERMLINK"

// Config represents the termlink CLI configuration
type Config struct {
	Server   Server   `mapstructure:"server"`
	Terminal Terminal `mapstructure:"terminal"`
}

// Server describes the backend that brokers terminal sessions
type Server struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Terminal contains session behaviour settings
type Terminal struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ResizeDebounce time.Duration `mapstructure:"resize_debounce"`
	DefaultShell   string        `mapstructure:"default_shell"`
	Reconnect      Reconnect     `mapstructure:"reconnect"`
}

// Reconnect controls recovery after a transport failure
type Reconnect struct {
	Policy      string        `mapstructure:"policy"` // "resume" or "restart"
	Auto        bool          `mapstructure:"auto"`
	MinBackoff  time.Duration `mapstructure:"min_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"server":          "server.url",
	"request-timeout": "server.request_timeout",
	"poll-interval":   "terminal.poll_interval",
	"reconnect":       "terminal.reconnect.policy",
	"auto-reconnect":  "terminal.reconnect.auto",
}

// Load reads configuration from path, or from ~/.termlink/config.yaml when
// path is empty, then applies TERMLINK_* environment variables and any
// flags in fs that were set explicitly. A missing default file is not an
// error.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
	}

	// Try to read config file, but don't fail if the default one doesn't exist
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.request_timeout", "10s")

	v.SetDefault("terminal.poll_interval", terminal.DefaultPollInterval.String())
	v.SetDefault("terminal.resize_debounce", terminal.DefaultResizeDebounce.String())
	v.SetDefault("terminal.default_shell", string(terminal.ShellBash))

	v.SetDefault("terminal.reconnect.policy", string(terminal.CursorResume))
	v.SetDefault("terminal.reconnect.auto", false)
	v.SetDefault("terminal.reconnect.min_backoff", terminal.DefaultMinBackoff.String())
	v.SetDefault("terminal.reconnect.max_backoff", terminal.DefaultMaxBackoff.String())
	v.SetDefault("terminal.reconnect.max_attempts", 5)
}

// Validate rejects settings the terminal core cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.url must be an http(s) URL, got %q", c.Server.URL)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive, got %s", c.Server.RequestTimeout)
	}
	if c.Terminal.PollInterval <= 0 {
		return fmt.Errorf("terminal.poll_interval must be positive, got %s", c.Terminal.PollInterval)
	}
	if _, err := terminal.ParseShellKind(c.Terminal.DefaultShell); err != nil {
		return fmt.Errorf("terminal.default_shell: %w", err)
	}
	if _, err := terminal.ParseCursorPolicy(c.Terminal.Reconnect.Policy); err != nil {
		return fmt.Errorf("terminal.reconnect.policy: %w", err)
	}
	rc := c.Terminal.Reconnect
	if rc.MinBackoff <= 0 || rc.MaxBackoff < rc.MinBackoff {
		return fmt.Errorf("terminal.reconnect backoff must satisfy 0 < min_backoff <= max_backoff")
	}
	if rc.MaxAttempts < 0 {
		return fmt.Errorf("terminal.reconnect.max_attempts must not be negative")
	}
	return nil
}

// SessionOptions converts the terminal settings for terminal.NewManager.
// Clock and logger are left for the caller.
func (c *Config) SessionOptions() terminal.Options {
	policy, _ := terminal.ParseCursorPolicy(c.Terminal.Reconnect.Policy)
	return terminal.Options{
		PollInterval:   c.Terminal.PollInterval,
		ResizeDebounce: c.Terminal.ResizeDebounce,
		Reconnect: terminal.ReconnectOptions{
			Policy:      policy,
			Auto:        c.Terminal.Reconnect.Auto,
			MinBackoff:  c.Terminal.Reconnect.MinBackoff,
			MaxBackoff:  c.Terminal.Reconnect.MaxBackoff,
			MaxAttempts: c.Terminal.Reconnect.MaxAttempts,
		},
	}
}

// ConfigDir returns the termlink configuration directory path
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".termlink"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	configDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(configDir, 0o755)
}
