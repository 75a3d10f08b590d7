package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gfnviewer/queuewatch/internal/logwatch"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
	Markers MarkersConfig `yaml:"markers"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type WatchConfig struct {
	LogPath          string        `yaml:"log_path"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	EventBuffer      int           `yaml:"event_buffer"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ProcessNames     []string      `yaml:"process_names"`
}

// MarkersConfig overrides the log markers. Empty values keep the built-in
// markers written by the streaming client.
type MarkersConfig struct {
	Stopped       string `yaml:"stopped"`
	Passed        string `yaml:"passed"`
	Failed        string `yaml:"failed"`
	StatusPattern string `yaml:"status_pattern"`
}

// AuthConfig holds the identities allowed to use the server. An empty
// secret disables authentication.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	Admin    string        `yaml:"admin"`
	Viewers  []string      `yaml:"viewers"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

const minStatusGroups = 4

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8787,
			Host: "127.0.0.1",
		},
		Watch: WatchConfig{
			PollInterval:     10 * time.Second,
			EventBuffer:      16,
			FailureThreshold: 3,
			ProcessNames:     []string{"GeForceNOW"},
		},
		Auth: AuthConfig{
			TokenTTL: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML config at path on top of the defaults. A missing file
// is not an error: the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Auth.Admin = strings.TrimSpace(cfg.Auth.Admin)
	cfg.Watch.LogPath = strings.TrimSpace(cfg.Watch.LogPath)

	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Watch.PollInterval <= 0 {
		return fmt.Errorf("watch.poll_interval must be positive, got %s", c.Watch.PollInterval)
	}
	if c.Watch.EventBuffer < 0 {
		return fmt.Errorf("watch.event_buffer must not be negative")
	}
	if c.Auth.Secret != "" && c.Auth.Admin == "" {
		return fmt.Errorf("auth.admin is required when auth.secret is set")
	}
	if p := c.Markers.StatusPattern; p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("markers.status_pattern: %w", err)
		}
		if re.NumSubexp() < minStatusGroups {
			return fmt.Errorf("markers.status_pattern needs at least %d capture groups", minStatusGroups)
		}
	}
	return nil
}

// LogPath returns the configured client log, falling back to the location
// the GeForce NOW client writes to under the user's local app data.
func (c *Config) LogPath() (string, error) {
	if c.Watch.LogPath != "" {
		return expandPath(c.Watch.LogPath)
	}
	return DefaultLogPath()
}

// DefaultLogPath is %LOCALAPPDATA%\NVIDIA Corporation\GeForceNOW\debug.log
// on Windows and the equivalent user cache directory elsewhere.
func DefaultLogPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve local app data: %w", err)
	}
	return filepath.Join(dir, "NVIDIA Corporation", "GeForceNOW", "debug.log"), nil
}

// Classifier builds the log classifier from the configured markers.
func (c *Config) Classifier() (*logwatch.Classifier, error) {
	return logwatch.NewMarkerClassifier(logwatch.Markers{
		Stopped:       c.Markers.Stopped,
		Passed:        c.Markers.Passed,
		Failed:        c.Markers.Failed,
		StatusPattern: c.Markers.StatusPattern,
	})
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
