package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/peterjschroeder/redp/enums"
)

const (
	appName        = "redp"
	configFileName = "config.yaml"
	envPrefix      = "REDP"
)

// ErrConfigCreated is returned by Load when no config file existed and a default
// one was written. The caller is expected to stop so the user can edit it.
var ErrConfigCreated = errors.New("config file created")

type RedditConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	UserAgent    string `mapstructure:"user_agent" yaml:"user_agent"`
}

// HasCredentials reports whether an OAuth password grant can be attempted.
func (c RedditConfig) HasCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.Username != "" && c.Password != ""
}

type StateConfig struct {
	Backend enums.StateBackend `mapstructure:"backend" yaml:"backend"`
	DSN     string             `mapstructure:"dsn" yaml:"dsn"`
}

type DownloadersConfig struct {
	GalleryDL string        `mapstructure:"gallery_dl" yaml:"gallery_dl"`
	YtDLP     string        `mapstructure:"yt_dlp" yaml:"yt_dlp"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type AppConfig struct {
	Reddit             RedditConfig      `mapstructure:"reddit" yaml:"reddit"`
	PathMaildir        string            `mapstructure:"path_maildir" yaml:"path_maildir"`
	SkipAutomoderator  bool              `mapstructure:"skip_automoderator" yaml:"skip_automoderator"`
	Autoquote          bool              `mapstructure:"autoquote" yaml:"autoquote"`
	Attachments        []string          `mapstructure:"attachments" yaml:"attachments"`
	AttachmentsMaxSize int64             `mapstructure:"attachments_max_size" yaml:"attachments_max_size"` // KiB
	Archive            bool              `mapstructure:"archive" yaml:"archive"`
	Expire             bool              `mapstructure:"expire" yaml:"expire"`
	DetectLanguage     bool              `mapstructure:"detect_language" yaml:"detect_language"`
	ProxyURL           string            `mapstructure:"proxy_url" yaml:"proxy_url"`
	LogLevel           string            `mapstructure:"log_level" yaml:"log_level"`
	MetricsTextfile    string            `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`
	State              StateConfig       `mapstructure:"state" yaml:"state"`
	Downloaders        DownloadersConfig `mapstructure:"downloaders" yaml:"downloaders"`
}

func defaults() map[string]any {
	return map[string]any{
		"reddit.client_id":       "",
		"reddit.client_secret":   "",
		"reddit.username":        "",
		"reddit.password":        "",
		"reddit.user_agent":      "redp (github.com/peterjschroeder/redp)",
		"path_maildir":           "~/Mail/Reddit",
		"skip_automoderator":     true,
		"autoquote":              false,
		"attachments":            []string{"image", "text"},
		"attachments_max_size":   10000,
		"archive":                false,
		"expire":                 false,
		"detect_language":        false,
		"proxy_url":              "",
		"log_level":              "INFO",
		"metrics_textfile":       "",
		"state.backend":          string(enums.StateBackendFiles),
		"state.dsn":              "",
		"downloaders.gallery_dl": "gallery-dl",
		"downloaders.yt_dlp":     "yt-dlp",
		"downloaders.timeout":    "5m",
	}
}

// Load reads config.yaml from dir. Every key may be overridden with a REDP_
// environment variable, e.g. REDP_REDDIT_CLIENT_ID or REDP_PATH_MAILDIR.
// A missing file is replaced with defaults and ErrConfigCreated is returned.
func Load(dir string) (*AppConfig, error) {
	path := filepath.Join(dir, configFileName)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config dir %s: %w", dir, err)
		}
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("write default config %s: %w", path, err)
		}
		return nil, ErrConfigCreated
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	maildir, err := expandHome(cfg.PathMaildir)
	if err != nil {
		return nil, err
	}
	cfg.PathMaildir = maildir

	return &cfg, nil
}

func (c AppConfig) AttachmentKinds() enums.AttachmentKinds {
	return enums.ParseAttachmentKinds(c.Attachments)
}

// AttachmentsMaxBytes converts the configured KiB limit. Zero or less disables the limit.
func (c AppConfig) AttachmentsMaxBytes() int64 {
	if c.AttachmentsMaxSize <= 0 {
		return 0
	}
	return c.AttachmentsMaxSize * 1024
}

func (c AppConfig) SlogLevel() slog.Level {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		slog.Error("Invalid log_level", "error", err)
		return slog.LevelInfo
	}
	return level
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	var err = level.UnmarshalText([]byte(s))
	return level, err
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
