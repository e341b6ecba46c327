package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
	"github.com/killallgit/podcast-downloader/pkg/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PODDL_TRANSCODE_BITRATE
const EnvPrefix = "PODDL"

// DefaultConfigFile is read when present; a missing file is not an error
const DefaultConfigFile = "./config/settings.yaml"

const (
	minBitrate = 8
	maxBitrate = 320
)

// New returns a viper instance with defaults and environment overrides set up.
// Command flags are bound onto it by the caller before Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file and returns the validated configuration
func Load(v *viper.Viper) (*Config, error) {
	configPath := filepath.Clean(DefaultConfigFile)
	if file := v.GetString("config"); file != "" {
		configPath = filepath.Clean(file)
	}
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		// A missing default file just means defaults, env vars and flags
		if !errors.Is(err, fs.ErrNotExist) || v.GetString("config") != "" {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeConfigInvalid, "error reading config file %s", configPath)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "error unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration before any work starts
func (c *Config) Validate() error {
	if c.Source == "" {
		return apperrors.ConfigError("source", "feed source is required")
	}

	if c.Destination == "" {
		return apperrors.ConfigError("destination", "output folder is required")
	}
	info, err := os.Stat(c.Destination)
	if err != nil {
		return apperrors.ConfigError("destination", fmt.Sprintf("output folder %q does not exist", c.Destination)).WithCause(err)
	}
	if !info.IsDir() {
		return apperrors.ConfigError("destination", fmt.Sprintf("output folder %q is not a directory", c.Destination))
	}

	if c.Download.Timeout <= 0 {
		return apperrors.ConfigError("download.timeout", "must be positive")
	}
	if c.Download.MaxSize < 0 {
		return apperrors.ConfigError("download.max_size", "must not be negative")
	}

	if c.Transcode.Enabled {
		if c.Transcode.Bitrate < minBitrate || c.Transcode.Bitrate > maxBitrate {
			return apperrors.ConfigError("transcode.bitrate",
				fmt.Sprintf("%d kbit/s is outside %d..%d", c.Transcode.Bitrate, minBitrate, maxBitrate))
		}
		if c.Transcode.FFmpegPath == "" || c.Transcode.FFprobePath == "" {
			return apperrors.ConfigError("transcode.ffmpeg_path", "ffmpeg and ffprobe paths are required")
		}
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return apperrors.ConfigError("logging.level", err.Error())
	}

	// The feed follows download.timeout unless feed.timeout is set on its own
	if c.Feed.Timeout <= 0 {
		c.Feed.Timeout = c.Download.Timeout
	}

	return nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Positional arguments, normally set from the command line
	v.SetDefault("source", "")
	v.SetDefault("destination", "")

	// Feed defaults
	v.SetDefault("feed.raw_xml", false)
	v.SetDefault("feed.timeout", 0)
	v.SetDefault("feed.user_agent", "podcast-downloader/1.0")

	// Download defaults
	v.SetDefault("download.timeout", 30*time.Second)
	v.SetDefault("download.user_agent", "podcast-downloader/1.0")
	v.SetDefault("download.max_size", 0)
	v.SetDefault("download.validate_audio", false)
	v.SetDefault("download.stale_temp_age", 24*time.Hour)

	// Transcode defaults
	v.SetDefault("transcode.enabled", false)
	v.SetDefault("transcode.bitrate", 92)
	v.SetDefault("transcode.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcode.ffprobe_path", "ffprobe")
	v.SetDefault("transcode.timeout", 30*time.Minute)

	// Run defaults
	v.SetDefault("run.continue_on_error", false)
	v.SetDefault("run.progress", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}
