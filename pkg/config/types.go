package config

import "time"

// Config represents the complete downloader configuration
type Config struct {
	// Source is the feed location: an http(s) URL or a local path
	Source string `mapstructure:"source"`
	// Destination is the existing output directory
	Destination string `mapstructure:"destination"`

	Feed      FeedConfig      `mapstructure:"feed"`
	Download  DownloadConfig  `mapstructure:"download"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Run       RunConfig       `mapstructure:"run"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FeedConfig selects how the feed document is read
type FeedConfig struct {
	// RawXML reads <item> elements directly from a local file and names
	// outputs after the sanitized title
	RawXML    bool          `mapstructure:"raw_xml"`
	// Timeout bounds the feed request; zero means download.timeout
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// DownloadConfig contains episode fetch settings
type DownloadConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	MaxSize       int64         `mapstructure:"max_size"`
	ValidateAudio bool          `mapstructure:"validate_audio"`
	StaleTempAge  time.Duration `mapstructure:"stale_temp_age"`
}

// TranscodeConfig contains mono MP3 re-encoding settings
type TranscodeConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Bitrate     int           `mapstructure:"bitrate"` // kbit/s
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
	FFprobePath string        `mapstructure:"ffprobe_path"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// RunConfig contains orchestration settings
type RunConfig struct {
	ContinueOnError bool `mapstructure:"continue_on_error"`
	Progress        bool `mapstructure:"progress"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}
