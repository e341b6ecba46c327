package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/killallgit/podcast-downloader/pkg/config"
	apperrors "github.com/killallgit/podcast-downloader/pkg/errors"
	"github.com/killallgit/podcast-downloader/pkg/ffmpeg"
)

// ExitInterrupted is returned when the run was stopped by a signal
const ExitInterrupted = 130

// NewRootCmd builds the command tree. Each call gets its own configuration
// instance so tests can run commands side by side.
func NewRootCmd() *cobra.Command {
	v := config.New()

	rootCmd := &cobra.Command{
		Use:   "podcast-downloader <FEED_SOURCE> <OUTPUT_FOLDER>",
		Short: "Download podcast episodes from an RSS feed",
		Long: `Podcast Downloader - fetch every episode of a podcast feed into a folder

FEED_SOURCE is an http(s) URL or a path to a local RSS/Atom file.
OUTPUT_FOLDER must already exist. Episodes already present there are
skipped, so running the same command again only fetches new episodes.

Files are named {YYYY-MM-DD}-{slugified-title}{ext}, or {title}{ext} with
--raw-xml. With --transcode every episode is re-encoded to mono MP3 and
{ext} is .mp3.

Settings can also come from ./config/settings.yaml (or --config) and from
PODDL_* environment variables, e.g. PODDL_TRANSCODE_BITRATE=64.

Example:
  podcast-downloader https://example.com/feed.xml ./episodes
  podcast-downloader --transcode --bitrate 64 feed.xml ./episodes`,
		Args:          exactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, v, args)
		},
	}

	flags := rootCmd.Flags()
	flags.Bool("transcode", false, "re-encode every episode to mono MP3")
	flags.Int("bitrate", ffmpeg.DefaultBitrate, "MP3 bitrate in kbit/s when transcoding")
	flags.Duration("timeout", 30*time.Second, "network timeout for the feed and each episode: connecting and each stall while reading")
	flags.Bool("raw-xml", false, "read <item> elements of a local XML file directly and name files after the title")
	flags.Bool("continue-on-error", false, "keep going after a failed episode and report all failures at the end")
	flags.Bool("no-progress", false, "disable progress bars")

	persistent := rootCmd.PersistentFlags()
	persistent.String("log-level", "info", "log level (debug, info, warn, error)")
	persistent.Bool("json-logs", false, "enable JSON formatted logs")
	persistent.String("config", "", "config file (default ./config/settings.yaml)")

	bindFlags(v, map[string]*pflag.Flag{
		"transcode.enabled":     flags.Lookup("transcode"),
		"transcode.bitrate":     flags.Lookup("bitrate"),
		"download.timeout":      flags.Lookup("timeout"),
		"feed.raw_xml":          flags.Lookup("raw-xml"),
		"run.continue_on_error": flags.Lookup("continue-on-error"),
		"logging.level":         persistent.Lookup("log-level"),
		"logging.json":          persistent.Lookup("json-logs"),
		"config":                persistent.Lookup("config"),
	})

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "invalid flag")
	})

	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the root command and exits with the code matching the error.
// This is called by main.main().
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	return apperrors.ExitCode(err)
}

func bindFlags(v *viper.Viper, flags map[string]*pflag.Flag) {
	for key, flag := range flags {
		if err := v.BindPFlag(key, flag); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", flag.Name, err))
		}
	}
}

// exactArgs reports a wrong argument count as a configuration error
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "usage: "+cmd.UseLine())
		}
		return nil
	}
}
