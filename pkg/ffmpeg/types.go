package ffmpeg

import "strings"

// AudioMetadata represents metadata extracted from an audio file
type AudioMetadata struct {
	Duration   float64 `json:"duration"`    // Duration in seconds
	SampleRate int     `json:"sample_rate"` // Sample rate in Hz
	Channels   int     `json:"channels"`    // Number of audio channels
	Bitrate    int     `json:"bitrate"`     // Bitrate in bits per second
	Format     string  `json:"format"`      // Container format (mp3, mov,mp4,m4a,..., ogg)
	Codec      string  `json:"codec"`       // Audio codec
	Size       int64   `json:"size"`        // File size in bytes
	Title      string  `json:"title"`       // Title metadata
	Artist     string  `json:"artist"`      // Artist metadata
}

// TranscodeOptions controls the mono MP3 re-encode
type TranscodeOptions struct {
	Bitrate     int    // Output bitrate in kbit/s
	InputFormat string // ffmpeg demuxer name; empty lets ffmpeg probe
}

// DefaultBitrate is the output bitrate in kbit/s
const DefaultBitrate = 92

// demuxers maps file extensions to the ffmpeg demuxer that reads them
var demuxers = map[string]string{
	"mp3":  "mp3",
	"m4a":  "mov",
	"mp4":  "mov",
	"m4b":  "mov",
	"mov":  "mov",
	"aac":  "aac",
	"ogg":  "ogg",
	"oga":  "ogg",
	"opus": "ogg",
	"wav":  "wav",
	"flac": "flac",
	"webm": "matroska",
	"mka":  "matroska",
}

// FormatForExtension returns the demuxer for a file extension such as
// ".m4a", or "" when ffmpeg should probe the input itself.
func FormatForExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return demuxers[ext]
}
