package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
)

// ffprobeOutput represents the JSON structure returned by ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration   string            `json:"duration"`
		Size       string            `json:"size"`
		Bitrate    string            `json:"bit_rate"`
		FormatName string            `json:"format_name"`
		Tags       map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

// GetMetadata extracts metadata from an audio file using ffprobe. inputFormat
// forces a demuxer; pass "" to let ffprobe detect it.
func (f *FFmpeg) GetMetadata(ctx context.Context, filePath string, inputFormat string) (*AudioMetadata, error) {
	args := []string{
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-select_streams", "a:0", // Select first audio stream
		"-of", "json",
	}
	if inputFormat != "" {
		args = append(args, "-f", inputFormat)
	}
	args = append(args, filePath)

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, NewProcessingError("metadata_extraction", filePath, err, tail(stderr.String()))
	}

	var output ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		return nil, NewProcessingError("metadata_parsing", filePath, err, "")
	}

	return parseMetadata(&output, filePath)
}

// parseMetadata converts ffprobe output to AudioMetadata
func parseMetadata(output *ffprobeOutput, filePath string) (*AudioMetadata, error) {
	metadata := &AudioMetadata{}

	if output.Format.Duration != "" {
		if duration, err := strconv.ParseFloat(output.Format.Duration, 64); err == nil {
			metadata.Duration = duration
		}
	}

	if output.Format.Size != "" {
		if size, err := strconv.ParseInt(output.Format.Size, 10, 64); err == nil {
			metadata.Size = size
		}
	}

	if output.Format.Bitrate != "" {
		if bitrate, err := strconv.Atoi(output.Format.Bitrate); err == nil {
			metadata.Bitrate = bitrate
		}
	}

	metadata.Format = output.Format.FormatName

	if tags := output.Format.Tags; tags != nil {
		metadata.Title = tags["title"]
		metadata.Artist = tags["artist"]
	}

	found := false
	for _, stream := range output.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		found = true
		metadata.Codec = stream.CodecName
		metadata.Channels = stream.Channels

		if stream.SampleRate != "" {
			if sampleRate, err := strconv.Atoi(stream.SampleRate); err == nil {
				metadata.SampleRate = sampleRate
			}
		}

		// Use stream duration if format duration is not available
		if metadata.Duration == 0 && stream.Duration != "" {
			if duration, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				metadata.Duration = duration
			}
		}
		break
	}

	if !found {
		return nil, NewProcessingError("metadata_validation", filePath, ErrNoAudioStream, "")
	}

	return metadata, nil
}

// ValidateAudioFile checks that ffprobe can read an audio stream from the file
func (f *FFmpeg) ValidateAudioFile(ctx context.Context, filePath string, inputFormat string) (*AudioMetadata, error) {
	metadata, err := f.GetMetadata(ctx, filePath, inputFormat)
	if err != nil {
		return nil, err
	}

	if metadata.Channels <= 0 || metadata.SampleRate <= 0 {
		return nil, NewProcessingError("metadata_validation", filePath, ErrInvalidAudioFile, "")
	}

	return metadata, nil
}
