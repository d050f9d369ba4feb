package engine

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"

	"github.com/heyjunin/MP3presso/pkg/errors"
)

// ffprobeOutput mirrors the JSON emitted by ffprobe -show_format -show_streams.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects the input file with ffprobe and returns its duration and
// stream layout.
func (e *FFmpeg) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(
		ctx,
		e.probeBinary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(err, errors.EngineError, "FFprobe execution failed", 5)
	}

	return parseProbeOutput(output)
}

// parseProbeOutput decodes ffprobe JSON into a MediaInfo.
// A missing or malformed duration leaves Duration at 0; callers treat that as
// unknown and fall back to the clamped maximum bitrate.
func parseProbeOutput(data []byte) (*MediaInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, errors.EngineError, "Failed to parse FFprobe output", 6)
	}

	info := &MediaInfo{}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}

	if probe.Format.Duration != "" {
		if duration, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = duration
		}
	}

	return info, nil
}
