package engine

import (
	"context"
	"sync"

	"github.com/heyjunin/MP3presso/pkg/progress"
)

// MediaInfo holds the probed properties of an input file that the conversion
// pipeline needs: duration for bitrate targeting and progress, and the stream
// layout for deciding whether a video track must be stripped.
type MediaInfo struct {
	// Duration of the media in seconds; 0 when it could not be determined.
	Duration float64
	// HasVideo reports whether the file carries at least one video stream.
	HasVideo bool
	// HasAudio reports whether the file carries at least one audio stream.
	HasAudio bool
}

// Job describes one MP3 encoding operation handed to the engine.
type Job struct {
	// InputPath is the staged input file.
	InputPath string
	// OutputPath is where the MP3 will be written.
	OutputPath string
	// BitrateKbps is the target audio bitrate.
	BitrateKbps int
	// SampleRate in Hz; defaults to 44100 when zero.
	SampleRate int
	// StripVideo drops any video track (-vn) so only audio is encoded.
	StripVideo bool
	// Duration of the input in seconds, used to translate ffmpeg's time
	// reports into 0-100 progress. Zero disables progress estimation.
	Duration float64
	// Progress optionally receives 0-100 updates while encoding runs.
	Progress progress.Reporter
}

// Engine is the transcoding capability behind the conversion workflow.
// Implementations must make Init idempotent: a ready engine is reused, never
// rebuilt. Probe inspects an input file; Transcode performs one MP3 encode.
type Engine interface {
	Init(ctx context.Context) error
	Probe(ctx context.Context, path string) (*MediaInfo, error)
	Transcode(ctx context.Context, job Job) error
}

var (
	defaultEngine *FFmpeg
	defaultOnce   sync.Once
)

// Default returns the process-wide lazily-created ffmpeg engine.
// The instance is shared; Init guards its one-time readiness check.
func Default() *FFmpeg {
	defaultOnce.Do(func() {
		defaultEngine = NewFFmpeg(FFmpegConfig{})
	})
	return defaultEngine
}
