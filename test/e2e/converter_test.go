package e2e

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/MP3presso/pkg/bitrate"
	"github.com/heyjunin/MP3presso/pkg/convert"
	"github.com/heyjunin/MP3presso/pkg/engine"
	"github.com/heyjunin/MP3presso/pkg/progress"
)

func checkFFmpegInstalled() bool {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return false
	}
	_, err := exec.LookPath("ffprobe")
	return err == nil
}

// makeTestVideo generates a short synthetic video with an audio track.
func makeTestVideo(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test_video.mp4")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=24",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=2",
		"-c:v", "mpeg4", "-c:a", "aac",
		"-y", path,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to generate test video: %s", string(out))
	return path
}

// makeTestMP3 generates a high-bitrate MP3 to recompress.
func makeTestMP3(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "test_audio.mp3")
	cmd := exec.Command("ffmpeg",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=4",
		"-c:a", "libmp3lame", "-b:a", "320k",
		"-y", path,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to generate test MP3: %s", string(out))
	return path
}

// eventRecorder captures progress events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []progress.ProgressEvent
}

func (r *eventRecorder) reporter() progress.Reporter {
	return progress.NewFuncReporter(func(ev progress.ProgressEvent) {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
	})
}

func (r *eventRecorder) snapshot() []progress.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.ProgressEvent(nil), r.events...)
}

func TestConvertLocalVideoToMP3(t *testing.T) {
	if !checkFFmpegInstalled() {
		t.Skip("FFmpeg not found, skipping test")
	}

	tempDir := t.TempDir()
	inputPath := makeTestVideo(t, tempDir)

	rec := &eventRecorder{}
	conv, err := convert.New(convert.Options{
		InputPath: inputPath,
		WorkDir:   filepath.Join(tempDir, "work"),
		OutputDir: tempDir,
	}, rec.reporter())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := conv.Convert(ctx)
	require.NoError(t, err)

	assert.Equal(t, "test_video.mp3", result.OutputName)
	assert.Equal(t, "audio/mp3", result.ContentType)

	info, err := os.Stat(result.OutputPath)
	require.NoError(t, err, "output file was not produced")
	assert.Equal(t, info.Size(), result.OutputSize)
	assert.Greater(t, result.OutputSize, int64(0))

	// The output must itself be a valid audio file
	eng := engine.Default()
	media, err := eng.Probe(ctx, result.OutputPath)
	require.NoError(t, err)
	assert.True(t, media.HasAudio)
	assert.False(t, media.HasVideo)
	assert.InDelta(t, 2.0, media.Duration, 0.5)

	// Progress must have been reported and ended at 100
	events := rec.snapshot()
	require.NotEmpty(t, events)
	assert.Equal(t, float64(100), events[len(events)-1].Percentage)
}

func TestRecompressMP3(t *testing.T) {
	if !checkFFmpegInstalled() {
		t.Skip("FFmpeg not found, skipping test")
	}

	tempDir := t.TempDir()
	inputPath := makeTestMP3(t, tempDir)

	inputInfo, err := os.Stat(inputPath)
	require.NoError(t, err)

	rec := &eventRecorder{}
	conv, err := convert.New(convert.Options{
		InputPath: inputPath,
		WorkDir:   filepath.Join(tempDir, "work"),
		OutputDir: tempDir,
		Policy:    bitrate.SizePolicy{Fraction: 0.5},
	}, rec.reporter())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := conv.Convert(ctx)
	require.NoError(t, err)

	assert.Equal(t, "test_audio.mp3", result.OutputName)
	assert.Equal(t, inputInfo.Size(), result.InputSize)
	assert.GreaterOrEqual(t, result.BitrateKbps, bitrate.MinKbps)
	assert.LessOrEqual(t, result.BitrateKbps, bitrate.MaxKbps)
	assert.Less(t, result.BitrateKbps, 320, "half-size target should pick a lower bitrate")

	_, err = os.Stat(result.OutputPath)
	require.NoError(t, err, "output file was not produced")
}

func TestConverterStateMachine(t *testing.T) {
	if !checkFFmpegInstalled() {
		t.Skip("FFmpeg not found, skipping test")
	}

	tempDir := t.TempDir()
	inputPath := makeTestVideo(t, tempDir)

	conv, err := convert.New(convert.Options{
		InputPath: inputPath,
		WorkDir:   filepath.Join(tempDir, "work"),
		OutputDir: tempDir,
	}, progress.NewFuncReporter(func(progress.ProgressEvent) {}))
	require.NoError(t, err)

	assert.Equal(t, convert.StateReady, conv.State())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	first, err := conv.Convert(ctx)
	require.NoError(t, err)
	assert.Equal(t, convert.StateDone, conv.State())

	// A second trigger returns the existing result without converting again
	second, err := conv.Convert(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Reset releases the output artifact and returns to idle
	require.NoError(t, conv.Reset())
	assert.Equal(t, convert.StateIdle, conv.State())
	_, statErr := os.Stat(first.OutputPath)
	assert.True(t, os.IsNotExist(statErr), "output file should be removed on reset")
}

func TestProbeReportsStreams(t *testing.T) {
	if !checkFFmpegInstalled() {
		t.Skip("FFmpeg not found, skipping test")
	}

	tempDir := t.TempDir()
	videoPath := makeTestVideo(t, tempDir)
	audioPath := makeTestMP3(t, tempDir)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	eng := engine.Default()
	require.NoError(t, eng.Init(ctx))

	video, err := eng.Probe(ctx, videoPath)
	require.NoError(t, err)
	assert.True(t, video.HasVideo)
	assert.True(t, video.HasAudio)
	assert.InDelta(t, 2.0, video.Duration, 0.5)

	audio, err := eng.Probe(ctx, audioPath)
	require.NoError(t, err)
	assert.False(t, audio.HasVideo)
	assert.True(t, audio.HasAudio)
	assert.InDelta(t, 4.0, audio.Duration, 0.5)
}
