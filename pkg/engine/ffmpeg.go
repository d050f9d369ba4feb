package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"sync"

	"github.com/heyjunin/MP3presso/pkg/errors"
	"github.com/heyjunin/MP3presso/pkg/logger"
)

// DefaultSampleRate is the output sample rate used when a Job does not set one.
const DefaultSampleRate = 44100

// FFmpegConfig configures the ffmpeg-backed engine.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable; defaults to "ffmpeg" on PATH.
	Binary string
	// ProbeBinary is the ffprobe executable; defaults to "ffprobe" on PATH.
	ProbeBinary string
	// Logger receives engine log events; defaults to the package logger.
	Logger logger.Logger
}

// FFmpeg is the ffmpeg-backed implementation of Engine.
// A single instance is safe for reuse; readiness is checked once and cached.
type FFmpeg struct {
	binary      string
	probeBinary string
	logger      logger.Logger

	mu    sync.Mutex
	ready bool
}

// NewFFmpeg creates an ffmpeg engine from the given configuration.
func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	if cfg.Binary == "" {
		cfg.Binary = "ffmpeg"
	}
	if cfg.ProbeBinary == "" {
		cfg.ProbeBinary = "ffprobe"
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewLogger()
	}
	return &FFmpeg{
		binary:      cfg.Binary,
		probeBinary: cfg.ProbeBinary,
		logger:      cfg.Logger,
	}
}

// Init verifies that the ffmpeg binary is runnable.
// The check runs once per instance; later calls on a ready engine return
// immediately. A failed check is retried on the next call.
func (e *FFmpeg) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready {
		return nil
	}

	cmd := exec.CommandContext(ctx, e.binary, "-version")
	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, errors.EngineError, "FFmpeg is not available", 1)
	}

	e.ready = true
	e.logger.Info("Engine initialized", "engine", map[string]interface{}{
		"binary": e.binary,
	})
	return nil
}

// timeRegex extracts the "time=HH:MM:SS.ss" progress reports from ffmpeg stderr.
var timeRegex = regexp.MustCompile(`time=(\d+):(\d+):(\d+\.\d+)`)

// scanProgressLines is a bufio.SplitFunc that breaks on \r as well as \n.
// ffmpeg rewrites its in-place stats line with carriage returns, so a
// newline-only scanner would sit on the updates until the encode ends.
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Transcode encodes the job's input into an MP3 at the requested bitrate.
// Progress is estimated from ffmpeg's stderr time reports against the job's
// duration and delivered as 0-100 updates to the job's Reporter.
func (e *FFmpeg) Transcode(ctx context.Context, job Job) error {
	if err := e.Init(ctx); err != nil {
		return err
	}

	args := buildMP3Args(job)

	e.logger.Debug("Executing FFmpeg command", "engine", map[string]interface{}{
		"binary": e.binary,
		"args":   args,
	})

	cmd := exec.CommandContext(ctx, e.binary, args...)

	// ffmpeg writes progress lines to stderr
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, errors.ConversionError, "Failed to create stderr pipe", 2)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.ConversionError, "Failed to start FFmpeg", 3)
	}

	if job.Progress != nil {
		job.Progress.Start(100)
	}

	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		scanner := bufio.NewScanner(stderr)
		scanner.Split(scanProgressLines)
		for scanner.Scan() {
			line := scanner.Text()

			e.logger.Debug(line, "ffmpeg", nil)

			if job.Progress == nil || job.Duration <= 0 {
				continue
			}
			if matches := timeRegex.FindStringSubmatch(line); len(matches) > 3 {
				hours, _ := strconv.Atoi(matches[1])
				minutes, _ := strconv.Atoi(matches[2])
				seconds, _ := strconv.ParseFloat(matches[3], 64)

				currentTime := float64(hours*3600) + float64(minutes*60) + seconds
				pct := int64(currentTime / job.Duration * 100)
				if pct > 100 {
					pct = 100
				}
				job.Progress.Update(pct, "converting", "Encoding MP3")
			}
		}
	}()

	<-scanned
	if err := cmd.Wait(); err != nil {
		return errors.Wrap(err, errors.ConversionError, "FFmpeg command failed", 4)
	}

	if job.Progress != nil {
		job.Progress.Complete()
	}

	return nil
}

// buildMP3Args assembles the ffmpeg argument list for one MP3 encode:
// libmp3lame, fixed sample rate, target bitrate, optional -vn for video input.
func buildMP3Args(job Job) []string {
	sampleRate := job.SampleRate
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}

	args := []string{
		"-i", job.InputPath,
	}
	if job.StripVideo {
		args = append(args, "-vn")
	}
	args = append(args,
		"-c:a", "libmp3lame",
		"-ar", strconv.Itoa(sampleRate),
		"-b:a", fmt.Sprintf("%dk", job.BitrateKbps),
		"-y", job.OutputPath,
	)
	return args
}
