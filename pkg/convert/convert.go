package convert

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/heyjunin/MP3presso/pkg/bitrate"
	"github.com/heyjunin/MP3presso/pkg/downloader"
	"github.com/heyjunin/MP3presso/pkg/engine"
	"github.com/heyjunin/MP3presso/pkg/errors"
	"github.com/heyjunin/MP3presso/pkg/logger"
	"github.com/heyjunin/MP3presso/pkg/mediakind"
	"github.com/heyjunin/MP3presso/pkg/progress"
)

// State identifies where a Converter is in the upload/convert/download workflow.
type State string

const (
	// StateIdle means no input is selected (only reachable after Reset).
	StateIdle State = "idle"
	// StateReady means a valid input has been selected.
	StateReady State = "ready"
	// StateConverting means an encode is in flight.
	StateConverting State = "converting"
	// StateDone means the output exists and may be downloaded.
	StateDone State = "done"
	// StateFailed means the last attempt failed; the input is preserved for retry.
	StateFailed State = "failed"
)

// FailedMessage is the generic user-facing message for conversion failures.
// Details stay in the logs.
const FailedMessage = "Failed to convert"

// OversizeThreshold is the output size above which the result is flagged
// as unusually large (200MB).
const OversizeThreshold = 200 * 1024 * 1024

// ErrConversionInFlight is returned when Convert is called while a conversion
// is already running. Callers treat it as a no-op: no second engine
// invocation happens.
var ErrConversionInFlight = goerrors.New("conversion already in progress")

// Options contains settings for a conversion.
type Options struct {
	// InputPath is the local input file, or a URL when IsRemoteInput is set.
	InputPath string
	// InputName is the original display name used to derive the output name;
	// defaults to the base of InputPath.
	InputName string
	// MIMEType is the declared media type of the input, when known.
	// Classification falls back to the file extension when empty.
	MIMEType string
	// IsRemoteInput marks InputPath as a URL to be downloaded first.
	IsRemoteInput bool
	// WorkDir is the staging directory for intermediate files.
	WorkDir string
	// OutputPath overrides the derived output location when set.
	OutputPath string
	// OutputDir is where the derived output file is written; defaults to ".".
	OutputDir string
	// Policy selects the target-size heuristic; defaults to 80% of the input.
	Policy bitrate.SizePolicy
	// MinKbps and MaxKbps clamp the computed bitrate; default to 32 and 320.
	MinKbps int
	MaxKbps int
	// SampleRate of the output in Hz; defaults to 44100.
	SampleRate int
	// AllowOverwrite permits overwriting an existing download target.
	AllowOverwrite bool
}

// Result describes a finished conversion.
type Result struct {
	// OutputPath is the produced MP3 on disk.
	OutputPath string `json:"output_path"`
	// OutputName is the download name: the original base name with a .mp3 extension.
	OutputName string `json:"output_name"`
	// ContentType of the produced file ("audio/mp3").
	ContentType string `json:"content_type"`
	// InputSize and OutputSize in bytes.
	InputSize  int64 `json:"input_size"`
	OutputSize int64 `json:"output_size"`
	// BitrateKbps is the bitrate the encode targeted.
	BitrateKbps int `json:"bitrate_kbps"`
	// Duration of the input in seconds as probed.
	Duration float64 `json:"duration"`
	// CompressionPct is the size saving in percent when the output is smaller
	// than the input; 0 otherwise.
	CompressionPct float64 `json:"compression_pct"`
	// Oversized flags outputs above OversizeThreshold.
	Oversized bool `json:"oversized"`
}

// Converter drives one upload → convert → download workflow against an
// injected Engine. It is safe for concurrent use; only one conversion can be
// in flight at a time and further triggers are no-ops.
type Converter struct {
	options Options
	eng     engine.Engine
	progRep progress.Reporter
	logger  logger.Logger
	dl      *downloader.Downloader

	mu      sync.Mutex
	state   State
	kind    mediakind.Kind
	result  *Result
	userErr string
}

// New creates a Converter with default dependencies: the process-wide ffmpeg
// engine and the package logger.
func New(options Options, progressReporter progress.Reporter) (*Converter, error) {
	return NewWithDeps(options, progressReporter, logger.NewLogger(), engine.Default(), nil)
}

// NewWithDeps creates a Converter with custom dependencies.
// The input is validated here: anything that is not a video or an MP3 is
// rejected with a ValidationError and no Converter is created, leaving any
// prior state with the caller untouched.
func NewWithDeps(options Options, progressReporter progress.Reporter, log logger.Logger, eng engine.Engine, dl *downloader.Downloader) (*Converter, error) {
	if options.InputPath == "" {
		return nil, errors.New(errors.ValidationError, "Input path is required", "", 1)
	}
	if options.InputName == "" {
		options.InputName = inputDisplayName(options.InputPath, options.IsRemoteInput)
	}
	if options.WorkDir == "" {
		options.WorkDir = "work"
	}
	if options.OutputDir == "" {
		options.OutputDir = "."
	}
	if options.SampleRate == 0 {
		options.SampleRate = engine.DefaultSampleRate
	}
	if options.MinKbps == 0 {
		options.MinKbps = bitrate.MinKbps
	}
	if options.MaxKbps == 0 {
		options.MaxKbps = bitrate.MaxKbps
	}
	if log == nil {
		log = logger.NewLogger()
	}
	if eng == nil {
		eng = engine.Default()
	}

	kind := mediakind.Detect(options.InputName, options.MIMEType)
	if kind == mediakind.Unknown {
		return nil, errors.New(errors.ValidationError,
			"Only video or MP3 files are supported",
			fmt.Sprintf("name=%s mime=%s", options.InputName, options.MIMEType), 2)
	}

	return &Converter{
		options: options,
		eng:     eng,
		progRep: progressReporter,
		logger:  log,
		dl:      dl,
		state:   StateReady,
		kind:    kind,
	}, nil
}

// State returns the current workflow state.
func (c *Converter) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the conversion result, or nil unless the state is Done.
func (c *Converter) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// ErrMessage returns the user-facing message of the last failure, if any.
func (c *Converter) ErrMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userErr
}

// Kind returns the detected kind of the selected input.
func (c *Converter) Kind() mediakind.Kind {
	return c.kind
}

// Convert runs the conversion workflow: stage the input under a fixed name
// keyed by its kind, probe it, compute the target bitrate, run the engine
// with libmp3lame at 44100Hz (stripping the video track for video inputs),
// and clean the staging files up.
//
// A call while a conversion is already running returns ErrConversionInFlight
// without touching the engine. After a failure the input is preserved and
// Convert may be called again.
func (c *Converter) Convert(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	switch c.state {
	case StateConverting:
		c.mu.Unlock()
		return nil, ErrConversionInFlight
	case StateDone:
		res := c.result
		c.mu.Unlock()
		return res, nil
	case StateIdle:
		c.mu.Unlock()
		return nil, errors.New(errors.ValidationError, "No input selected", "", 3)
	}
	c.state = StateConverting
	c.userErr = ""
	c.mu.Unlock()

	res, err := c.convert(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		c.userErr = errors.UserMessage(err, FailedMessage)
		c.logger.Error("Conversion failed", "convert", map[string]interface{}{
			"input": c.options.InputName,
			"error": err.Error(),
		})
		return nil, err
	}

	c.state = StateDone
	c.result = res
	return res, nil
}

// convert performs the actual work without holding the state lock.
func (c *Converter) convert(ctx context.Context) (*Result, error) {
	started := time.Now()

	if err := c.eng.Init(ctx); err != nil {
		return nil, err
	}

	localPath, err := c.handleInput(ctx)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.options.WorkDir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "Failed to create work directory", 4)
	}

	// Stage under the fixed per-kind name
	staged := filepath.Join(c.options.WorkDir, mediakind.StagedName(c.kind))
	if err := copyFile(localPath, staged); err != nil {
		return nil, errors.Wrap(err, errors.ConversionError, "Failed to stage input file", 5)
	}
	defer os.Remove(staged)

	stagedInfo, err := os.Stat(staged)
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "Failed to stat staged input", 6)
	}
	inputSize := stagedInfo.Size()

	media, err := c.eng.Probe(ctx, staged)
	if err != nil {
		return nil, err
	}

	targetBytes := c.options.Policy.TargetBytes(inputSize)
	kbps := bitrate.Estimate(targetBytes, media.Duration, c.options.MinKbps, c.options.MaxKbps)

	outputName := mediakind.OutputName(c.options.InputName)
	outputPath := c.options.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(c.options.OutputDir, outputName)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "Failed to create output directory", 7)
	}

	c.logger.Info("Converting to MP3", "convert", map[string]interface{}{
		"input":    c.options.InputName,
		"kind":     string(c.kind),
		"duration": media.Duration,
		"bitrate":  kbps,
		"output":   outputPath,
	})

	job := engine.Job{
		InputPath:   staged,
		OutputPath:  outputPath,
		BitrateKbps: kbps,
		SampleRate:  c.options.SampleRate,
		StripVideo:  c.kind == mediakind.Video || media.HasVideo,
		Duration:    media.Duration,
		Progress:    c.progRep,
	}
	if err := c.eng.Transcode(ctx, job); err != nil {
		return nil, err
	}

	outInfo, err := os.Stat(outputPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ConversionError, "Converted file was not produced", 8)
	}

	res := &Result{
		OutputPath:  outputPath,
		OutputName:  outputName,
		ContentType: mediakind.ContentType,
		InputSize:   inputSize,
		OutputSize:  outInfo.Size(),
		BitrateKbps: kbps,
		Duration:    media.Duration,
		Oversized:   outInfo.Size() > OversizeThreshold,
	}
	if res.OutputSize < res.InputSize && res.InputSize > 0 {
		res.CompressionPct = (1 - float64(res.OutputSize)/float64(res.InputSize)) * 100
	}

	c.logger.Info("Conversion completed", "convert", map[string]interface{}{
		"output":      res.OutputPath,
		"output_size": res.OutputSize,
		"bitrate":     res.BitrateKbps,
		"elapsed":     time.Since(started).String(),
	})

	return res, nil
}

// Reset discards the selected input and any produced output, returning the
// workflow to its idle defaults. The output file is deleted so the
// downloadable artifact is released.
func (c *Converter) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConverting {
		return ErrConversionInFlight
	}

	if c.result != nil {
		if err := os.Remove(c.result.OutputPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.SystemError, "Failed to remove output file", 9)
		}
	}

	c.result = nil
	c.userErr = ""
	c.state = StateIdle
	return nil
}

// handleInput resolves the input to a local path, downloading it first when remote.
func (c *Converter) handleInput(ctx context.Context) (string, error) {
	if !c.options.IsRemoteInput {
		if _, err := os.Stat(c.options.InputPath); os.IsNotExist(err) {
			return "", errors.New(errors.ValidationError, "Input file does not exist", c.options.InputPath, 10)
		}
		return c.options.InputPath, nil
	}

	c.logger.Info("Downloading remote input", "convert", map[string]interface{}{
		"url": c.options.InputPath,
	})

	downloadPath := filepath.Join(c.options.WorkDir, "download", c.options.InputName)

	dl := c.dl
	if dl == nil {
		dl = downloader.New(downloader.Options{
			URL:           c.options.InputPath,
			OutputPath:    downloadPath,
			Progress:      c.progRep,
			AllowOverride: c.options.AllowOverwrite,
		})
	}

	downloaded, err := dl.Download(ctx)
	if err != nil {
		return "", err
	}
	return downloaded, nil
}

// inputDisplayName derives a display name from a path or URL.
func inputDisplayName(inputPath string, remote bool) string {
	if remote {
		if parsed, err := url.Parse(inputPath); err == nil {
			name := filepath.Base(parsed.Path)
			if name != "" && name != "." && name != "/" {
				return name
			}
		}
		return fmt.Sprintf("download_%d", time.Now().Unix())
	}
	return filepath.Base(inputPath)
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
