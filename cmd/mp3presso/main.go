package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/heyjunin/MP3presso/pkg/bitrate"
	"github.com/heyjunin/MP3presso/pkg/convert"
	"github.com/heyjunin/MP3presso/pkg/engine"
	"github.com/heyjunin/MP3presso/pkg/logger"
	"github.com/heyjunin/MP3presso/pkg/progress"
	"github.com/heyjunin/MP3presso/pkg/server"
	"github.com/spf13/cobra"
)

var (
	// Input options
	inputPath      string
	isRemoteInput  bool
	workDir        string
	allowOverwrite bool

	// Output options
	outputPath string

	// Size targeting options
	targetFraction float64
	targetSizeMB   int64
	minBitrate     int
	maxBitrate     int
	sampleRate     int

	// Advanced options
	ffmpegBinary  string
	ffprobeBinary string

	// Serve options
	serveAddr      string
	serveDataDir   string
	serveMaxUpload int64
)

func main() {
	// Initialize logger
	logger.Init()

	// Create root command
	rootCmd := &cobra.Command{
		Use:   "MP3presso",
		Short: "☕ MP3presso - Squeeze video and MP3 files into small MP3s",
		Long: `☕ MP3presso - A tool that extracts audio from video files and recompresses
MP3 files into smaller MP3s, picking the bitrate that hits a target output size.
It can download inputs from remote URLs and also run as a web service.`,
		Run: runConverter,
	}

	// Input flags
	rootCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file path or URL (required)")
	rootCmd.Flags().BoolVar(&isRemoteInput, "remote", false, "Treat input as a remote URL")
	rootCmd.Flags().StringVar(&workDir, "work-dir", "work", "Directory for staged intermediate files")
	rootCmd.Flags().BoolVar(&allowOverwrite, "overwrite", false, "Allow overwriting existing files")

	// Output flags
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (defaults to <input>.mp3)")

	// Size targeting flags
	rootCmd.Flags().Float64Var(&targetFraction, "target-fraction", 0, "Target output size as a fraction of the input size")
	rootCmd.Flags().Int64Var(&targetSizeMB, "target-size", 0, "Target output size cap in megabytes")
	rootCmd.Flags().IntVar(&minBitrate, "min-bitrate", bitrate.MinKbps, "Lowest output bitrate in kbps")
	rootCmd.Flags().IntVar(&maxBitrate, "max-bitrate", bitrate.MaxKbps, "Highest output bitrate in kbps")
	rootCmd.Flags().IntVar(&sampleRate, "sample-rate", engine.DefaultSampleRate, "Output sample rate in Hz")

	// Advanced flags
	rootCmd.Flags().StringVar(&ffmpegBinary, "ffmpeg", "ffmpeg", "Path to ffmpeg binary")
	rootCmd.Flags().StringVar(&ffprobeBinary, "ffprobe", "ffprobe", "Path to ffprobe binary")

	rootCmd.MarkFlagRequired("input")

	// Serve subcommand
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MP3presso web service",
		Long:  "Starts the HTTP server with the upload → convert → download UI and JSON API.",
		Run:   runServer,
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "data", "Directory for uploads and outputs")
	serveCmd.Flags().Int64Var(&serveMaxUpload, "max-upload", server.DefaultMaxUploadBytes, "Maximum upload size in bytes")
	serveCmd.Flags().Float64Var(&targetFraction, "target-fraction", 0, "Target output size as a fraction of the input size")
	serveCmd.Flags().Int64Var(&targetSizeMB, "target-size", 0, "Target output size cap in megabytes")
	serveCmd.Flags().IntVar(&minBitrate, "min-bitrate", bitrate.MinKbps, "Lowest output bitrate in kbps")
	serveCmd.Flags().IntVar(&maxBitrate, "max-bitrate", bitrate.MaxKbps, "Highest output bitrate in kbps")
	serveCmd.Flags().StringVar(&ffmpegBinary, "ffmpeg", "ffmpeg", "Path to ffmpeg binary")
	serveCmd.Flags().StringVar(&ffprobeBinary, "ffprobe", "ffprobe", "Path to ffprobe binary")

	rootCmd.AddCommand(serveCmd)

	// Execute command
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-signalChan
		logger.Info("Received signal, shutting down", "main", map[string]interface{}{
			"signal": sig.String(),
		})
		cancel()
	}()

	return ctx, cancel
}

func sizePolicy() bitrate.SizePolicy {
	return bitrate.SizePolicy{
		Fraction: targetFraction,
		CapBytes: targetSizeMB * 1024 * 1024,
	}
}

func runConverter(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	// Create progress reporter
	progressReporter := progress.NewReporter()

	// Auto-detect if input is a URL
	if !isRemoteInput && (strings.HasPrefix(inputPath, "http://") || strings.HasPrefix(inputPath, "https://")) {
		isRemoteInput = true
		logger.Info("Detected URL input, setting remote mode", "main", nil)
	}

	eng := engine.NewFFmpeg(engine.FFmpegConfig{
		Binary:      ffmpegBinary,
		ProbeBinary: ffprobeBinary,
	})

	options := convert.Options{
		InputPath:     inputPath,
		IsRemoteInput: isRemoteInput,
		WorkDir:       workDir,
		OutputPath:    outputPath,

		Policy:     sizePolicy(),
		MinKbps:    minBitrate,
		MaxKbps:    maxBitrate,
		SampleRate: sampleRate,

		AllowOverwrite: allowOverwrite,
	}

	conv, err := convert.NewWithDeps(options, progressReporter, nil, eng, nil)
	if err != nil {
		logger.Fatal("Failed to create converter", "main", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	logger.Info("Starting conversion", "main", map[string]interface{}{
		"input":  inputPath,
		"output": outputPath,
	})

	result, err := conv.Convert(ctx)
	if err != nil {
		logger.Fatal("Conversion failed", "main", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	fields := map[string]interface{}{
		"output_path":  result.OutputPath,
		"bitrate_kbps": result.BitrateKbps,
		"input_size":   result.InputSize,
		"output_size":  result.OutputSize,
	}
	if result.CompressionPct > 0 {
		fields["compression_pct"] = fmt.Sprintf("%.1f", result.CompressionPct)
	}
	logger.Info("Conversion completed successfully", "main", fields)

	if result.Oversized {
		logger.Warn("Output exceeds 200MB, playback in some players may struggle", "main", map[string]interface{}{
			"output_size": result.OutputSize,
		})
	}
}

func runServer(cmd *cobra.Command, args []string) {
	ctx, cancel := signalContext()
	defer cancel()

	eng := engine.NewFFmpeg(engine.FFmpegConfig{
		Binary:      ffmpegBinary,
		ProbeBinary: ffprobeBinary,
	})

	srv, err := server.New(server.Config{
		Addr:           serveAddr,
		DataDir:        serveDataDir,
		MaxUploadBytes: serveMaxUpload,
		Policy:         sizePolicy(),
		MinKbps:        minBitrate,
		MaxKbps:        maxBitrate,
		Engine:         eng,
	})
	if err != nil {
		logger.Fatal("Failed to create server", "main", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("Server exited with error", "main", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
