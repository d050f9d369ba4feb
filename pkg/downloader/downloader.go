package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/heyjunin/MP3presso/pkg/errors"
	"github.com/heyjunin/MP3presso/pkg/logger"
	"github.com/heyjunin/MP3presso/pkg/progress"
)

// Options represents configuration options for the Downloader.
type Options struct {
	// URL is the web address of the input file to be downloaded.
	URL string
	// OutputPath is the local file system path where the downloaded file will be saved.
	OutputPath string
	// Timeout sets the maximum time allowed for the HTTP download operation.
	// Defaults to 30 minutes if not specified.
	Timeout time.Duration
	// Progress is an optional progress.Reporter to receive updates on the download progress.
	Progress progress.Reporter
	// AllowOverride, if true, allows the downloader to overwrite an existing file
	// at the OutputPath. If false and the file exists, the download is skipped.
	AllowOverride bool
}

// Downloader fetches a remote input file over plain HTTPS GET.
// There are no retries and no integrity checks; a failed fetch surfaces as a
// DownloadError and the caller decides whether to start over.
type Downloader struct {
	client  *http.Client
	options Options
}

// New creates a new Downloader instance configured with the provided options.
// It sets a default timeout of 30 minutes if Options.Timeout is zero.
func New(options Options) *Downloader {
	if options.Timeout == 0 {
		options.Timeout = 30 * time.Minute
	}

	return &Downloader{
		client:  &http.Client{Timeout: options.Timeout},
		options: options,
	}
}

// Download fetches the file from the configured URL into OutputPath.
// The context can be used to cancel the download operation.
// It handles directory creation, checks for existing files (based on
// AllowOverride), and reports byte progress when a reporter is provided.
// Returns the final output path upon successful download, or an error.
func (d *Downloader) Download(ctx context.Context) (string, error) {
	outputDir := filepath.Dir(d.options.OutputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create download directory", 1)
	}

	if _, err := os.Stat(d.options.OutputPath); err == nil && !d.options.AllowOverride {
		logger.Info("File already exists, skipping download", "downloader", map[string]interface{}{
			"path": d.options.OutputPath,
		})
		return d.options.OutputPath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.options.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.DownloadError, "Failed to create HTTP request", 2)
	}

	logger.Info("Starting download", "downloader", map[string]interface{}{
		"url":  d.options.URL,
		"path": d.options.OutputPath,
	})

	resp, err := d.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.DownloadError, "Failed to download file", 3)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.DownloadError, "HTTP request failed", fmt.Sprintf("Status: %s", resp.Status), 4)
	}

	file, err := os.Create(d.options.OutputPath)
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create output file", 5)
	}
	defer file.Close()

	contentLength := resp.ContentLength
	if contentLength > 0 && d.options.Progress != nil {
		d.options.Progress.Start(contentLength)
	}

	var reader io.Reader = resp.Body
	if d.options.Progress != nil && contentLength > 0 {
		reader = &progressReader{
			reader:   resp.Body,
			reporter: d.options.Progress,
		}
	}

	if _, err := io.Copy(file, reader); err != nil {
		return "", errors.Wrap(err, errors.DownloadError, "Failed to write file", 6)
	}

	if d.options.Progress != nil {
		d.options.Progress.Complete()
	}

	logger.Info("Download completed", "downloader", map[string]interface{}{
		"path": d.options.OutputPath,
	})

	return d.options.OutputPath, nil
}

// progressReader is an internal io.Reader wrapper used to track download progress
// by reporting the number of bytes read via a progress.Reporter.
type progressReader struct {
	reader   io.Reader
	reporter progress.Reporter
	read     int64
}

// Read implements the io.Reader interface for progressReader.
// It reads from the underlying reader and updates the progress reporter.
func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.reporter.Update(pr.read, "downloading", "Downloading input file")
	}
	return n, err
}
