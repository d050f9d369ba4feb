package mediakind

import (
	"path/filepath"
	"strings"
)

// Kind classifies an input file for conversion purposes.
type Kind string

const (
	// Video is any input whose declared MIME type starts with "video/".
	Video Kind = "video"
	// Audio is an MP3 input (MIME "audio/mpeg" or a ".mp3" extension).
	Audio Kind = "audio"
	// Unknown is anything else; unknown inputs are rejected.
	Unknown Kind = "unknown"
)

// VideoExtensions maps extensions to whether they are recognized video containers.
// Used as a fallback when no MIME type is available (e.g. CLI inputs).
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".ts":   true,
}

// Detect classifies a candidate file by its declared MIME type and file name.
// The MIME type wins when present; the extension is the fallback.
// Acceptance rule: video/* or MP3 (audio/mpeg MIME or .mp3 extension).
func Detect(name, mimeType string) Kind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	// Strip any media type parameters like "; codecs=..."
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	if strings.HasPrefix(mt, "video/") {
		return Video
	}
	if mt == "audio/mpeg" || mt == "audio/mp3" {
		return Audio
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".mp3" {
		return Audio
	}
	if mt == "" && VideoExtensions[ext] {
		return Video
	}

	return Unknown
}

// Accepted reports whether the candidate file may be converted.
func Accepted(name, mimeType string) bool {
	return Detect(name, mimeType) != Unknown
}

// StagedName returns the fixed staging file name for a detected kind,
// mirroring how the conversion workspace keys its inputs.
func StagedName(kind Kind) string {
	if kind == Audio {
		return "input.mp3"
	}
	return "input.video"
}

// OutputName derives the output file name from the original input name by
// replacing its extension with ".mp3".
func OutputName(original string) string {
	base := filepath.Base(original)
	ext := filepath.Ext(base)
	if ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "output"
	}
	return base + ".mp3"
}

// ContentType is the MIME type advertised for produced files.
// audio/mp3 rather than audio/mpeg so browsers offer the file as an MP3.
const ContentType = "audio/mp3"
