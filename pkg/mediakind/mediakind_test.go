package mediakind

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mimeType string
		want     Kind
	}{
		{"MP4 video MIME", "movie.mp4", "video/mp4", Video},
		{"WebM video MIME", "clip.webm", "video/webm", Video},
		{"Video MIME with codecs", "clip.mp4", "video/mp4; codecs=\"avc1\"", Video},
		{"MP3 by MIME", "song.mp3", "audio/mpeg", Audio},
		{"MP3 alternative MIME", "song.mp3", "audio/mp3", Audio},
		{"MP3 by extension only", "song.mp3", "application/octet-stream", Audio},
		{"MP3 upper case extension", "SONG.MP3", "", Audio},
		{"WAV audio rejected", "sound.wav", "audio/wav", Unknown},
		{"Plain text rejected", "notes.txt", "text/plain", Unknown},
		{"Image rejected", "photo.jpg", "image/jpeg", Unknown},
		{"No MIME, video extension", "movie.mkv", "", Video},
		{"No MIME, unknown extension", "data.bin", "", Unknown},
		{"Empty everything", "", "", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.fileName, tt.mimeType); got != tt.want {
				t.Errorf("Detect(%q, %q) = %q, want %q", tt.fileName, tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestAccepted(t *testing.T) {
	if !Accepted("movie.mp4", "video/mp4") {
		t.Error("video input should be accepted")
	}
	if !Accepted("song.mp3", "audio/mpeg") {
		t.Error("MP3 input should be accepted")
	}
	if Accepted("notes.txt", "text/plain") {
		t.Error("text input should be rejected")
	}
}

func TestStagedName(t *testing.T) {
	if got := StagedName(Video); got != "input.video" {
		t.Errorf("StagedName(Video) = %q, want %q", got, "input.video")
	}
	if got := StagedName(Audio); got != "input.mp3" {
		t.Errorf("StagedName(Audio) = %q, want %q", got, "input.mp3")
	}
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		original string
		want     string
	}{
		{"movie.mp4", "movie.mp3"},
		{"my.holiday.video.mkv", "my.holiday.video.mp3"},
		{"song.mp3", "song.mp3"},
		{"noextension", "noextension.mp3"},
		{"/tmp/uploads/clip.webm", "clip.mp3"},
		{"", "output.mp3"},
	}

	for _, tt := range tests {
		if got := OutputName(tt.original); got != tt.want {
			t.Errorf("OutputName(%q) = %q, want %q", tt.original, got, tt.want)
		}
	}
}
