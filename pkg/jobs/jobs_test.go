package jobs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/heyjunin/MP3presso/pkg/convert"
	"github.com/heyjunin/MP3presso/pkg/mediakind"
)

func newTestJob(s *Store) *Job {
	return s.Create(PendingInput{
		Name: "movie.mp4",
		Kind: mediakind.Video,
		Size: 1024,
	}, "", "")
}

func TestCreateAndGet(t *testing.T) {
	s := NewStore()
	job := newTestJob(s)

	if job.ID == "" {
		t.Fatal("job ID is empty")
	}
	if job.State != convert.StateReady {
		t.Errorf("State = %q, want %q", job.State, convert.StateReady)
	}

	got, ok := s.Get(job.ID)
	if !ok {
		t.Fatal("Get() did not find the job")
	}
	if got.Input.Name != "movie.mp4" {
		t.Errorf("Input.Name = %q, want %q", got.Input.Name, "movie.mp4")
	}

	if _, ok := s.Get("no-such-id"); ok {
		t.Error("Get() found a job for an unknown ID")
	}
}

func TestTryStartSingleSlot(t *testing.T) {
	s := NewStore()
	first := newTestJob(s)
	second := newTestJob(s)

	if !s.TryStart(first.ID) {
		t.Fatal("TryStart() on first job = false, want true")
	}
	if !s.Busy() {
		t.Error("Busy() = false while converting")
	}

	// Re-triggering the converting job is a no-op
	if s.TryStart(first.ID) {
		t.Error("TryStart() on converting job = true, want false")
	}

	// The single conversion slot blocks other jobs too
	if s.TryStart(second.ID) {
		t.Error("TryStart() on second job = true while first converts, want false")
	}

	s.SetDone(first.ID, &convert.Result{OutputPath: filepath.Join(t.TempDir(), "gone.mp3")})
	if s.Busy() {
		t.Error("Busy() = true after completion")
	}

	if !s.TryStart(second.ID) {
		t.Error("TryStart() on second job = false after slot release, want true")
	}
}

func TestTryStartAfterFailure(t *testing.T) {
	s := NewStore()
	job := newTestJob(s)

	if !s.TryStart(job.ID) {
		t.Fatal("TryStart() = false, want true")
	}
	s.SetFailed(job.ID, "")

	got, _ := s.Get(job.ID)
	if got.State != convert.StateFailed {
		t.Errorf("State = %q, want %q", got.State, convert.StateFailed)
	}
	if got.Error != convert.FailedMessage {
		t.Errorf("Error = %q, want %q", got.Error, convert.FailedMessage)
	}

	// Failed jobs may be retried
	if !s.TryStart(job.ID) {
		t.Error("TryStart() after failure = false, want true")
	}
	got, _ = s.Get(job.ID)
	if got.Progress != 0 {
		t.Errorf("Progress = %d after retry start, want 0", got.Progress)
	}
	if got.Error != "" {
		t.Errorf("Error = %q after retry start, want empty", got.Error)
	}
}

func TestSetProgressMonotonic(t *testing.T) {
	s := NewStore()
	job := newTestJob(s)
	s.TryStart(job.ID)

	s.SetProgress(job.ID, 40)
	s.SetProgress(job.ID, 20)

	got, _ := s.Get(job.ID)
	if got.Progress != 40 {
		t.Errorf("Progress = %d after lower update, want 40", got.Progress)
	}

	s.SetProgress(job.ID, 150)
	got, _ = s.Get(job.ID)
	if got.Progress != 100 {
		t.Errorf("Progress = %d, want capped at 100", got.Progress)
	}
}

func TestSetProgressIgnoredWhenNotConverting(t *testing.T) {
	s := NewStore()
	job := newTestJob(s)

	s.SetProgress(job.ID, 50)

	got, _ := s.Get(job.ID)
	if got.Progress != 0 {
		t.Errorf("Progress = %d for job not converting, want 0", got.Progress)
	}
}

func TestRemoveDeletesArtifacts(t *testing.T) {
	tempDir := t.TempDir()
	uploadPath := filepath.Join(tempDir, "upload.mp4")
	workDir := filepath.Join(tempDir, "work")
	outputPath := filepath.Join(tempDir, "movie.mp3")

	for _, p := range []string{uploadPath, outputPath} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		t.Fatal(err)
	}

	s := NewStore()
	job := s.Create(PendingInput{Name: "movie.mp4", Kind: mediakind.Video, Size: 1}, uploadPath, workDir)
	s.TryStart(job.ID)
	s.SetDone(job.ID, &convert.Result{OutputPath: outputPath})

	if err := s.Remove(job.ID); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}

	for _, p := range []string{uploadPath, workDir, outputPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("artifact %s still exists after Remove", p)
		}
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Remove, want 0", s.Len())
	}
	if _, ok := s.Get(job.ID); ok {
		t.Error("removed job still retrievable")
	}
}

func TestRemoveConvertingJobRefused(t *testing.T) {
	s := NewStore()
	job := newTestJob(s)
	s.TryStart(job.ID)

	if err := s.Remove(job.ID); err == nil {
		t.Error("Remove() on converting job succeeded, want error")
	}
}

func TestRemoveUnknownJob(t *testing.T) {
	s := NewStore()
	if err := s.Remove("nope"); err == nil {
		t.Error("Remove() on unknown job succeeded, want error")
	}
}
