package jobs

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heyjunin/MP3presso/pkg/convert"
	"github.com/heyjunin/MP3presso/pkg/errors"
	"github.com/heyjunin/MP3presso/pkg/mediakind"
)

// PendingInput describes the file a job was created for.
type PendingInput struct {
	// Name is the original file name as uploaded.
	Name string `json:"name"`
	// Kind is the detected media kind (video or audio).
	Kind mediakind.Kind `json:"kind"`
	// Size of the uploaded file in bytes.
	Size int64 `json:"size"`
}

// Job is one conversion tracked by the store.
// Progress is a 0-100 integer that never decreases within one attempt.
type Job struct {
	ID        string          `json:"id"`
	Input     PendingInput    `json:"input"`
	State     convert.State   `json:"state"`
	Progress  int             `json:"progress"`
	Error     string          `json:"error,omitempty"`
	Result    *convert.Result `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// UploadPath is where the uploaded input was stored; cleaned on removal.
	UploadPath string `json:"-"`
	// WorkDir is the job's private staging directory; cleaned on removal.
	WorkDir string `json:"-"`
}

// Store is an in-memory registry of conversion jobs keyed by UUID.
// Nothing is persisted: a restart wipes all jobs. The store also enforces
// the single-active-conversion rule across all jobs.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]*Job
	activeID string // ID of the job currently converting, empty when idle
}

// NewStore creates an empty job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
	}
}

// Create registers a new job in the Ready state and returns it.
func (s *Store) Create(input PendingInput, uploadPath, workDir string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	job := &Job{
		ID:         uuid.NewString(),
		Input:      input,
		State:      convert.StateReady,
		CreatedAt:  now,
		UpdatedAt:  now,
		UploadPath: uploadPath,
		WorkDir:    workDir,
	}
	s.jobs[job.ID] = job
	return job
}

// Get returns a snapshot of the job with the given ID.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// TryStart transitions the job to Converting if no conversion is active
// anywhere in the store. It returns false when the job does not exist, is
// already Converting, or another job holds the single conversion slot.
func (s *Store) TryStart(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	if s.activeID != "" {
		return false
	}
	if job.State != convert.StateReady && job.State != convert.StateFailed {
		return false
	}

	job.State = convert.StateConverting
	job.Progress = 0
	job.Error = ""
	job.UpdatedAt = time.Now()
	s.activeID = id
	return true
}

// SetProgress records conversion progress for a job. Values lower than the
// stored progress are ignored so that one attempt never moves backwards.
func (s *Store) SetProgress(id string, pct int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State != convert.StateConverting {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct < job.Progress {
		return
	}
	job.Progress = pct
	job.UpdatedAt = time.Now()
}

// SetDone marks a job as successfully completed and releases the
// conversion slot.
func (s *Store) SetDone(id string, result *convert.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}
	job.State = convert.StateDone
	job.Progress = 100
	job.Result = result
	job.Error = ""
	job.UpdatedAt = time.Now()
	if s.activeID == id {
		s.activeID = ""
	}
}

// SetFailed marks a job as failed with a user-facing message and releases
// the conversion slot. The input is preserved so the user may retry.
func (s *Store) SetFailed(id string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}
	if message == "" {
		message = convert.FailedMessage
	}
	job.State = convert.StateFailed
	job.Error = message
	job.UpdatedAt = time.Now()
	if s.activeID == id {
		s.activeID = ""
	}
}

// Remove discards a job and deletes its artifacts: the uploaded input, the
// staging directory, and any produced output. A job that is currently
// converting cannot be removed.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return errors.New(errors.ValidationError, "Unknown job", id, 1)
	}
	if job.State == convert.StateConverting {
		return convert.ErrConversionInFlight
	}

	if job.Result != nil {
		if err := os.Remove(job.Result.OutputPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.SystemError, "Failed to remove output file", 2)
		}
	}
	if job.UploadPath != "" {
		if err := os.Remove(job.UploadPath); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, errors.SystemError, "Failed to remove uploaded file", 3)
		}
	}
	if job.WorkDir != "" {
		if err := os.RemoveAll(job.WorkDir); err != nil {
			return errors.Wrap(err, errors.SystemError, "Failed to remove work directory", 4)
		}
	}

	delete(s.jobs, id)
	return nil
}

// Busy reports whether any job currently holds the conversion slot.
func (s *Store) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID != ""
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
