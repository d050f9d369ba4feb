package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"

	"github.com/heyjunin/MP3presso/pkg/convert"
	"github.com/heyjunin/MP3presso/pkg/errors"
	"github.com/heyjunin/MP3presso/pkg/jobs"
	"github.com/heyjunin/MP3presso/pkg/mediakind"
	"github.com/heyjunin/MP3presso/pkg/progress"
)

// jobResponse is the JSON shape returned by the status endpoint.
type jobResponse struct {
	ID       string            `json:"id"`
	State    convert.State     `json:"state"`
	Progress int               `json:"progress"`
	Error    string            `json:"error,omitempty"`
	Input    jobs.PendingInput `json:"input"`
	Result   *convert.Result   `json:"result,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// convertHandler accepts a multipart upload, validates its media kind, and
// starts the conversion in the background. The response carries the job ID
// which the UI polls for progress.
func (s *Server) convertHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	mimeType := header.Header.Get("Content-Type")

	kind := mediakind.Detect(name, mimeType)
	if kind == mediakind.Unknown {
		uploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, "Only video or MP3 files are supported")
		return
	}

	jobDir, err := os.MkdirTemp(filepath.Join(s.cfg.DataDir, "uploads"), "job-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	uploadPath := filepath.Join(jobDir, name)
	out, err := os.Create(uploadPath)
	if err != nil {
		os.RemoveAll(jobDir)
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	size, err := io.Copy(out, file)
	out.Close()
	if err != nil {
		os.RemoveAll(jobDir)
		writeError(w, http.StatusBadRequest, "Upload was interrupted")
		return
	}
	uploadsTotal.Inc()

	job := s.store.Create(jobs.PendingInput{
		Name: name,
		Kind: kind,
		Size: size,
	}, uploadPath, jobDir)

	if !s.store.TryStart(job.ID) {
		// Another conversion holds the slot; discard this upload
		_ = s.store.Remove(job.ID)
		writeError(w, http.StatusConflict, "A conversion is already in progress")
		return
	}

	go s.runConversion(job.ID, uploadPath, name, mimeType, jobDir)

	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

// runConversion drives one conversion to completion in the background.
// There is no cancellation once started; the job ends in Done or Failed.
func (s *Server) runConversion(jobID, uploadPath, name, mimeType, jobDir string) {
	started := time.Now()

	reporter := progress.NewFuncReporter(func(ev progress.ProgressEvent) {
		s.store.SetProgress(jobID, int(ev.Percentage))
	})

	conv, err := convert.NewWithDeps(convert.Options{
		InputPath:  uploadPath,
		InputName:  name,
		MIMEType:   mimeType,
		WorkDir:    filepath.Join(jobDir, "work"),
		OutputPath: filepath.Join(s.cfg.DataDir, "outputs", jobID+".mp3"),
		Policy:     s.cfg.Policy,
		MinKbps:    s.cfg.MinKbps,
		MaxKbps:    s.cfg.MaxKbps,
	}, reporter, s.logger, s.eng, nil)
	if err != nil {
		s.store.SetFailed(jobID, errors.UserMessage(err, convert.FailedMessage))
		conversionsTotal.WithLabelValues("failed").Inc()
		return
	}

	res, err := conv.Convert(context.Background())
	if err != nil {
		s.store.SetFailed(jobID, errors.UserMessage(err, convert.FailedMessage))
		conversionsTotal.WithLabelValues("failed").Inc()
		return
	}

	s.store.SetDone(jobID, res)
	conversionsTotal.WithLabelValues("done").Inc()
	conversionDuration.Observe(time.Since(started).Seconds())
}

func (s *Server) jobStatusHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown job")
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		ID:       job.ID,
		State:    job.State,
		Progress: job.Progress,
		Error:    job.Error,
		Input:    job.Input,
		Result:   job.Result,
	})
}

// downloadHandler streams the produced MP3 with the derived file name.
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown job")
		return
	}
	if job.State != convert.StateDone || job.Result == nil {
		writeError(w, http.StatusConflict, "Conversion is not finished")
		return
	}

	w.Header().Set("Content-Type", job.Result.ContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", job.Result.OutputName))
	http.ServeFile(w, r, job.Result.OutputPath)
}

// resetHandler discards a job and releases its artifacts.
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.Remove(id); err != nil {
		if err == convert.ErrConversionInFlight {
			writeError(w, http.StatusConflict, "A conversion is in progress")
			return
		}
		writeError(w, http.StatusNotFound, "Unknown job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
