package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spikelab/videoworker/internal/config"
	"github.com/spikelab/videoworker/internal/job"
	"github.com/spikelab/videoworker/internal/queue"
	redisservice "github.com/spikelab/videoworker/internal/redis"
	"github.com/spikelab/videoworker/internal/repository"
	"github.com/spikelab/videoworker/internal/storage"
	"github.com/spikelab/videoworker/internal/validation"
)

type Handlers struct {
	Q         queue.JobQueue
	Repo      *repository.Repository
	Redis     *redisservice.Service
	Store     storage.Storage
	Validator *validation.Validator
	Config    config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)

	r.Post("/video-montage-maker/add", h.addMontageJob)
	r.Get("/video-montage-maker/montages/{filename}", h.getMontage)
	r.Delete("/video-montage-maker/montages/{filename}", h.deleteMontage)

	r.Post("/youtube-uploader/add", h.addUploadJob)

	r.Get("/v1/jobs/{id}", h.getJob)
}

func (h *Handlers) addMontageJob(w http.ResponseWriter, r *http.Request) {
	var req validation.MontageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Validator.ValidateMontageRequest(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(job.MontagePayload{
		Filename: req.Filename,
		Actions:  req.Actions,
		User:     req.User,
		Token:    req.Token,
	})
	if err != nil {
		slog.Error("failed to marshal montage payload", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	id, err := h.Q.Enqueue(r.Context(), h.Config.MontageQueue, job.KindMontage, payload)
	if err != nil {
		slog.Error("failed to enqueue montage job", "error", err)
		http.Error(w, "failed to queue montage job", http.StatusServiceUnavailable)
		return
	}

	slog.Info("montage job enqueued",
		"job_id", id,
		"queue", h.Config.MontageQueue,
		"filename", req.Filename,
		"actions", len(req.Actions))

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Montage job added",
		"jobId":   id,
	})
}

func (h *Handlers) addUploadJob(w http.ResponseWriter, r *http.Request) {
	var req validation.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	queueName, err := h.Validator.ValidateUploadRequest(req, h.Config.UploadQueue)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(job.UploadPayload{
		Filename: req.Filename,
		VideoID:  req.VideoID,
	})
	if err != nil {
		slog.Error("failed to marshal upload payload", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	id, err := h.Q.Enqueue(r.Context(), queueName, job.KindUpload, payload)
	if err != nil {
		slog.Error("failed to enqueue upload job", "error", err)
		http.Error(w, "error triggering job", http.StatusServiceUnavailable)
		return
	}

	slog.Info("upload job enqueued",
		"job_id", id,
		"queue", queueName,
		"filename", req.Filename,
		"video_id", req.VideoID)

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Job triggered successfully!",
		"jobId":   id,
	})
}

// getMontage streams a finished montage back to the caller, from whichever
// store the worker published it to.
func (h *Handlers) getMontage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" || filename != filepath.Base(filename) {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}

	f, contentType, err := h.Store.GetFile(r.Context(), filename)
	if err != nil {
		http.Error(w, "montage not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, f); err != nil {
		slog.Error("failed to stream montage", "filename", filename, "error", err)
	}
}

func (h *Handlers) deleteMontage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename == "" || filename != filepath.Base(filename) {
		http.Error(w, "invalid filename", http.StatusBadRequest)
		return
	}

	if err := h.Store.DeleteFile(r.Context(), filename); err != nil {
		http.Error(w, "montage not found", http.StatusNotFound)
		return
	}

	slog.Info("montage deleted", "filename", filename)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Montage deleted"})
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	j, ok := h.Q.Status(r.Context(), id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       j.ID,
		"queue":    j.Queue,
		"kind":     j.Kind,
		"status":   j.Status,
		"progress": j.Progress,
		"log":      j.Log,
		"result":   j.Result,
		"error":    j.Error,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
