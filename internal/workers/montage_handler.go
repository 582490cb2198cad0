package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spikelab/videoworker/internal/job"
	"github.com/spikelab/videoworker/internal/montage"
	"github.com/spikelab/videoworker/internal/queue"
)

// MontagePipeline is the montage assembly algorithm; implemented by
// montage.Service.
type MontagePipeline interface {
	Run(ctx context.Context, p job.MontagePayload, report montage.ProgressFunc) (string, error)
}

type MontageHandler struct {
	pipeline MontagePipeline
	queue    queue.JobQueue
}

func NewMontageHandler(pipeline MontagePipeline, q queue.JobQueue) *MontageHandler {
	return &MontageHandler{pipeline: pipeline, queue: q}
}

func (h *MontageHandler) Handle(ctx context.Context, j *job.Job) (string, error) {
	var payload job.MontagePayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return "", fmt.Errorf("unmarshal montage payload: %w", err)
	}

	slog.Info("starting montage job",
		"job_id", j.ID,
		"filename", payload.Filename,
		"actions", len(payload.Actions))

	filename, err := h.pipeline.Run(ctx, payload, func(percent int, message string) {
		h.queue.ReportProgress(ctx, j.ID, percent, message)
		slog.Info("montage progress", "job_id", j.ID, "percent", percent, "message", message)
	})
	if err != nil {
		return "", err
	}

	return filename, nil
}
