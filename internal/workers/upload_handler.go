package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spikelab/videoworker/internal/job"
	"github.com/spikelab/videoworker/internal/models"
	"github.com/spikelab/videoworker/internal/queue"
)

// VideoStore is the narrow contract against the externally-owned video
// record: one read, two terminal mutations.
type VideoStore interface {
	GetVideo(ctx context.Context, id int64) (*models.Video, error)
	MarkProcessingCompleted(ctx context.Context, id int64, youTubeVideoID string) error
	MarkProcessingFailed(ctx context.Context, id int64) error
}

// VideoUploader streams a file to the hosting platform and returns its id.
type VideoUploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// UploadHandler runs the single-stage upload pipeline: stream the source
// file to YouTube, then record the outcome on the video record. Any failure
// marks the record failed and fails the job; there is no partial success.
type UploadHandler struct {
	store       VideoStore
	uploader    VideoUploader
	queue       queue.JobQueue
	uploadedDir string
}

func NewUploadHandler(store VideoStore, uploader VideoUploader, q queue.JobQueue, uploadedDir string) *UploadHandler {
	return &UploadHandler{
		store:       store,
		uploader:    uploader,
		queue:       q,
		uploadedDir: uploadedDir,
	}
}

func (h *UploadHandler) Handle(ctx context.Context, j *job.Job) (string, error) {
	var payload job.UploadPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return "", fmt.Errorf("unmarshal upload payload: %w", err)
	}

	slog.Info("starting youtube upload job",
		"job_id", j.ID,
		"filename", payload.Filename,
		"video_id", payload.VideoID)

	video, err := h.store.GetVideo(ctx, payload.VideoID)
	if err != nil {
		return "", fmt.Errorf("load video record: %w", err)
	}

	h.queue.ReportProgress(ctx, j.ID, 10, "Starting YouTube upload")

	path := filepath.Join(h.uploadedDir, filepath.Base(payload.Filename))
	youTubeID, err := h.uploader.Upload(ctx, path)
	if err != nil {
		h.markFailed(ctx, video.ID)
		return "", fmt.Errorf("upload to youtube: %w", err)
	}

	h.queue.ReportProgress(ctx, j.ID, 90, "Upload complete, updating video record")

	if err := h.store.MarkProcessingCompleted(ctx, video.ID, youTubeID); err != nil {
		h.markFailed(ctx, video.ID)
		return "", fmt.Errorf("update video record: %w", err)
	}

	slog.Info("video record updated", "video_id", video.ID, "youtube_id", youTubeID)
	return youTubeID, nil
}

func (h *UploadHandler) markFailed(ctx context.Context, videoID int64) {
	if err := h.store.MarkProcessingFailed(context.WithoutCancel(ctx), videoID); err != nil {
		slog.Error("failed to mark video record failed", "video_id", videoID, "error", err)
	}
}
