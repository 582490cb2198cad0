package montage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/spikelab/videoworker/internal/common"
	"github.com/spikelab/videoworker/internal/job"
	"github.com/spikelab/videoworker/internal/media"
	"github.com/spikelab/videoworker/internal/storage"
)

const (
	clipLeadSeconds = 1.5
	clipDuration    = 3.0
)

// ProgressFunc receives typed progress events from the pipeline. Reporting
// errors are the caller's concern; the pipeline never fails on progress.
type ProgressFunc func(percent int, message string)

// CompletionNotifier reports a finished montage to the owning API.
type CompletionNotifier interface {
	MontageComplete(ctx context.Context, filename string, user map[string]any, token string) error
}

// Service assembles a highlight montage from a source video and an ordered
// list of action timestamps: extract one clip per timestamp, concatenate
// them with a stream copy, overlay the branding watermark, publish the
// deliverable and notify the API. All intermediates live in a per-run
// directory that is removed on every exit path.
type Service struct {
	runner      media.Runner
	notifier    CompletionNotifier
	store       storage.Storage
	uploadedDir string
	clipsDir    string
	watermark   string
}

func NewService(runner media.Runner, notifier CompletionNotifier, store storage.Storage, uploadedDir, clipsDir, watermark string) *Service {
	return &Service{
		runner:      runner,
		notifier:    notifier,
		store:       store,
		uploadedDir: uploadedDir,
		clipsDir:    clipsDir,
		watermark:   watermark,
	}
}

// Run executes the full montage pipeline and returns the published montage
// filename. Timestamps are processed in payload order; the caller supplies
// them in desired playback order and they are never re-sorted.
func (s *Service) Run(ctx context.Context, p job.MontagePayload, report ProgressFunc) (string, error) {
	source := filepath.Join(s.uploadedDir, filepath.Base(p.Filename))

	if err := s.validate(source, p); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.clipsDir, 0755); err != nil {
		return "", fmt.Errorf("create clips directory: %w", err)
	}

	runDir, err := os.MkdirTemp(s.clipsDir, "run-")
	if err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	// Unconditional cleanup: every clip, the concat list and the
	// unwatermarked intermediate go away whether the run succeeded or not.
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			slog.Error("failed to clean up montage run directory", "dir", runDir, "error", err)
		} else {
			slog.Info("temporary montage artifacts deleted", "dir", runDir)
		}
	}()

	report(10, "Starting clip extraction")

	clips, err := s.extractClips(ctx, source, p.Actions, runDir, report)
	if err != nil {
		return "", err
	}

	report(45, "Clip extraction complete")

	merged, err := s.concatClips(ctx, clips, runDir)
	if err != nil {
		return "", err
	}

	report(70, "Montage merge complete")

	watermarked, err := s.applyWatermark(ctx, merged)
	if err != nil {
		return "", err
	}

	report(85, "Watermark applied")

	published, err := s.publish(ctx, watermarked)
	if err != nil {
		return "", err
	}

	if err := s.notifier.MontageComplete(ctx, published, p.User, p.Token); err != nil {
		return "", fmt.Errorf("notify montage completion: %w", err)
	}

	report(100, "Montage creation complete")
	return published, nil
}

// validate checks the fatal input preconditions before anything is created.
func (s *Service) validate(source string, p job.MontagePayload) error {
	if p.Filename == "" {
		return common.ValidationError{Field: "filename", Message: "filename is required"}
	}
	if len(p.Actions) == 0 {
		return common.ValidationError{Field: "actionsArray", Message: "no timestamps provided for montage creation"}
	}

	if _, err := os.Stat(source); err != nil {
		return common.ValidationError{Field: "filename", Message: fmt.Sprintf("source video file not found: %s", source)}
	}

	mime, err := mimetype.DetectFile(source)
	if err != nil {
		return fmt.Errorf("sniff source video type: %w", err)
	}
	if !strings.HasPrefix(mime.String(), "video/") {
		return common.ValidationError{Field: "filename", Message: fmt.Sprintf("source is not a video: %s", mime.String())}
	}
	return nil
}

// extractClips cuts one fixed-length clip per timestamp, sequentially.
// Sequential extraction keeps clip numbering deterministic and avoids
// concurrent encodes against the same source.
func (s *Service) extractClips(ctx context.Context, source string, actions []job.Action, runDir string, report ProgressFunc) ([]string, error) {
	clips := make([]string, 0, len(actions))

	for i, action := range actions {
		start, duration := ClipWindow(action.Timestamp)
		dst := filepath.Join(runDir, fmt.Sprintf("%d.mp4", i+1))

		if err := s.runner.ExtractClip(ctx, source, dst, start, duration); err != nil {
			return nil, fmt.Errorf("extract clip %d at %gs: %w", i+1, action.Timestamp, err)
		}
		clips = append(clips, dst)

		report(10+(35*(i+1))/len(actions), fmt.Sprintf("Extracted clip %d of %d", i+1, len(actions)))
	}
	return clips, nil
}

// concatClips joins the clips in extraction order via a stream copy.
func (s *Service) concatClips(ctx context.Context, clips []string, runDir string) (string, error) {
	listFile := filepath.Join(runDir, "file_list.txt")

	var b strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&b, "file '%s'\n", clip)
	}
	if err := os.WriteFile(listFile, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("write concat file list: %w", err)
	}

	merged := filepath.Join(runDir, fmt.Sprintf("montage_%d.mp4", time.Now().UnixMilli()))
	if err := s.runner.Concat(ctx, listFile, merged); err != nil {
		return "", fmt.Errorf("concatenate clips: %w", err)
	}
	return merged, nil
}

// applyWatermark overlays the branding image. A montage is never delivered
// unbranded, so a missing asset is fatal for the job.
func (s *Service) applyWatermark(ctx context.Context, merged string) (string, error) {
	if _, err := os.Stat(s.watermark); err != nil {
		return "", common.ValidationError{Field: "watermark", Message: fmt.Sprintf("watermark image not found: %s", s.watermark)}
	}

	watermarked := strings.TrimSuffix(merged, ".mp4") + "_watermarked.mp4"
	if err := s.runner.Overlay(ctx, merged, s.watermark, watermarked); err != nil {
		return "", fmt.Errorf("apply watermark: %w", err)
	}
	return watermarked, nil
}

// publish moves the final deliverable out of the run directory into the
// completed-montage store and returns its published filename.
func (s *Service) publish(ctx context.Context, watermarked string) (string, error) {
	f, err := os.Open(watermarked)
	if err != nil {
		return "", fmt.Errorf("open final montage: %w", err)
	}
	defer f.Close()

	res, err := s.store.UploadFile(ctx, filepath.Base(watermarked), f, "video/mp4")
	if err != nil {
		return "", fmt.Errorf("publish montage: %w", err)
	}

	slog.Info("montage published", "key", res.Key, "url", res.URL)
	return res.Key, nil
}

// ClipWindow computes the extraction window for a timestamp: the clip starts
// 1.5s before the action, clamped at the start of the source, and requests
// exactly 3.0s. Truncation against a shorter source is left to the tool.
func ClipWindow(timestamp float64) (start, duration float64) {
	start = timestamp - clipLeadSeconds
	if start < 0 {
		start = 0
	}
	return start, clipDuration
}
