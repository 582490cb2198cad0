package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spikelab/videoworker/internal/common"
	"github.com/spikelab/videoworker/internal/database"
	"github.com/spikelab/videoworker/internal/models"
)

// Repository exposes the two narrow mutations the worker performs on the
// externally-owned video record, plus the read needed to locate the source
// file. Everything else about the videos table belongs to the owning API.
type Repository struct {
	db *database.DB
}

func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *database.DB {
	return r.db
}

func (r *Repository) GetVideo(ctx context.Context, id int64) (*models.Video, error) {
	query := `
		SELECT id, filename, url, youtube_video_id, processing_completed, processing_failed, created_at, updated_at
		FROM videos
		WHERE id = $1
	`

	var v models.Video
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&v.ID,
		&v.Filename,
		&v.URL,
		&v.YouTubeVideoID,
		&v.ProcessingCompleted,
		&v.ProcessingFailed,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("video %d: %w", id, common.ErrVideoNotFound)
		}
		return nil, fmt.Errorf("get video %d: %w", id, err)
	}
	return &v, nil
}

// MarkProcessingCompleted records a successful upload: the platform id is
// stored and the completed flag is set.
func (r *Repository) MarkProcessingCompleted(ctx context.Context, id int64, youTubeVideoID string) error {
	query := `
		UPDATE videos
		SET youtube_video_id = $2, processing_completed = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, youTubeVideoID)
	if err != nil {
		return fmt.Errorf("mark video %d completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %d: %w", id, common.ErrVideoNotFound)
	}
	return nil
}

// MarkProcessingFailed records a failed job against the video record. The
// YouTube id is left untouched (it is never set on a failure path).
func (r *Repository) MarkProcessingFailed(ctx context.Context, id int64) error {
	query := `
		UPDATE videos
		SET processing_failed = TRUE, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark video %d failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %d: %w", id, common.ErrVideoNotFound)
	}
	return nil
}
