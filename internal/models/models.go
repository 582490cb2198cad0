package models

import "time"

// Video is the externally-owned video record. The worker reads the filename
// and writes exactly two things: the processing outcome flags and, for
// upload jobs, the YouTube video id.
type Video struct {
	ID                  int64      `json:"id"`
	Filename            string     `json:"filename"`
	URL                 *string    `json:"url,omitempty"`
	YouTubeVideoID      *string    `json:"youtube_video_id,omitempty"`
	ProcessingCompleted bool       `json:"processing_completed"`
	ProcessingFailed    bool       `json:"processing_failed"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`
}
