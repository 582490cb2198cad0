package job

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindMontage Kind = "montage"
	KindUpload  Kind = "upload"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final status. Terminal jobs never
// transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Job struct {
	ID       uuid.UUID  `json:"id"`
	Queue    string     `json:"queue"`
	Kind     Kind       `json:"kind"`
	Payload  []byte     `json:"payload"`
	Status   Status     `json:"status"`
	Progress int        `json:"progress"`
	Log      []string   `json:"log,omitempty"`
	Result   string     `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
	Enqueued time.Time  `json:"enqueued_at"`
	Started  *time.Time `json:"started_at,omitempty"`
	Finished *time.Time `json:"finished_at,omitempty"`
}

// MontagePayload is the payload carried by montage jobs. Timestamp order is
// significant: clips are extracted and concatenated in exactly this order.
type MontagePayload struct {
	Filename string         `json:"filename"`
	Actions  []Action       `json:"actionsArray"`
	User     map[string]any `json:"user,omitempty"`
	Token    string         `json:"token"`
}

type Action struct {
	Timestamp float64 `json:"timestamp"`
}

// UploadPayload is the payload carried by YouTube upload jobs.
type UploadPayload struct {
	Filename string `json:"filename"`
	VideoID  int64  `json:"videoId"`
}
