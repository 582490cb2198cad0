package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spikelab/videoworker/internal/job"
)

// MontageRequest is the body of POST /video-montage-maker/add.
type MontageRequest struct {
	Filename string         `json:"filename" validate:"required"`
	Actions  []job.Action   `json:"actionsArray" validate:"required,min=1,dive"`
	User     map[string]any `json:"user"`
	Token    string         `json:"token" validate:"required"`
}

// UploadRequest is the body of POST /youtube-uploader/add. QueueName is
// optional; when present it must be on the configured allow-list.
type UploadRequest struct {
	Filename  string `json:"filename" validate:"required"`
	VideoID   int64  `json:"videoId" validate:"required,gt=0"`
	QueueName string `json:"queueName"`
}

type Validator struct {
	validate      *validator.Validate
	allowedQueues map[string]bool
}

func New(allowedUploadQueues []string) *Validator {
	allowed := make(map[string]bool, len(allowedUploadQueues))
	for _, q := range allowedUploadQueues {
		allowed[q] = true
	}
	return &Validator{
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		allowedQueues: allowed,
	}
}

func (v *Validator) ValidateMontageRequest(req MontageRequest) error {
	if err := v.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid montage request: %s", fieldErrors(err))
	}
	for i, a := range req.Actions {
		if a.Timestamp < 0 {
			return fmt.Errorf("invalid montage request: actionsArray[%d].timestamp must not be negative", i)
		}
	}
	return nil
}

// ValidateUploadRequest validates the request and resolves its queue name:
// empty falls back to defaultQueue, anything off the allow-list is rejected
// so callers cannot create arbitrary queues.
func (v *Validator) ValidateUploadRequest(req UploadRequest, defaultQueue string) (string, error) {
	if err := v.validate.Struct(req); err != nil {
		return "", fmt.Errorf("invalid upload request: %s", fieldErrors(err))
	}

	queueName := req.QueueName
	if queueName == "" {
		queueName = defaultQueue
	}
	if !v.allowedQueues[queueName] {
		return "", fmt.Errorf("queue name %q is not allowed", queueName)
	}
	return queueName, nil
}

func fieldErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
