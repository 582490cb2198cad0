package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notifier reports a finished montage to the owning API so it can inform the
// end user. Failures are returned to the caller: an unreported montage is
// unreachable, so the montage job treats notification failure as job failure.
type Notifier struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Notifier {
	return &Notifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type montageCompleteRequest struct {
	Filename string         `json:"filename"`
	User     map[string]any `json:"user,omitempty"`
}

// MontageComplete posts the finished montage filename to the API. The token
// is the caller-supplied bearer credential carried through the job payload.
func (n *Notifier) MontageComplete(ctx context.Context, filename string, user map[string]any, token string) error {
	url := n.baseURL + "/videos/montage-service/video-completed-notify-user"

	body, err := json.Marshal(montageCompleteRequest{Filename: filename, User: user})
	if err != nil {
		return fmt.Errorf("marshal notification body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	slog.Info("notifying API that montage is complete", "url", url, "filename", filename)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send montage completion notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("montage completion notification rejected",
			"status", resp.StatusCode, "body", string(data))
		return fmt.Errorf("montage completion notification: unexpected status %d", resp.StatusCode)
	}

	slog.Info("montage completion notification sent", "filename", filename)
	return nil
}
