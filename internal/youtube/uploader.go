package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"
)

// Uploader streams video files to YouTube using a pre-configured OAuth
// credential set. There is no partial-success state: either the platform
// returns a video id or the upload failed.
type Uploader struct {
	oauth        oauth2.Config
	refreshToken string
}

type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string
}

func NewUploader(creds Credentials) *Uploader {
	return &Uploader{
		oauth: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Endpoint:     google.Endpoint,
			Scopes:       []string{youtubeapi.YoutubeUploadScope},
		},
		refreshToken: creds.RefreshToken,
	}
}

// Upload sends the file at path to YouTube as an unlisted video titled after
// its filename and returns the platform-assigned video id.
func (u *Uploader) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open source video: %w", err)
	}
	defer f.Close()

	tokenSource := u.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: u.refreshToken})
	svc, err := youtubeapi.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return "", fmt.Errorf("create youtube service: %w", err)
	}

	filename := filepath.Base(path)
	call := svc.Videos.Insert([]string{"snippet", "status"}, &youtubeapi.Video{
		Snippet: &youtubeapi.VideoSnippet{
			Title:       filename,
			Description: "Uploaded by videoworker",
		},
		Status: &youtubeapi.VideoStatus{
			PrivacyStatus: "unlisted",
		},
	})

	res, err := call.Media(f).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload video %s: %w", filename, err)
	}
	if res.Id == "" {
		return "", fmt.Errorf("upload video %s: platform returned empty video id", filename)
	}

	slog.Info("youtube upload complete", "filename", filename, "youtube_id", res.Id)
	return res.Id, nil
}
