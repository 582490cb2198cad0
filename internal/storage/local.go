package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type LocalStorage struct {
	baseDir string
	baseURL string
}

func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
		baseURL: baseURL,
	}, nil
}

func (s *LocalStorage) UploadFile(ctx context.Context, filename string, content io.Reader, contentType string) (*UploadResult, error) {
	key := filepath.Base(filename)
	filePath := filepath.Join(s.baseDir, key)

	f, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, content)
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	url := fmt.Sprintf("%s/%s", s.baseURL, key)

	slog.Info("montage stored locally", "key", key, "path", filePath, "size", n)

	return &UploadResult{
		Key: key,
		URL: url,
	}, nil
}

func (s *LocalStorage) GetFile(ctx context.Context, key string) (io.ReadCloser, string, error) {
	filePath := filepath.Join(s.baseDir, filepath.Base(key))

	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("file not found: %s", key)
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	return f, "video/mp4", nil
}

func (s *LocalStorage) DeleteFile(ctx context.Context, key string) error {
	filePath := filepath.Join(s.baseDir, filepath.Base(key))

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	slog.Info("file deleted from local storage", "key", key, "path", filePath)
	return nil
}
