package local

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayoubbns/vinscan/internal/photostore"
)

var extensions = []string{".jpg", ".png", ".gif", ".webp"}

type LocalPhotoStore struct {
	basePath string
}

func NewLocalPhotoStore(basePath string) (*LocalPhotoStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	return &LocalPhotoStore{basePath: basePath}, nil
}

func (s *LocalPhotoStore) Save(ctx context.Context, key, mimeType string, r io.Reader) error {
	filePath, err := s.safeJoin(key + mimeTypeToExt(mimeType))
	if err != nil {
		return err
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Error("failed to close file after write error", "error", cerr)
		}
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after write error", "error", rerr)
		}
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(filePath); rerr != nil {
			slog.Error("failed to remove file after close error", "error", rerr)
		}
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}

func (s *LocalPhotoStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	for _, ext := range extensions {
		filePath, err := s.safeJoin(key + ext)
		if err != nil {
			return nil, "", err
		}
		f, err := os.Open(filePath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to open file: %w", err)
		}
		return f, extToMimeType(filePath), nil
	}
	return nil, "", photostore.ErrNotFound
}

func (s *LocalPhotoStore) Delete(ctx context.Context, key string) error {
	for _, ext := range extensions {
		filePath, err := s.safeJoin(key + ext)
		if err != nil {
			return err
		}
		err = os.Remove(filePath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
		return nil
	}
	return photostore.ErrNotFound
}

// safeJoin resolves a file name relative to basePath and rejects directory
// traversal.
func (s *LocalPhotoStore) safeJoin(name string) (string, error) {
	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(s.basePath, name))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt")
	}
	return absPath, nil
}

func mimeTypeToExt(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func extToMimeType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
