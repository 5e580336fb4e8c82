package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"chat-realtime/internal/models"
)

const DefaultMaxBytes = 5 << 20

var (
	ErrTooLarge        = errors.New("image exceeds size limit")
	ErrUnsupportedType = errors.New("unsupported image type")
)

var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// ImageStore persists uploaded chat images.
type ImageStore interface {
	Save(ctx context.Context, r io.Reader) (models.Image, error)
}

// DiskStore writes images under dir and serves them from baseURL.
type DiskStore struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewDiskStore creates dir if needed.
func NewDiskStore(dir, baseURL string, maxBytes int64) (*DiskStore, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Save validates the content by sniffing, not by the client's file name.
func (s *DiskStore) Save(ctx context.Context, r io.Reader) (models.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return models.Image{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return models.Image{}, ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return models.Image{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}
	if err := ctx.Err(); err != nil {
		return models.Image{}, err
	}

	name := uuid.NewString() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return models.Image{}, fmt.Errorf("write image: %w", err)
	}
	url := s.baseURL + "/" + name
	return models.Image{URL: &url, PublicID: &name}, nil
}
