// Package storage keeps uploaded candidate photos on local disk.
package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"idportal/internal/apperr"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// URLPrefix is the route the photo directory is served under.
const URLPrefix = "/photos"

var allowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

// LocalStore writes photos content-addressed by their BLAKE3 digest, so the
// same upload twice lands on the same file.
type LocalStore struct {
	dir      string
	baseURL  string
	maxBytes int64
	log      *zap.Logger
}

func NewLocalStore(dir, baseURL string, maxBytes int64, log *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create photo dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalStore{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
		log:      log,
	}, nil
}

func (s *LocalStore) Dir() string { return s.dir }

// Save stores the photo and returns its public URL.
func (s *LocalStore) Save(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	if len(data) == 0 {
		return "", apperr.Validation("profileImage", "the photo is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return "", apperr.Validation("profileImage", fmt.Sprintf("the photo exceeds %d bytes", s.maxBytes))
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedTypes...) {
		return "", apperr.Validation("profileImage", fmt.Sprintf("unsupported photo type %s", mt.String()))
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	sum := blake3.Sum256(data)
	name := hex.EncodeToString(sum[:16]) + mt.Extension()
	path := filepath.Join(s.dir, name)

	if _, err := os.Stat(path); err == nil {
		return s.url(name), nil
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create photo file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write photo: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to store photo: %w", err)
	}

	s.log.Info("photo stored", zap.String("name", name), zap.String("type", mt.String()), zap.Int("bytes", len(data)))
	return s.url(name), nil
}

func (s *LocalStore) url(name string) string {
	return s.baseURL + URLPrefix + "/" + name
}
