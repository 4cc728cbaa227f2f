// Package watermark persists the last processed completion time in a local file
package watermark

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	perr "hdfsaudit/internal/platform/errors"
	"hdfsaudit/internal/platform/logger"
	"hdfsaudit/internal/services/audit/domain"
)

// fileDoc is the on-disk JSON shape. Timestamps carry explicit offsets
type fileDoc struct {
	LastEndTime string `json:"last_end_time"`
	UpdatedAt   string `json:"updated_at"`
}

// FileStore keeps the watermark in a single JSON file. Writes go through a
// sibling temp file and an atomic rename so partial writes are never observable
type FileStore struct {
	path string
	log  *logger.Logger
}

var _ domain.WatermarkStore = (*FileStore)(nil)

// NewFileStore builds a store for the given path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, log: logger.Named("watermark")}
}

// Path returns the backing file path
func (s *FileStore) Path() string { return s.path }

// Load returns the stored watermark, or nil when the file is missing or
// unreadable. Corruption degrades to a cold start, never to a failed run
func (s *FileStore) Load() (*domain.Watermark, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("watermark unreadable, treating as absent")
		}
		return nil, nil
	}

	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("watermark malformed, treating as absent")
		return nil, nil
	}

	last, err := time.Parse(time.RFC3339, doc.LastEndTime)
	if err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("watermark timestamp malformed, treating as absent")
		return nil, nil
	}

	wm := &domain.Watermark{LastEndTime: last}
	if doc.UpdatedAt != "" {
		if up, err := time.Parse(time.RFC3339, doc.UpdatedAt); err == nil {
			wm.UpdatedAt = up
		}
	}
	return wm, nil
}

// Save atomically persists at as the new upper bound
func (s *FileStore) Save(at time.Time) error {
	return s.write(at, time.Now())
}

// InitializeTo writes an initial watermark without processing any window
func (s *FileStore) InitializeTo(at time.Time) error {
	if err := s.write(at, time.Now()); err != nil {
		return err
	}
	s.log.Warn().Str("path", s.path).Time("last_end_time", at).Msg("watermark initialized")
	return nil
}

// Reset removes the stored watermark; a missing file is not an error
func (s *FileStore) Reset() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return perr.Wrapf(err, perr.ErrorCodeWatermark, "reset watermark %s", s.path)
	}
	s.log.Warn().Str("path", s.path).Msg("watermark reset")
	return nil
}

func (s *FileStore) write(at, updated time.Time) error {
	doc := fileDoc{
		LastEndTime: at.Format(time.RFC3339),
		UpdatedAt:   updated.Format(time.RFC3339),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWatermark, "encode watermark")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWatermark, "create watermark dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWatermark, "create temp watermark in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeWatermark, "write temp watermark %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return perr.Wrapf(err, perr.ErrorCodeWatermark, "sync temp watermark %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWatermark, "close temp watermark %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeWatermark, "replace watermark %s", s.path)
	}
	return nil
}
