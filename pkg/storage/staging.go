package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTooLarge is returned by Stage when the stream exceeds the configured limit.
var ErrTooLarge = errors.New("staged file exceeds size limit")

// StagingArea keeps pending uploads on local disk until they are submitted or discarded.
type StagingArea struct {
	baseDir string
}

// NewStagingArea ensures the staging directory exists and returns a handle.
func NewStagingArea(baseDir string) (*StagingArea, error) {
	if baseDir == "" {
		baseDir = "./staging"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	return &StagingArea{baseDir: baseDir}, nil
}

// Stage copies at most limit bytes from r into key and returns the written size.
// A limit of zero or less disables the check. Oversized streams are removed again.
func (s *StagingArea) Stage(key string, r io.Reader, limit int64) (int64, error) {
	path, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create staged file: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, copyErr := io.Copy(file, src)
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return 0, fmt.Errorf("write staged file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return 0, fmt.Errorf("close staged file: %w", closeErr)
	case limit > 0 && written > limit:
		_ = os.Remove(path)
		return written, ErrTooLarge
	}
	return written, nil
}

// Open returns a read-only handle for a staged file.
func (s *StagingArea) Open(key string) (*os.File, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return file, nil
}

// Discard removes a staged file if present.
func (s *StagingArea) Discard(key string) error {
	if key == "" {
		return nil
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard staged file: %w", err)
	}
	return nil
}

// PurgeOlderThan removes staged files untouched for longer than ttl and returns
// their keys. Files for which keep reports true are left alone.
func (s *StagingArea) PurgeOlderThan(ttl time.Duration, keep func(key string) bool) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read staging directory: %w", err)
	}
	purged := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() || (keep != nil && keep(entry.Name())) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return purged, fmt.Errorf("stat staged file: %w", err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return purged, fmt.Errorf("purge staged file: %w", err)
		}
		purged = append(purged, entry.Name())
	}
	return purged, nil
}

// keys are flat names; anything resembling a path is refused.
func (s *StagingArea) resolve(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid staging key %q", key)
	}
	return filepath.Join(s.baseDir, key), nil
}
