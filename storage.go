package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	originalsDir = "originals"
	resultsDir   = "results"
	imagesDir    = "images"

	staleOriginalAge = 30 * 24 * time.Hour
	staleImageAge    = 7 * 24 * time.Hour
)

// Storage manages the media tree: uploaded originals, generated result PDFs
// and per-receipt image files, all under one configurable root.
type Storage struct {
	Root string
}

// NewStorage creates the media directories under root.
func NewStorage(root string) (*Storage, error) {
	for _, sub := range []string{originalsDir, resultsDir, imagesDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0755); err != nil {
			return nil, fmt.Errorf("creating media directory %s: %w", sub, err)
		}
	}
	return &Storage{Root: root}, nil
}

// SaveOriginal stores an uploaded PDF under a collision-free name and
// returns the stored file name.
func (s *Storage) SaveOriginal(originalName string, r io.Reader) (string, error) {
	name := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(originalName))
	path := filepath.Join(s.Root, originalsDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating original file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing original file: %w", err)
	}

	return name, nil
}

// OriginalPath resolves a stored original's absolute path.
func (s *Storage) OriginalPath(name string) string {
	return filepath.Join(s.Root, originalsDir, name)
}

// SaveResult stores a generated PDF artifact and returns its file name.
func (s *Storage) SaveResult(name string, data []byte) (string, error) {
	path := filepath.Join(s.Root, resultsDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing result %s: %w", name, err)
	}
	return name, nil
}

// ResultPath resolves a result artifact's absolute path.
func (s *Storage) ResultPath(name string) string {
	return filepath.Join(s.Root, resultsDir, name)
}

// SaveImage stores one receipt's raster file, namespaced by job, and returns
// its file name.
func (s *Storage) SaveImage(jobID, name string, data []byte) (string, error) {
	stored := fmt.Sprintf("%s_%s", jobID, name)
	path := filepath.Join(s.Root, imagesDir, stored)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing image %s: %w", stored, err)
	}
	return stored, nil
}

// ImagePath resolves a receipt image's absolute path.
func (s *Storage) ImagePath(name string) string {
	return filepath.Join(s.Root, imagesDir, name)
}

// CleanupStale removes originals older than 30 days and receipt images older
// than 7 days, returning how many files were deleted.
func (s *Storage) CleanupStale() int {
	removed := 0
	removed += s.removeOlderThan(filepath.Join(s.Root, originalsDir), staleOriginalAge)
	removed += s.removeOlderThan(filepath.Join(s.Root, imagesDir), staleImageAge)
	return removed
}

func (s *Storage) removeOlderThan(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.WithError(err).Warnf("Failed to scan %s for cleanup", dir)
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.WithError(err).Warnf("Failed to remove stale file %s", path)
			continue
		}
		log.Debugf("Removed stale file %s", path)
		removed++
	}
	return removed
}

// startCleanupLoop deletes stale media on a fixed interval until the process
// exits. Interval zero disables the loop.
func startCleanupLoop(storage *Storage, interval time.Duration) {
	if interval <= 0 {
		log.Info("Media cleanup loop disabled")
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if removed := storage.CleanupStale(); removed > 0 {
				log.Infof("Media cleanup removed %d stale files", removed)
			}
		}
	}()
}
