package storage

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// SharedDiskStorage stores run artifacts on a filesystem path, typically an
// nfs share mounted by every replica and job container.
type SharedDiskStorage struct {
	basepath string
}

func NewSharedDisk(basepath string) Storage {
	slog.Info("creating new shared disk storage", "basepath", basepath)
	return &SharedDiskStorage{basepath: basepath}
}

func (s *SharedDiskStorage) fullpath(path string) string {
	return filepath.Join(s.basepath, path)
}

func (s *SharedDiskStorage) Read(path string) (io.ReadCloser, error) {
	file, err := os.Open(s.fullpath(path))
	if err != nil {
		slog.Error("error opening file for read", "path", path, "error", err)
		return nil, fmt.Errorf("error reading file %v: %w", path, err)
	}
	return file, nil
}

func (s *SharedDiskStorage) Write(path string, data io.Reader) error {
	return s.writeData(path, data, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

func (s *SharedDiskStorage) Append(path string, data io.Reader) error {
	return s.writeData(path, data, os.O_RDWR|os.O_CREATE|os.O_APPEND)
}

func (s *SharedDiskStorage) writeData(path string, data io.Reader, flags int) error {
	fullpath := s.fullpath(path)

	if err := os.MkdirAll(filepath.Dir(fullpath), 0777); err != nil {
		slog.Error("error creating parent directory", "path", path, "error", err)
		return fmt.Errorf("error creating parent directory for %v: %w", path, err)
	}

	file, err := os.OpenFile(fullpath, flags, 0666)
	if err != nil {
		slog.Error("error opening file for writing", "path", path, "error", err)
		return fmt.Errorf("error opening file %v: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		slog.Error("error writing to file", "path", path, "error", err)
		return fmt.Errorf("error writing to file %v: %w", path, err)
	}

	return nil
}

func (s *SharedDiskStorage) Delete(path string) error {
	if err := os.RemoveAll(s.fullpath(path)); err != nil {
		slog.Error("error deleting path", "path", path, "error", err)
		return fmt.Errorf("error deleting %v: %w", path, err)
	}
	return nil
}

func (s *SharedDiskStorage) List(path string) ([]string, error) {
	entries, err := os.ReadDir(s.fullpath(path))
	if err != nil {
		slog.Error("error listing entries", "path", path, "error", err)
		return nil, fmt.Errorf("error listing entries at %v: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (s *SharedDiskStorage) Exists(path string) (bool, error) {
	_, err := os.Stat(s.fullpath(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	slog.Error("error checking if file exists", "path", path, "error", err)
	return false, fmt.Errorf("error checking if file %v exists: %w", path, err)
}

func (s *SharedDiskStorage) Size(path string) (int64, error) {
	info, err := os.Stat(s.fullpath(path))
	if err != nil {
		slog.Error("error getting stats for file", "path", path, "error", err)
		return 0, fmt.Errorf("error getting stats for file %v: %w", path, err)
	}
	return info.Size(), nil
}

// Zip archives the directory at path into <path>.zip beside it. Used to
// serve whole artifact trees as one download.
func (s *SharedDiskStorage) Zip(path string) error {
	fullpath := s.fullpath(path)

	zipfile, err := os.Create(fullpath + ".zip")
	if err != nil {
		slog.Error("error creating zip archive", "path", path, "error", err)
		return fmt.Errorf("error creating zip archive for %v: %w", path, err)
	}
	defer zipfile.Close()

	archive := zip.NewWriter(zipfile)
	defer archive.Close()

	if err := archive.AddFS(os.DirFS(fullpath)); err != nil {
		slog.Error("error writing directory to zip archive", "path", path, "error", err)
		return fmt.Errorf("error writing directory %v to zip archive: %w", path, err)
	}

	return nil
}

func (s *SharedDiskStorage) Usage() (UsageStats, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.basepath, &stat); err != nil {
		slog.Error("error getting disk usage for shared storage", "path", s.basepath, "error", err)
		return UsageStats{}, fmt.Errorf("error getting disk usage stats: %w", err)
	}

	return UsageStats{
		TotalBytes: stat.Blocks * uint64(stat.Bsize),
		FreeBytes:  stat.Bfree * uint64(stat.Bsize),
	}, nil
}

func (s *SharedDiskStorage) Location() string {
	return s.basepath
}
