package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dbvault/internal/archive"
	"dbvault/internal/logging"
	"dbvault/internal/schema"
)

// ArchiveInfo describes an archive file in the archive directory
type ArchiveInfo struct {
	Filename  string    `json:"filename" yaml:"filename"`
	Size      int64     `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// ArchiveDetails adds the decoded manifest to ArchiveInfo
type ArchiveDetails struct {
	ArchiveInfo `yaml:",inline"`
	Manifest    *archive.Manifest `json:"manifest" yaml:"manifest"`
}

// CleanupResult reports what a retention sweep removed
type CleanupResult struct {
	Deleted   []string  `json:"deleted" yaml:"deleted"`
	Remaining int       `json:"remaining" yaml:"remaining"`
	Cutoff    time.Time `json:"cutoff" yaml:"cutoff"`
}

// Store manages the archive directory. Every method taking a filename
// validates it before touching the filesystem.
type Store struct {
	dir    string
	logger *logging.Logger
}

// NewStore creates a store rooted at dir
func NewStore(dir string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the archive directory
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) ensure() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return NewStorageError("failed to create archive directory", err).WithContext("dir", s.dir)
	}
	return nil
}

// Path resolves a validated filename to a path inside the archive directory
func (s *Store) Path(filename string) (string, error) {
	if err := ValidateArchiveName(filename); err != nil {
		s.logger.LogSecurityEvent("archive_filename_rejected", map[string]interface{}{
			"filename": filename,
		})
		return "", err
	}

	root := filepath.Clean(s.dir)
	p := filepath.Join(root, filename)
	if filepath.Dir(p) != root {
		s.logger.LogSecurityEvent("archive_path_escape", map[string]interface{}{
			"filename": filename,
		})
		return "", NewValidationError("archive path escapes the archive directory", nil).WithContext("filename", filename)
	}
	return p, nil
}

func (s *Store) stat(filename string) (string, fs.FileInfo, error) {
	p, err := s.Path(filename)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, NewNotFoundError(fmt.Sprintf("archive %s not found", filename), err).WithContext("filename", filename)
	}
	if err != nil {
		return "", nil, NewStorageError("failed to stat archive", err).WithContext("filename", filename)
	}
	if !info.Mode().IsRegular() {
		return "", nil, NewNotFoundError(fmt.Sprintf("archive %s is not a regular file", filename), nil)
	}
	return p, info, nil
}

// List returns every archive, newest first
func (s *Store) List() ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []ArchiveInfo{}, nil
	}
	if err != nil {
		return nil, NewStorageError("failed to read archive directory", err).WithContext("dir", s.dir)
	}

	archives := make([]ArchiveInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !isArchiveFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		archives = append(archives, ArchiveInfo{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(archives, func(i, j int) bool {
		if !archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].CreatedAt.After(archives[j].CreatedAt)
		}
		return archives[i].Filename > archives[j].Filename
	})
	return archives, nil
}

// Info returns the file details and manifest of one archive
func (s *Store) Info(filename string) (*ArchiveDetails, error) {
	p, info, err := s.stat(filename)
	if err != nil {
		return nil, err
	}

	manifest, err := archive.ReadManifest(p)
	if err != nil {
		if errors.Is(err, archive.ErrCorruptArchive) {
			return nil, NewCorruptArchiveError("archive manifest cannot be read", err).WithContext("filename", filename)
		}
		return nil, NewStorageError("failed to read archive", err).WithContext("filename", filename)
	}

	return &ArchiveDetails{
		ArchiveInfo: ArchiveInfo{Filename: filename, Size: info.Size(), CreatedAt: info.ModTime().UTC()},
		Manifest:    manifest,
	}, nil
}

// Schema returns the schema snapshot stored in one archive
func (s *Store) Schema(filename string) (*schema.Snapshot, error) {
	p, _, err := s.stat(filename)
	if err != nil {
		return nil, err
	}

	snapshot, err := archive.ReadSchema(p)
	if err != nil {
		if errors.Is(err, archive.ErrCorruptArchive) {
			return nil, NewCorruptArchiveError("archive schema cannot be read", err).WithContext("filename", filename)
		}
		return nil, NewStorageError("failed to read archive", err).WithContext("filename", filename)
	}
	return snapshot, nil
}

// Delete removes one archive
func (s *Store) Delete(filename string) error {
	p, _, err := s.stat(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return NewStorageError("failed to delete archive", err).WithContext("filename", filename)
	}
	s.logger.WithField("filename", filename).Info("Archive deleted")
	return nil
}

// Cleanup deletes every archive last modified before now minus retentionDays
func (s *Store) Cleanup(retentionDays int, now time.Time) (*CleanupResult, error) {
	if retentionDays < 1 {
		return nil, NewValidationError("retention must be at least one day", nil).WithContext("retention_days", retentionDays)
	}

	archives, err := s.List()
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{
		Deleted: []string{},
		Cutoff:  now.UTC().Add(-time.Duration(retentionDays) * 24 * time.Hour),
	}
	for _, a := range archives {
		if !a.CreatedAt.Before(result.Cutoff) {
			result.Remaining++
			continue
		}
		if err := s.Delete(a.Filename); err != nil {
			if IsNotFound(err) {
				continue
			}
			return result, err
		}
		result.Deleted = append(result.Deleted, a.Filename)
	}
	return result, nil
}

// createTemp opens a hidden temporary file in the archive directory
func (s *Store) createTemp() (*os.File, error) {
	if err := s.ensure(); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(s.dir, ".backup-*.partial")
	if err != nil {
		return nil, NewStorageError("failed to create temporary archive", err)
	}
	return f, nil
}

// commit syncs tmp and renames it to filename
func (s *Store) commit(tmp *os.File, filename string) (string, error) {
	p, err := s.Path(filename)
	if err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", NewStorageError("failed to sync archive", err)
	}
	if err := tmp.Close(); err != nil {
		return "", NewStorageError("failed to close archive", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", NewStorageError("failed to move archive into place", err).WithContext("filename", filename)
	}
	return p, nil
}
