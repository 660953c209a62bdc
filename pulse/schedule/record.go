package schedule

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/cronnotify/errors"
)

// maxRecordBytes bounds how much of a record file is read
const maxRecordBytes = 20

// RecordStore persists the last-execution time of a job
type RecordStore interface {
	// Get returns the recorded time. ok is false when nothing was recorded.
	Get(jobID string) (t time.Time, ok bool, err error)
	Set(jobID string, t time.Time) error
	Delete(jobID string) error
}

// FileRecordStore keeps one file per job holding decimal epoch seconds
type FileRecordStore struct {
	dir string
}

// DefaultRecordDir returns <user cache dir>/<app>
func DefaultRecordDir(app string) (string, error) {
	if err := ValidateIdentity("app", app); err != nil {
		return "", err
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", errors.WrapStorage(err, "failed to locate cache directory")
	}
	return filepath.Join(cache, app), nil
}

// NewFileRecordStore returns a store rooted at dir. The directory is created
// on first write.
func NewFileRecordStore(dir string) *FileRecordStore {
	return &FileRecordStore{dir: dir}
}

// Dir returns the directory holding record files
func (s *FileRecordStore) Dir() string {
	return s.dir
}

// Path returns the record file of jobID
func (s *FileRecordStore) Path(jobID string) (string, error) {
	if err := ValidateIdentity("job id", jobID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, jobID), nil
}

// Get reads the record. A missing or empty file means no record.
func (s *FileRecordStore) Get(jobID string) (time.Time, bool, error) {
	path, err := s.Path(jobID)
	if err != nil {
		return time.Time{}, false, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errors.WrapStorage(err, "failed to open execution record")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxRecordBytes))
	if err != nil {
		return time.Time{}, false, errors.WrapStorage(err, "failed to read execution record")
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return time.Time{}, false, nil
	}

	secs, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		err = errors.WithDetailf(err, "file: %s", path)
		return time.Time{}, false, errors.WrapStorage(err, "corrupt execution record")
	}
	return time.Unix(secs, 0), true, nil
}

// Set records t, truncated to whole seconds. The file is replaced
// atomically so a crash never leaves a partial record behind.
func (s *FileRecordStore) Set(jobID string, t time.Time) error {
	path, err := s.Path(jobID)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.WrapStorage(err, "failed to create record directory")
	}

	tmp, err := os.CreateTemp(s.dir, "."+jobID+".*.tmp")
	if err != nil {
		return errors.WrapStorage(err, "failed to create temporary record")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(strconv.FormatInt(t.Unix(), 10)); err != nil {
		tmp.Close()
		return errors.WrapStorage(err, "failed to write execution record")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.WrapStorage(err, "failed to sync execution record")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapStorage(err, "failed to close execution record")
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return errors.WrapStorage(err, "failed to set record permissions")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.WrapStorage(err, "failed to replace execution record")
	}
	return nil
}

// Delete removes the record. Deleting a missing record is not an error.
func (s *FileRecordStore) Delete(jobID string) error {
	path, err := s.Path(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WrapStorage(err, "failed to remove execution record")
	}
	return nil
}
