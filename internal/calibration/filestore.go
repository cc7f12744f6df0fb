package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/iamotakugot/fish-feeder-controller/internal/model"
)

// FileStore persists calibration as a small JSON file, written atomically
// via a temp file and rename so a power cut mid-write can never tear the
// scale/offset pair.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// syncFile flushes the temp file before rename. Package var so tests can
// simulate a full disk.
var syncFile = func(f *os.File) error { return f.Sync() }

func (s *FileStore) Load() (model.Calibration, error) {
	var cal model.Calibration

	file, err := os.Open(s.path)
	if err != nil {
		return cal, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cal); err != nil {
		return cal, err
	}
	return cal, nil
}

func (s *FileStore) Save(cal model.Calibration) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cal); err != nil {
		file.Close()
		return err
	}
	if err := syncFile(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.path)
}
