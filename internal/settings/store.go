package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store is the persistence abstraction for settings.
// Implementations can be in-memory or file-based.
type Store interface {
	// Load returns the saved settings; ok is false if nothing was saved yet.
	Load() (s Settings, ok bool, err error)
	Save(s Settings) error
}

// InMemoryStore is an in-memory implementation of Store. Not safe for
// concurrent use on its own; Service serializes access.
type InMemoryStore struct {
	saved *Settings
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Load implements Store.Load.
func (s *InMemoryStore) Load() (Settings, bool, error) {
	if s.saved == nil {
		return Settings{}, false, nil
	}
	return *s.saved, true, nil
}

// Save implements Store.Save.
func (s *InMemoryStore) Save(st Settings) error {
	s.saved = &st
	return nil
}

// FileStore keeps settings in a pretty-printed JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load implements Store.Load. Fields missing from the file keep their
// defaults.
func (s *FileStore) Load() (Settings, bool, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("read settings: %w", err)
	}

	st := Defaults()
	if err := json.Unmarshal(b, &st); err != nil {
		return Settings{}, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return st, true, nil
}

// Save implements Store.Save. The file is replaced atomically.
func (s *FileStore) Save(st Settings) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("save settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}
