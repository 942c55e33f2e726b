package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
)

// Namespaced keys for the persisted stores.
const (
	KeyTabs         = "swiss-blade-tabs"
	KeySettings     = "swiss-blade-settings"
	KeyDeployStats  = "deploy-roulette-stats"
	KeyClickTracker = "devutils-click-tracker"
)

// Keys lists every namespace the application persists.
func Keys() []string {
	return []string{KeyTabs, KeySettings, KeyDeployStats, KeyClickTracker}
}

// ErrCorrupt reports a stored blob that is not valid JSON.
var ErrCorrupt = errors.New("stored state is not valid JSON")

// Backend stores opaque JSON blobs under namespaced keys.
type Backend interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
	Delete(key string) error
	Close() error
}

// FileStore persists each key as <key>.json under a directory.
type FileStore struct {
	dir string
	log pslog.Logger
}

// NewFileStore constructs a file backed store at the given directory.
func NewFileStore(dir string) (*FileStore, error) {
	return NewFileStoreWithLogger(dir, nil)
}

// NewFileStoreWithLogger constructs a file backed store with logging.
func NewFileStoreWithLogger(dir string, logger pslog.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("state_dir", dir)
	}
	return &FileStore{dir: dir, log: logger}, nil
}

// Dir returns the directory holding the state files.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads the blob stored under key.
func (s *FileStore) Load(key string) ([]byte, bool, error) {
	path := s.PathForKey(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("state load miss", "key", key)
			return nil, false, nil
		}
		s.warn("state load failed", "key", key, "err", err)
		return nil, false, err
	}
	if !json.Valid(data) {
		s.warn("state load failed", "key", key, "err", ErrCorrupt)
		return nil, false, fmt.Errorf("%s: %w", key, ErrCorrupt)
	}
	s.debug("state load ok", "key", key, "bytes", len(data))
	return data, true, nil
}

// Save writes the blob atomically.
func (s *FileStore) Save(key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("%s: %w", key, ErrCorrupt)
	}
	path := s.PathForKey(key)
	if err := writeAtomic(path, data); err != nil {
		s.warn("state save failed", "key", key, "err", err)
		return err
	}
	if s.log != nil {
		s.log.Trace("state save ok", "key", key, "bytes", len(data))
	}
	return nil
}

// Delete removes the blob for key. Missing keys are not an error.
func (s *FileStore) Delete(key string) error {
	err := os.Remove(s.PathForKey(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.warn("state delete failed", "key", key, "err", err)
		return err
	}
	s.debug("state delete ok", "key", key)
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// PathForKey returns the file path used for key.
func (s *FileStore) PathForKey(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

func fileName(key string) string {
	name := sanitize(key)
	if name == "" {
		name = "unknown"
	}
	return name + ".json"
}

// keyForFile maps a state file name back to its key.
func keyForFile(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, ".json") {
		return "", false
	}
	for _, key := range Keys() {
		if fileName(key) == base {
			return key, true
		}
	}
	return strings.TrimSuffix(base, ".json"), true
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FileStore) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func (s *FileStore) warn(msg string, kv ...any) {
	if s.log != nil {
		s.log.Warn(msg, kv...)
	}
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
