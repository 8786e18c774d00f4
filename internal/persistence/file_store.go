package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MimeLyc/contextual-book-translator/pkg/file"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
	"github.com/gofrs/flock"
)

const (
	recordExt    = ".json"
	lockFileName = ".lock"
)

// FileStore keeps each record as <dir>/<fingerprint>.json. The directory is
// owned exclusively by one open store, enforced with a lock file.
type FileStore struct {
	dir    string
	lock   *flock.Flock
	locks  fingerprintLocks
	logger *log.Logger
}

var (
	_ Store   = (*FileStore)(nil)
	_ Janitor = (*FileStore)(nil)
)

// NewFileStore opens dir as a cache directory, creating it if needed.
// It fails with ErrLocked when another store already holds the directory.
func NewFileStore(dir string, logger *log.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}

	return &FileStore{
		dir:    dir,
		lock:   lock,
		logger: log.OrGlobal(logger).With("cache"),
	}, nil
}

func (s *FileStore) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

func (s *FileStore) recordPath(fingerprint string) (string, error) {
	if err := validateFingerprint(fingerprint); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, fingerprint+recordExt), nil
}

func (s *FileStore) Load(ctx context.Context, fingerprint string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.recordPath(fingerprint)
	if err != nil {
		return nil, err
	}
	return readRecord(path)
}

func readRecord(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	record := map[string]string{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", filepath.Base(path), err)
	}
	return record, nil
}

func (s *FileStore) Append(ctx context.Context, fingerprint, title, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.recordPath(fingerprint)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(fingerprint)
	defer unlock()

	record, err := readRecord(path)
	if err != nil {
		return err
	}
	if _, ok := record[title]; ok {
		s.logger.Debug("%s: %q already cached, append ignored", fingerprint, title)
		return nil
	}
	record[title] = text

	data, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if err := file.WriteAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", fingerprint, err)
	}
	return nil
}

// encodeRecord writes UTF-8 JSON without HTML escaping so translated text
// stays readable on disk.
func encodeRecord(record map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *FileStore) Delete(ctx context.Context, fingerprint string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.recordPath(fingerprint)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(fingerprint)
	defer unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete record %s: %w", fingerprint, err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache directory: %w", err)
	}
	ret := make([]string, 0, len(entries))
	for _, entry := range entries {
		if isRecordEntry(entry) {
			ret = append(ret, strings.TrimSuffix(entry.Name(), recordExt))
		}
	}
	sort.Strings(ret)
	return ret, nil
}

// Strays lists directory entries that are neither records nor the lock file,
// e.g. temp files left by an interrupted write.
func (s *FileStore) Strays(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list cache directory: %w", err)
	}
	var ret []string
	for _, entry := range entries {
		if entry.Name() == lockFileName || isRecordEntry(entry) {
			continue
		}
		ret = append(ret, entry.Name())
	}
	return ret, nil
}

// RemoveStray deletes one entry reported by Strays. Non-empty directories
// are not removed and yield an error.
func (s *FileStore) RemoveStray(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == lockFileName || name != filepath.Base(name) {
		return fmt.Errorf("refusing to remove %q", name)
	}
	return os.Remove(filepath.Join(s.dir, name))
}

func isRecordEntry(entry fs.DirEntry) bool {
	name := entry.Name()
	return entry.Type().IsRegular() &&
		strings.HasSuffix(name, recordExt) &&
		!strings.HasPrefix(name, ".") &&
		len(name) > len(recordExt)
}

func validateFingerprint(fingerprint string) error {
	if fingerprint == "" || fingerprint == "." || fingerprint == ".." ||
		strings.ContainsAny(fingerprint, `/\`) || strings.HasPrefix(fingerprint, ".") {
		return fmt.Errorf("invalid fingerprint %q", fingerprint)
	}
	return nil
}
