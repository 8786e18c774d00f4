package persistence

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/MimeLyc/contextual-book-translator/pkg/log"
)

// ErrLocked is returned when another process owns the cache directory.
var ErrLocked = errors.New("cache directory is locked by another process")

// Store persists one translation record per document fingerprint. A record
// maps chapter title to translated text and only ever grows: appending a
// title that is already present leaves the stored text untouched.
type Store interface {
	// Load returns the record for fingerprint, or an empty map when none exists.
	Load(ctx context.Context, fingerprint string) (map[string]string, error)
	// Append adds one entry. The entry is durable when Append returns nil.
	Append(ctx context.Context, fingerprint, title, text string) error
	// Delete removes the whole record. Deleting an absent record is not an error.
	Delete(ctx context.Context, fingerprint string) error
	// List returns every fingerprint with a record, sorted.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Janitor is implemented by stores that can find artifacts in their storage
// area that are not records, such as leftovers of an interrupted write.
type Janitor interface {
	Strays(ctx context.Context) ([]string, error)
	RemoveStray(ctx context.Context, name string) error
}

// fingerprintLocks hands out one mutex per fingerprint so appends to the
// same record serialize while unrelated records proceed in parallel.
type fingerprintLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *fingerprintLocks) lock(fingerprint string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[fingerprint]
	if !ok {
		m = &sync.Mutex{}
		l.locks[fingerprint] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"

	sqliteFileName = "translations.db"
)

// Open returns the store for backend rooted at dir.
func Open(backend, dir string, logger *log.Logger) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir, logger)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, sqliteFileName))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
