package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	fileStore, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fileStore.Close() })

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{BackendFile: fileStore, BackendSQLite: sqliteStore}
}

func TestStore_Contract(t *testing.T) {
	t.Parallel()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			record, err := store.Load(ctx, "book1")
			require.NoError(t, err)
			assert.Empty(t, record)

			require.NoError(t, store.Append(ctx, "book1", "Prologue", "序章"))
			require.NoError(t, store.Append(ctx, "book1", "Chapter 1", "第一章 <b>&</b>"))
			require.NoError(t, store.Append(ctx, "book2", "Chapter 1", "other"))

			record, err = store.Load(ctx, "book1")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{
				"Prologue":  "序章",
				"Chapter 1": "第一章 <b>&</b>",
			}, record)

			// Entries are never overwritten.
			require.NoError(t, store.Append(ctx, "book1", "Prologue", "replacement"))
			record, err = store.Load(ctx, "book1")
			require.NoError(t, err)
			assert.Equal(t, "序章", record["Prologue"])

			fps, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"book1", "book2"}, fps)

			require.NoError(t, store.Delete(ctx, "book1"))
			require.NoError(t, store.Delete(ctx, "missing"))

			fps, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"book2"}, fps)

			record, err = store.Load(ctx, "book2")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"Chapter 1": "other"}, record)
		})
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					fp := fmt.Sprintf("book%d", i%2)
					assert.NoError(t, store.Append(ctx, fp, fmt.Sprintf("Chapter %d", i), "text"))
				}(i)
			}
			wg.Wait()

			for _, fp := range []string{"book0", "book1"} {
				record, err := store.Load(ctx, fp)
				require.NoError(t, err)
				assert.Len(t, record, 20, fp)
			}
		})
	}
}

func TestStore_RejectsInvalidFingerprint(t *testing.T) {
	t.Parallel()

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, fp := range []string{"", "../escape", "a/b", ".hidden"} {
				assert.Error(t, store.Append(context.Background(), fp, "Chapter 1", "x"), fp)
			}
		})
	}
}

func TestFileStore_ExclusiveDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first, err := NewFileStore(dir, nil)
	require.NoError(t, err)

	_, err = NewFileStore(dir, nil)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())

	second, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFileStore_RecordsSurviveReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "book1", "Chapter 1", "one"))
	require.NoError(t, store.Close())

	data, err := os.ReadFile(filepath.Join(dir, "book1.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Chapter 1":"one"}`, string(data))

	store, err = NewFileStore(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	record, err := store.Load(ctx, "book1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Chapter 1": "one"}, record)
}

func TestFileStore_InterruptedWriteLeavesRecordIntact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Append(ctx, "book1", "Chapter 1", "one"))
	// A crash between temp write and rename leaves only the temp file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".book1.json.tmp-123"), []byte(`{"Chapter 1":"one","Chap`), 0o644))

	record, err := store.Load(ctx, "book1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Chapter 1": "one"}, record)

	fps, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"book1"}, fps)

	strays, err := store.Strays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{".book1.json.tmp-123"}, strays)
}

func TestFileStore_Strays(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()
	store, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Append(ctx, "book1", "Chapter 1", "one"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "old", "nested"), 0o755))

	strays, err := store.Strays(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"notes.txt", "old"}, strays)

	require.NoError(t, store.RemoveStray(ctx, "notes.txt"))
	assert.Error(t, store.RemoveStray(ctx, "old"))
	assert.Error(t, store.RemoveStray(ctx, lockFileName))
	assert.Error(t, store.RemoveStray(ctx, "../outside"))

	strays, err = store.Strays(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, strays)
}

func TestSQLiteStore_MigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "book1", "Chapter 1", "one"))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var applied int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 1, applied)

	record, err := store.Load(ctx, "book1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Chapter 1": "one"}, record)
}

func TestMigrationVersion(t *testing.T) {
	assert.Equal(t, 1, migrationVersion("001_init.sql"))
	assert.Equal(t, 12, migrationVersion("012_add.sql"))
	assert.Equal(t, 0, migrationVersion("init.sql"))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir(), nil)
	assert.Error(t, err)
}
