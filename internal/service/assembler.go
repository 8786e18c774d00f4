package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/MimeLyc/contextual-book-translator/internal/epub"
	"github.com/MimeLyc/contextual-book-translator/pkg/file"
)

// Assembler receives documents whose chapters are all translated.
type Assembler interface {
	Assemble(ctx context.Context, book *Book) (int64, error)
	// Exported reports whether a previous run already handed off the document.
	Exported(fingerprint string) (bool, error)
}

// Book is a complete translation in chapter order.
type Book struct {
	Fingerprint string            `json:"fingerprint"`
	Source      string            `json:"source"`
	Target      string            `json:"target_language"`
	Chapters    []TranslatedTitle `json:"chapters"`
	AssembledAt time.Time         `json:"assembled_at"`
}

type TranslatedTitle struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// NewBook orders record by the document's chapters. It returns false when
// any extracted chapter is missing from the record.
func NewBook(doc *epub.Document, record map[string]string, target string) (*Book, bool) {
	if len(doc.Chapters) == 0 {
		return nil, false
	}

	book := &Book{
		Fingerprint: doc.Fingerprint,
		Source:      doc.Path,
		Target:      target,
		Chapters:    make([]TranslatedTitle, 0, len(doc.Chapters)),
	}
	for _, ch := range doc.Chapters {
		text, ok := record[ch.Title]
		if !ok {
			return nil, false
		}
		book.Chapters = append(book.Chapters, TranslatedTitle{Title: ch.Title, Text: text})
	}
	return book, true
}

// JSONExporter writes each book to <dir>/<fingerprint>.json.
type JSONExporter struct {
	dir string
	now func() time.Time
}

func NewJSONExporter(dir string) *JSONExporter {
	return &JSONExporter{dir: dir, now: time.Now}
}

func (e *JSONExporter) Path(fingerprint string) string {
	return filepath.Join(e.dir, fingerprint+".json")
}

func (e *JSONExporter) Assemble(ctx context.Context, book *Book) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	out := *book
	out.AssembledAt = e.now().UTC()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return 0, fmt.Errorf("failed to encode %s: %w", book.Fingerprint, err)
	}

	path := e.Path(book.Fingerprint)
	if err := file.WriteAtomic(path, buf.Bytes(), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return int64(buf.Len()), nil
}

func (e *JSONExporter) Exported(fingerprint string) (bool, error) {
	info, err := os.Stat(e.Path(fingerprint))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
