package epub

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/MimeLyc/contextual-book-translator/pkg/file"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
)

var (
	// ErrNoTOC is returned when no resolution strategy finds any entries.
	ErrNoTOC = errors.New("no table of contents found")
	// ErrTargetNotFound marks a TOC entry whose file is absent from the archive.
	ErrTargetNotFound = errors.New("target file not found in archive")
)

// Extractor turns EPUB archives into filtered chapter text.
type Extractor struct {
	logger *log.Logger
}

func NewExtractor(logger *log.Logger) *Extractor {
	return &Extractor{logger: log.OrGlobal(logger).With("extractor")}
}

// Fingerprint derives the stable document identifier from an archive path.
func Fingerprint(path string) string {
	return file.Stem(path)
}

// Extract reads the archive at path and returns its body chapters. Entries
// that cannot be located or parsed are skipped and recorded as warnings;
// only failing to open the archive or resolve any TOC is an error.
func (e *Extractor) Extract(ctx context.Context, path string) (*Document, error) {
	a, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	doc := &Document{
		Fingerprint: Fingerprint(path),
		Path:        path,
	}

	strategy, entries := resolveTOC(a)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTOC)
	}
	doc.Strategy = strategy
	e.logger.Debug("%s: resolved %d TOC entries via %s", doc.Fingerprint, len(entries), strategy)

	index := make(map[string]int)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := e.extractEntry(a, entry)
		if err != nil {
			w := Warning{Title: entry.Title, Target: entry.Href, Err: err}
			doc.Warnings = append(doc.Warnings, w)
			e.logger.Warn("%s: skipping %s", doc.Fingerprint, w)
			continue
		}

		// A repeated title keeps its first position and its last content.
		if i, ok := index[entry.Title]; ok {
			doc.Chapters[i].Content = content
			continue
		}
		index[entry.Title] = len(doc.Chapters)
		doc.Chapters = append(doc.Chapters, Chapter{Title: entry.Title, Content: content})
	}

	doc.Chapters = filterChapters(doc.Chapters)
	e.logger.Info("%s: extracted %d chapters (%d warnings)", doc.Fingerprint, len(doc.Chapters), len(doc.Warnings))
	return doc, nil
}

func (e *Extractor) extractEntry(a *archive, entry TOCEntry) (string, error) {
	f, ok := a.lookup(entry.Href)
	if !ok {
		return "", ErrTargetNotFound
	}
	data, err := a.read(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	return extractText(bytes.NewReader(data))
}

func filterChapters(chapters []Chapter) []Chapter {
	ret := chapters[:0]
	for _, ch := range chapters {
		if KeepTitle(ch.Title) {
			ret = append(ret, ch)
		}
	}
	return ret
}
