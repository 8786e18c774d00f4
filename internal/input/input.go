// Package input resolves command-line arguments into the list of archives
// to translate.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/contextual-book-translator/internal/epub"
	"github.com/MimeLyc/contextual-book-translator/pkg/file"
)

const (
	archiveExt  = ".epub"
	manifestExt = ".txt"
)

var (
	ErrNoInput       = errors.New("no input files")
	ErrEmptyManifest = errors.New("manifest lists no files")
)

// Error describes an unusable input path.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Source is one resolved archive.
type Source struct {
	Path        string
	Fingerprint string
}

// Resolve turns args into archive sources. A single .txt argument is read
// as a newline-delimited manifest; otherwise every argument must be an
// existing, readable .epub file. Two paths sharing a fingerprint are
// rejected since they would share one cache record.
func Resolve(args []string) ([]Source, error) {
	if len(args) == 0 {
		return nil, ErrNoInput
	}

	paths := args
	if len(args) == 1 && strings.EqualFold(filepath.Ext(args[0]), manifestExt) {
		listed, err := readManifest(args[0])
		if err != nil {
			return nil, err
		}
		paths = listed
	}

	ret := make([]Source, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		abs, err := checkArchive(p)
		if err != nil {
			return nil, err
		}
		fp := epub.Fingerprint(abs)
		if prev, ok := seen[fp]; ok {
			if prev == abs {
				continue
			}
			return nil, &Error{Path: abs, Err: fmt.Errorf("fingerprint %q already used by %s", fp, prev)}
		}
		seen[fp] = abs
		ret = append(ret, Source{Path: abs, Fingerprint: fp})
	}
	return ret, nil
}

// Fingerprints returns the fingerprints of sources in order.
func Fingerprints(sources []Source) []string {
	ret := make([]string, 0, len(sources))
	for _, s := range sources {
		ret = append(ret, s.Fingerprint)
	}
	return ret
}

func readManifest(path string) ([]string, error) {
	abs, err := checkReadable(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, &Error{Path: abs, Err: err}
	}
	defer f.Close()

	var ret []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ret = append(ret, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Path: abs, Err: err}
	}
	if len(ret) == 0 {
		return nil, &Error{Path: abs, Err: ErrEmptyManifest}
	}
	return ret, nil
}

func checkArchive(path string) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), archiveExt) {
		return "", &Error{Path: path, Err: errors.New("only .epub files are supported")}
	}
	return checkReadable(path)
}

// checkReadable expands and absolutizes path and verifies it is a readable
// regular file.
func checkReadable(path string) (string, error) {
	abs, err := filepath.Abs(file.ExpandHome(path))
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &Error{Path: abs, Err: err}
	}
	if info.IsDir() {
		return "", &Error{Path: abs, Err: errors.New("is a directory")}
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", &Error{Path: abs, Err: err}
	}
	_ = f.Close()
	return abs, nil
}
