package epub

import "fmt"

// TOCEntry is one flattened table-of-contents entry. Href is the target
// reference with any in-file anchor removed.
type TOCEntry struct {
	Title string
	Href  string
}

// Chapter is the extracted plain text of one TOC entry. Paragraphs are
// newline terminated and kept in document order.
type Chapter struct {
	Title   string
	Content string
}

// Warning records a TOC entry that could not be extracted.
type Warning struct {
	Title  string
	Target string
	Err    error
}

func (w Warning) String() string {
	return fmt.Sprintf("%q (%s): %v", w.Title, w.Target, w.Err)
}

// Document is the extraction result for one source archive.
type Document struct {
	// Fingerprint is the archive's base filename without extension.
	Fingerprint string
	Path        string
	// Strategy names the TOC resolution strategy that produced the entries.
	Strategy string
	Chapters []Chapter
	Warnings []Warning
}

// Titles returns the chapter titles in order.
func (d *Document) Titles() []string {
	ret := make([]string, 0, len(d.Chapters))
	for _, ch := range d.Chapters {
		ret = append(ret, ch.Title)
	}
	return ret
}

// Contents returns the chapters as a title -> text mapping.
func (d *Document) Contents() map[string]string {
	ret := make(map[string]string, len(d.Chapters))
	for _, ch := range d.Chapters {
		ret[ch.Title] = ch.Content
	}
	return ret
}

// Chapter looks up a chapter by exact title.
func (d *Document) Chapter(title string) (Chapter, bool) {
	for _, ch := range d.Chapters {
		if ch.Title == title {
			return ch, true
		}
	}
	return Chapter{}, false
}
