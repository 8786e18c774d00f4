package epub

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Verdict is the outcome of classifying one candidate content element.
type Verdict int

const (
	Keep Verdict = iota
	RejectEmpty
	RejectPageNumber
	RejectDenylisted
	RejectLink
	RejectClass
	DropHeading
	DropShortContainer
)

func (v Verdict) String() string {
	switch v {
	case Keep:
		return "keep"
	case RejectEmpty:
		return "empty"
	case RejectPageNumber:
		return "page-number"
	case RejectDenylisted:
		return "denylisted"
	case RejectLink:
		return "link"
	case RejectClass:
		return "class"
	case DropHeading:
		return "heading"
	case DropShortContainer:
		return "short-container"
	default:
		return "unknown"
	}
}

// Kept reports whether the candidate's text belongs in the chapter body.
func (v Verdict) Kept() bool {
	return v == Keep
}

// Candidate is the structural view of an element the classifier needs.
// Text is the element's trimmed, whitespace-collapsed text.
type Candidate struct {
	Tag   string
	Class string
	Text  string
}

// minContainerRunes is the length a div or span needs before its text is
// treated as body text rather than layout chrome.
const minContainerRunes = 50

var (
	deniedSubstrings = []string{"copyright", "页码", "chapter", "第  章"}
	deniedClasses    = []string{"nav", "toc", "menu", "header", "footer", "footnote"}
	strippedTags     = map[string]bool{
		"script": true, "style": true, "nav": true, "aside": true,
		"header": true, "footer": true, "meta": true, "link": true,
	}
	headingTags = map[string]bool{
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	}
	containerTags = map[string]bool{"div": true, "span": true}
)

// Classify decides whether a candidate element contributes to chapter text.
func Classify(c Candidate) Verdict {
	text := strings.TrimSpace(c.Text)
	if utf8.RuneCountInString(text) < 2 {
		return RejectEmpty
	}
	if isPageNumber(text) {
		return RejectPageNumber
	}
	lower := strings.ToLower(text)
	for _, s := range deniedSubstrings {
		if strings.Contains(lower, s) {
			return RejectDenylisted
		}
	}
	if strings.Contains(text, "http") || strings.Contains(text, "@") {
		return RejectLink
	}
	if deniedClass(c.Class) {
		return RejectClass
	}

	tag := strings.ToLower(c.Tag)
	switch {
	case tag == "p":
		return Keep
	case headingTags[tag]:
		return DropHeading
	case utf8.RuneCountInString(text) > minContainerRunes:
		return Keep
	default:
		return DropShortContainer
	}
}

// KeepTitle reports whether a TOC title names a body chapter.
func KeepTitle(title string) bool {
	return title == "Prologue" || strings.HasPrefix(title, "Chapter")
}

func isPageNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && !unicode.IsSpace(r) && r != '.' {
			return false
		}
	}
	return true
}

func deniedClass(class string) bool {
	class = strings.ToLower(class)
	for _, kw := range deniedClasses {
		if strings.Contains(class, kw) {
			return true
		}
	}
	return false
}

func isCandidateTag(tag string) bool {
	return tag == "p" || headingTags[tag] || containerTags[tag]
}
