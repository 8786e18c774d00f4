package epub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeepTitle(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{title: "Prologue", want: true},
		{title: "Chapter 1", want: true},
		{title: "Chapter 12: The End", want: true},
		{title: "Afterword", want: false},
		{title: "Author's Note", want: false},
		{title: "prologue", want: false},
		{title: "Prologue: Dawn", want: false},
		{title: "CHAPTER 3", want: false},
		{title: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, KeepTitle(tt.title))
		})
	}
}

func TestClassify(t *testing.T) {
	long := strings.Repeat("word ", 12)

	tests := []struct {
		name string
		in   Candidate
		want Verdict
	}{
		{name: "paragraph", in: Candidate{Tag: "p", Text: "She ran."}, want: Keep},
		{name: "empty", in: Candidate{Tag: "p", Text: "   "}, want: RejectEmpty},
		{name: "single rune", in: Candidate{Tag: "p", Text: "I"}, want: RejectEmpty},
		{name: "page number", in: Candidate{Tag: "p", Text: "12 . 3"}, want: RejectPageNumber},
		{name: "copyright", in: Candidate{Tag: "p", Text: "Copyright 2009 Erin Hunter"}, want: RejectDenylisted},
		{name: "chapter word", in: Candidate{Tag: "p", Text: "End of this chapter marker"}, want: RejectDenylisted},
		{name: "localized page", in: Candidate{Tag: "p", Text: "页码 12a"}, want: RejectDenylisted},
		{name: "localized chapter", in: Candidate{Tag: "p", Text: "第  章 开始"}, want: RejectDenylisted},
		{name: "url", in: Candidate{Tag: "p", Text: "see https://example.com"}, want: RejectLink},
		{name: "email", in: Candidate{Tag: "p", Text: "mail me at a@b"}, want: RejectLink},
		{name: "footnote class", in: Candidate{Tag: "p", Class: "Footnote-Text", Text: "A note."}, want: RejectClass},
		{name: "toc class", in: Candidate{Tag: "div", Class: "calibre toc", Text: long}, want: RejectClass},
		{name: "heading", in: Candidate{Tag: "h2", Text: "The Gathering"}, want: DropHeading},
		{name: "long heading still dropped", in: Candidate{Tag: "H1", Text: long}, want: DropHeading},
		{name: "short div", in: Candidate{Tag: "div", Text: "Part One"}, want: DropShortContainer},
		{name: "long span", in: Candidate{Tag: "span", Text: long}, want: Keep},
		{name: "exactly fifty runes", in: Candidate{Tag: "div", Text: strings.Repeat("a", 50)}, want: DropShortContainer},
		{name: "multibyte length counts runes", in: Candidate{Tag: "div", Text: strings.Repeat("猫", 51)}, want: Keep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}
