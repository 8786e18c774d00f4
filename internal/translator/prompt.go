package translator

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// DefaultPrompt is used when no prompt template is configured.
const DefaultPrompt = `You are a professional literary translator.
Translate the following {source_language} novel chapter into {target_language}.
Keep every paragraph break, render character and place names consistently,
and preserve the tone of the original. Output only the translation.
`

const (
	placeholderSource = "{source_language}"
	placeholderTarget = "{target_language}"
)

// RenderPrompt fills the language placeholders of tmpl. An empty template
// renders DefaultPrompt.
func RenderPrompt(tmpl string, source, target language.Tag) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultPrompt
	}
	return strings.NewReplacer(
		placeholderSource, languageName(source, "source language"),
		placeholderTarget, languageName(target, "target language"),
	).Replace(tmpl)
}

// DetectLanguage guesses the language of text. It returns language.Und
// when the guess is unreliable.
func DetectLanguage(text string) language.Tag {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return language.Und
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return language.Und
	}
	return language.All.Make(code)
}

func languageName(tag language.Tag, fallback string) string {
	if tag == language.Und {
		return fallback
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}
