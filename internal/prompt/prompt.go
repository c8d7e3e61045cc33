// Package prompt composes the study-assistant prompt and cleans model output.
package prompt

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/language"
)

const (
	answerLanguageUrdu    = "Urdu"
	answerLanguageEnglish = "simple English"

	ellipsis = "..."
)

// Build returns the prompt sent upstream for question.
// lang is a BCP 47 tag; anything that is not Urdu falls back to simple English.
func Build(question, lang string) string {
	return fmt.Sprintf(`You are LeemAI, a helpful study assistant for FBISE students in Pakistan.
Explain concepts in a simple and clear way suitable for high school students.
Answer in %s.
Do NOT help with cheating or provide exam answers.

Question: %s

Answer:`, AnswerLanguage(lang), strings.TrimSpace(question))
}

// AnswerLanguage names the language the model is asked to answer in.
func AnswerLanguage(lang string) string {
	if IsUrdu(lang) {
		return answerLanguageUrdu
	}
	return answerLanguageEnglish
}

// IsUrdu reports whether lang is a tag whose base language is Urdu, e.g. "ur" or "ur-PK".
func IsUrdu(lang string) bool {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return false
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	base, confidence := tag.Base()
	urdu, _ := language.Urdu.Base()
	return confidence == language.Exact && base == urdu
}

// Clean strips every echo of prompt from text, trims it and caps it at
// maxLength characters. A truncated answer ends in "..." and still fits in
// maxLength.
func Clean(text, prompt string, maxLength int) string {
	// Removing one echo can splice a new one together, so repeat until none is left.
	for prompt != "" && strings.Contains(text, prompt) {
		text = strings.ReplaceAll(text, prompt, "")
	}
	text = strings.TrimSpace(text)
	return truncate(text, maxLength)
}

func truncate(text string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	if maxLength <= len(ellipsis) {
		return string([]rune(text)[:maxLength])
	}
	runes := []rune(text)[:maxLength-len(ellipsis)]
	return strings.TrimRightFunc(string(runes), unicode.IsSpace) + ellipsis
}
