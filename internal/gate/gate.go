// Package gate implements the user-input detection from spec §4.9: after each
// agent node finishes, its output is scanned for a question-shaped result that
// should suspend the execution pending a human reply. Grounded on the shape of
// worker/hitl_worker.go's suspend/resume handling, converted from a
// Redis-stream park to an in-process channel park (see internal/engine).
package gate

import "strings"

// indicators is the fixed phrase list from spec §4.9. A match requires both a
// '?' in the text and at least one of these phrases, case-insensitive.
var indicators = []string{
	"what would you like",
	"please provide",
	"tell me about",
	"what are your preferences",
	"what do you think",
	"how would you like",
	"what should",
	"what kind of",
	"which option",
	"please choose",
	"please select",
	"can you tell me",
	"what's your",
}

// Detect reports whether text asks the user a question the engine should
// suspend for, returning the first sentence ending in '?' as the question.
func Detect(text string) (question string, asks bool) {
	if !strings.Contains(text, "?") {
		return "", false
	}

	lower := strings.ToLower(text)
	matched := false
	for _, phrase := range indicators {
		if strings.Contains(lower, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	idx := strings.Index(text, "?")
	sentence := firstSentenceEndingAt(text, idx)
	return sentence, true
}

// firstSentenceEndingAt walks back from the '?' at idx to the start of the
// text or the previous sentence terminator, returning the trimmed sentence
// that ends in '?'.
func firstSentenceEndingAt(text string, idx int) string {
	start := 0
	for i := idx - 1; i >= 0; i-- {
		switch text[i] {
		case '.', '!', '?', '\n':
			start = i + 1
			i = -1
		}
	}
	return strings.TrimSpace(text[start : idx+1])
}
