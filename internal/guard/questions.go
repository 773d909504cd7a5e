package guard

import (
	"strings"

	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

// Interrogative phrasing that marks a question without a question mark.
var (
	japaneseInterrogatives = []string{
		"でしょうか",
		"ですか",
		"ますか",
		"しますか",
		"ください",
		"どうですか",
		"いかがですか",
		"よろしいですか",
	}

	englishInterrogatives = []string{
		"would you like",
		"could you",
		"can you",
		"should i",
		"shall i",
		"do you want",
		"would you prefer",
		"please confirm",
		"please specify",
		"please clarify",
		"let me know",
	}
)

// ContainsQuestions reports whether text asks the reader something: a
// question mark (ASCII or full-width) or a known interrogative phrase.
func ContainsQuestions(text string) bool {
	if text == "" {
		return false
	}
	if strings.ContainsAny(text, "?？") {
		return true
	}

	n := tasktype.Normalize(text)
	for _, p := range japaneseInterrogatives {
		if strings.Contains(n, p) {
			return true
		}
	}
	for _, p := range englishInterrogatives {
		if strings.Contains(n, p) {
			return true
		}
	}
	return false
}

// ExtractQuestion returns the last non-empty line of text that contains a
// question, trimmed. It returns "" when there is none.
func ExtractQuestion(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && ContainsQuestions(line) {
			return line
		}
	}
	return ""
}
