// Package text holds small helpers for matching user text.
package text

import (
	"strings"
	"unicode"
)

// latinLookalikes maps Latin letters to the Cyrillic letters they imitate.
var latinLookalikes = map[rune]rune{
	'a': 'а', 'b': 'в', 'c': 'с', 'e': 'е', 'h': 'н', 'k': 'к', 'm': 'м',
	'o': 'о', 'p': 'р', 't': 'т', 'x': 'х', 'y': 'у',
}

// HasCyrillics reports whether content contains any Cyrillic letter.
func HasCyrillics(content string) bool {
	for _, r := range content {
		if r >= 0x0400 && r <= 0x04FF {
			return true
		}
	}
	return false
}

// FoldLookalikes lowercases content and, inside words that already contain
// Cyrillic, replaces Latin lookalikes with their Cyrillic twins. Pure Latin
// words are left alone.
func FoldLookalikes(content string) string {
	lowered := strings.ToLower(content)
	if !HasCyrillics(lowered) {
		return lowered
	}

	var (
		out  strings.Builder
		word []rune
	)
	out.Grow(len(lowered))
	flush := func() {
		if len(word) == 0 {
			return
		}
		if HasCyrillics(string(word)) {
			for i, r := range word {
				if twin, ok := latinLookalikes[r]; ok {
					word[i] = twin
				}
			}
		}
		out.WriteString(string(word))
		word = word[:0]
	}
	for _, r := range lowered {
		if unicode.IsLetter(r) {
			word = append(word, r)
			continue
		}
		flush()
		out.WriteRune(r)
	}
	flush()
	return out.String()
}
