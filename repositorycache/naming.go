package repositorycache

import (
	"reflect"
	"strings"
	"unicode"
)

// entityName is the default repository name: the snake cased name of E.
func entityName[E any]() string {
	t := reflect.TypeFor[E]()
	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return toSnake(name)
}

// toSnake lower cases the words of s and joins them with underscores.
// "*music.Album" gives "music_album", "HTTPServer" gives "http_server".
func toSnake(s string) string {
	return strings.ToLower(strings.Join(splitWords(s), "_"))
}

// splitWords cuts s at punctuation, at lower to upper transitions, between
// letters and digits, and before the last capital of an acronym followed by
// a lower case letter.
func splitWords(s string) []string {
	runes := []rune(s)
	var words []string
	start := -1
	flush := func(end int) {
		if start >= 0 {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		switch {
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush(i)
		case unicode.IsUpper(r) && unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			flush(i)
		case unicode.IsDigit(r) != unicode.IsDigit(prev):
			flush(i)
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(runes))
	return words
}
