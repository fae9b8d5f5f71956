package speech

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultLang is used when callers pass an empty language.
const DefaultLang = "en"

// ErrNoText is returned when there is nothing to synthesize.
var ErrNoText = errors.New("no text to synthesize")

// Synthesizer turns text into an MP3 byte stream. The stream may still be
// produced while the caller reads it; callers must Close it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) (io.ReadCloser, error)
}

// SplitText packs whitespace-separated words into chunks of at most maxRunes
// runes. Words longer than maxRunes are cut.
func SplitText(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = 100
	}
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, word := range strings.FieldsFunc(text, unicode.IsSpace) {
		wlen := utf8.RuneCountInString(word)
		for wlen > maxRunes {
			flush()
			head, tail := cutRunes(word, maxRunes)
			chunks = append(chunks, head)
			word, wlen = tail, wlen-maxRunes
		}
		if wlen == 0 {
			continue
		}
		if curLen > 0 && curLen+1+wlen > maxRunes {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += wlen
		if endsSentence(word) {
			flush()
		}
	}
	flush()
	return chunks
}

func cutRunes(s string, n int) (string, string) {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], s[pos:]
		}
		i++
	}
	return s, ""
}

func endsSentence(word string) bool {
	r, _ := utf8.DecodeLastRuneInString(word)
	return r == '.' || r == '!' || r == '?' || r == ';'
}
