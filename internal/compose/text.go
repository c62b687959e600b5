package compose

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const ellipsis = "…"

// measureFunc returns the advance width of s in output pixels.
type measureFunc func(s string) int

var emojiReplacer = strings.NewReplacer(
	"📁", " ",
	"📌", " ",
	"📢", " ",
	"🔊", " ",
	"💬", " ",
	"❓", "?",
	"❗", "!",
	"✅", "+",
	"❌", "x",
)

// normalizeUIText reduces channel and category names to printable ASCII so
// they render with the bundled fonts. Diacritics are stripped, other
// characters become '?'. A name that ends up blank becomes "channel".
func normalizeUIText(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	mapped := emojiReplacer.Replace(text)

	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, mapped)
	if err != nil {
		stripped = mapped
	}

	var b strings.Builder
	b.Grow(len(stripped))
	lastQM := false
	lastSpace := false
	for _, r := range stripped {
		switch {
		case r == '\n' || r == '\r' || r == '\t' || r == ' ':
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace, lastQM = true, false
		case r >= 32 && r <= 126:
			if r == '?' && lastQM {
				continue
			}
			b.WriteRune(r)
			lastQM, lastSpace = r == '?', false
		default:
			if lastQM {
				continue
			}
			b.WriteByte('?')
			lastQM, lastSpace = true, false
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "channel"
	}
	return out
}

// truncate shortens text to at most limit runes, ending with an ellipsis
// when it had to cut.
func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	if limit <= 1 {
		return ellipsis
	}
	r := []rune(text)
	return string(r[:limit-1]) + ellipsis
}

// truncateByWidth returns the longest prefix of text that, followed by an
// ellipsis, fits within maxWidth. Text that already fits is returned
// unchanged; when not even the ellipsis fits the result is empty.
func truncateByWidth(measure measureFunc, text string, maxWidth int) string {
	if measure(text) <= maxWidth {
		return text
	}
	r := []rune(text)
	best := ""
	low, high := 0, len(r)
	for low <= high {
		mid := (low + high) / 2
		candidate := strings.TrimRightFunc(string(r[:mid]), unicode.IsSpace) + ellipsis
		if measure(candidate) <= maxWidth {
			best = candidate
			low = mid + 1
		} else {
			high = mid - 1
		}
	}
	return best
}

// wrapText breaks text into lines no wider than maxWidth. Words wider than
// a whole line are truncated.
func wrapText(measure measureFunc, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if measure(candidate) <= maxWidth {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
		}
		if measure(word) <= maxWidth {
			current = word
		} else {
			current = truncateByWidth(measure, word, maxWidth)
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

type lineToken struct {
	text    string
	space   bool
	mention bool
}

// tokenizeLine splits a message line into alternating word and whitespace
// runs and flags @everyone / @here mentions.
func tokenizeLine(line string) []lineToken {
	var tokens []lineToken
	start := 0
	inSpace := false
	flush := func(end int) {
		if end <= start {
			return
		}
		text := line[start:end]
		tokens = append(tokens, lineToken{text: text, space: inSpace, mention: !inSpace && isMention(text)})
	}
	for i, r := range line {
		sp := unicode.IsSpace(r)
		if i == 0 {
			inSpace = sp
			continue
		}
		if sp != inSpace {
			flush(i)
			start = i
			inSpace = sp
		}
	}
	flush(len(line))
	return tokens
}

func isMention(token string) bool {
	clean := strings.TrimRight(strings.TrimSpace(token), ",.;:!?")
	return strings.EqualFold(clean, "@everyone") || strings.EqualFold(clean, "@here")
}

// initials returns up to n leading letters of name, upper-cased.
func initials(name string, n int) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	count := 0
	for _, r := range name {
		if count == n {
			break
		}
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		count++
	}
	if count == 0 {
		return "?"
	}
	return b.String()
}
