package compose

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedWidth measures five pixels per rune.
func fixedWidth(s string) int { return 5 * utf8.RuneCountInString(s) }

func TestNormalizeUIText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"geral", "geral"},
		{"Informações", "Informacoes"},
		{"📢 anúncios", "anuncios"},
		{"a\tb\n\nc", "a b c"},
		{"日本語", "?"},
		{"ok ❓❓", "ok ?"},
		{"✅ done", "+ done"},
		{"💬", "channel"},
		{"   ", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeUIText(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hell…", truncate("hello world", 5))
	assert.Equal(t, "ção…", truncate("çãoção", 4))
}

func TestTruncateByWidth_NeverExceedsWidth(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	for width := 0; width <= fixedWidth(text)+10; width++ {
		got := truncateByWidth(fixedWidth, text, width)
		assert.LessOrEqual(t, fixedWidth(got), width, "width %d produced %q", width, got)
		if got != text && got != "" {
			assert.True(t, strings.HasSuffix(got, ellipsis), "width %d produced %q", width, got)
			prefix := strings.TrimSuffix(got, ellipsis)
			assert.True(t, strings.HasPrefix(text, prefix))
		}
	}
}

func TestTruncateByWidth(t *testing.T) {
	assert.Equal(t, "short", truncateByWidth(fixedWidth, "short", 100))
	assert.Equal(t, "hello…", truncateByWidth(fixedWidth, "hello world", 30))
	// trailing space before the ellipsis is trimmed
	assert.Equal(t, "hello…", truncateByWidth(fixedWidth, "hello world", 35))
	assert.Equal(t, "", truncateByWidth(fixedWidth, "hello", 3))
}

func TestTruncateByWidth_NarrowWidthsKeepLongestFittingPrefix(t *testing.T) {
	onePixel := func(s string) int { return utf8.RuneCountInString(s) }
	assert.Equal(t, "a…", truncateByWidth(onePixel, "abcdef", 2))
	assert.Equal(t, "ab…", truncateByWidth(onePixel, "abcdef", 3))
	assert.Equal(t, "…", truncateByWidth(onePixel, "abcdef", 1))
	assert.Equal(t, "", truncateByWidth(onePixel, "abcdef", 0))
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "again"}, wrapText(fixedWidth, "hello world again", 50))
	assert.Equal(t, []string{"one two", "three"}, wrapText(fixedWidth, "one two three", 40))
	assert.Equal(t, []string{""}, wrapText(fixedWidth, "   ", 40))

	lines := wrapText(fixedWidth, "supercalifragilistic ok", 50)
	require.Len(t, lines, 2)
	assert.Equal(t, "supercali…", lines[0])
	assert.Equal(t, "ok", lines[1])
}

func TestTokenizeLine(t *testing.T) {
	tokens := tokenizeLine("hi  @everyone, ok @HERE!")
	require.Len(t, tokens, 7)
	assert.Equal(t, "hi", tokens[0].text)
	assert.True(t, tokens[1].space)
	assert.Equal(t, "  ", tokens[1].text)
	assert.True(t, tokens[2].mention)
	assert.Equal(t, "@everyone,", tokens[2].text)
	assert.False(t, tokens[4].mention)
	assert.True(t, tokens[6].mention)

	var joined strings.Builder
	for _, tok := range tokens {
		joined.WriteString(tok.text)
	}
	assert.Equal(t, "hi  @everyone, ok @HERE!", joined.String())
	assert.Empty(t, tokenizeLine(""))
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "IN", initials("interDC", 2))
	assert.Equal(t, "A", initials(" ana", 1))
	assert.Equal(t, "?", initials("", 2))
}
