package fetch

import (
	"net/url"
	"strings"
)

// NormalizeURL rewrites chat CDN image URLs into a form the decoders and the
// cache agree on: animated/webp variants become .png, a missing extension
// gets .png, and size=128 is requested unless a size is already present.
// Other hosts pass through trimmed. Blank input yields "".
func NormalizeURL(raw string) string {
	input := strings.TrimSpace(raw)
	if input == "" {
		return ""
	}
	if !strings.Contains(strings.ToLower(input), "discord") {
		return input
	}

	base, query, _ := strings.Cut(input, "?")
	lowerBase := strings.ToLower(base)
	switch {
	case strings.HasSuffix(lowerBase, ".webp"):
		base = base[:len(base)-len(".webp")] + ".png"
	case strings.HasSuffix(lowerBase, ".gif"), strings.HasSuffix(lowerBase, ".png"):
	default:
		base += ".png"
	}

	switch {
	case strings.TrimSpace(query) == "":
		query = "size=128"
	case strings.Contains(strings.ToLower(query), "size="):
	default:
		query += "&size=128"
	}
	return base + "?" + query
}

// AvatarURL fills the {name} placeholder of template with the escaped name.
func AvatarURL(template, name string) string {
	name = strings.TrimSpace(name)
	if template == "" || name == "" {
		return ""
	}
	return strings.ReplaceAll(template, "{name}", url.PathEscape(name))
}
