package journal

import (
	"net/url"
	"strings"
)

// Segment turns a target URL into a filesystem-safe name:
// "http://localhost:5173/app/" becomes "localhost_5173_app".
func Segment(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}

	parts := []string{strings.ReplaceAll(parsed.Host, ":", "_")}
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		parts = append(parts, strings.ReplaceAll(path, "/", "_"))
	}
	name := strings.Join(parts, "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
