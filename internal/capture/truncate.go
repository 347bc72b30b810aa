package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

// truncateText cuts s to at most maxBytes on a rune boundary and appends
// the original size and a short digest so repeated messages stay
// distinguishable.
func truncateText(s string, maxBytes int) (string, bool) {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s, false
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	sum := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%s...[%d bytes sha256:%s]", s[:cut], len(s), hex.EncodeToString(sum[:])[:12]), true
}
