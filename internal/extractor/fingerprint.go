package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Fingerprint creates a deterministic identity for a declaration. Two
// symbols share a fingerprint when they agree on kind, name and definition
// up to whitespace.
func Fingerprint(s Symbol) string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = "_"
	}

	fingerprint := strings.Join([]string{
		s.Kind.String(),
		name,
		Canonicalize(s.Definition),
	}, "|")

	sum := sha256.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:8])
}

// Canonicalize collapses runs of whitespace into single spaces.
func Canonicalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRe.ReplaceAllString(s, " ")
}
