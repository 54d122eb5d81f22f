// Package synth renders resolved symbols into guarded artifacts and writes
// them to disk.
package synth

import (
	"fmt"
	"strings"
	"sync"

	"hdrsynth/internal/failure"
)

const guardPrefix = "_SYNTHESIZED_"

// GuardToken derives the include guard for an artifact name. It depends on
// the name only.
func GuardToken(name string) string {
	return guardPrefix + macroSafe(name) + "_"
}

// macroSafe upper-cases s and replaces every byte outside [A-Z0-9] with '_'.
func macroSafe(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// GuardRegistry hands out guard tokens for one run. The first artifact to
// claim a token owns it; a later, different name mapping to the same token
// is rejected.
type GuardRegistry struct {
	mu     sync.Mutex
	claims map[string]string // token -> artifact name
}

func NewGuardRegistry() *GuardRegistry {
	return &GuardRegistry{claims: make(map[string]string)}
}

// Claim returns the guard for name. Claiming the same name again is allowed.
func (g *GuardRegistry) Claim(name string) (string, error) {
	token := GuardToken(name)
	g.mu.Lock()
	defer g.mu.Unlock()
	if owner, ok := g.claims[token]; ok && owner != name {
		return "", failure.New(failure.SynthesisInvariantViolation, "", name,
			fmt.Errorf("guard %s already claimed by %s", token, owner))
	}
	g.claims[token] = name
	return token, nil
}
