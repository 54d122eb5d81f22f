package extractor

import (
	"fmt"
	"strings"
)

// Kind is the category of an extracted symbol. The numeric order is the
// section order of a synthesized artifact.
type Kind int

const (
	Macro Kind = iota
	TypeAlias
	FunctionDecl
)

// Kinds lists every kind in section order.
var Kinds = []Kind{Macro, TypeAlias, FunctionDecl}

func (k Kind) String() string {
	switch k {
	case Macro:
		return "macro"
	case TypeAlias:
		return "typedef"
	case FunctionDecl:
		return "function"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	kind, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "macro":
		return Macro, nil
	case "typedef":
		return TypeAlias, nil
	case "function":
		return FunctionDecl, nil
	}
	return 0, fmt.Errorf("unknown symbol kind %q", s)
}

// Symbol is one declaration extracted from a source file.
type Symbol struct {
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Definition string   `json:"definition"`
	Line       int      `json:"line"`
	Sources    []string `json:"sources,omitempty"`
}

// Backend turns the raw bytes of one file into symbols.
type Backend interface {
	Name() string
	Extract(src []byte) ([]Symbol, error)
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", "pattern":
		return &PatternExtractor{}, nil
	case "treesitter":
		return &CExtractor{}, nil
	default:
		return nil, fmt.Errorf("unsupported extractor: %s", name)
	}
}

// dedupe keeps the first occurrence of each (kind, name) pair.
func dedupe(in []Symbol) []Symbol {
	type key struct {
		kind Kind
		name string
	}
	seen := make(map[key]bool, len(in))
	out := in[:0]
	for _, s := range in {
		k := key{s.Kind, s.Name}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
