package synth

import (
	"bytes"
	"fmt"
	"strings"

	"hdrsynth/internal/extractor"
	"hdrsynth/internal/failure"
	"hdrsynth/internal/provenance"
)

var sectionTitles = map[extractor.Kind]string{
	extractor.Macro:        "Definitions",
	extractor.TypeAlias:    "Type definitions",
	extractor.FunctionDecl: "Function declarations",
}

// Artifact is one synthesized output file.
type Artifact struct {
	Name     string                                   `json:"name"`
	Guard    string                                   `json:"guard"`
	Sources  []string                                 `json:"sources"`
	Sections map[extractor.Kind][]provenance.Resolved `json:"-"`
	Text     []byte                                   `json:"-"`
}

// Symbols returns every section's symbols in output order.
func (a *Artifact) Symbols() []provenance.Resolved {
	var out []provenance.Resolved
	for _, k := range extractor.Kinds {
		out = append(out, a.Sections[k]...)
	}
	return out
}

// Synthesize claims a guard for name and renders the artifact. sources lists
// every source the artifact was found in, in priority order.
func Synthesize(guards *GuardRegistry, name string, sources []string, resolved []provenance.Resolved) (*Artifact, error) {
	guard, err := guards.Claim(name)
	if err != nil {
		return nil, err
	}
	return Render(name, guard, sources, resolved)
}

// Render is a pure function of its inputs: equal inputs give byte-identical
// text.
func Render(name, guard string, sources []string, resolved []provenance.Resolved) (*Artifact, error) {
	a := &Artifact{
		Name:     name,
		Guard:    guard,
		Sources:  append([]string(nil), sources...),
		Sections: make(map[extractor.Kind][]provenance.Resolved, len(extractor.Kinds)),
	}
	seen := make(map[string]bool, len(resolved))
	for _, r := range resolved {
		if seen[r.Name] {
			return nil, failure.New(failure.SynthesisInvariantViolation, "", name,
				fmt.Errorf("symbol %s emitted twice", r.Name))
		}
		seen[r.Name] = true
		a.Sections[r.Kind] = append(a.Sections[r.Kind], r)
	}
	for _, k := range extractor.Kinds {
		provenance.SortResolved(a.Sections[k])
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#ifndef %s\n#define %s\n\n", guard, guard)
	fmt.Fprintf(&buf, "/*\n * %s - synthesized from %d source(s)\n", name, len(sources))
	fmt.Fprintf(&buf, " * Sources: %s\n */\n", strings.Join(sources, ", "))

	for _, k := range extractor.Kinds {
		fmt.Fprintf(&buf, "\n/* %s */\n", sectionTitles[k])
		for _, r := range a.Sections[k] {
			writeSymbol(&buf, r)
		}
	}
	fmt.Fprintf(&buf, "\n#endif /* %s */\n", guard)

	a.Text = buf.Bytes()
	return a, nil
}

func writeSymbol(buf *bytes.Buffer, r provenance.Resolved) {
	if r.Contended {
		verb := "defined in"
		if r.Kind == extractor.FunctionDecl {
			verb = "available in"
		}
		fmt.Fprintf(buf, "/* %s %s: %s */\n", r.Name, verb, strings.Join(r.Sources, ", "))
	}
	if r.Kind == extractor.TypeAlias && r.Contended {
		have := "HAVE_" + macroSafe(r.Name)
		fmt.Fprintf(buf, "#ifndef %s\n#define %s\n%s\n#endif\n", have, have, r.Body)
		return
	}
	buf.WriteString(r.Body)
	buf.WriteByte('\n')
}
