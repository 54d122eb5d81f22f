package extractor

import (
	"regexp"
	"strings"
)

var (
	defineRe    = regexp.MustCompile(`(?s)^[ \t]*#[ \t]*define[ \t]+([A-Za-z_]\w*)(\([^)]*\))?(.*)$`)
	typedefRe   = regexp.MustCompile(`^typedef\b`)
	funcDeclRe  = regexp.MustCompile(`^(?:extern\s+)?(?:[A-Za-z_]\w*[\s\*]+)+([A-Za-z_]\w*)\s*\(([^()]*(?:\([^()]*\)[^()]*)*)\)\s*;$`)
	fnPtrRe     = regexp.MustCompile(`\(\s*\*\s*([A-Za-z_]\w*)\s*\)`)
	fnAliasRe   = regexp.MustCompile(`([A-Za-z_]\w*)\s*\([^()]*\)$`)
	lastIdentRe = regexp.MustCompile(`([A-Za-z_]\w*)\s*$`)
	externCRe   = regexp.MustCompile(`^extern\s*"C(\+\+)?"$`)
	markerRe    = regexp.MustCompile(`^(?:_[A-Z0-9_]*|[A-Z][A-Z0-9_]*_DECLS)$`)
)

// PatternExtractor is the line- and statement-oriented scanner. It does not
// parse C; it tracks just enough lexical state (comments, literals, brace
// depth) to decide what is a top-level statement.
type PatternExtractor struct{}

func (p *PatternExtractor) Name() string { return "pattern" }

func (p *PatternExtractor) Extract(src []byte) ([]Symbol, error) {
	s := newScanner()
	lines := strings.Split(string(src), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")
		lineNo := i + 1

		if !s.inComment && isDirective(line) {
			raw := []string{line}
			for strings.HasSuffix(strings.TrimRight(raw[len(raw)-1], " \t"), `\`) && i+1 < len(lines) {
				i++
				raw = append(raw, strings.TrimSuffix(lines[i], "\r"))
			}
			s.directive(strings.Join(raw, "\n"), lineNo)
			continue
		}
		s.code(line, lineNo)
	}
	return dedupe(s.symbols), nil
}

func isDirective(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "#")
}

type scanner struct {
	inComment   bool
	depth       int  // brace depth of non-transparent blocks
	transparent int  // open extern "C" blocks
	discard     bool // inside a function body
	stmt        strings.Builder
	stmtLine    int
	symbols     []Symbol
}

func newScanner() *scanner { return &scanner{} }

func (s *scanner) directive(raw string, lineNo int) {
	// Track comments opened inside the directive so the next line is scanned
	// in the right state. The directive text itself never joins a statement.
	var body string
	body, s.inComment = stripComments(raw, false)

	m := defineRe.FindStringSubmatch(body)
	if m == nil {
		return
	}
	value := strings.TrimSpace(strings.ReplaceAll(m[3], "\\\n", " "))
	value = strings.TrimSpace(strings.Trim(value, `\`))
	if value == "" {
		return
	}
	// A comment left open past the directive would swallow whatever follows
	// the definition once it is emitted, so keep only the comment-free text.
	def := raw
	if s.inComment {
		def = body
	}
	s.symbols = append(s.symbols, Symbol{
		Name:       m[1],
		Kind:       Macro,
		Definition: strings.TrimRight(def, " \t"),
		Line:       lineNo,
	})
}

func (s *scanner) code(line string, lineNo int) {
	clean, lit, inComment := cleanLine(line, s.inComment)
	s.inComment = inComment

	for i := 0; i < len(clean); i++ {
		c := clean[i]
		if lit[i] {
			s.put(c, lineNo)
			continue
		}
		switch c {
		case '{':
			if s.depth == 0 {
				head := strings.TrimSpace(s.stmt.String())
				switch {
				case externCRe.MatchString(head):
					s.transparent++
					s.reset()
					continue
				case typedefRe.MatchString(head):
				case strings.HasSuffix(head, ")"):
					s.discard = true
				}
			}
			s.depth++
			s.put(c, lineNo)
		case '}':
			if s.depth == 0 {
				if s.transparent > 0 {
					s.transparent--
				}
				s.reset()
				continue
			}
			s.put(c, lineNo)
			s.depth--
			if s.depth == 0 && s.discard {
				s.discard = false
				s.reset()
			}
		case ';':
			s.put(c, lineNo)
			if s.depth == 0 {
				s.finish()
			}
		default:
			s.put(c, lineNo)
		}
	}
	if s.stmt.Len() > 0 && !s.discard {
		s.stmt.WriteByte('\n')
	}
}

func (s *scanner) put(c byte, lineNo int) {
	if s.discard {
		return
	}
	if s.stmt.Len() == 0 {
		if c == ' ' || c == '\t' {
			return
		}
		s.stmtLine = lineNo
	}
	s.stmt.WriteByte(c)
}

func (s *scanner) reset() {
	s.stmt.Reset()
	s.stmtLine = 0
}

func (s *scanner) finish() {
	text, line := stripDeclMarkers(strings.TrimSpace(s.stmt.String()), s.stmtLine)
	s.reset()

	if typedefRe.MatchString(text) {
		if name := typedefName(text); name != "" {
			s.symbols = append(s.symbols, Symbol{Name: name, Kind: TypeAlias, Definition: text, Line: line})
		}
		return
	}
	if strings.ContainsAny(text, "{}=") {
		return
	}
	if m := funcDeclRe.FindStringSubmatch(text); m != nil {
		s.symbols = append(s.symbols, Symbol{Name: m[1], Kind: FunctionDecl, Definition: text, Line: line})
	}
}

// stripDeclMarkers drops leading bare macro lines such as __BEGIN_DECLS that
// glue onto the next statement.
func stripDeclMarkers(text string, line int) (string, int) {
	for {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 || !markerRe.MatchString(strings.TrimSpace(text[:nl])) {
			return text, line
		}
		text = strings.TrimSpace(text[nl+1:])
		line++
	}
}

// typedefName returns the final bound identifier of a typedef statement.
func typedefName(stmt string) string {
	t := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	for strings.HasSuffix(t, "]") {
		open := strings.LastIndex(t, "[")
		if open < 0 {
			return ""
		}
		t = strings.TrimSpace(t[:open])
	}
	if strings.HasSuffix(t, ")") {
		if m := fnPtrRe.FindStringSubmatch(t); m != nil {
			return m[1]
		}
		if m := fnAliasRe.FindStringSubmatch(t); m != nil {
			return m[1]
		}
		return ""
	}
	m := lastIdentRe.FindStringSubmatch(t)
	if m == nil || m[1] == "typedef" {
		return ""
	}
	return m[1]
}

// cleanLine removes comments from one line. lit marks bytes inside string or
// character literals so braces and semicolons there are not structural.
func cleanLine(line string, inComment bool) (string, []bool, bool) {
	var b strings.Builder
	lit := make([]bool, 0, len(line))
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inComment {
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				inComment = false
				i++
				b.WriteByte(' ')
				lit = append(lit, false)
			}
			continue
		}
		switch {
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return b.String(), lit, false
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			inComment = true
			i++
		case c == '"' || c == '\'':
			quote := c
			b.WriteByte(c)
			lit = append(lit, true)
			for i++; i < len(line); i++ {
				b.WriteByte(line[i])
				lit = append(lit, true)
				if line[i] == '\\' && i+1 < len(line) {
					i++
					b.WriteByte(line[i])
					lit = append(lit, true)
					continue
				}
				if line[i] == quote {
					break
				}
			}
		default:
			b.WriteByte(c)
			lit = append(lit, false)
		}
	}
	return b.String(), lit, inComment
}

// stripComments removes comments from a possibly multi-line text.
func stripComments(text string, inComment bool) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i], _, inComment = cleanLine(l, inComment)
	}
	return strings.Join(lines, "\n"), inComment
}
