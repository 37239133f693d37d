// Package diagram pulls a Mermaid diagram out of raw model output and checks
// that it declares a recognized diagram type.
package diagram

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"archgen/internal/pipeerr"
)

var (
	ErrNoDiagram      = errors.New("no fenced code block or diagram keyword found")
	ErrUnknownKeyword = errors.New("first line is not a recognized diagram type")
)

var keywords = []string{
	"flowchart", "graph",
	"sequenceDiagram", "classDiagram", "stateDiagram", "stateDiagram-v2", "erDiagram",
	"journey", "gantt", "pie", "mindmap", "timeline", "gitGraph",
	"C4Context", "C4Container", "C4Component", "C4Dynamic", "C4Deployment",
	"quadrantChart", "requirementDiagram", "sankey-beta", "xychart-beta",
	"block-beta", "architecture-beta",
}

var keywordSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		m[k] = struct{}{}
	}
	return m
}()

// Keywords returns the recognized diagram type keywords.
func Keywords() []string { return append([]string(nil), keywords...) }

// KeywordOf returns the diagram keyword a line starts with.
func KeywordOf(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	if _, ok := keywordSet[fields[0]]; ok {
		return fields[0], true
	}
	return "", false
}

// Result is a validated diagram.
type Result struct {
	Source   string
	Keyword  string
	Attempts int
}

// Extract returns the candidate diagram text: the body of the first non-empty
// fenced code block or, when there is none, everything from the first line
// that starts with a diagram keyword.
func Extract(raw string) (string, bool) {
	if block, ok := firstFencedBlock([]byte(raw)); ok {
		return block, true
	}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, l := range lines {
		if _, ok := KeywordOf(l); !ok {
			continue
		}
		rest := lines[i:]
		// drop a dangling closing fence
		for len(rest) > 0 && strings.TrimSpace(rest[len(rest)-1]) == "" {
			rest = rest[:len(rest)-1]
		}
		if len(rest) > 0 && strings.HasPrefix(strings.TrimSpace(rest[len(rest)-1]), "```") {
			rest = rest[:len(rest)-1]
		}
		return strings.Join(rest, "\n"), true
	}
	return "", false
}

// Validate extracts and checks the diagram in raw model output. Failures are
// InvalidOutput errors wrapping one of the Err* sentinels.
func Validate(raw string) (Result, error) {
	block, ok := Extract(raw)
	if !ok {
		return Result{}, pipeerr.InvalidOutput("diagram.validate", ErrNoDiagram)
	}
	src := normalize(block)
	first, _, _ := strings.Cut(src, "\n")
	kw, ok := KeywordOf(first)
	if !ok {
		return Result{}, pipeerr.InvalidOutput("diagram.validate", fmt.Errorf("%w: %q", ErrUnknownKeyword, truncate(first, 60)))
	}
	return Result{Source: src, Keyword: kw}, nil
}

// normalize drops leading blank lines and trailing whitespace.
func normalize(block string) string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	lines := strings.Split(block, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 {
		lines[0] = strings.TrimSpace(lines[0])
	}
	return strings.TrimRight(strings.Join(lines, "\n"), " \t\n")
}

func firstFencedBlock(source []byte) (string, bool) {
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var (
		found bool
		out   string
	)
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || found {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var body bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			body.Write(seg.Value(source))
		}
		// an unclosed trailing fence parses as an empty block; skip it
		if strings.TrimSpace(body.String()) == "" {
			return ast.WalkContinue, nil
		}
		out = body.String()
		found = true
		return ast.WalkStop, nil
	})
	return out, found
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
