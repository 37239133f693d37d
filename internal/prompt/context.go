package prompt

import (
	"bytes"
	"sort"
	"strings"
	"unicode/utf8"

	"archgen/internal/pipeerr"
)

// Trim priorities; lower is trimmed first. Instructions are never trimmed.
const (
	PriorityDependencies = 1
	PriorityTree         = 2
	PriorityMetadata     = 3
	PriorityInstructions = 100
)

const trimmedMarker = "…trimmed…"

// Section is one labeled block of the prompt.
type Section struct {
	Name      string
	Priority  int
	Trimmable bool

	lines   []string
	trimmed bool
}

func NewSection(name string, priority int, trimmable bool, body string) Section {
	body = strings.TrimRight(body, "\n")
	var lines []string
	if body != "" {
		lines = strings.Split(body, "\n")
	}
	return Section{Name: name, Priority: priority, Trimmable: trimmable, lines: lines}
}

func (s Section) Body() string {
	body := strings.Join(s.lines, "\n")
	if s.trimmed {
		body += "\n" + trimmedMarker
	}
	return body
}

func (s Section) Trimmed() bool { return s.trimmed }

// Context is the ordered list of sections making up one prompt.
type Context struct {
	Sections []Section
}

// Render writes every non-empty section as "[NAME]\nbody\n\n".
func (c Context) Render() string {
	var buf bytes.Buffer
	for _, s := range c.Sections {
		writeSection(&buf, s.Name, s.Body())
	}
	return strings.TrimRight(buf.String(), "\n") + "\n"
}

// Len is the rendered size in characters.
func (c Context) Len() int { return utf8.RuneCountInString(c.Render()) }

// Section returns the named section, if present.
func (c Context) Section(name string) (Section, bool) {
	for _, s := range c.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return Section{}, false
}

// Fit trims whole trailing lines from the lowest-priority trimmable section
// until the rendered prompt fits budget characters. A section trimmed to
// nothing is dropped. When the untrimmable sections alone exceed the budget
// the result is a PromptBudgetExceeded error.
func Fit(c Context, budget int) (Context, error) {
	out := Context{Sections: append([]Section(nil), c.Sections...)}
	for i := range out.Sections {
		out.Sections[i].lines = append([]string(nil), out.Sections[i].lines...)
	}

	for out.Len() > budget {
		idx := out.nextTrimmable()
		if idx < 0 {
			return Context{}, pipeerr.BudgetExceeded("prompt.fit", out.Len(), budget)
		}
		s := &out.Sections[idx]
		s.lines = s.lines[:len(s.lines)-1]
		s.trimmed = true
		if len(s.lines) == 0 {
			out.Sections = append(out.Sections[:idx], out.Sections[idx+1:]...)
		}
	}
	return out, nil
}

func (c Context) nextTrimmable() int {
	idx := make([]int, 0, len(c.Sections))
	for i, s := range c.Sections {
		if s.Trimmable && len(s.lines) > 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return -1
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return c.Sections[idx[a]].Priority < c.Sections[idx[b]].Priority
	})
	return idx[0]
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}
