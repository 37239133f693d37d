// Package prompt turns an extraction result into the text sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"archgen/internal/diagram"
	"archgen/internal/scan"
)

const (
	SectionMetadata     = "METADATA"
	SectionTree         = "TREE"
	SectionDependencies = "DEPENDENCIES"
	SectionInstructions = "INSTRUCTIONS"
	SectionCorrection   = "CORRECTION"
)

// Metadata is request-level information about the analyzed repository.
type Metadata struct {
	RepoURL string
}

// Instructions fixes the output contract: one fenced block whose first line
// is a recognized diagram keyword.
var Instructions = strings.Join([]string{
	"Generate one Mermaid architecture diagram for the repository described above.",
	"- Reply with exactly one fenced code block that starts with ```mermaid and ends with ```.",
	"- The first line inside the block must be the diagram type; prefer `flowchart TD`.",
	"- Supported diagram types: " + strings.Join(diagram.Keywords(), ", ") + ".",
	"- Use the exact names from TREE, METADATA modules and DEPENDENCIES; never invent placeholders such as \"Module 1\" or \"Layer A\".",
	"- Nodes look like A[name]; relations look like A --> B.",
	"- Show external systems (databases, queues, third-party APIs) only when DEPENDENCIES or TREE mention them.",
	"- Write nothing outside the code block.",
	"",
	"Example:",
	"```mermaid",
	"flowchart TD",
	"    A[api] --> B[payments]",
	"    B --> C[(postgres)]",
	"```",
}, "\n")

// Builder renders budgeted prompts. The zero value is not usable; Budget must
// be positive.
type Builder struct {
	Budget int
	// Instructions overrides the default output contract when non-empty.
	Instructions string
}

func NewBuilder(budget int) *Builder { return &Builder{Budget: budget} }

func (b *Builder) instructions() string {
	if strings.TrimSpace(b.Instructions) != "" {
		return b.Instructions
	}
	return Instructions
}

// Assemble lays out the unbudgeted sections in render order.
func (b *Builder) Assemble(res scan.ExtractionResult, meta Metadata) Context {
	tree := res.Tree
	if tree == "" {
		tree = "(empty repository)"
	}
	return Context{Sections: []Section{
		NewSection(SectionMetadata, PriorityMetadata, true, formatMetadata(res, meta)),
		NewSection(SectionTree, PriorityTree, true, tree),
		NewSection(SectionDependencies, PriorityDependencies, true, formatDependencies(res)),
		NewSection(SectionInstructions, PriorityInstructions, false, b.instructions()),
	}}
}

// Build assembles, fits and renders the prompt. Identical inputs give
// byte-identical output no longer than Budget characters.
func (b *Builder) Build(res scan.ExtractionResult, meta Metadata) (string, error) {
	fitted, err := Fit(b.Assemble(res, meta), b.Budget)
	if err != nil {
		return "", err
	}
	return fitted.Render(), nil
}

// Repair appends a correction block to the original prompt restating the
// required format. The block is small and fixed, so a repair prompt may
// exceed the budget by at most its length.
func (b *Builder) Repair(original, problem string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(original, "\n"))
	sb.WriteString("\n\n[")
	sb.WriteString(SectionCorrection)
	sb.WriteString("]\n")
	sb.WriteString("Your previous answer was rejected: ")
	sb.WriteString(oneLine(problem))
	sb.WriteString("\nAnswer again with exactly one ```mermaid fenced code block and nothing else.")
	sb.WriteString("\nThe first line inside the block must be one of: ")
	sb.WriteString(strings.Join(diagram.Keywords(), ", "))
	sb.WriteString(".\n")
	return sb.String()
}

func formatMetadata(res scan.ExtractionResult, meta Metadata) string {
	var lines []string
	if u := strings.TrimSpace(meta.RepoURL); u != "" {
		lines = append(lines, "repository: "+u)
	}
	lines = append(lines,
		fmt.Sprintf("files scanned: %d (too large: %d, binary: %d)", res.FilesScanned, res.FilesSkipped, res.FilesIgnored),
		fmt.Sprintf("tree truncated: %t", res.Truncated),
		"technologies: "+joinOr(res.Technologies, "unknown"),
		"modules: "+joinOr(res.Modules, "none"),
	)
	return strings.Join(lines, "\n")
}

func formatDependencies(res scan.ExtractionResult) string {
	var lines []string
	for _, m := range res.Manifests {
		var deps string
		switch {
		case m.Parsed && len(m.Deps) > 0:
			deps = strings.Join(m.Deps, ", ")
		case m.Parsed:
			deps = "none declared"
		default:
			deps = "unknown"
		}
		lines = append(lines, fmt.Sprintf("%s (%s): %s", m.Path, m.Tech, deps))
	}
	return strings.Join(lines, "\n")
}

func joinOr(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "…"
	}
	return s
}
