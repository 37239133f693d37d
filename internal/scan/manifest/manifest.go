// Package manifest maps well-known project files to the technology they imply
// and, where the format allows, pulls out the declared dependency names.
package manifest

import (
	"sort"
	"strings"
)

// Parser extracts top-level dependency names from a manifest's content.
type Parser func(data []byte) ([]string, error)

// Rule is one row of the detection table.
type Rule struct {
	Tech   string
	Parser Parser // nil means tag-only detection
}

// Signal is a detected manifest.
type Signal struct {
	Path string // repo-relative, forward slashes
	File string // base name as found on disk
	Tech string
	Deps []string
	// Parsed is false when the file was not parsed or parsing failed;
	// the technology tag still stands.
	Parsed bool
}

// Table is keyed by lowercase base filename.
var Table = map[string]Rule{
	"package.json":        {Tech: "Node.js", Parser: parsePackageJSON},
	"pom.xml":             {Tech: "Java", Parser: parsePomXML},
	"build.gradle":        {Tech: "Java", Parser: parseGradle},
	"build.gradle.kts":    {Tech: "Kotlin", Parser: parseGradle},
	"go.mod":              {Tech: "Go", Parser: parseGoMod},
	"cargo.toml":          {Tech: "Rust", Parser: parseCargoToml},
	"pyproject.toml":      {Tech: "Python", Parser: parsePyproject},
	"requirements.txt":    {Tech: "Python", Parser: parseRequirements},
	"pipfile":             {Tech: "Python", Parser: parsePipfile},
	"composer.json":       {Tech: "PHP", Parser: parseComposerJSON},
	"gemfile":             {Tech: "Ruby", Parser: parseGemfile},
	"pubspec.yaml":        {Tech: "Dart", Parser: parsePubspec},
	"docker-compose.yml":  {Tech: "Docker Compose", Parser: parseCompose},
	"docker-compose.yaml": {Tech: "Docker Compose", Parser: parseCompose},
	"compose.yaml":        {Tech: "Docker Compose", Parser: parseCompose},
	"compose.yml":         {Tech: "Docker Compose", Parser: parseCompose},
	"dockerfile":          {Tech: "Docker"},
	"makefile":            {Tech: "Make"},
	"cmakelists.txt":      {Tech: "CMake"},
	// tag-only; values are never read into the prompt
	".env.example":        {Tech: "Environment config"},
}

// Lookup reports the rule for a base filename, if any.
func Lookup(name string) (Rule, bool) {
	r, ok := Table[strings.ToLower(name)]
	return r, ok
}

// Detect builds a Signal for a file already matched by Lookup. data may be nil
// when the file was too large or unreadable; the result is then tag-only.
// Parser errors and panics from malformed input never escape.
func Detect(rel, name string, data []byte, maxDeps int) (sig Signal) {
	rule, ok := Lookup(name)
	if !ok {
		return Signal{}
	}
	sig = Signal{Path: rel, File: name, Tech: rule.Tech}
	if rule.Parser == nil || data == nil {
		return sig
	}
	defer func() {
		if r := recover(); r != nil {
			sig.Deps, sig.Parsed = nil, false
		}
	}()
	deps, err := rule.Parser(data)
	if err != nil {
		return sig
	}
	sig.Deps = normalize(deps, maxDeps)
	sig.Parsed = true
	return sig
}

// Technologies returns the sorted unique tech tags of sigs.
func Technologies(sigs []Signal) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range sigs {
		if _, ok := seen[s.Tech]; ok || s.Tech == "" {
			continue
		}
		seen[s.Tech] = struct{}{}
		out = append(out, s.Tech)
	}
	sort.Strings(out)
	return out
}

func normalize(deps []string, max int) []string {
	seen := make(map[string]struct{}, len(deps))
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
