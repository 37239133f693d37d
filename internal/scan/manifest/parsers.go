package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"
)

func parsePackageJSON(data []byte) ([]string, error) {
	var pkg struct {
		Dependencies    map[string]json.RawMessage `json:"dependencies"`
		DevDependencies map[string]json.RawMessage `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return append(keys(pkg.Dependencies), keys(pkg.DevDependencies)...), nil
}

func parseComposerJSON(data []byte) ([]string, error) {
	var c struct {
		Require map[string]json.RawMessage `json:"require"`
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	var out []string
	for name := range c.Require {
		// platform requirements like "php" or "ext-json" are not libraries
		if name == "php" || strings.HasPrefix(name, "ext-") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func parsePomXML(data []byte) ([]string, error) {
	var pom struct {
		Dependencies []struct {
			GroupID    string `xml:"groupId"`
			ArtifactID string `xml:"artifactId"`
		} `xml:"dependencies>dependency"`
	}
	if err := xml.Unmarshal(data, &pom); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pom.Dependencies))
	for _, d := range pom.Dependencies {
		out = append(out, strings.TrimSpace(d.ArtifactID))
	}
	return out, nil
}

var reGradleDep = regexp.MustCompile(`^\s*(?:implementation|api|compile|compileOnly|runtimeOnly|testImplementation|kapt|annotationProcessor)\s*\(?\s*["']([^"':]+):([^"':]+)`)

func parseGradle(data []byte) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if m := reGradleDep.FindStringSubmatch(sc.Text()); m != nil {
			out = append(out, m[1]+":"+m[2])
		}
	}
	return out, sc.Err()
}

func parseGoMod(data []byte) ([]string, error) {
	f, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range f.Require {
		if r.Indirect {
			continue
		}
		out = append(out, r.Mod.Path)
	}
	return out, nil
}

func parseCargoToml(data []byte) ([]string, error) {
	var c struct {
		Dependencies map[string]any `toml:"dependencies"`
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return keys(c.Dependencies), nil
}

func parsePipfile(data []byte) ([]string, error) {
	var p struct {
		Packages map[string]any `toml:"packages"`
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return keys(p.Packages), nil
}

func parsePyproject(data []byte) ([]string, error) {
	var p struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	var out []string
	for _, req := range p.Project.Dependencies {
		if name := requirementName(req); name != "" {
			out = append(out, name)
		}
	}
	for name := range p.Tool.Poetry.Dependencies {
		if strings.EqualFold(name, "python") {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func parseRequirements(data []byte) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if name := requirementName(line); name != "" {
			out = append(out, name)
		}
	}
	return out, sc.Err()
}

// requirementName strips version specifiers, extras and markers from a PEP 508 line.
func requirementName(req string) string {
	req = strings.TrimSpace(req)
	if i := strings.IndexAny(req, "<>=!~;[ @("); i >= 0 {
		req = req[:i]
	}
	return strings.TrimSpace(req)
}

var reGem = regexp.MustCompile(`^\s*gem\s+["']([^"']+)["']`)

func parseGemfile(data []byte) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if m := reGem.FindStringSubmatch(sc.Text()); m != nil {
			out = append(out, m[1])
		}
	}
	return out, sc.Err()
}

func parsePubspec(data []byte) ([]string, error) {
	var p struct {
		Dependencies map[string]yaml.Node `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	var out []string
	for name := range p.Dependencies {
		if name == "flutter" {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func parseCompose(data []byte) ([]string, error) {
	var c struct {
		Services map[string]yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Services == nil {
		return nil, fmt.Errorf("compose: no services")
	}
	return keys(c.Services), nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
