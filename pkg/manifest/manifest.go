// Package manifest parses dependency manifests: ordered lists of
// (package name, version constraint) pairs in the requirements-file
// format consumed by pip.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	ErrEmptyManifest  = errors.New("manifest declares no dependencies")
	ErrBadRequirement = errors.New("malformed requirement line")
)

// Dependency is one declared package with an optional version constraint,
// e.g. {Name: "fastapi", Constraint: ">=0.100"}.
type Dependency struct {
	Name       string
	Constraint string
}

// String renders the dependency back in requirement syntax.
func (d Dependency) String() string {
	return d.Name + d.Constraint
}

// Manifest is an ordered, immutable list of declared dependencies.
type Manifest struct {
	Path         string
	Dependencies []Dependency
}

// constraint operators in match order — two-char operators first so
// ">=" is not split as ">".
var constraintOps = []string{"==", ">=", "<=", "!=", "~=", ">", "<"}

// Load reads and parses a manifest file. Order is preserved.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	m := &Manifest{Path: path}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		dep, ok, err := parseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if ok {
			m.Dependencies = append(m.Dependencies, dep)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(m.Dependencies) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyManifest)
	}

	return m, nil
}

// parseLine splits one requirement line into name and constraint.
// Blank lines and comments are skipped (ok=false).
func parseLine(line string) (Dependency, bool, error) {
	// strip trailing comment
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Dependency{}, false, nil
	}

	for _, op := range constraintOps {
		if i := strings.Index(line, op); i >= 0 {
			name := strings.TrimSpace(line[:i])
			constraint := strings.ReplaceAll(line[i:], " ", "")
			if name == "" {
				return Dependency{}, false, fmt.Errorf("%w: %q", ErrBadRequirement, line)
			}
			return Dependency{Name: name, Constraint: constraint}, true, nil
		}
	}

	// bare package name, any version
	if strings.ContainsAny(line, " \t") {
		return Dependency{}, false, fmt.Errorf("%w: %q", ErrBadRequirement, line)
	}
	return Dependency{Name: line}, true, nil
}

// Specs renders all dependencies as installer arguments, in declaration order.
func (m *Manifest) Specs() []string {
	specs := make([]string, len(m.Dependencies))
	for i, d := range m.Dependencies {
		specs[i] = d.String()
	}
	return specs
}
