// Package testutil provides test helpers that enforce the import boundaries
// between raceview layers.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Module is the raceview module path.
const Module = "raceview"

// ImportRule rejects import paths for which Forbidden returns true.
type ImportRule struct {
	Reason    string
	Forbidden func(importPath string) bool
}

// InternalImports matches any raceview internal package.
func InternalImports(path string) bool {
	return strings.HasPrefix(path, Module+"/internal/")
}

// AdapterImports matches the HTTP adapters and the command packages, which
// sit on the outside of the dependency graph.
func AdapterImports(path string) bool {
	return strings.HasPrefix(path, Module+"/internal/adapters") || strings.HasPrefix(path, Module+"/cmd/")
}

// PackagePrefix returns a predicate matching prefix and anything below it.
func PackagePrefix(prefix string) func(string) bool {
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

// Violation is a forbidden import found in a production file.
type Violation struct {
	File   string
	Import string
}

func (v Violation) String() string {
	return v.Import + " (in " + v.File + ")"
}

// ImportViolations scans the non-test .go files directly inside dir.
// Build tags are not evaluated.
func ImportViolations(dir string, forbidden func(string) bool) ([]Violation, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []Violation
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			if err != nil {
				return nil, err
			}
			if forbidden(path) {
				viols = append(viols, Violation{File: name, Import: path})
			}
		}
	}
	return viols, nil
}

// AssertImports fails t when any production file in dir breaks one of rules.
func AssertImports(t testing.TB, dir string, rules ...ImportRule) {
	t.Helper()
	for _, rule := range rules {
		viols, err := ImportViolations(dir, rule.Forbidden)
		if err != nil {
			t.Fatalf("scan imports in %s: %v", dir, err)
		}
		if len(viols) == 0 {
			continue
		}
		lines := make([]string, len(viols))
		for i, v := range viols {
			lines[i] = v.String()
		}
		t.Errorf("forbidden imports (%s):\n%s", rule.Reason, strings.Join(lines, "\n"))
	}
}
