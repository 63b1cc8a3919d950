// Package archtest enforces the import boundaries between the tracking
// engine, its code generator, and the sample domain.
package archtest

import (
	"testing"

	"golang.org/x/tools/go/packages"
)

func loadGraph(t *testing.T, patterns ...string) map[string]*packages.Package {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		t.Fatalf("packages.Load: %v", err)
	}
	out := make(map[string]*packages.Package, len(pkgs))
	for _, p := range pkgs {
		out[p.PkgPath] = p
	}
	return out
}

func importsPath(pkg *packages.Package, want string) bool {
	for path := range pkg.Imports {
		if path == want {
			return true
		}
	}
	return false
}

// TestEngineDoesNotImportCodegenOrSampleDomain enforces that the tracking
// engine stays a standalone library: it must never import its own code
// generator or the sample Orders/OrderDetails domain, since both exist to
// consume the engine, not the other way around.
func TestEngineDoesNotImportCodegenOrSampleDomain(t *testing.T) {
	graph := loadGraph(t, "trackcore/engine")
	engine, ok := graph["trackcore/engine"]
	if !ok {
		t.Fatalf("trackcore/engine not found in package graph")
	}

	forbidden := []string{"trackcore/cmd/trackgen", "trackcore/internal/core"}
	for _, path := range forbidden {
		if importsPath(engine, path) {
			t.Fatalf("trackcore/engine imports %s, which must depend on the engine instead", path)
		}
	}
}

// TestCodegenDoesNotImportSampleDomain enforces that the schema code
// generator stays domain-agnostic: it must not special-case the
// Orders/OrderDetails sample that only exists for the engine's own tests.
func TestCodegenDoesNotImportSampleDomain(t *testing.T) {
	graph := loadGraph(t, "trackcore/cmd/trackgen")
	trackgen, ok := graph["trackcore/cmd/trackgen"]
	if !ok {
		t.Fatalf("trackcore/cmd/trackgen not found in package graph")
	}
	if importsPath(trackgen, "trackcore/internal/core") {
		t.Fatalf("trackcore/cmd/trackgen imports trackcore/internal/core, a test-only sample domain")
	}
}
