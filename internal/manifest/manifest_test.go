package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ngiloq6/cargo/internal/source"
)

func writeManifest(t *testing.T, dir, toml string) string {
	t.Helper()
	path := filepath.Join(dir, Name)
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRequiresPackageName(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `[package]
version = "0.1.0"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a manifest with no package name")
	}
}

func TestLoadParsesShorthandAndTableDependencies(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "src/lib.rs"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeManifest(t, dir, `
[package]
name = "widget"
version = "1.2.3"
edition = "2021"

[dependencies]
serde = "1.0"
regex = { version = "1", optional = true, default-features = false, features = ["std"] }
local-helper = { path = "../helper" }

[build-dependencies]
cc = "1.0"
`)

	pkg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if pkg.Id.Name != "widget" {
		t.Fatalf("expected package name widget, got %s", pkg.Id.Name)
	}
	if len(pkg.Targets) != 1 || pkg.Targets[0].Kind != source.TargetLib {
		t.Fatalf("expected a single inferred lib target, got %v", pkg.Targets)
	}

	byName := map[string]source.Dependency{}
	for _, d := range pkg.Dependencies {
		byName[d.Name] = d
	}

	serde, ok := byName["serde"]
	if !ok || serde.Source != DefaultRegistry || serde.Kind != source.KindNormal {
		t.Fatalf("expected a normal registry dependency on serde, got %+v", serde)
	}

	regex, ok := byName["regex"]
	if !ok || !regex.Optional || regex.UsesDefaultFeatures {
		t.Fatalf("expected regex to be optional with default-features disabled, got %+v", regex)
	}
	if len(regex.FeaturesRequested) != 1 || regex.FeaturesRequested[0] != "std" {
		t.Fatalf("expected regex to request the std feature, got %v", regex.FeaturesRequested)
	}

	helper, ok := byName["local-helper"]
	if !ok || helper.Source.String() == DefaultRegistry.String() {
		t.Fatalf("expected local-helper to resolve to a path source, got %+v", helper)
	}

	cc, ok := byName["cc"]
	if !ok || cc.Kind != source.KindBuild {
		t.Fatalf("expected cc to be a build-dependency, got %+v", cc)
	}
}

func TestLoadDetectsBuildScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "build.rs"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	path := writeManifest(t, dir, `[package]
name = "with-build-script"
version = "0.1.0"
`)

	pkg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	target, ok := pkg.BuildScriptTarget()
	if !ok || target.Path != "build.rs" {
		t.Fatalf("expected a build-script target at build.rs, got %+v ok=%v", target, ok)
	}
}

func TestLoadRenamesDependencyViaPackageKey(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `[package]
name = "renamer"
version = "0.1.0"

[dependencies]
aliased = { package = "real-crate", version = "2.0" }
`)

	pkg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkg.Dependencies) != 1 {
		t.Fatalf("expected one dependency, got %d", len(pkg.Dependencies))
	}
	d := pkg.Dependencies[0]
	if d.Name != "real-crate" || d.Rename != "aliased" || d.ExternName() != "aliased" {
		t.Fatalf("expected real-crate renamed to aliased, got %+v", d)
	}
}
