package builders_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poltergeist/wisp/pkg/builders"
	"github.com/poltergeist/wisp/pkg/types"
)

func TestFingerprint(t *testing.T) {
	a := builders.Fingerprint([]byte("body{color:red}"))
	b := builders.Fingerprint([]byte("body{color:blue}"))

	if len(a) != builders.HashLength {
		t.Errorf("expected %d hex digits, got %q", builders.HashLength, a)
	}
	if a == b {
		t.Error("different content must produce different fingerprints")
	}
	if a != builders.Fingerprint([]byte("body{color:red}")) {
		t.Error("fingerprint must be deterministic")
	}
}

func TestRevisionedName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"assets/css/common.css", "assets/css/common-0123456789.css"},
		{"assets/js/common.min.js", "assets/js/common.min-0123456789.js"},
		{"LICENSE", "LICENSE-0123456789"},
	}

	for _, tt := range tests {
		if got := builders.RevisionedName(tt.name, "0123456789"); got != tt.want {
			t.Errorf("RevisionedName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestManifest_SaveSortsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rev-manifest.json")
	m := builders.Manifest{
		"b.js":  "b-2.js",
		"a.css": "a-1.css",
	}
	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	content := readFile(t, path)
	if strings.Index(content, "a.css") > strings.Index(content, "b.js") {
		t.Errorf("expected sorted keys, got %s", content)
	}

	loaded, err := builders.LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error: %v", err)
	}
	if loaded["a.css"] != "a-1.css" || len(loaded) != 2 {
		t.Errorf("unexpected manifest %v", loaded)
	}
}

func TestLoadManifest_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rev-manifest.json")
	writeFile(t, path, "{not json")

	if _, err := builders.LoadManifest(path); err == nil {
		t.Error("expected corrupt manifest error")
	}
}

func TestRevisionBuilder_Build(t *testing.T) {
	cfg := newProject(t, types.ModeProduction, map[string]string{
		"dist/assets/css/common.css": "body{color:red}",
		"dist/assets/js/common.js":   "console.log(1)",
		"dist/index.html":            "<html></html>",
	})

	outcome := builders.NewRevisionBuilder(cfg, testLogger()).Build(context.Background())
	if !outcome.OK() {
		t.Fatalf("revision failed: %v", outcome)
	}

	manifest, err := builders.LoadManifest(cfg.Path("rev-manifest.json"))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}

	if len(manifest) != 2 {
		t.Fatalf("expected css and js entries only, got %v", manifest)
	}

	want := builders.RevisionedName("assets/css/common.css", builders.Fingerprint([]byte("body{color:red}")))
	if manifest["assets/css/common.css"] != want {
		t.Errorf("expected %q, got %q", want, manifest["assets/css/common.css"])
	}

	for original, revisioned := range manifest {
		if readFile(t, cfg.Path("dist/"+revisioned)) != readFile(t, cfg.Path("dist/"+original)) {
			t.Errorf("revisioned copy of %s differs from the original", original)
		}
	}
}

func TestRevisionBuilder_DoesNotRevisionTwice(t *testing.T) {
	cfg := newProject(t, types.ModeProduction, map[string]string{
		"dist/assets/css/common.css": "body{color:red}",
	})
	rev := builders.NewRevisionBuilder(cfg, testLogger())

	for i := 0; i < 2; i++ {
		if outcome := rev.Build(context.Background()); !outcome.OK() {
			t.Fatalf("run %d failed: %v", i+1, outcome)
		}
	}

	manifest, err := builders.LoadManifest(rev.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest) != 1 {
		t.Errorf("fingerprinted copies must not be fingerprinted again, got %v", manifest)
	}
}

// A second production build must replace the manifest, and every entry must
// point at a file produced by that build.
func TestRevision_SecondBuildOverwritesManifest(t *testing.T) {
	cfg := newProject(t, types.ModeProduction, nil)
	ctx := context.Background()

	build := func(css string) builders.Manifest {
		t.Helper()
		if outcome := builders.NewCleanBuilder(cfg, testLogger()).Build(ctx); !outcome.OK() {
			t.Fatalf("clean failed: %v", outcome)
		}
		writeFile(t, cfg.Path("dist/assets/css/common.css"), css)
		if outcome := builders.NewRevisionBuilder(cfg, testLogger()).Build(ctx); !outcome.OK() {
			t.Fatalf("revision failed: %v", outcome)
		}
		m, err := builders.LoadManifest(cfg.Path("rev-manifest.json"))
		if err != nil {
			t.Fatal(err)
		}
		return m
	}

	first := build("body{color:red}")
	second := build("body{color:green}")

	if first["assets/css/common.css"] == second["assets/css/common.css"] {
		t.Fatal("expected a new fingerprint after content changed")
	}
	if len(second) != 1 {
		t.Errorf("manifest must not be merged with the previous run, got %v", second)
	}
	for _, revisioned := range second {
		if _, err := os.Stat(cfg.Path("dist/" + revisioned)); err != nil {
			t.Errorf("manifest references missing file %s", revisioned)
		}
	}
	if _, err := os.Stat(cfg.Path("dist/" + first["assets/css/common.css"])); !os.IsNotExist(err) {
		t.Error("stale fingerprinted file from the first build must be gone")
	}
}
