package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requirements.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadPreservesOrder(t *testing.T) {
	path := writeManifest(t, "fastapi>=0.100\nuvicorn>=0.20\n")

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []Dependency{
		{Name: "fastapi", Constraint: ">=0.100"},
		{Name: "uvicorn", Constraint: ">=0.20"},
	}
	if len(m.Dependencies) != len(want) {
		t.Fatalf("got %d dependencies, want %d", len(m.Dependencies), len(want))
	}
	for i, dep := range m.Dependencies {
		if dep != want[i] {
			t.Errorf("dependency %d = %+v, want %+v", i, dep, want[i])
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Dependency
		skip    bool
		wantErr bool
	}{
		{name: "pinned", line: "fastapi==0.110.0", want: Dependency{"fastapi", "==0.110.0"}},
		{name: "minimum", line: "uvicorn>=0.20", want: Dependency{"uvicorn", ">=0.20"}},
		{name: "compatible release", line: "pydantic~=2.5", want: Dependency{"pydantic", "~=2.5"}},
		{name: "bare name", line: "requests", want: Dependency{Name: "requests"}},
		{name: "spaces around operator", line: "httpx >= 0.25", want: Dependency{"httpx", ">=0.25"}},
		{name: "comment line", line: "# build deps", skip: true},
		{name: "blank line", line: "   ", skip: true},
		{name: "trailing comment", line: "fastapi>=0.100 # web framework", want: Dependency{"fastapi", ">=0.100"}},
		{name: "missing name", line: ">=1.0", wantErr: true},
		{name: "garbage", line: "not a requirement", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep, ok, err := parseLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if ok == tt.skip {
				t.Fatalf("parseLine(%q) ok = %v, want %v", tt.line, ok, !tt.skip)
			}
			if ok && dep != tt.want {
				t.Errorf("parseLine(%q) = %+v, want %+v", tt.line, dep, tt.want)
			}
		})
	}
}

func TestLoadEmptyManifest(t *testing.T) {
	path := writeManifest(t, "# only comments\n\n")

	_, err := Load(path)
	if !errors.Is(err, ErrEmptyManifest) {
		t.Errorf("Load error = %v, want ErrEmptyManifest", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
	if err == nil {
		t.Error("Load of missing file succeeded, want error")
	}
}

func TestSpecs(t *testing.T) {
	path := writeManifest(t, "fastapi>=0.100\nuvicorn>=0.20\nrequests\n")

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []string{"fastapi>=0.100", "uvicorn>=0.20", "requests"}
	got := m.Specs()
	if len(got) != len(want) {
		t.Fatalf("Specs() returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Specs()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
