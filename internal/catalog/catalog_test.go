package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_FilenamesUnique(t *testing.T) {
	c := Default()

	if c.Len() != 8 {
		t.Fatalf("Default catalog has %d variants, want 8", c.Len())
	}

	seen := make(map[string]bool)
	for _, v := range c.All() {
		if seen[v.InstalledFilename] {
			t.Errorf("duplicate installed filename %s", v.InstalledFilename)
		}
		seen[v.InstalledFilename] = true

		if !strings.HasSuffix(v.MirrorURL, "?download=true") {
			t.Errorf("%s: mirror URL %s lacks download query", v.ID, v.MirrorURL)
		}
		if !strings.Contains(v.PrimaryURL, v.InstalledFilename) {
			t.Errorf("%s: primary URL %s does not reference %s", v.ID, v.PrimaryURL, v.InstalledFilename)
		}
	}
}

func TestLookup(t *testing.T) {
	c := Default()

	tests := []struct {
		key  string
		want string
	}{
		{"tiny", "ggml-tiny.bin"},
		{"TINY", "ggml-tiny.bin"},
		{"ggml-large-v3.bin", "ggml-large-v3.bin"},
		{"Distil Large(v3)", "ggml-distil-large-v3.bin"},
		{" medium ", "ggml-medium.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, err := c.Lookup(tt.key)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.key, err)
			}
			if v.InstalledFilename != tt.want {
				t.Errorf("Lookup(%q) = %s, want %s", tt.key, v.InstalledFilename, tt.want)
			}
		})
	}

	if _, err := c.Lookup("huge"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("Lookup(huge) error = %v, want ErrUnknownVariant", err)
	}
}

func TestAt(t *testing.T) {
	c := Default()

	v, ok := c.At(0)
	if !ok || v.ID != "tiny" {
		t.Errorf("At(0) = %+v, %v", v, ok)
	}
	if _, ok := c.At(c.Len()); ok {
		t.Error("At(len) should be out of range")
	}
	if _, ok := c.At(-1); ok {
		t.Error("At(-1) should be out of range")
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	c := Default()
	all := c.All()
	all[0].InstalledFilename = "mutated.bin"

	v, _ := c.At(0)
	if v.InstalledFilename == "mutated.bin" {
		t.Error("catalog was mutated through All()")
	}
}

func TestVariant_SizeBytes(t *testing.T) {
	tests := []struct {
		label string
		want  uint64
		ok    bool
	}{
		{"148 MB", 148_000_000, true},
		{"1.53 GB", 1_530_000_000, true},
		{"77.7 MB", 77_700_000, true},
		{"", 0, false},
		{"huge", 0, false},
	}

	for _, tt := range tests {
		got, ok := Variant{SizeLabel: tt.label}.SizeBytes()
		if ok != tt.ok || got != tt.want {
			t.Errorf("SizeBytes(%q) = %d, %v; want %d, %v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestVariant_DisplayName(t *testing.T) {
	v := Variant{Name: "Base", SizeLabel: "148 MB"}
	if got := v.DisplayName(); got != "Base (148 MB)" {
		t.Errorf("DisplayName() = %q", got)
	}
	if got := (Variant{Name: "Custom"}).DisplayName(); got != "Custom" {
		t.Errorf("DisplayName() without size = %q", got)
	}
}

func TestNew_Validation(t *testing.T) {
	valid := Variant{ID: "a", InstalledFilename: "a.bin", MirrorURL: "https://m/a.bin"}

	tests := []struct {
		name     string
		variants []Variant
	}{
		{"missing id", []Variant{{InstalledFilename: "a.bin", MirrorURL: "u"}}},
		{"missing filename", []Variant{{ID: "a", MirrorURL: "u"}}},
		{"path in filename", []Variant{{ID: "a", InstalledFilename: "../a.bin", MirrorURL: "u"}}},
		{"dot filename", []Variant{{ID: "a", InstalledFilename: ".", MirrorURL: "u"}}},
		{"dot-dot filename", []Variant{{ID: "a", InstalledFilename: "..", MirrorURL: "u"}}},
		{"no urls", []Variant{{ID: "a", InstalledFilename: "a.bin"}}},
		{"duplicate id", []Variant{valid, {ID: "A", InstalledFilename: "b.bin", MirrorURL: "u"}}},
		{"duplicate filename", []Variant{valid, {ID: "b", InstalledFilename: "a.bin", MirrorURL: "u"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.variants); err == nil {
				t.Error("New() should reject invalid catalog")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
variants:
  - id: q5
    name: Base Q5
    filename: ggml-base-q5_1.bin
    size: 57 MB
    primary_url: https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base-q5_1.bin
    mirror_url: https://hf-mirror.com/ggerganov/whisper.cpp/resolve/main/ggml-base-q5_1.bin
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	v, err := c.Lookup("q5")
	if err != nil {
		t.Fatal(err)
	}
	if v.InstalledFilename != "ggml-base-q5_1.bin" || v.SizeLabel != "57 MB" {
		t.Errorf("unexpected variant %+v", v)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, []byte("variants: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	malformed := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(malformed, []byte("variants: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{empty, malformed, filepath.Join(dir, "missing.yaml")} {
		if _, err := LoadFile(path); err == nil {
			t.Errorf("LoadFile(%s) should fail", filepath.Base(path))
		}
	}
}
