//go:build !windows

package install

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestInstall_CrossDeviceFallsBackToCopy(t *testing.T) {
	dir := t.TempDir()
	staging := writeStaged(t, dir, "cross-volume-bytes")
	final := filepath.Join(dir, "models", "ggml-tiny.bin")

	installer := NewInstaller(nil)
	installer.rename = func(oldpath, newpath string) error {
		if oldpath == staging {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: unix.EXDEV}
		}
		return os.Rename(oldpath, newpath)
	}

	if err := installer.Install(staging, final); err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	data, err := os.ReadFile(final)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "cross-volume-bytes" {
		t.Errorf("final content = %q", data)
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Error("staged file should be removed after cross-volume copy")
	}

	entries, err := os.ReadDir(filepath.Dir(final))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left in models dir: %d entries", len(entries))
	}
}

func TestIsCrossDevice(t *testing.T) {
	if !isCrossDevice(&os.LinkError{Op: "rename", Err: unix.EXDEV}) {
		t.Error("EXDEV should be detected")
	}
	if isCrossDevice(&os.LinkError{Op: "rename", Err: unix.EACCES}) {
		t.Error("EACCES is not a cross-device error")
	}
}
