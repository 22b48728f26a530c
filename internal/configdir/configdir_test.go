package configdir

import (
	"path/filepath"
	"testing"
)

func TestConfigDir(t *testing.T) {
	t.Setenv("MODELFETCH_CONFIG_DIR", "")
	if got := ConfigDir(); got != defaultConfigDir {
		t.Errorf("ConfigDir() = %s, want %s", got, defaultConfigDir)
	}

	dir := t.TempDir()
	t.Setenv("MODELFETCH_CONFIG_DIR", dir)
	if got := ConfigDir(); got != filepath.Clean(dir) {
		t.Errorf("ConfigDir() = %s, want %s", got, dir)
	}
}
