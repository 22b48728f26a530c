package configdir

import (
	"os"
	"path/filepath"
)

const defaultConfigDir = "/etc/modelfetch"

// ConfigDir resolves the system configuration directory respecting overrides
func ConfigDir() string {
	if env := os.Getenv("MODELFETCH_CONFIG_DIR"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			return abs
		}
	}
	return defaultConfigDir
}
