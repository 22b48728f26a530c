package catalog

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Variant is one selectable downloadable model definition
type Variant struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	InstalledFilename string `yaml:"filename"`
	SizeLabel         string `yaml:"size"`
	PrimaryURL        string `yaml:"primary_url"`
	MirrorURL         string `yaml:"mirror_url"`
}

// SizeBytes parses the canonical size label ("148 MB", "1.53 GB").
// Returns false when the label is empty or unparseable.
func (v Variant) SizeBytes() (uint64, bool) {
	if v.SizeLabel == "" {
		return 0, false
	}
	n, err := humanize.ParseBytes(v.SizeLabel)
	if err != nil {
		return 0, false
	}
	return n, true
}

// DisplayName returns "Name (size)" as shown in selection lists
func (v Variant) DisplayName() string {
	if v.SizeLabel == "" {
		return v.Name
	}
	return fmt.Sprintf("%s (%s)", v.Name, v.SizeLabel)
}
