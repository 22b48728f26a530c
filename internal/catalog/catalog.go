package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownVariant is returned by Lookup for identifiers not in the catalog
var ErrUnknownVariant = errors.New("catalog: unknown model variant")

// Catalog is an immutable, ordered table of variants loaded at startup
type Catalog struct {
	variants []Variant
}

// catalogFile is the on-disk YAML layout of a catalog override
type catalogFile struct {
	Variants []Variant `yaml:"variants"`
}

// New validates variants and returns a catalog holding a private copy
func New(variants []Variant) (*Catalog, error) {
	if err := validate(variants); err != nil {
		return nil, err
	}
	cp := make([]Variant, len(variants))
	copy(cp, variants)
	return &Catalog{variants: cp}, nil
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, err := New(DefaultVariants())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// LoadFile reads a YAML catalog of the form "variants: [...]"
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if len(file.Variants) == 0 {
		return nil, fmt.Errorf("catalog file %s defines no variants", path)
	}

	return New(file.Variants)
}

// All returns a copy of the variants in catalog order
func (c *Catalog) All() []Variant {
	cp := make([]Variant, len(c.variants))
	copy(cp, c.variants)
	return cp
}

// Len returns the number of variants
func (c *Catalog) Len() int {
	return len(c.variants)
}

// At returns the variant at index i in catalog order
func (c *Catalog) At(i int) (Variant, bool) {
	if i < 0 || i >= len(c.variants) {
		return Variant{}, false
	}
	return c.variants[i], true
}

// Lookup finds a variant by ID, installed filename or display name (case-insensitive)
func (c *Catalog) Lookup(key string) (Variant, error) {
	key = strings.TrimSpace(key)
	for _, v := range c.variants {
		if strings.EqualFold(v.ID, key) ||
			strings.EqualFold(v.InstalledFilename, key) ||
			strings.EqualFold(v.Name, key) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, key)
}

func validate(variants []Variant) error {
	ids := make(map[string]bool, len(variants))
	filenames := make(map[string]bool, len(variants))

	for i, v := range variants {
		switch {
		case strings.TrimSpace(v.ID) == "":
			return fmt.Errorf("variant %d: id is required", i)
		case v.InstalledFilename == "":
			return fmt.Errorf("variant %s: filename is required", v.ID)
		case v.InstalledFilename == "." || v.InstalledFilename == "..",
			filepath.Base(v.InstalledFilename) != v.InstalledFilename:
			return fmt.Errorf("variant %s: filename %q must not contain a path", v.ID, v.InstalledFilename)
		case v.PrimaryURL == "" && v.MirrorURL == "":
			return fmt.Errorf("variant %s: at least one of primary_url or mirror_url is required", v.ID)
		}

		id := strings.ToLower(v.ID)
		if ids[id] {
			return fmt.Errorf("variant %s: duplicate id", v.ID)
		}
		ids[id] = true

		if filenames[v.InstalledFilename] {
			return fmt.Errorf("variant %s: filename %s is used by another variant", v.ID, v.InstalledFilename)
		}
		filenames[v.InstalledFilename] = true
	}
	return nil
}
