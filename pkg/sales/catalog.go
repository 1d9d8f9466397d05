package sales

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/beam-cloud/salesmap/pkg/types"
)

//go:embed templates.yaml
var catalogYAML []byte

// Catalog is the set of built-in templates offered before login
type Catalog struct {
	templates []types.Template
	byID      map[string]int
	defaultID string
}

type catalogFile struct {
	Default   string           `yaml:"default"`
	Templates []types.Template `yaml:"templates"`
}

// LoadCatalog parses a YAML template catalog. The default template must exist
// and be valid; other entries (such as the empty custom placeholder) may be
// incomplete.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		templates: file.Templates,
		byID:      make(map[string]int, len(file.Templates)),
		defaultID: file.Default,
	}
	for i, t := range file.Templates {
		if t.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog id %q", t.ID)
		}
		c.byID[t.ID] = i
	}

	def, ok := c.Get(c.defaultID)
	if !ok {
		return nil, fmt.Errorf("default template %q not in catalog", c.defaultID)
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("default template: %w", err)
	}
	return c, nil
}

var builtinCatalog = sync.OnceValue(func() *Catalog {
	c, err := LoadCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
})

// BuiltinCatalog returns the catalog embedded in the binary
func BuiltinCatalog() *Catalog {
	return builtinCatalog()
}

// List returns a copy of every catalog entry in file order
func (c *Catalog) List() []types.Template {
	out := make([]types.Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Get returns a copy of the entry with the given id
func (c *Catalog) Get(id string) (*types.Template, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	t := c.templates[i]
	return &t, true
}

// Default returns the template used when no other candidate is valid
func (c *Catalog) Default() *types.Template {
	t, _ := c.Get(c.defaultID)
	return t
}

// IsBuiltin reports whether t is an unmodified catalog entry
func (c *Catalog) IsBuiltin(t *types.Template) bool {
	if t == nil {
		return false
	}
	entry, ok := c.Get(t.ID)
	return ok && entry.SubjectQuery == t.SubjectQuery && entry.CountryPattern == t.CountryPattern
}
