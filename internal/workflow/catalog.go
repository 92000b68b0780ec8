package workflow

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shepherd/internal/errors"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// overrideFile is the layout of a user catalog file.
type overrideFile struct {
	Workflows []Definition `yaml:"workflows"`
}

// Catalog is an ordered set of workflow definitions.
type Catalog struct {
	defs  map[string]*Definition
	order []string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]*Definition)}
}

// Builtin returns the embedded workflows.
func Builtin() (*Catalog, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("read embedded workflows: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	c := NewCatalog()
	for _, name := range names {
		data, err := builtinFS.ReadFile(path.Join("builtin", name))
		if err != nil {
			return nil, fmt.Errorf("read embedded workflow %s: %w", name, err)
		}
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parse embedded workflow %s: %w", name, err)
		}
		def.Source = "builtin"
		if err := c.Add(&def); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Load returns the built-in catalog merged with overridePath. An empty
// path or a missing file yields the built-in catalog alone.
func Load(overridePath string) (*Catalog, error) {
	c, err := Builtin()
	if err != nil {
		return nil, err
	}
	if overridePath == "" {
		return c, nil
	}
	data, err := os.ReadFile(overridePath)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.NewConfigError("paths.workflows_file", "cannot read workflow file", err)
	}
	if err := c.Merge(data, overridePath); err != nil {
		return nil, err
	}
	return c, nil
}

// Merge parses a catalog file and adds its definitions, replacing any
// with the same name.
func (c *Catalog) Merge(data []byte, source string) error {
	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.NewConfigError("paths.workflows_file", "invalid workflow file "+source, err)
	}
	for i := range file.Workflows {
		def := file.Workflows[i]
		def.Source = source
		if err := c.Add(&def); err != nil {
			return err
		}
	}
	return nil
}

// Add validates def and stores it, replacing a definition of the same name.
func (c *Catalog) Add(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, exists := c.defs[def.Name]; !exists {
		c.order = append(c.order, def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// Get returns the definition called name.
func (c *Catalog) Get(name string) (*Definition, error) {
	def, ok := c.defs[name]
	if !ok {
		return nil, errors.NewWorkflowError(name, "not in catalog", errors.ErrUnknownWorkflow)
	}
	return def, nil
}

// Names returns workflow names in the order they were added.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// All returns every definition in order.
func (c *Catalog) All() []*Definition {
	out := make([]*Definition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.defs[name])
	}
	return out
}
