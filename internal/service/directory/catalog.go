// Package directory serves the searchable list views behind the dashboard
// charts: errors per device, users per department and devices per department or user.
package directory

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	jmespath "github.com/jmespath-community/go-jmespath"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Kind names a list view.
type Kind string

// Built-in list kinds.
const (
	KindError        Kind = "error"
	KindUserByRoom   Kind = "userByRoom"
	KindDeviceByRoom Kind = "deviceByRoom"
	KindDeviceByUser Kind = "deviceByUser"
)

// ListSpec describes how one kind of list is queried and rendered.
type ListSpec struct {
	Kind       Kind   `yaml:"kind"`
	Collection string `yaml:"collection"`
	Field      string `yaml:"field"`
	// Title and Subtitle are JMESPath expressions evaluated against the document data.
	Title    string `yaml:"title"`
	Subtitle string `yaml:"subtitle"`
	Icon     string `yaml:"icon"`
}

// Catalog is the set of list kinds the client knows how to show.
type Catalog struct {
	specs map[Kind]ListSpec
}

type catalogFile struct {
	Lists []ListSpec `yaml:"lists"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes a YAML catalog and compiles every expression in it.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Lists) == 0 {
		return nil, errors.New("catalog defines no lists")
	}

	c := &Catalog{specs: make(map[Kind]ListSpec, len(f.Lists))}
	for i, spec := range f.Lists {
		if err := spec.validate(); err != nil {
			return nil, fmt.Errorf("catalog list %d: %w", i, err)
		}
		if _, dup := c.specs[spec.Kind]; dup {
			return nil, fmt.Errorf("catalog list %d: duplicate kind %q", i, spec.Kind)
		}
		c.specs[spec.Kind] = spec
	}
	return c, nil
}

func (s ListSpec) validate() error {
	switch {
	case s.Kind == "":
		return errors.New("kind is required")
	case s.Collection == "":
		return fmt.Errorf("%s: collection is required", s.Kind)
	case s.Field == "":
		return fmt.Errorf("%s: field is required", s.Kind)
	case s.Title == "":
		return fmt.Errorf("%s: title expression is required", s.Kind)
	}
	for _, expr := range []string{s.Title, s.Subtitle} {
		if expr == "" {
			continue
		}
		if _, err := jmespath.Compile(expr); err != nil {
			return fmt.Errorf("%s: invalid expression %q: %w", s.Kind, expr, err)
		}
	}
	return nil
}

// Lookup returns the spec for kind.
func (c *Catalog) Lookup(kind Kind) (ListSpec, bool) {
	s, ok := c.specs[kind]
	return s, ok
}

// Kinds returns the known kinds in name order.
func (c *Catalog) Kinds() []Kind {
	out := make([]Kind, 0, len(c.specs))
	for k := range c.specs {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
