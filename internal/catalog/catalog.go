// Package catalog maps rendered elements back to documented component kinds.
//
// Two read-only tables are built once at start: the Catalog of component
// definitions and the Registry of usages (call sites). Both expose O(1) lookups
// and nothing else; Resolve merges a usage with its definition into one
// fully-populated view.
package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Definition describes a reusable kind of UI element.
type Definition struct {
	ID             string   `koanf:"id" json:"definitionId"`
	Name           string   `koanf:"name" json:"name"`
	Description    string   `koanf:"description" json:"description,omitempty"`
	Category       string   `koanf:"category" json:"category,omitempty"`
	SourceFilePath string   `koanf:"source_file_path" json:"sourceFilePath,omitempty"`
	RepositoryURL  string   `koanf:"-" json:"repositoryUrl,omitempty"`
	SemanticTags   []string `koanf:"semantic_tags" json:"semanticTags,omitempty"`
}

// Usage is one call site instantiating a Definition. Name and Description, when
// set, override the definition's.
type Usage struct {
	ID            string   `koanf:"id" json:"usageId"`
	DefinitionID  string   `koanf:"definition_id" json:"definitionId"`
	Name          string   `koanf:"name" json:"name,omitempty"`
	Description   string   `koanf:"description" json:"description,omitempty"`
	FilePath      string   `koanf:"file_path" json:"filePath,omitempty"`
	Line          int      `koanf:"line" json:"line,omitempty"`
	Column        int      `koanf:"column" json:"column,omitempty"`
	RepositoryURL string   `koanf:"-" json:"repositoryUrl,omitempty"`
	SemanticTags  []string `koanf:"semantic_tags" json:"semanticTags,omitempty"`
}

// Catalog is the read-only definition table.
type Catalog struct {
	defs map[string]Definition
}

// NewCatalog indexes defs by id and derives repository URLs from repoBase.
// Duplicate or empty ids are rejected.
func NewCatalog(defs []Definition, repoBase string) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("definition with empty id (name %q)", d.Name)
		}
		if _, dup := c.defs[d.ID]; dup {
			return nil, fmt.Errorf("duplicate definition id %q", d.ID)
		}
		d.RepositoryURL = repositoryURL(repoBase, d.SourceFilePath, 0)
		d.SemanticTags = append([]string(nil), d.SemanticTags...)
		c.defs[d.ID] = d
	}
	return c, nil
}

// Get returns the definition for id.
func (c *Catalog) Get(id string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	d, ok := c.defs[id]
	if ok {
		d.SemanticTags = append([]string(nil), d.SemanticTags...)
	}
	return d, ok
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.defs)
}

// Registry is the read-only usage table.
type Registry struct {
	usages map[string]Usage
}

// NewRegistry indexes usages by id. A usage may point at a definition that does
// not exist; that is tolerated here and degraded at resolve time.
func NewRegistry(usages []Usage, repoBase string) (*Registry, error) {
	r := &Registry{usages: make(map[string]Usage, len(usages))}
	for _, u := range usages {
		if u.ID == "" {
			return nil, fmt.Errorf("usage with empty id (definition %q)", u.DefinitionID)
		}
		if _, dup := r.usages[u.ID]; dup {
			return nil, fmt.Errorf("duplicate usage id %q", u.ID)
		}
		u.RepositoryURL = repositoryURL(repoBase, u.FilePath, u.Line)
		u.SemanticTags = append([]string(nil), u.SemanticTags...)
		r.usages[u.ID] = u
	}
	return r, nil
}

// Get returns the usage for id.
func (r *Registry) Get(id string) (Usage, bool) {
	if r == nil {
		return Usage{}, false
	}
	u, ok := r.usages[id]
	if ok {
		u.SemanticTags = append([]string(nil), u.SemanticTags...)
	}
	return u, ok
}

// Len returns the number of usages.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.usages)
}

// Loaded reports whether the registry has any usages. An empty registry is
// treated as "still loading" by the binding layer.
func (r *Registry) Loaded() bool {
	return r.Len() > 0
}

// IDs returns every usage id in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.usages))
	for id := range r.usages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dangling returns the usages whose definition id is not in c, sorted by usage id.
func (r *Registry) Dangling(c *Catalog) []Usage {
	var out []Usage
	for _, id := range r.IDs() {
		u := r.usages[id]
		if _, ok := c.Get(u.DefinitionID); !ok {
			out = append(out, u)
		}
	}
	return out
}

func repositoryURL(base, path string, line int) string {
	if base == "" || path == "" {
		return ""
	}
	u := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if line > 0 {
		u += fmt.Sprintf("#L%d", line)
	}
	return u
}
