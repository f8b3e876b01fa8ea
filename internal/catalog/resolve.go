package catalog

import "github.com/bluefermion/annotator/internal/model"

// ResolvedComponent is the merged, read-only view of a usage and its definition.
type ResolvedComponent struct {
	UsageID                 string   `json:"usageId"`
	DefinitionID            string   `json:"definitionId,omitempty"`
	Name                    string   `json:"name"`
	Description             string   `json:"description"`
	Category                string   `json:"category,omitempty"`
	DefinitionFilePath      string   `json:"definitionFilePath,omitempty"`
	UsageFilePath           string   `json:"usageFilePath,omitempty"`
	RepositoryURL           string   `json:"repositoryUrl,omitempty"`
	DefinitionRepositoryURL string   `json:"definitionRepositoryUrl,omitempty"`
	Line                    int      `json:"line,omitempty"`
	Column                  int      `json:"column,omitempty"`
	SemanticTags            []string `json:"semanticTags,omitempty"`
	// Registered is false when the usage id is unknown.
	Registered bool `json:"registered"`
	// DefinitionFound is false when the usage points at a missing definition.
	DefinitionFound bool `json:"definitionFound"`
}

// Resolver answers lookups across both tables.
type Resolver struct {
	Catalog  *Catalog
	Registry *Registry
}

// NewResolver pairs a catalog with a registry. Either may be nil.
func NewResolver(c *Catalog, r *Registry) *Resolver {
	return &Resolver{Catalog: c, Registry: r}
}

// Loaded reports whether the usage registry has finished loading.
func (r *Resolver) Loaded() bool {
	return r != nil && r.Registry.Loaded()
}

// Definition returns a definition by id.
func (r *Resolver) Definition(id string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	return r.Catalog.Get(id)
}

// Usage returns a usage by id.
func (r *Resolver) Usage(id string) (Usage, bool) {
	if r == nil {
		return Usage{}, false
	}
	return r.Registry.Get(id)
}

// Resolve merges usage usageID with its definition. It never fails: an unknown
// usage yields Name = usageID and an empty description; a usage whose definition
// is missing keeps its own fields and falls back to the raw definition id.
func (r *Resolver) Resolve(usageID string) ResolvedComponent {
	out := ResolvedComponent{UsageID: usageID, Name: usageID}

	u, ok := r.Usage(usageID)
	if !ok {
		return out
	}
	out.Registered = true
	out.DefinitionID = u.DefinitionID
	out.UsageFilePath = u.FilePath
	out.RepositoryURL = u.RepositoryURL
	out.Line = u.Line
	out.Column = u.Column

	d, found := r.Definition(u.DefinitionID)
	out.DefinitionFound = found
	if found {
		out.Name = d.Name
		out.Description = d.Description
		out.Category = d.Category
		out.DefinitionFilePath = d.SourceFilePath
		out.DefinitionRepositoryURL = d.RepositoryURL
	} else if u.DefinitionID != "" {
		out.Name = u.DefinitionID
	}
	if u.Name != "" {
		out.Name = u.Name
	}
	if u.Description != "" {
		out.Description = u.Description
	}
	if out.Name == "" {
		out.Name = usageID
	}
	out.SemanticTags = model.MergeTags(u.SemanticTags, d.SemanticTags)
	return out
}

// Enrich fills the fields of cc the caller left unset from the resolved view and
// unions the semantic tags. Caller-provided values always win.
func (rc ResolvedComponent) Enrich(cc model.ComponentContext) model.ComponentContext {
	if cc.Name == "" {
		cc.Name = rc.Name
	}
	if cc.Description == "" {
		cc.Description = rc.Description
	}
	if cc.DefinitionID == "" {
		cc.DefinitionID = rc.DefinitionID
	}
	if cc.Category == "" {
		cc.Category = rc.Category
	}
	if cc.DefinitionFilePath == "" {
		cc.DefinitionFilePath = rc.DefinitionFilePath
	}
	if cc.UsageFilePath == "" {
		cc.UsageFilePath = rc.UsageFilePath
	}
	if cc.RepositoryURL == "" {
		cc.RepositoryURL = rc.RepositoryURL
	}
	if cc.Line == 0 {
		cc.Line = rc.Line
	}
	if cc.Column == 0 {
		cc.Column = rc.Column
	}
	cc.SemanticTags = model.MergeTags(cc.SemanticTags, rc.SemanticTags)
	return cc
}
