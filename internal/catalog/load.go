package catalog

import (
	"fmt"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// file layout:
//
//	[[definition]]
//	id = "button"
//	name = "Button"
//	source_file_path = "src/components/Button.tsx"
//	semantic_tags = ["action", "form"]
//
//	[[usage]]
//	id = "checkout-submit"
//	definition_id = "button"
//	file_path = "src/pages/Checkout.tsx"
//	line = 42
type fileLayout struct {
	Definitions []Definition `koanf:"definition"`
	Usages      []Usage      `koanf:"usage"`
}

// LoadFile reads a TOML catalog and builds both tables.
func LoadFile(path, repoBase string) (*Resolver, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("error loading catalog %s: %w", path, err)
	}

	var layout fileLayout
	if err := k.Unmarshal("", &layout); err != nil {
		return nil, fmt.Errorf("error unmarshalling catalog %s: %w", path, err)
	}

	defs, err := NewCatalog(layout.Definitions, repoBase)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	usages, err := NewRegistry(layout.Usages, repoBase)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return NewResolver(defs, usages), nil
}
