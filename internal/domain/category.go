package domain

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a static catalog entry used to label transactions.
type Category struct {
	ID   string          `yaml:"id" json:"id"`
	Name string          `yaml:"name" json:"name"`
	Type TransactionType `yaml:"type" json:"type"`
	Icon string          `yaml:"icon" json:"icon"`
}

type categoryCatalog struct {
	Categories []Category `yaml:"categories"`
}

//go:embed categories.yaml
var categoriesYAML []byte

var catalog = mustParseCategories(categoriesYAML)

// ParseCategories decodes a YAML category catalog and checks every entry.
func ParseCategories(data []byte) ([]Category, error) {
	var c categoryCatalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("ParseCategories: decoding yaml: %w", err)
	}
	if len(c.Categories) == 0 {
		return nil, fmt.Errorf("ParseCategories: catalog is empty")
	}

	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID == "" || cat.Name == "" {
			return nil, fmt.Errorf("ParseCategories: category id and name are required (got id=%q name=%q)", cat.ID, cat.Name)
		}
		if !cat.Type.Valid() {
			return nil, fmt.Errorf("ParseCategories: category %q has invalid type %q", cat.Name, cat.Type)
		}
		if seen[cat.ID] {
			return nil, fmt.Errorf("ParseCategories: duplicate category id %q", cat.ID)
		}
		seen[cat.ID] = true
	}
	return c.Categories, nil
}

func mustParseCategories(data []byte) []Category {
	cats, err := ParseCategories(data)
	if err != nil {
		panic(err)
	}
	return cats
}

// Categories returns a copy of the built-in catalog in catalog order.
func Categories() []Category {
	out := make([]Category, len(catalog))
	copy(out, catalog)
	return out
}

// CategoriesByType returns the catalog entries of one transaction type.
func CategoriesByType(t TransactionType) []Category {
	var out []Category
	for _, c := range catalog {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// DefaultCategory is the first catalog entry for t, used when a transaction has no category.
func DefaultCategory(t TransactionType) (Category, bool) {
	for _, c := range catalog {
		if c.Type == t {
			return c, true
		}
	}
	return Category{}, false
}

// FindCategory looks a category up by name, ignoring case and surrounding whitespace.
func FindCategory(name string) (Category, bool) {
	norm := strings.ToUpper(strings.TrimSpace(name))
	for _, c := range catalog {
		if strings.ToUpper(c.Name) == norm {
			return c, true
		}
	}
	return Category{}, false
}
