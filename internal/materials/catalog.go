// Package materials resolves user-supplied item names to canonical item kinds.
package materials

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Namespace is the default namespace prefix for item keys.
const Namespace = "minecraft"

//go:embed items.json
var defaultCatalog []byte

// Material is a canonical item kind. The zero value is not a valid material.
type Material struct {
	id   string
	kind string
}

// ID returns the bare lowercase identifier, e.g. "diamond_sword".
func (m Material) ID() string { return m.id }

// Kind returns the catalog category ("MATERIAL", "BLOCK", "TOOL", ...).
func (m Material) Kind() string { return m.kind }

// Key returns the namespaced identifier persisted in the queue file, e.g. "minecraft:diamond".
func (m Material) Key() string { return Namespace + ":" + m.id }

// Name returns the upper snake case display name, e.g. "DIAMOND_SWORD".
func (m Material) Name() string { return strings.ToUpper(m.id) }

// IsZero reports whether m is the zero Material.
func (m Material) IsZero() bool { return m.id == "" }

func (m Material) String() string { return m.Name() }

// ItemDef is one entry of the catalog file.
type ItemDef struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type catalogFile struct {
	Items []ItemDef `json:"items"`
}

// Catalog is an immutable index of known materials.
type Catalog struct {
	index map[string]Material
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("materials: embedded catalog: %v", err))
	}
	return c
}

// Parse builds a catalog from its JSON encoding.
func Parse(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	c := &Catalog{index: make(map[string]Material, len(f.Items))}
	for _, def := range f.Items {
		id := normalize(def.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog entry with empty id")
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("duplicate catalog entry %q", id)
		}
		c.index[id] = Material{id: id, kind: strings.ToUpper(def.Kind)}
	}
	return c, nil
}

// Match resolves name to a material. Matching ignores case, an optional
// "minecraft:" namespace, and treats spaces and dashes as underscores.
func (c *Catalog) Match(name string) (Material, bool) {
	if c == nil {
		return Material{}, false
	}
	m, ok := c.index[normalize(name)]
	return m, ok
}

// Len returns the number of known materials.
func (c *Catalog) Len() int { return len(c.index) }

// IDs returns all material ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.index))
	for id := range c.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimPrefix(s, Namespace+":")
	s = strings.Join(strings.Fields(s), "_")
	return strings.ReplaceAll(s, "-", "_")
}
