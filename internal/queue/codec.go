package queue

import (
	"fmt"
	"log/slog"
	"sort"

	yamlv3 "gopkg.in/yaml.v3"
)

// document is the persisted layout: pending.<recipient> -> [ {material, amount, note?} ].
type document struct {
	Pending map[string]yamlv3.Node `yaml:"pending"`
}

type entry struct {
	Material string `yaml:"material"`
	Amount   *int   `yaml:"amount"`
	Note     string `yaml:"note,omitempty"`
}

type outDocument struct {
	Pending map[string][]entry `yaml:"pending"`
}

func encode(pending map[string][]Item) ([]byte, error) {
	doc := outDocument{Pending: make(map[string][]entry, len(pending))}
	for recipient, items := range pending {
		if len(items) == 0 {
			continue
		}
		entries := make([]entry, 0, len(items))
		for _, it := range items {
			amount := it.Amount
			entries = append(entries, entry{
				Material: it.Material.Key(),
				Amount:   &amount,
				Note:     it.Note,
			})
		}
		doc.Pending[recipient] = entries
	}

	b, err := yamlv3.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("yaml marshal: %w", err)
	}
	return b, nil
}

func decode(data []byte, m MaterialMatcher, logger *slog.Logger) (map[string][]Item, error) {
	var doc document
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return make(map[string][]Item), fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	// Sorted so that keys differing only by case merge in a stable order.
	names := make([]string, 0, len(doc.Pending))
	for name := range doc.Pending {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string][]Item)
	for _, name := range names {
		node := doc.Pending[name]
		if node.Kind != yamlv3.SequenceNode {
			logger.Warn("skipping pending entry that is not a list", "recipient", name, "line", node.Line)
			continue
		}

		var items []Item
		for _, el := range node.Content {
			it, err := decodeItem(el, m)
			if err != nil {
				logger.Warn("error loading pending item", "recipient", name, "line", el.Line, "error", err)
				continue
			}
			items = append(items, it)
		}

		if len(items) > 0 {
			key := NormalizeRecipient(name)
			out[key] = append(out[key], items...)
		}
	}
	return out, nil
}

func decodeItem(node *yamlv3.Node, m MaterialMatcher) (Item, error) {
	var e entry
	if err := node.Decode(&e); err != nil {
		return Item{}, err
	}
	if e.Material == "" {
		return Item{}, fmt.Errorf("missing material")
	}
	if e.Amount == nil {
		return Item{}, fmt.Errorf("missing amount")
	}
	if *e.Amount < 1 {
		return Item{}, fmt.Errorf("invalid amount %d", *e.Amount)
	}
	material, ok := m.Match(e.Material)
	if !ok {
		return Item{}, fmt.Errorf("skipping invalid material %q", e.Material)
	}
	return Item{Material: material, Amount: *e.Amount, Note: e.Note}, nil
}
