package commands

import (
	"strings"
)

// Whitelist decides which console commands a delivery may run.
//
// Matching is prefix based on the command's base token: a prefix "give"
// permits "give", "giveall" and so on. A prefix containing whitespace never
// matches, since the base token has none. An empty whitelist allows everything.
type Whitelist struct {
	prefixes []string
}

// NewWhitelist builds a whitelist from configured prefixes. Prefixes are
// trimmed and lowercased; blank entries are dropped.
func NewWhitelist(prefixes []string) *Whitelist {
	w := &Whitelist{}
	for _, p := range prefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		w.prefixes = append(w.prefixes, p)
	}
	return w
}

// Allowed reports whether command may run.
func (w *Whitelist) Allowed(command string) bool {
	if w == nil || len(w.prefixes) == 0 {
		return true
	}

	cmd := Parse(command)
	if cmd == nil {
		return false
	}

	for _, prefix := range w.prefixes {
		if strings.HasPrefix(cmd.Name, prefix) {
			return true
		}
	}
	return false
}

// Len returns the number of configured prefixes.
func (w *Whitelist) Len() int {
	if w == nil {
		return 0
	}
	return len(w.prefixes)
}

// Prefixes returns a copy of the normalized prefixes.
func (w *Whitelist) Prefixes() []string {
	if w == nil {
		return nil
	}
	out := make([]string, len(w.prefixes))
	copy(out, w.prefixes)
	return out
}
