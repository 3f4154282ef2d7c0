// Package ticker maps free-form identifiers (company names, raw symbols) to the
// canonical symbols accepted by the market data providers.
package ticker

import (
	"regexp"
	"strings"
)

// shareClass matches a trailing share-class suffix such as ".B" in "BRK.B".
// Numeric bases are exchange listings (7203.T) and keep their dot.
var shareClass = regexp.MustCompile(`^([A-Z]+)\.([A-Z])$`)

// Normalizer resolves display identifiers to canonical symbols.
type Normalizer struct {
	names map[string]string
}

// Default has an empty name table and only applies the symbol rules.
var Default = NewNormalizer(nil)

// NewNormalizer creates a normalizer backed by a name→ticker table.
// The table is copied so later mutations by the caller have no effect.
func NewNormalizer(names map[string]string) *Normalizer {
	table := make(map[string]string, len(names))
	for k, v := range names {
		table[k] = v
	}
	return &Normalizer{names: table}
}

// Normalize returns the canonical symbol for token.
func (n *Normalizer) Normalize(token string) string {
	t := strings.TrimSpace(token)

	if mapped, ok := n.names[t]; ok {
		return mapped
	}

	upper := strings.ToUpper(t)
	if m := shareClass.FindStringSubmatch(upper); m != nil {
		// Providers reject the dotted form.
		return m[1] + "-" + m[2]
	}

	return upper
}

// NormalizeAny normalizes string values and passes anything else through.
func (n *Normalizer) NormalizeAny(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return n.Normalize(s)
}

// Len reports how many names the table holds.
func (n *Normalizer) Len() int {
	return len(n.names)
}

// Pair is a display identifier together with its canonical lookup symbol.
type Pair struct {
	Display   string
	Canonical string
}

// Pairs normalizes ids and returns the distinct (display, canonical) pairs in
// input order.
func (n *Normalizer) Pairs(ids []string) []Pair {
	seen := make(map[string]struct{}, len(ids))
	pairs := make([]Pair, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		pairs = append(pairs, Pair{Display: id, Canonical: n.Normalize(id)})
	}
	return pairs
}

// Group indexes pairs by canonical symbol so each symbol is looked up once.
// The returned symbol slice preserves first-seen order.
func Group(pairs []Pair) ([]string, map[string][]string) {
	displays := make(map[string][]string, len(pairs))
	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.Canonical == "" {
			continue
		}
		if _, ok := displays[p.Canonical]; !ok {
			symbols = append(symbols, p.Canonical)
		}
		displays[p.Canonical] = append(displays[p.Canonical], p.Display)
	}
	return symbols, displays
}
