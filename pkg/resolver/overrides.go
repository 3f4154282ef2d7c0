package resolver

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Correction rescales a known-misreported valuation once it exceeds Above.
type Correction struct {
	Symbol string  `toml:"symbol"`
	Above  float64 `toml:"above"`
	Factor float64 `toml:"factor"`
	Note   string  `toml:"note"`
}

// Overrides holds the identifier-specific patches applied around the
// valuation chain.
type Overrides struct {
	// Alternates redirects a symbol to a better-covered listing of the same
	// entity when nothing else resolves it.
	Alternates  map[string]string `toml:"alternates"`
	Corrections []Correction      `toml:"corrections"`
}

// DefaultOverrides returns the patches known to be needed against Yahoo data.
func DefaultOverrides() *Overrides {
	return &Overrides{
		Alternates: map[string]string{
			"ABB": "ABBN.SW",
		},
		Corrections: []Correction{
			{Symbol: "TSM", Above: 1.5e12, Factor: 0.5, Note: "dual share class counted twice"},
		},
	}
}

// LoadOverrides reads a TOML override file and merges it over the defaults.
// Entries in the file win over built-in ones for the same symbol.
//
//	[alternates]
//	ABB = "ABBN.SW"
//
//	[[corrections]]
//	symbol = "TSM"
//	above = 1.5e12
//	factor = 0.5
func LoadOverrides(path string) (*Overrides, error) {
	o := DefaultOverrides()
	if strings.TrimSpace(path) == "" {
		return o, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}

	var file Overrides
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	o.Merge(&file)
	return o, nil
}

// Merge adds the entries of other, replacing same-symbol entries.
func (o *Overrides) Merge(other *Overrides) {
	if other == nil {
		return
	}
	if o.Alternates == nil {
		o.Alternates = make(map[string]string)
	}
	for k, v := range other.Alternates {
		o.Alternates[strings.ToUpper(k)] = v
	}
	for _, c := range other.Corrections {
		replaced := false
		for i := range o.Corrections {
			if strings.EqualFold(o.Corrections[i].Symbol, c.Symbol) {
				o.Corrections[i] = c
				replaced = true
			}
		}
		if !replaced {
			o.Corrections = append(o.Corrections, c)
		}
	}
}

// Alternate returns the alternate listing registered for symbol.
func (o *Overrides) Alternate(symbol string) (string, bool) {
	if o == nil {
		return "", false
	}
	alt, ok := o.Alternates[strings.ToUpper(symbol)]
	return alt, ok && alt != ""
}

// Correct applies any correction registered for symbol.
func (o *Overrides) Correct(symbol string, value float64) (float64, bool) {
	if o == nil {
		return value, false
	}
	for _, c := range o.Corrections {
		if !strings.EqualFold(c.Symbol, symbol) || c.Factor <= 0 {
			continue
		}
		if value > c.Above {
			return value * c.Factor, true
		}
	}
	return value, false
}
