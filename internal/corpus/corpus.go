// Package corpus loads the static input files: the name→ticker table, fund
// metadata, fund compositions and the master stock pool.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dyike/IndexGo/pkg/consolidate"
)

const (
	MappingFile      = "ticker_mapping.json"
	MetadataFile     = "etf_metadata.json"
	CompositionsFile = "etf_compositions.json"
	StockPoolFile    = "stock_pool.json"
)

// FundMeta describes one fund.
type FundMeta struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	FallbackAUM float64 `json:"fallback_aum"`
	Theme       string  `json:"theme,omitempty"`
}

// Stock is an entry of the master stock pool. Sources is a comma separated
// list of the themes or funds the stock was found in.
type Stock struct {
	Ticker  string `json:"ticker"`
	Name    string `json:"name"`
	Sources string `json:"sources"`
}

// Corpus holds every input file. It is read-only once loaded.
type Corpus struct {
	Mapping      map[string]string
	Metadata     *orderedmap.OrderedMap[string, FundMeta]
	Compositions consolidate.Compositions
	StockPool    []Stock
}

// Load reads the corpus files from dir. A missing file loads as empty; a
// malformed one is an error.
func Load(dir string) (*Corpus, error) {
	c := New()

	if err := readJSON(filepath.Join(dir, MappingFile), &c.Mapping); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, MetadataFile), c.Metadata); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, CompositionsFile), &c.Compositions); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, StockPoolFile), &c.StockPool); err != nil {
		return nil, err
	}

	for fund, h := range c.Compositions {
		if h == nil {
			c.Compositions[fund] = orderedmap.New[string, float64]()
		}
	}
	return c, nil
}

// New returns an empty corpus.
func New() *Corpus {
	return &Corpus{
		Mapping:      make(map[string]string),
		Metadata:     orderedmap.New[string, FundMeta](),
		Compositions: make(consolidate.Compositions),
	}
}

// AddFund registers a fund after the existing ones.
func (c *Corpus) AddFund(fund string, meta FundMeta, holdings consolidate.Holdings) {
	c.Metadata.Set(fund, meta)
	if holdings != nil {
		c.Compositions[fund] = holdings
	}
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Funds lists the funds in metadata order.
func (c *Corpus) Funds() []string {
	funds := make([]string, 0, c.Metadata.Len())
	for pair := c.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		funds = append(funds, pair.Key)
	}
	return funds
}

// Meta returns the metadata of fund.
func (c *Corpus) Meta(fund string) (FundMeta, bool) {
	return c.Metadata.Get(fund)
}

// Holdings returns every distinct holding across all compositions, sorted.
func (c *Corpus) Holdings() []string {
	seen := make(map[string]bool)
	for _, h := range c.Compositions {
		for pair := h.Oldest(); pair != nil; pair = pair.Next() {
			seen[pair.Key] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SectorMap maps each pooled ticker to its primary sector, the first listed
// source.
func (c *Corpus) SectorMap() map[string]string {
	sectors := make(map[string]string, len(c.StockPool))
	for _, s := range c.StockPool {
		primary := strings.TrimSpace(strings.Split(s.Sources, ",")[0])
		if primary == "" {
			primary = "Unknown"
		}
		sectors[s.Ticker] = primary
	}
	return sectors
}

// Themes groups the funds by theme, keeping metadata order inside each
// group. Funds without a theme are grouped under "Other".
func (c *Corpus) Themes() *orderedmap.OrderedMap[string, []string] {
	themes := orderedmap.New[string, []string]()
	for pair := c.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		theme := strings.TrimSpace(pair.Value.Theme)
		if theme == "" {
			theme = "Other"
		}
		funds, _ := themes.Get(theme)
		themes.Set(theme, append(funds, pair.Key))
	}
	return themes
}
