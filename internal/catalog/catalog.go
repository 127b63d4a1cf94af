// Package catalog filters parsed listings for display and assembles them
// into an ordered, id-keyed catalog.
package catalog

import (
	"errors"

	"example.com/shopcatalog/internal/listing"
	"example.com/shopcatalog/internal/naddr"
)

// DefaultFeatured is the size of the landing-page carousel.
const DefaultFeatured = 21

// ErrNegativeCount is returned by Featured for n < 0.
var ErrNegativeCount = errors.New("catalog: featured count must be non-negative")

// Catalog is the admitted set of one assembly pass, keyed by event id and
// kept in first-admission order. It is never modified after Ingest returns.
type Catalog struct {
	entries []listing.Product
	index   map[string]int
}

func newCatalog(capacity int) *Catalog {
	return &Catalog{
		entries: make([]listing.Product, 0, capacity),
		index:   make(map[string]int, capacity),
	}
}

// put stores p at its id's existing slot, or appends it.
func (c *Catalog) put(p listing.Product) {
	if i, ok := c.index[p.ID]; ok {
		c.entries[i] = p
		return
	}
	c.index[p.ID] = len(c.entries)
	c.entries = append(c.entries, p)
}

func (c *Catalog) Len() int { return len(c.entries) }

// Entries returns every admitted product in admission order.
func (c *Catalog) Entries() []listing.Product {
	out := make([]listing.Product, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Get(id string) (listing.Product, bool) {
	i, ok := c.index[id]
	if !ok {
		return listing.Product{}, false
	}
	return c.entries[i], true
}

// Featured returns the first n entries. Fewer are returned when the catalog
// is smaller than n.
func (c *Catalog) Featured(n int) ([]listing.Product, error) {
	if n < 0 {
		return nil, ErrNegativeCount
	}
	if n > len(c.entries) {
		n = len(c.entries)
	}
	out := make([]listing.Product, n)
	copy(out, c.entries[:n])
	return out, nil
}

// Lookup finds the entry published at an addressable coordinate. When the
// author republished under the same identifier, the newest created_at wins;
// ties go to the later catalog position.
func (c *Catalog) Lookup(p naddr.Pointer) (listing.Product, bool) {
	var (
		best  listing.Product
		found bool
	)
	for _, e := range c.entries {
		if e.Kind != p.Kind || e.PubKey != p.PubKey || e.D != p.Identifier {
			continue
		}
		if !found || e.CreatedAt >= best.CreatedAt {
			best, found = e, true
		}
	}
	return best, found
}

// Pointer builds the navigable reference for a catalog entry.
func Pointer(p *listing.Product) naddr.Pointer {
	return naddr.Pointer{Kind: p.Kind, PubKey: p.PubKey, Identifier: p.D}
}
