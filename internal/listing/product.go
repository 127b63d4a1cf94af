// Package listing turns classified-listing events into typed products.
//
// Parsing never fails as a whole: a tag-entry that cannot be interpreted is
// skipped and everything else in the event is still read.
package listing

import (
	"github.com/nbd-wtf/go-nostr"
	"github.com/shopspring/decimal"
)

// Product is the typed view of a single listing event.
// Zero values mean "absent".
type Product struct {
	ID        string          `json:"id"`
	PubKey    string          `json:"pubkey"`
	Kind      int             `json:"kind"`
	CreatedAt nostr.Timestamp `json:"created_at"`

	D           string          `json:"d"`
	Title       string          `json:"title,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Description string          `json:"description,omitempty"`
	PublishedAt nostr.Timestamp `json:"published_at,omitempty"`
	ExpiresAt   nostr.Timestamp `json:"expires_at,omitempty"`
	Images      []string        `json:"images"`
	Categories  []string        `json:"categories,omitempty"`
	Location    string          `json:"location,omitempty"`

	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency,omitempty"`
	Frequency string          `json:"frequency,omitempty"`

	ShippingType     string          `json:"shipping_type,omitempty"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	ShippingCurrency string          `json:"shipping_currency,omitempty"`

	Quantity       *int64         `json:"quantity,omitempty"`
	Condition      string         `json:"condition,omitempty"`
	Status         string         `json:"status,omitempty"`
	Sizes          []string       `json:"sizes,omitempty"`
	SizeQuantities map[string]int `json:"size_quantities,omitempty"`
	Required       string         `json:"required,omitempty"`
	Restrictions   string         `json:"restrictions,omitempty"`

	// ContentWarning is nil when no warning was attached. An empty reason
	// still counts as a warning.
	ContentWarning *string `json:"content_warning,omitempty"`
}

// HasContentWarning reports whether any content-warning tag was present.
func (p *Product) HasContentWarning() bool { return p.ContentWarning != nil }
