package catalog

import "example.com/shopcatalog/internal/listing"

// Rejection names the first eligibility condition a product fails.
type Rejection string

const (
	Eligible       Rejection = ""
	NoImages       Rejection = "no_images"
	NoCurrency     Rejection = "no_currency"
	ContentWarning Rejection = "content_warning"
)

// Check evaluates the display rules in a fixed order and reports the first
// failure, or Eligible.
func Check(p *listing.Product) Rejection {
	switch {
	case len(p.Images) == 0:
		return NoImages
	case p.Currency == "":
		return NoCurrency
	case p.HasContentWarning():
		return ContentWarning
	}
	return Eligible
}

// IsEligible reports whether p may appear in the public catalog: it needs
// at least one image, a currency, and no content warning.
func IsEligible(p *listing.Product) bool { return Check(p) == Eligible }
