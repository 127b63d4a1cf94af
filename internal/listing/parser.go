package listing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/shopspring/decimal"
)

// Tag names with a meaning beyond a plain setter.
const (
	TagContentWarning = "content-warning"
	TagLabelNamespace = "L"
	TagLabel          = "l"
)

// MalformedTagError describes one tag-entry skipped during parsing.
type MalformedTagError struct {
	Index  int
	Name   string
	Reason string
}

func (e *MalformedTagError) Error() string {
	return fmt.Sprintf("tags[%d] %q: %s", e.Index, e.Name, e.Reason)
}

// setter applies the positional values of one tag (name stripped).
// A non-nil error reports the entry as malformed; setters leave the product
// untouched in that case unless they document otherwise.
type setter func(p *Product, values []string) error

type tagRule struct {
	minValues int
	set       setter
}

var rules = map[string]tagRule{
	"d":       {1, func(p *Product, v []string) error { p.D = v[0]; return nil }},
	"title":   {1, func(p *Product, v []string) error { p.Title = v[0]; return nil }},
	"summary": {1, func(p *Product, v []string) error { p.Summary = v[0]; return nil }},
	"published_at": {1, func(p *Product, v []string) error {
		return setTimestamp(&p.PublishedAt, v[0])
	}},
	"valid_until": {1, func(p *Product, v []string) error {
		return setTimestamp(&p.ExpiresAt, v[0])
	}},
	"image": {1, func(p *Product, v []string) error {
		p.Images = append(p.Images, v[0])
		return nil
	}},
	"t": {1, func(p *Product, v []string) error {
		p.Categories = append(p.Categories, v[0])
		return nil
	}},
	"location": {1, func(p *Product, v []string) error { p.Location = v[0]; return nil }},
	"price":    {1, setPrice},
	"shipping": {1, setShipping},
	"quantity": {1, func(p *Product, v []string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("quantity %q is not an integer", v[0])
		}
		p.Quantity = &n
		return nil
	}},
	"condition":    {1, func(p *Product, v []string) error { p.Condition = v[0]; return nil }},
	"status":       {1, func(p *Product, v []string) error { p.Status = v[0]; return nil }},
	"required":     {1, func(p *Product, v []string) error { p.Required = v[0]; return nil }},
	"restrictions": {1, func(p *Product, v []string) error { p.Restrictions = v[0]; return nil }},
	"size":         {1, setSize},

	TagContentWarning: {0, func(p *Product, v []string) error {
		reason := ""
		if len(v) > 0 {
			reason = v[0]
		}
		p.ContentWarning = &reason
		return nil
	}},
	// NIP-32 labelling: ["L", "content-warning"] or ["l", reason, "content-warning"].
	TagLabelNamespace: {1, func(p *Product, v []string) error {
		if v[0] == TagContentWarning && p.ContentWarning == nil {
			reason := ""
			p.ContentWarning = &reason
		}
		return nil
	}},
	TagLabel: {1, func(p *Product, v []string) error {
		if len(v) > 1 && v[1] == TagContentWarning {
			reason := v[0]
			p.ContentWarning = &reason
		}
		return nil
	}},
}

// Parse converts ev into a Product. It never fails; unusable tag-entries are
// skipped.
func Parse(ev *nostr.Event) Product {
	p, _ := ParseReport(ev)
	return p
}

// ParseReport is Parse plus the list of skipped tag-entries, each a
// *MalformedTagError.
func ParseReport(ev *nostr.Event) (Product, []error) {
	p := Product{
		ID:          ev.ID,
		PubKey:      ev.PubKey,
		Kind:        ev.Kind,
		CreatedAt:   ev.CreatedAt,
		Description: ev.Content,
		Images:      []string{},
	}

	var skipped []error
	for i, tag := range ev.Tags {
		if len(tag) == 0 {
			skipped = append(skipped, &MalformedTagError{Index: i, Reason: "empty tag"})
			continue
		}
		name, values := tag[0], tag[1:]
		rule, ok := rules[name]
		if !ok {
			continue
		}
		if len(values) < rule.minValues {
			skipped = append(skipped, &MalformedTagError{
				Index:  i,
				Name:   name,
				Reason: fmt.Sprintf("want at least %d values, got %d", rule.minValues, len(values)),
			})
			continue
		}
		if err := rule.set(&p, values); err != nil {
			skipped = append(skipped, &MalformedTagError{Index: i, Name: name, Reason: err.Error()})
		}
	}
	return p, skipped
}

func setTimestamp(dst *nostr.Timestamp, raw string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return fmt.Errorf("timestamp %q is not unix seconds", raw)
	}
	*dst = nostr.Timestamp(n)
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", raw)
	}
	return d, nil
}

// ["price", amount, currency?, frequency?]
// An unreadable amount leaves Price at zero but still applies the currency
// and frequency; the error is reported all the same.
func setPrice(p *Product, v []string) error {
	amount, err := parseAmount(v[0])
	p.Price = amount
	p.Currency, p.Frequency = "", ""
	if len(v) > 1 {
		p.Currency = v[1]
	}
	if len(v) > 2 {
		p.Frequency = v[2]
	}
	return err
}

// ["shipping", type, cost?, currency?]
func setShipping(p *Product, v []string) error {
	cost := decimal.Zero
	if len(v) > 1 && strings.TrimSpace(v[1]) != "" {
		c, err := parseAmount(v[1])
		if err != nil {
			return err
		}
		cost = c
	}
	p.ShippingType = v[0]
	p.ShippingCost = cost
	p.ShippingCurrency = ""
	if len(v) > 2 {
		p.ShippingCurrency = strings.TrimSpace(v[2])
	}
	return nil
}

// ["size", label, quantity?]
func setSize(p *Product, v []string) error {
	label := v[0]
	if len(v) > 1 {
		n, err := strconv.Atoi(strings.TrimSpace(v[1]))
		if err != nil {
			return fmt.Errorf("size quantity %q is not an integer", v[1])
		}
		if p.SizeQuantities == nil {
			p.SizeQuantities = make(map[string]int)
		}
		p.SizeQuantities[label] = n
	}
	p.Sizes = append(p.Sizes, label)
	return nil
}
