package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// ValidateEvent checks the structural shape of an incoming event.
// Signatures are not checked here; that happens upstream.
// An empty id is accepted (the caller derives one).
func ValidateEvent(ev *nostr.Event, now time.Time, skew time.Duration) []FieldError {
	var errs []FieldError

	if ev.ID != "" && !isHex(ev.ID, HexIDLen) {
		errs = append(errs, FieldError{"id", fmt.Sprintf("must be %d hex characters", HexIDLen)})
	}

	if ev.PubKey == "" {
		errs = append(errs, FieldError{"pubkey", "required"})
	} else if !isHex(ev.PubKey, HexIDLen) {
		errs = append(errs, FieldError{"pubkey", fmt.Sprintf("must be %d hex characters", HexIDLen)})
	}

	if ev.Kind < 0 || ev.Kind > MaxKind {
		errs = append(errs, FieldError{"kind", fmt.Sprintf("must be within 0..%d", MaxKind)})
	}

	if ev.CreatedAt == 0 {
		errs = append(errs, FieldError{"created_at", "required epoch seconds (UTC)"})
	} else {
		ts := ev.CreatedAt.Time().UTC()
		if ts.After(now.Add(skew)) {
			errs = append(errs, FieldError{"created_at", "must not be in the future (beyond allowed skew)"})
		}
	}

	if len(ev.Content) > MaxContentLen {
		errs = append(errs, FieldError{"content", fmt.Sprintf("max length %d", MaxContentLen)})
	}

	// Tag arity is the parser's concern; only reject shapes it cannot dispatch.
	if len(ev.Tags) > MaxTagsCount {
		errs = append(errs, FieldError{"tags", fmt.Sprintf("max %d items", MaxTagsCount)})
	} else {
		for i, t := range ev.Tags {
			if len(t) == 0 || t[0] == "" {
				errs = append(errs, FieldError{fmt.Sprintf("tags[%d]", i), "must start with a non-empty name"})
				continue
			}
			if len(t) > MaxTagValues+1 {
				errs = append(errs, FieldError{fmt.Sprintf("tags[%d]", i), fmt.Sprintf("max %d values", MaxTagValues)})
			}
		}
	}

	return errs
}

// ValidateBulk enforces the bulk count cap and per-item validation.
func ValidateBulk(events []*nostr.Event, maxItems int, now time.Time, skew time.Duration) (allErrs [][]FieldError, topErr error) {
	if len(events) == 0 {
		return nil, errors.New("events: required and must contain at least one item")
	}
	if len(events) > maxItems {
		return nil, fmt.Errorf("events: max %d items", maxItems)
	}
	allErrs = make([][]FieldError, len(events))
	var any bool
	for i := range events {
		fe := ValidateEvent(events[i], now, skew)
		if len(fe) > 0 {
			allErrs[i] = fe
			any = true
		}
	}
	if any {
		return allErrs, fmt.Errorf("one or more events failed validation")
	}
	return nil, nil
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
