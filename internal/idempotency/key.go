package idempotency

import (
	"github.com/nbd-wtf/go-nostr"
)

type KeySource string

const (
	KeyFromEventID KeySource = "event_id"
	KeyFromContent KeySource = "content"
)

// DeriveKey returns the id an event is stored and catalogued under.
//   - Prefer the id the event arrived with.
//   - Fall back to the NIP-01 id: sha256 over the canonical serialization
//     [0, pubkey, created_at, kind, tags, content], hex encoded.
func DeriveKey(ev *nostr.Event) (key string, src KeySource) {
	if ev.ID != "" {
		return ev.ID, KeyFromEventID
	}
	return ev.GetID(), KeyFromContent
}

// Matches reports whether the supplied id agrees with the event content.
// Events without an id trivially match.
func Matches(ev *nostr.Event) bool {
	return ev.ID == "" || ev.ID == ev.GetID()
}
