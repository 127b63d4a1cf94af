package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1_750_000_000, 0).UTC()

func valid() *nostr.Event {
	return &nostr.Event{
		PubKey:    strings.Repeat("ab", 32),
		CreatedAt: nostr.Timestamp(now.Add(-time.Minute).Unix()),
		Kind:      KindClassifiedListing,
		Tags:      nostr.Tags{{"d", "mug-001"}, {"content-warning"}},
	}
}

func fields(errs []FieldError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Field
	}
	return out
}

func TestValidateEventOK(t *testing.T) {
	assert.Empty(t, ValidateEvent(valid(), now, DefaultClockSkew))

	ev := valid()
	ev.ID = strings.Repeat("0f", 32)
	assert.Empty(t, ValidateEvent(ev, now, DefaultClockSkew))

	ev.CreatedAt = nostr.Timestamp(now.Add(DefaultClockSkew - time.Second).Unix())
	assert.Empty(t, ValidateEvent(ev, now, DefaultClockSkew))
}

func TestValidateEventFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*nostr.Event)
		field  string
	}{
		{"bad id", func(e *nostr.Event) { e.ID = "xyz" }, "id"},
		{"missing pubkey", func(e *nostr.Event) { e.PubKey = "" }, "pubkey"},
		{"short pubkey", func(e *nostr.Event) { e.PubKey = "abcd" }, "pubkey"},
		{"negative kind", func(e *nostr.Event) { e.Kind = -1 }, "kind"},
		{"huge kind", func(e *nostr.Event) { e.Kind = MaxKind + 1 }, "kind"},
		{"no timestamp", func(e *nostr.Event) { e.CreatedAt = 0 }, "created_at"},
		{"future", func(e *nostr.Event) { e.CreatedAt = nostr.Timestamp(now.Add(time.Hour).Unix()) }, "created_at"},
		{"long content", func(e *nostr.Event) { e.Content = strings.Repeat("a", MaxContentLen+1) }, "content"},
		{"empty tag", func(e *nostr.Event) { e.Tags = append(e.Tags, nostr.Tag{}) }, "tags[2]"},
		{"nameless tag", func(e *nostr.Event) { e.Tags = nostr.Tags{{"", "x"}} }, "tags[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid()
			tt.mutate(ev)
			assert.Equal(t, []string{tt.field}, fields(ValidateEvent(ev, now, DefaultClockSkew)))
		})
	}
}

func TestValidateEventShortTagsAllowed(t *testing.T) {
	ev := valid()
	ev.Tags = nostr.Tags{{"image"}, {"price"}}
	assert.Empty(t, ValidateEvent(ev, now, DefaultClockSkew), "arity is left to the parser")
}

func TestValidateBulk(t *testing.T) {
	_, err := ValidateBulk(nil, 10, now, DefaultClockSkew)
	assert.Error(t, err)

	_, err = ValidateBulk([]*nostr.Event{valid(), valid()}, 1, now, DefaultClockSkew)
	assert.Error(t, err)

	all, err := ValidateBulk([]*nostr.Event{valid(), valid()}, 10, now, DefaultClockSkew)
	assert.NoError(t, err)
	assert.Nil(t, all)

	bad := valid()
	bad.PubKey = ""
	all, err = ValidateBulk([]*nostr.Event{valid(), bad}, 10, now, DefaultClockSkew)
	require.Error(t, err)
	require.Len(t, all, 2)
	assert.Empty(t, all[0])
	assert.Equal(t, []string{"pubkey"}, fields(all[1]))
}
