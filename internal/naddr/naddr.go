// Package naddr encodes and decodes addressable event coordinates
// (kind, author, identifier) as NIP-19 "naddr" bech32 tokens.
//
// The payload is a sequence of type-length-value records. Every value is
// length-prefixed, so identifiers may contain any character, separators
// included, and still round-trip exactly.
package naddr

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Prefix is the human-readable part of every token.
const Prefix = "naddr"

const (
	tlvIdentifier byte = 0
	tlvRelay      byte = 1
	tlvAuthor     byte = 2
	tlvKind       byte = 3

	authorLen = 32
	kindLen   = 4
	// MaxValueLen is the largest value a single TLV record can hold.
	MaxValueLen = math.MaxUint8
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("naddr: malformed token")

var (
	ErrPrefix        = fmt.Errorf("%w: wrong prefix", ErrMalformed)
	ErrTruncated     = fmt.Errorf("%w: truncated record", ErrMalformed)
	ErrBadLength     = fmt.Errorf("%w: bad field length", ErrMalformed)
	ErrMissingAuthor = fmt.Errorf("%w: missing author", ErrMalformed)
	ErrMissingKind   = fmt.Errorf("%w: missing kind", ErrMalformed)
)

// Encode-side errors.
var (
	ErrInvalidPubKey     = errors.New("naddr: pubkey must be 64 lowercase hex characters")
	ErrInvalidKind       = errors.New("naddr: kind out of range")
	ErrIdentifierTooLong = fmt.Errorf("naddr: identifier longer than %d bytes", MaxValueLen)
	ErrRelayTooLong      = fmt.Errorf("naddr: relay longer than %d bytes", MaxValueLen)
)

// Pointer is an addressable coordinate plus optional relay hints.
type Pointer struct {
	Kind       int      `json:"kind"`
	PubKey     string   `json:"pubkey"`
	Identifier string   `json:"identifier"`
	Relays     []string `json:"relays,omitempty"`
}

// Coordinate renders the "kind:pubkey:identifier" form used in "a" tags.
func (p Pointer) Coordinate() string {
	return fmt.Sprintf("%d:%s:%s", p.Kind, p.PubKey, p.Identifier)
}

// Encode returns the naddr token for p. Equal pointers always produce the
// same token.
func Encode(p Pointer) (string, error) {
	pub, err := hex.DecodeString(p.PubKey)
	if err != nil || len(pub) != authorLen || p.PubKey != strings.ToLower(p.PubKey) {
		return "", ErrInvalidPubKey
	}
	if p.Kind < 0 || int64(p.Kind) > math.MaxUint32 {
		return "", ErrInvalidKind
	}
	if len(p.Identifier) > MaxValueLen {
		return "", ErrIdentifierTooLong
	}

	var buf bytes.Buffer
	writeTLV(&buf, tlvIdentifier, []byte(p.Identifier))
	for _, r := range p.Relays {
		if len(r) > MaxValueLen {
			return "", ErrRelayTooLong
		}
		writeTLV(&buf, tlvRelay, []byte(r))
	}
	writeTLV(&buf, tlvAuthor, pub)
	kind := make([]byte, kindLen)
	binary.BigEndian.PutUint32(kind, uint32(p.Kind))
	writeTLV(&buf, tlvKind, kind)

	data, err := bech32.ConvertBits(buf.Bytes(), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("naddr: convert bits: %w", err)
	}
	tok, err := bech32.Encode(Prefix, data)
	if err != nil {
		return "", fmt.Errorf("naddr: bech32: %w", err)
	}
	return tok, nil
}

// Decode parses a token produced by Encode (or any NIP-19 encoder). Every
// failure wraps ErrMalformed; no partial Pointer is returned.
func Decode(token string) (Pointer, error) {
	token = strings.TrimPrefix(token, "nostr:")
	hrp, data, err := bech32.DecodeNoLimit(token)
	if err != nil {
		return Pointer{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if hrp != Prefix {
		return Pointer{}, fmt.Errorf("%w %q", ErrPrefix, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Pointer{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		p                  Pointer
		haveAuthor, haveKd bool
	)
	for len(raw) > 0 {
		if len(raw) < 2 {
			return Pointer{}, ErrTruncated
		}
		typ, n := raw[0], int(raw[1])
		if len(raw) < 2+n {
			return Pointer{}, ErrTruncated
		}
		v := raw[2 : 2+n]
		raw = raw[2+n:]

		switch typ {
		case tlvIdentifier:
			p.Identifier = string(v)
		case tlvRelay:
			p.Relays = append(p.Relays, string(v))
		case tlvAuthor:
			if n != authorLen {
				return Pointer{}, fmt.Errorf("%w: author is %d bytes", ErrBadLength, n)
			}
			p.PubKey = hex.EncodeToString(v)
			haveAuthor = true
		case tlvKind:
			if n != kindLen {
				return Pointer{}, fmt.Errorf("%w: kind is %d bytes", ErrBadLength, n)
			}
			p.Kind = int(binary.BigEndian.Uint32(v))
			haveKd = true
		default:
			// unknown record types are skipped
		}
	}
	if !haveAuthor {
		return Pointer{}, ErrMissingAuthor
	}
	if !haveKd {
		return Pointer{}, ErrMissingKind
	}
	return p, nil
}

func writeTLV(buf *bytes.Buffer, typ byte, v []byte) {
	buf.WriteByte(typ)
	buf.WriteByte(byte(len(v)))
	buf.Write(v)
}
