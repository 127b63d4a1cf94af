package domain

import "time"

// Event kinds the catalog cares about (NIP-99).
const (
	KindClassifiedListing      = 30402
	KindDraftClassifiedListing = 30403
)

// Validation constraints applied at the ingress boundary.
const (
	HexIDLen         = 64
	MaxKind          = 65535
	MaxTagsCount     = 500
	MaxTagValues     = 16
	MaxContentLen    = 64 * 1024
	DefaultClockSkew = 5 * time.Minute
)
