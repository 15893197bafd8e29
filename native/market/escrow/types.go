package escrow

import (
	"fmt"

	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
)

// Status represents the lifecycle states of a fixed-price sale listing.
type Status uint8

const (
	// StatusNotInit is the state right after creation, before the listing
	// is funded and stocked.
	StatusNotInit Status = iota
	// StatusActive means the listing exists but is not currently selling.
	// A completed purchase returns the listing here.
	StatusActive
	// StatusInProgress means the listing is funded, holds the asset and
	// accepts purchases.
	StatusInProgress
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusNotInit, StatusActive, StatusInProgress:
		return true
	default:
		return false
	}
}

// Listing captures one fixed-price sale instance: its immutable
// configuration plus the lifecycle status gating its entry points. The
// asset, fee receiver and fee percent are fixed at creation; the price is
// set once, at setup.
type Listing struct {
	AppID       uint64
	Creator     crypto.Address
	Custody     crypto.Address
	AssetID     uint64
	AssetPrice  uint64
	FeeReceiver crypto.Address
	FeePercent  uint64
	Status      Status
}

// Clone returns a copy of the listing so callers can mutate the result
// without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// SanitizeListing validates a listing before it is persisted.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("escrow: nil listing")
	}
	if l.FeePercent > 100 {
		return nil, fmt.Errorf("escrow: fee percent out of range: %d", l.FeePercent)
	}
	if !l.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid listing status: %d", l.Status)
	}
	return l.Clone(), nil
}
