package auction

import (
	"fmt"
	"math/big"

	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
)

// Phase is the time-derived lifecycle position of an auction. Unlike the
// escrow listing's stored status, an auction's gate is computed from the
// ledger clock against its fixed window.
type Phase uint8

const (
	// PhasePending is before the bidding window opens.
	PhasePending Phase = iota
	// PhaseOpen is inside the bidding window.
	PhaseOpen
	// PhaseEnded is after the window closed, before the auction settles.
	PhaseEnded
)

// Auction captures one time-boxed auction instance: immutable configuration
// fixed at creation plus the bid ledger mutated by each accepted bid. A zero
// BidAccount means no bid has been placed yet.
type Auction struct {
	AppID           uint64
	Creator         crypto.Address
	Custody         crypto.Address
	Seller          crypto.Address
	AssetID         uint64
	Start           int64
	End             int64
	ReserveAmount   uint64
	MinBidIncrement uint64
	FeePercent      uint64

	BidAccount crypto.Address
	BidAmount  *big.Int
	NumBids    uint64
}

// Clone returns a deep copy of the auction so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	if a.BidAmount != nil {
		clone.BidAmount = new(big.Int).Set(a.BidAmount)
	} else {
		clone.BidAmount = big.NewInt(0)
	}
	return &clone
}

// PhaseAt returns the auction's phase at the given ledger time.
func (a *Auction) PhaseAt(now int64) Phase {
	switch {
	case now < a.Start:
		return PhasePending
	case now < a.End:
		return PhaseOpen
	default:
		return PhaseEnded
	}
}

// HasBid reports whether any bid has been accepted so far.
func (a *Auction) HasBid() bool {
	return !a.BidAccount.IsZero()
}

// LeadingBid returns the current leading bid amount, zero before the first
// accepted bid.
func (a *Auction) LeadingBid() *big.Int {
	if a == nil || a.BidAmount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.BidAmount)
}

// SanitizeAuction validates an auction definition before it is persisted.
func SanitizeAuction(a *Auction) (*Auction, error) {
	if a == nil {
		return nil, fmt.Errorf("auction: nil auction")
	}
	clone := a.Clone()
	if clone.Start >= clone.End {
		return nil, fmt.Errorf("auction: window start %d not before end %d", clone.Start, clone.End)
	}
	if clone.FeePercent > 100 {
		return nil, fmt.Errorf("auction: fee percent out of range: %d", clone.FeePercent)
	}
	if clone.BidAmount.Sign() < 0 {
		return nil, fmt.Errorf("auction: negative bid amount")
	}
	return clone, nil
}
