package auction

import (
	"strconv"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
)

const (
	EventTypeAuctionCreated = "auction.created"
	EventTypeAuctionFunded  = "auction.funded"
	EventTypeAuctionBid     = "auction.bid"
	EventTypeAuctionClosed  = "auction.closed"
)

// Close outcomes recorded on the auction.closed event.
const (
	OutcomeCancelled     = "cancelled"
	OutcomeNoBids        = "no_bids"
	OutcomeReserveNotMet = "reserve_not_met"
	OutcomeSettled       = "settled"
)

// NewCreatedEvent returns the canonical payload for a newly created auction.
func NewCreatedEvent(a *Auction) *types.Event { return newAuctionEvent(EventTypeAuctionCreated, a) }

// NewFundedEvent returns the payload emitted when the auction custody
// account is funded and stocked.
func NewFundedEvent(a *Auction) *types.Event { return newAuctionEvent(EventTypeAuctionFunded, a) }

// NewBidEvent returns the payload emitted for each accepted bid.
func NewBidEvent(a *Auction) *types.Event { return newAuctionEvent(EventTypeAuctionBid, a) }

// NewClosedEvent returns the payload emitted when the auction settles, fails
// or is cancelled.
func NewClosedEvent(a *Auction, outcome string) *types.Event {
	evt := newAuctionEvent(EventTypeAuctionClosed, a)
	evt.Attributes["outcome"] = outcome
	return evt
}

func newAuctionEvent(eventType string, a *Auction) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["appId"] = strconv.FormatUint(a.AppID, 10)
	attrs["seller"] = a.Seller.String()
	attrs["assetId"] = strconv.FormatUint(a.AssetID, 10)
	attrs["start"] = strconv.FormatInt(a.Start, 10)
	attrs["end"] = strconv.FormatInt(a.End, 10)
	attrs["reserve"] = strconv.FormatUint(a.ReserveAmount, 10)
	attrs["minBidIncrement"] = strconv.FormatUint(a.MinBidIncrement, 10)
	attrs["numBids"] = strconv.FormatUint(a.NumBids, 10)
	if a.HasBid() {
		attrs["bidAccount"] = a.BidAccount.String()
		attrs["bidAmount"] = a.LeadingBid().String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
