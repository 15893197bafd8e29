package escrow

import (
	"strconv"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
)

const (
	EventTypeListingCreated = "escrow.created"
	EventTypeListingListed  = "escrow.listed"
	EventTypeListingSold    = "escrow.sold"
	EventTypeListingClosed  = "escrow.closed"
)

// NewCreatedEvent returns the canonical payload for a newly created listing.
func NewCreatedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListingCreated, l) }

// NewListedEvent returns the payload emitted when a listing is funded,
// stocked and opened for sale.
func NewListedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListingListed, l) }

// NewSoldEvent returns the payload emitted when a purchase settles.
func NewSoldEvent(l *Listing, buyer string, quantity uint64) *types.Event {
	evt := newListingEvent(EventTypeListingSold, l)
	evt.Attributes["buyer"] = buyer
	evt.Attributes["quantity"] = strconv.FormatUint(quantity, 10)
	return evt
}

// NewClosedEvent returns the payload emitted when a listing is torn down.
func NewClosedEvent(l *Listing) *types.Event { return newListingEvent(EventTypeListingClosed, l) }

func newListingEvent(eventType string, l *Listing) *types.Event {
	attrs := make(map[string]string)
	if l == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["appId"] = strconv.FormatUint(l.AppID, 10)
	attrs["creator"] = l.Creator.String()
	attrs["assetId"] = strconv.FormatUint(l.AssetID, 10)
	attrs["assetPrice"] = strconv.FormatUint(l.AssetPrice, 10)
	attrs["feeReceiver"] = l.FeeReceiver.String()
	attrs["feePercent"] = strconv.FormatUint(l.FeePercent, 10)
	attrs["status"] = strconv.FormatUint(uint64(l.Status), 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
