package auction

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/events"
	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market"
)

const (
	// MethodSetup funds the custody account and stocks the auction.
	MethodSetup = "setup"
	// MethodBid places or raises a bid.
	MethodBid = "bid"
)

const (
	setupGroupSize       = 3
	setupPaymentOffset   = -1
	setupAssetXferOffset = 1
	bidPaymentOffset     = -1
	createArgCount       = 7
	setupArgCount        = 1
	bidArgCount          = 1
)

var (
	errNilState        = errors.New("auction engine: state not configured")
	ErrAuctionNotFound = errors.New("auction engine: auction not found")
)

type engineState interface {
	market.Ledger
	AuctionPut(*Auction) error
	AuctionGet(appID uint64) (*Auction, bool)
	AuctionDelete(appID uint64) error
}

type auctionEvent struct {
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

// Engine validates auction transaction groups against the bidding window
// and the bid ledger, then applies the transition and issues the custody
// transfers. All validation runs before the first effect, so a rejected
// group leaves no trace.
type Engine struct {
	state   engineState
	params  market.Params
	emitter events.Emitter
	nowFn   func() int64
}

// NewEngine creates an auction engine with default protocol parameters, a
// no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		params:  market.DefaultParams(),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetParams overrides the protocol parameters.
func (e *Engine) SetParams(params market.Params) { e.params = params }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the ledger time source. Primarily intended for tests
// to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(auctionEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadAuction(appID uint64) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	auction, ok := e.state.AuctionGet(appID)
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return auction, nil
}

// Create initialises a new auction instance. The creation call carries
// exactly seven arguments: seller address, asset id, window start, window
// end, reserve amount, minimum bid increment and fee percent. The window
// must still be ahead of the ledger clock and the fee percent is
// bounds-checked here, never again.
func (e *Engine) Create(appID uint64, custody, creator crypto.Address, args [][]byte) (*Auction, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if len(args) != createArgCount {
		return nil, fmt.Errorf("%w: create takes %d arguments, got %d", market.ErrBadArguments, createArgCount, len(args))
	}
	seller, err := market.AddressArg(args, 0)
	if err != nil {
		return nil, err
	}
	assetID, err := market.Uint64Arg(args, 1)
	if err != nil {
		return nil, err
	}
	start, err := market.Uint64Arg(args, 2)
	if err != nil {
		return nil, err
	}
	end, err := market.Uint64Arg(args, 3)
	if err != nil {
		return nil, err
	}
	reserve, err := market.Uint64Arg(args, 4)
	if err != nil {
		return nil, err
	}
	minIncrement, err := market.Uint64Arg(args, 5)
	if err != nil {
		return nil, err
	}
	feePercent, err := market.Uint64Arg(args, 6)
	if err != nil {
		return nil, err
	}
	if !market.ValidFeePercent(feePercent) {
		return nil, fmt.Errorf("auction: fee percent out of range: %d", feePercent)
	}
	if start >= end {
		return nil, fmt.Errorf("auction: window start must be before end")
	}
	if now := e.now(); now > int64(start) {
		return nil, fmt.Errorf("auction: window start %d already passed at %d", start, now)
	}
	auction := &Auction{
		AppID:           appID,
		Creator:         creator,
		Custody:         custody,
		Seller:          seller,
		AssetID:         assetID,
		Start:           int64(start),
		End:             int64(end),
		ReserveAmount:   reserve,
		MinBidIncrement: minIncrement,
		FeePercent:      feePercent,
		BidAmount:       big.NewInt(0),
	}
	if err := e.state.AuctionPut(auction); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(auction))
	return auction.Clone(), nil
}

// Call routes an application call to the entry point selected by its
// on-completion and method argument. Opt-in, close-out and update calls are
// always rejected.
func (e *Engine) Call(g *market.GroupView) error {
	call := g.Current()
	switch call.OnCompletion {
	case types.OnCompletionNoOp:
		method, err := market.MethodArg(call.AppArgs)
		if err != nil {
			return err
		}
		switch method {
		case MethodSetup:
			return e.Setup(g)
		case MethodBid:
			return e.Bid(g)
		default:
			return fmt.Errorf("auction: unknown method %q", method)
		}
	case types.OnCompletionDelete:
		return e.Close(g)
	default:
		return fmt.Errorf("auction: on-completion %d not supported", call.OnCompletion)
	}
}

// Setup validates the funding group and stocks the auction. The group must
// be exactly [funding payment, this call, asset transfer] and must arrive
// before the bidding window opens. Accepting the group opts the custody
// account into the asset; a second setup is impossible because the opt-in
// is rejected once holdings exist.
func (e *Engine) Setup(g *market.GroupView) error {
	call := g.Current()
	auction, err := e.loadAuction(call.AppID)
	if err != nil {
		return err
	}
	if len(call.AppArgs) != setupArgCount {
		return fmt.Errorf("%w: setup takes %d argument, got %d", market.ErrBadArguments, setupArgCount, len(call.AppArgs))
	}
	if g.Size() != setupGroupSize {
		return fmt.Errorf("auction: setup group must have %d transactions, got %d", setupGroupSize, g.Size())
	}
	if auction.PhaseAt(e.now()) != PhasePending {
		return fmt.Errorf("auction: setup must happen before the auction starts")
	}
	if !containsAsset(call.ForeignAssets, auction.AssetID) {
		return fmt.Errorf("auction: call must reference the auctioned asset")
	}
	pay, ok := g.At(setupPaymentOffset)
	if !ok || pay.Kind != types.TxKindPayment {
		return fmt.Errorf("auction: setup requires a funding payment immediately before the call")
	}
	if pay.Receiver != auction.Custody {
		return fmt.Errorf("auction: funding payment must go to the custody account")
	}
	if pay.PaymentAmount().Cmp(e.params.AuctionMinimumBalance()) != 0 {
		return fmt.Errorf("auction: funding payment must equal the custody minimum balance")
	}
	xfer, ok := g.At(setupAssetXferOffset)
	if !ok || xfer.Kind != types.TxKindAssetTransfer {
		return fmt.Errorf("auction: setup requires an asset transfer immediately after the call")
	}
	if xfer.AssetReceiver != auction.Custody {
		return fmt.Errorf("auction: asset transfer must go to the custody account")
	}
	if xfer.AssetAmount < 1 {
		return fmt.Errorf("auction: asset transfer must carry at least one unit")
	}
	if xfer.AssetID != auction.AssetID {
		return fmt.Errorf("auction: asset transfer must carry the auctioned asset")
	}
	vault := market.NewVault(e.state, auction.Custody)
	optedIn, err := vault.OptedIn(auction.AssetID)
	if err != nil {
		return err
	}
	if optedIn {
		return fmt.Errorf("auction: %w", market.ErrAlreadyOptedIn)
	}

	if err := vault.OptInAsset(auction.AssetID); err != nil {
		return err
	}
	e.emit(NewFundedEvent(auction))
	return nil
}

// Bid validates a bid and records it on the bid ledger. The bid payment
// must sit immediately before this call, come from the bidder and go to the
// custody account; its amount is the offered bid. The first bid is accepted
// unconditionally once the auction is open; every later bid must top the
// leading bid by at least the minimum increment and refunds the superseded
// bidder in full within the same group.
func (e *Engine) Bid(g *market.GroupView) error {
	call := g.Current()
	auction, err := e.loadAuction(call.AppID)
	if err != nil {
		return err
	}
	if len(call.AppArgs) != bidArgCount {
		return fmt.Errorf("%w: bid takes %d argument, got %d", market.ErrBadArguments, bidArgCount, len(call.AppArgs))
	}
	switch auction.PhaseAt(e.now()) {
	case PhasePending:
		return fmt.Errorf("auction: bidding has not opened yet")
	case PhaseEnded:
		return fmt.Errorf("auction: bidding has closed")
	}
	vault := market.NewVault(e.state, auction.Custody)
	optedIn, err := vault.OptedIn(auction.AssetID)
	if err != nil {
		return err
	}
	if !optedIn {
		return fmt.Errorf("auction: auction has not been set up")
	}
	pay, ok := g.At(bidPaymentOffset)
	if !ok || pay.Kind != types.TxKindPayment {
		return fmt.Errorf("auction: bid requires a payment immediately before the call")
	}
	if pay.Sender != call.Sender {
		return fmt.Errorf("auction: bid payment must come from the bidder")
	}
	if pay.Receiver != auction.Custody {
		return fmt.Errorf("auction: bid payment must go to the custody account")
	}
	amount := pay.PaymentAmount()
	if amount.Sign() <= 0 {
		return fmt.Errorf("auction: bid amount must be positive")
	}
	if auction.HasBid() {
		floor := new(big.Int).Add(auction.LeadingBid(), new(big.Int).SetUint64(auction.MinBidIncrement))
		if amount.Cmp(floor) < 0 {
			return fmt.Errorf("auction: bid below leading bid plus minimum increment")
		}
	}

	if auction.HasBid() {
		if err := vault.SendPayment(auction.BidAccount, auction.LeadingBid()); err != nil {
			return err
		}
	}
	auction.BidAccount = call.Sender
	auction.BidAmount = amount
	auction.NumBids++
	if err := e.state.AuctionPut(auction); err != nil {
		return err
	}
	e.emit(NewBidEvent(auction))
	return nil
}

// Close destroys the auction instance under one of its terminal conditions.
// Before the window opens, only the seller or the creator may cancel and
// the asset returns to the seller. After the window closes, anyone may
// settle: a leading bid at or above the reserve sends the asset to the
// winner, the proceeds minus the protocol fee to the seller and the fee to
// the creator; anything less returns the asset to the seller and refunds
// the leading bidder in full. While the window is open the auction cannot
// be closed. In every terminal case the remaining custody balance is closed
// out and the instance is destroyed.
func (e *Engine) Close(g *market.GroupView) error {
	call := g.Current()
	auction, err := e.loadAuction(call.AppID)
	if err != nil {
		return err
	}
	if !containsAccount(call.Accounts, auction.Seller) {
		return fmt.Errorf("auction: call must reference the seller")
	}
	if auction.HasBid() && !containsAccount(call.Accounts, auction.BidAccount) {
		return fmt.Errorf("auction: call must reference the leading bidder")
	}
	if !containsAsset(call.ForeignAssets, auction.AssetID) {
		return fmt.Errorf("auction: call must reference the auctioned asset")
	}

	vault := market.NewVault(e.state, auction.Custody)
	switch auction.PhaseAt(e.now()) {
	case PhasePending:
		if call.Sender != auction.Seller && call.Sender != auction.Creator {
			return fmt.Errorf("auction: only the seller or creator may cancel before the start")
		}
		if err := vault.CloseAsset(auction.AssetID, auction.Seller); err != nil {
			return err
		}
		return e.finalize(vault, auction, OutcomeCancelled)
	case PhaseOpen:
		return fmt.Errorf("auction: cannot close while bidding is open")
	}

	if !auction.HasBid() {
		if err := vault.CloseAsset(auction.AssetID, auction.Seller); err != nil {
			return err
		}
		return e.finalize(vault, auction, OutcomeNoBids)
	}

	leading := auction.LeadingBid()
	reserve := new(big.Int).SetUint64(auction.ReserveAmount)
	if leading.Cmp(reserve) < 0 {
		if err := vault.CloseAsset(auction.AssetID, auction.Seller); err != nil {
			return err
		}
		if err := vault.SendPayment(auction.BidAccount, leading); err != nil {
			return err
		}
		return e.finalize(vault, auction, OutcomeReserveNotMet)
	}

	winner, err := e.state.GetAccount(auction.BidAccount)
	if err != nil {
		return err
	}
	if !winner.OptedIn(auction.AssetID) {
		return fmt.Errorf("auction: winning bidder not opted into the asset")
	}
	if err := vault.CloseAsset(auction.AssetID, auction.BidAccount); err != nil {
		return err
	}
	fee := market.SaleFee(auction.FeePercent, leading)
	proceeds := new(big.Int).Sub(leading, fee)
	if err := vault.SendPayment(auction.Seller, proceeds); err != nil {
		return err
	}
	if err := vault.SendPayment(auction.Creator, fee); err != nil {
		return err
	}
	return e.finalize(vault, auction, OutcomeSettled)
}

// finalize closes out the custody balance to the creator, removes the
// auction record and emits the closing event.
func (e *Engine) finalize(vault *market.Vault, auction *Auction, outcome string) error {
	if err := vault.CloseAccount(auction.Creator); err != nil {
		return err
	}
	if err := e.state.AuctionDelete(auction.AppID); err != nil {
		return err
	}
	e.emit(NewClosedEvent(auction, outcome))
	return nil
}

func containsAsset(assets []uint64, assetID uint64) bool {
	for _, id := range assets {
		if id == assetID {
			return true
		}
	}
	return false
}

func containsAccount(accounts []crypto.Address, addr crypto.Address) bool {
	for _, a := range accounts {
		if a == addr {
			return true
		}
	}
	return false
}
