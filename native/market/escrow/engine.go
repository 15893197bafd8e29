package escrow

import (
	"errors"
	"fmt"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/events"
	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market"
)

const (
	// MethodSetup funds the custody account and stocks the listing.
	MethodSetup = "on_setup"
	// MethodBuy purchases from the listing.
	MethodBuy = "on_buy"
)

// Group shape of a setup submission, relative to the setup call itself:
// the funding payment sits one slot before, the asset transfer one after.
const (
	setupGroupSize       = 3
	setupPaymentOffset   = -1
	setupAssetXferOffset = 1
	buyPaymentOffset     = -1
	createArgCount       = 3
	setupArgCount        = 2
	buyArgCount          = 2
)

var (
	errNilState        = errors.New("escrow engine: state not configured")
	ErrListingNotFound = errors.New("escrow engine: listing not found")
)

type engineState interface {
	market.Ledger
	ListingPut(*Listing) error
	ListingGet(appID uint64) (*Listing, bool)
	ListingDelete(appID uint64) error
}

type listingEvent struct {
	evt *types.Event
}

func (e listingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e listingEvent) Event() *types.Event { return e.evt }

// Engine validates escrow-sale transaction groups and, when a group
// satisfies every invariant, applies the listing transition and issues the
// custody transfers. A rejected group leaves no trace: all validation runs
// before the first effect.
type Engine struct {
	state   engineState
	params  market.Params
	emitter events.Emitter
}

// NewEngine creates an escrow engine with default protocol parameters and a
// no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		params:  market.DefaultParams(),
		emitter: events.NoopEmitter{},
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

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(listingEvent{evt: event})
}

func (e *Engine) loadListing(appID uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	listing, ok := e.state.ListingGet(appID)
	if !ok {
		return nil, ErrListingNotFound
	}
	return listing, nil
}

// Create initialises a new listing instance. The creation call carries
// exactly three arguments: asset id, fee receiver address and fee percent.
// The fee percent is bounds-checked here and never mutated afterwards.
func (e *Engine) Create(appID uint64, custody, creator crypto.Address, args [][]byte) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if len(args) != createArgCount {
		return nil, fmt.Errorf("%w: create takes %d arguments, got %d", market.ErrBadArguments, createArgCount, len(args))
	}
	assetID, err := market.Uint64Arg(args, 0)
	if err != nil {
		return nil, err
	}
	feeReceiver, err := market.AddressArg(args, 1)
	if err != nil {
		return nil, err
	}
	feePercent, err := market.Uint64Arg(args, 2)
	if err != nil {
		return nil, err
	}
	if !market.ValidFeePercent(feePercent) {
		return nil, fmt.Errorf("escrow: fee percent out of range: %d", feePercent)
	}
	listing := &Listing{
		AppID:       appID,
		Creator:     creator,
		Custody:     custody,
		AssetID:     assetID,
		FeeReceiver: feeReceiver,
		FeePercent:  feePercent,
		Status:      StatusNotInit,
	}
	if err := e.state.ListingPut(listing); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(listing))
	return listing.Clone(), nil
}

// Call routes an application call to the entry point selected by its
// on-completion and method argument. Opt-in, close-out and update calls are
// always rejected: the contract exposes no such capability.
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
		case MethodBuy:
			return e.Buy(g)
		default:
			return fmt.Errorf("escrow: unknown method %q", method)
		}
	case types.OnCompletionDelete:
		return e.Teardown(g)
	default:
		return fmt.Errorf("escrow: on-completion %d not supported", call.OnCompletion)
	}
}

// Setup validates the funding group and opens the listing for sale. The
// group must be exactly [funding payment, this call, asset transfer]: the
// payment of the custody minimum balance from the creator immediately
// before, the stock transfer from the creator immediately after. Accepting
// the group records the sale price, moves the listing to StatusInProgress
// and opts the custody account into the asset. Because a second opt-in is
// rejected by the ledger, setup can only ever be accepted once.
func (e *Engine) Setup(g *market.GroupView) error {
	call := g.Current()
	listing, err := e.loadListing(call.AppID)
	if err != nil {
		return err
	}
	if len(call.AppArgs) != setupArgCount {
		return fmt.Errorf("%w: setup takes %d arguments, got %d", market.ErrBadArguments, setupArgCount, len(call.AppArgs))
	}
	price, err := market.Uint64Arg(call.AppArgs, 1)
	if err != nil {
		return err
	}
	if g.Size() != setupGroupSize {
		return fmt.Errorf("escrow: setup group must have %d transactions, got %d", setupGroupSize, g.Size())
	}
	if listing.Status == StatusInProgress {
		return fmt.Errorf("escrow: listing already in progress")
	}
	pay, ok := g.At(setupPaymentOffset)
	if !ok || pay.Kind != types.TxKindPayment {
		return fmt.Errorf("escrow: setup requires a funding payment immediately before the call")
	}
	if pay.Sender != listing.Creator {
		return fmt.Errorf("escrow: funding payment must come from the creator")
	}
	if pay.Receiver != listing.Custody {
		return fmt.Errorf("escrow: funding payment must go to the custody account")
	}
	if pay.PaymentAmount().Cmp(e.params.EscrowMinimumBalance()) != 0 {
		return fmt.Errorf("escrow: funding payment must equal the custody minimum balance")
	}
	xfer, ok := g.At(setupAssetXferOffset)
	if !ok || xfer.Kind != types.TxKindAssetTransfer {
		return fmt.Errorf("escrow: setup requires an asset transfer immediately after the call")
	}
	if xfer.Sender != listing.Creator {
		return fmt.Errorf("escrow: stock transfer must come from the creator")
	}
	if xfer.AssetReceiver != listing.Custody {
		return fmt.Errorf("escrow: stock transfer must go to the custody account")
	}
	if xfer.AssetAmount < 1 {
		return fmt.Errorf("escrow: stock transfer must carry at least one unit")
	}
	if xfer.AssetID != listing.AssetID {
		return fmt.Errorf("escrow: stock transfer must carry the configured asset")
	}
	vault := market.NewVault(e.state, listing.Custody)
	optedIn, err := vault.OptedIn(listing.AssetID)
	if err != nil {
		return err
	}
	if optedIn {
		return fmt.Errorf("escrow: %w", market.ErrAlreadyOptedIn)
	}

	listing.AssetPrice = price
	listing.Status = StatusInProgress
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := vault.OptInAsset(listing.AssetID); err != nil {
		return err
	}
	e.emit(NewListedEvent(listing))
	return nil
}

// Buy validates a purchase and settles it: the asset units go to the buyer
// and the protocol fee goes to the fee receiver, both as program-authorized
// transfers. The purchase payment must sit immediately before this call,
// come from the buyer, go to the custody account, and equal price times
// quantity exactly.
func (e *Engine) Buy(g *market.GroupView) error {
	call := g.Current()
	listing, err := e.loadListing(call.AppID)
	if err != nil {
		return err
	}
	if len(call.AppArgs) != buyArgCount {
		return fmt.Errorf("%w: buy takes %d arguments, got %d", market.ErrBadArguments, buyArgCount, len(call.AppArgs))
	}
	quantity, err := market.Uint64Arg(call.AppArgs, 1)
	if err != nil {
		return err
	}
	if listing.Status != StatusInProgress {
		return fmt.Errorf("escrow: listing is not selling")
	}
	if !containsAsset(call.ForeignAssets, listing.AssetID) {
		return fmt.Errorf("escrow: call must reference the listed asset")
	}
	if !containsAccount(call.Accounts, listing.FeeReceiver) {
		return fmt.Errorf("escrow: call must reference the fee receiver")
	}
	vault := market.NewVault(e.state, listing.Custody)
	optedIn, err := vault.OptedIn(listing.AssetID)
	if err != nil {
		return err
	}
	if !optedIn {
		return fmt.Errorf("escrow: custody account holds no stock")
	}
	stock, err := vault.AssetBalance(listing.AssetID)
	if err != nil {
		return err
	}
	if stock < quantity {
		return fmt.Errorf("escrow: insufficient stock for quantity %d", quantity)
	}
	buyer, err := e.state.GetAccount(call.Sender)
	if err != nil {
		return err
	}
	if !buyer.OptedIn(listing.AssetID) {
		return fmt.Errorf("escrow: buyer not opted into the asset")
	}
	pay, ok := g.At(buyPaymentOffset)
	if !ok || pay.Kind != types.TxKindPayment {
		return fmt.Errorf("escrow: buy requires a payment immediately before the call")
	}
	if pay.Sender != call.Sender {
		return fmt.Errorf("escrow: purchase payment must come from the buyer")
	}
	if pay.Receiver != listing.Custody {
		return fmt.Errorf("escrow: purchase payment must go to the custody account")
	}
	gross := market.SalePrice(listing.AssetPrice, quantity)
	if pay.PaymentAmount().Cmp(gross) != 0 {
		return fmt.Errorf("escrow: purchase payment must equal price times quantity")
	}

	listing.Status = StatusActive
	if err := e.state.ListingPut(listing); err != nil {
		return err
	}
	if err := vault.SendAsset(listing.AssetID, call.Sender, quantity); err != nil {
		return err
	}
	fee := market.SaleFee(listing.FeePercent, gross)
	if err := vault.SendPayment(listing.FeeReceiver, fee); err != nil {
		return err
	}
	e.emit(NewSoldEvent(listing, call.Sender.String(), quantity))
	return nil
}

// Teardown destroys the listing instance. While the listing is in progress
// only the creator may tear it down; in any other state anyone may. The
// remaining stock closes out to the creator, then the entire remaining
// custody balance does.
func (e *Engine) Teardown(g *market.GroupView) error {
	call := g.Current()
	listing, err := e.loadListing(call.AppID)
	if err != nil {
		return err
	}
	if listing.Status == StatusInProgress && call.Sender != listing.Creator {
		return fmt.Errorf("escrow: only the creator may tear down an in-progress listing")
	}
	if !containsAccount(call.Accounts, listing.Creator) {
		return fmt.Errorf("escrow: call must reference the creator")
	}
	if !containsAsset(call.ForeignAssets, listing.AssetID) {
		return fmt.Errorf("escrow: call must reference the listed asset")
	}

	vault := market.NewVault(e.state, listing.Custody)
	if err := vault.CloseAsset(listing.AssetID, listing.Creator); err != nil {
		return err
	}
	if err := vault.CloseAccount(listing.Creator); err != nil {
		return err
	}
	if err := e.state.ListingDelete(listing.AppID); err != nil {
		return err
	}
	e.emit(NewClosedEvent(listing))
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
