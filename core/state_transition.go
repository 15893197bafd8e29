package core

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/events"
	"github.com/dopepandaorg/dp-marketplace-contracts/core/state"
	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market/auction"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market/escrow"
	"github.com/dopepandaorg/dp-marketplace-contracts/observability"
	"github.com/dopepandaorg/dp-marketplace-contracts/storage"
)

var (
	// ErrGroupRejected wraps every reason a group is discarded. The caller
	// observes only the rejection; no state change or transfer survives.
	ErrGroupRejected = errors.New("core: transaction group rejected")
	// ErrUnknownApp marks a call against a program instance that does not
	// exist or was destroyed.
	ErrUnknownApp = errors.New("core: unknown application")
)

// GroupReceipt reports what an accepted group produced.
type GroupReceipt struct {
	// CreatedApps lists the instance identifiers assigned to application
	// creations inside the group, in group order.
	CreatedApps []uint64
}

// Processor applies atomic transaction groups to the ledger state. Each
// group executes against a write overlay; only a group in which every
// transaction validates is committed, so a rejection has no partial effect.
// Group members execute in their declared order with no interleaving.
type Processor struct {
	db      storage.Database
	params  market.Params
	emitter events.Emitter
	nowFn   func() int64
}

// NewProcessor builds a processor over the given database.
func NewProcessor(db storage.Database, params market.Params) *Processor {
	return &Processor{
		db:      db,
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures where events from accepted groups are delivered.
// Events from rejected groups are never emitted.
func (p *Processor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

// SetNowFunc overrides the ledger time source, primarily for tests.
func (p *Processor) SetNowFunc(now func() int64) {
	if now == nil {
		p.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	p.nowFn = now
}

// State returns a manager over the committed ledger state.
func (p *Processor) State() *state.Manager {
	return state.NewManager(p.db)
}

// ApplyGroup validates and applies one atomic group. On any rejection the
// overlay is discarded and the error wraps ErrGroupRejected; on success the
// overlay commits and buffered events flush to the configured emitter.
func (p *Processor) ApplyGroup(txns []*types.Transaction) (*GroupReceipt, error) {
	metrics := observability.MarketMetrics()
	receipt, err := p.applyGroup(txns)
	if err != nil {
		metrics.ObserveGroup(observability.OutcomeRejected)
		return nil, fmt.Errorf("%w: %w", ErrGroupRejected, err)
	}
	metrics.ObserveGroup(observability.OutcomeAccepted)
	return receipt, nil
}

func (p *Processor) applyGroup(txns []*types.Transaction) (*GroupReceipt, error) {
	if len(txns) == 0 {
		return nil, market.ErrEmptyGroup
	}
	if len(txns) > market.MaxGroupSize {
		return nil, market.ErrGroupTooLarge
	}

	overlay := storage.NewOverlay(p.db)
	mgr := state.NewManager(overlay)
	buffer := &events.Buffer{}
	now := p.nowFn()

	escrowEngine := escrow.NewEngine()
	escrowEngine.SetState(mgr)
	escrowEngine.SetParams(p.params)
	escrowEngine.SetEmitter(buffer)

	auctionEngine := auction.NewEngine()
	auctionEngine.SetState(mgr)
	auctionEngine.SetParams(p.params)
	auctionEngine.SetEmitter(buffer)
	auctionEngine.SetNowFunc(func() int64 { return now })

	receipt := &GroupReceipt{}
	for i, tx := range txns {
		var err error
		switch tx.Kind {
		case types.TxKindPayment:
			err = applyPayment(mgr, tx)
		case types.TxKindAssetTransfer:
			err = applyAssetTransfer(mgr, tx)
		case types.TxKindAppCall:
			err = p.applyAppCall(mgr, escrowEngine, auctionEngine, txns, i, receipt)
		default:
			err = fmt.Errorf("core: unknown transaction kind %d", tx.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	if err := overlay.Commit(); err != nil {
		return nil, err
	}
	buffer.FlushTo(p.emitter)
	return receipt, nil
}

// rejectCustodySender refuses externally submitted transactions whose sender
// is a live custody account. No signing key exists for a custody address;
// only the program engines may move its funds, and they do so directly
// through the vault rather than through group members.
func rejectCustodySender(mgr *state.Manager, sender crypto.Address) error {
	if _, ok, err := mgr.CustodyApp(sender); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("core: custody account %s cannot sign transactions", sender)
	}
	return nil
}

func applyPayment(mgr *state.Manager, tx *types.Transaction) error {
	if err := rejectCustodySender(mgr, tx.Sender); err != nil {
		return err
	}
	amount := tx.PaymentAmount()
	if amount.Sign() < 0 {
		return fmt.Errorf("core: negative payment amount")
	}
	sender, err := mgr.GetAccount(tx.Sender)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("core: insufficient balance for payment")
	}
	receiver, err := mgr.GetAccount(tx.Receiver)
	if err != nil {
		return err
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	receiver.Balance = new(big.Int).Add(receiver.Balance, amount)
	if err := mgr.PutAccount(tx.Sender, sender); err != nil {
		return err
	}
	return mgr.PutAccount(tx.Receiver, receiver)
}

func applyAssetTransfer(mgr *state.Manager, tx *types.Transaction) error {
	if err := rejectCustodySender(mgr, tx.Sender); err != nil {
		return err
	}
	sender, err := mgr.GetAccount(tx.Sender)
	if err != nil {
		return err
	}
	if tx.IsOptIn() {
		if sender.OptedIn(tx.AssetID) {
			return fmt.Errorf("core: %w", market.ErrAlreadyOptedIn)
		}
		sender.Holdings[tx.AssetID] = 0
		return mgr.PutAccount(tx.Sender, sender)
	}
	if !sender.OptedIn(tx.AssetID) {
		return fmt.Errorf("core: sender not opted into asset %d", tx.AssetID)
	}
	if sender.AssetBalance(tx.AssetID) < tx.AssetAmount {
		return fmt.Errorf("core: insufficient asset balance")
	}
	receiver, err := mgr.GetAccount(tx.AssetReceiver)
	if err != nil {
		return err
	}
	if !receiver.OptedIn(tx.AssetID) {
		return fmt.Errorf("core: %w", market.ErrReceiverNotOptedIn)
	}
	if tx.AssetReceiver == tx.Sender {
		return nil
	}
	sender.Holdings[tx.AssetID] -= tx.AssetAmount
	receiver.Holdings[tx.AssetID] += tx.AssetAmount
	if err := mgr.PutAccount(tx.Sender, sender); err != nil {
		return err
	}
	return mgr.PutAccount(tx.AssetReceiver, receiver)
}

func (p *Processor) applyAppCall(
	mgr *state.Manager,
	escrowEngine *escrow.Engine,
	auctionEngine *auction.Engine,
	txns []*types.Transaction,
	index int,
	receipt *GroupReceipt,
) error {
	tx := txns[index]
	metrics := observability.MarketMetrics()

	if tx.AppID == 0 {
		appLabel, err := p.applyAppCreate(mgr, escrowEngine, auctionEngine, tx, receipt)
		outcome := observability.OutcomeAccepted
		if err != nil {
			outcome = observability.OutcomeRejected
		}
		metrics.ObserveCall(appLabel, "create", outcome)
		return err
	}

	kind, ok, err := mgr.AppKind(tx.AppID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownApp, tx.AppID)
	}
	group, err := market.NewGroupView(txns, index)
	if err != nil {
		return err
	}

	appLabel, method := callLabels(kind, tx)
	switch kind {
	case types.AppKindEscrow:
		err = escrowEngine.Call(group)
	case types.AppKindAuction:
		err = auctionEngine.Call(group)
	default:
		err = fmt.Errorf("%w: kind %d", ErrUnknownApp, kind)
	}
	if err != nil {
		metrics.ObserveCall(appLabel, method, observability.OutcomeRejected)
		return err
	}
	if tx.OnCompletion == types.OnCompletionDelete {
		if err := mgr.RemoveApp(tx.AppID); err != nil {
			return err
		}
		if err := mgr.RemoveCustody(crypto.CustodyAddress(tx.AppID)); err != nil {
			return err
		}
	}
	metrics.ObserveCall(appLabel, method, observability.OutcomeAccepted)
	return nil
}

func (p *Processor) applyAppCreate(
	mgr *state.Manager,
	escrowEngine *escrow.Engine,
	auctionEngine *auction.Engine,
	tx *types.Transaction,
	receipt *GroupReceipt,
) (string, error) {
	appLabel := "unknown"
	if tx.OnCompletion != types.OnCompletionNoOp {
		return appLabel, fmt.Errorf("core: creation must use the no-op on-completion")
	}
	appID, err := mgr.NextAppID()
	if err != nil {
		return appLabel, err
	}
	custody := crypto.CustodyAddress(appID)
	switch tx.AppKind {
	case types.AppKindEscrow:
		appLabel = "escrow"
		if err := mgr.SetAppKind(appID, tx.AppKind); err != nil {
			return appLabel, err
		}
		if _, err := escrowEngine.Create(appID, custody, tx.Sender, tx.AppArgs); err != nil {
			return appLabel, err
		}
	case types.AppKindAuction:
		appLabel = "auction"
		if err := mgr.SetAppKind(appID, tx.AppKind); err != nil {
			return appLabel, err
		}
		if _, err := auctionEngine.Create(appID, custody, tx.Sender, tx.AppArgs); err != nil {
			return appLabel, err
		}
	default:
		return appLabel, fmt.Errorf("core: unknown app kind %d", tx.AppKind)
	}
	if err := mgr.SetCustody(custody, appID); err != nil {
		return appLabel, err
	}
	receipt.CreatedApps = append(receipt.CreatedApps, appID)
	return appLabel, nil
}

func callLabels(kind types.AppKind, tx *types.Transaction) (string, string) {
	appLabel := "unknown"
	switch kind {
	case types.AppKindEscrow:
		appLabel = "escrow"
	case types.AppKindAuction:
		appLabel = "auction"
	}
	method := "unknown"
	switch tx.OnCompletion {
	case types.OnCompletionNoOp:
		if m, err := market.MethodArg(tx.AppArgs); err == nil {
			method = m
		}
	case types.OnCompletionDelete:
		method = "close"
	case types.OnCompletionOptIn:
		method = "optin"
	case types.OnCompletionCloseOut:
		method = "closeout"
	case types.OnCompletionUpdate:
		method = "update"
	}
	return appLabel, method
}
