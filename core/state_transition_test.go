package core

import (
	"errors"
	"math/big"
	"testing"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/events"
	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market/auction"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market/escrow"
	"github.com/dopepandaorg/dp-marketplace-contracts/storage"
)

func testAddr(fill byte) crypto.Address {
	var addr crypto.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	creator     = testAddr(0x01)
	buyer       = testAddr(0x02)
	feeReceiver = testAddr(0x03)
	seller      = testAddr(0x04)
	bidder1     = testAddr(0x05)
	bidder2     = testAddr(0x06)
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	return NewProcessor(storage.NewMemDB(), market.DefaultParams())
}

func seedAccount(t *testing.T, p *Processor, addr crypto.Address, balance int64, holdings map[uint64]uint64) {
	t.Helper()
	acct := types.NewAccount()
	acct.Balance = big.NewInt(balance)
	for id, amount := range holdings {
		acct.Holdings[id] = amount
	}
	if err := p.State().PutAccount(addr, acct); err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func accountOf(t *testing.T, p *Processor, addr crypto.Address) *types.Account {
	t.Helper()
	acct, err := p.State().GetAccount(addr)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	return acct
}

func mustApply(t *testing.T, p *Processor, txns []*types.Transaction) *GroupReceipt {
	t.Helper()
	receipt, err := p.ApplyGroup(txns)
	if err != nil {
		t.Fatalf("apply group: %v", err)
	}
	return receipt
}

// recorder captures event types delivered by accepted groups.
type recorder struct {
	seen []string
}

func (r *recorder) Emit(evt events.Event) {
	r.seen = append(r.seen, evt.EventType())
}

func TestApplyPayment(t *testing.T) {
	p := newTestProcessor(t)
	seedAccount(t, p, creator, 1_000, nil)

	mustApply(t, p, []*types.Transaction{{
		Kind:     types.TxKindPayment,
		Sender:   creator,
		Receiver: buyer,
		Amount:   big.NewInt(400),
	}})

	if got := accountOf(t, p, creator).Balance; got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("sender balance = %s, want 600", got)
	}
	if got := accountOf(t, p, buyer).Balance; got.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("receiver balance = %s, want 400", got)
	}
}

func TestApplyPaymentRejectsOverdraw(t *testing.T) {
	p := newTestProcessor(t)
	seedAccount(t, p, creator, 1_000, nil)

	_, err := p.ApplyGroup([]*types.Transaction{{
		Kind:     types.TxKindPayment,
		Sender:   creator,
		Receiver: buyer,
		Amount:   big.NewInt(1_001),
	}})
	if !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("overdraw: got %v, want ErrGroupRejected", err)
	}
	if got := accountOf(t, p, creator).Balance; got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("sender balance changed on rejected group: %s", got)
	}
}

func TestAssetOptInOnlyOnce(t *testing.T) {
	p := newTestProcessor(t)
	optIn := func() (*GroupReceipt, error) {
		return p.ApplyGroup([]*types.Transaction{{
			Kind:          types.TxKindAssetTransfer,
			Sender:        buyer,
			AssetReceiver: buyer,
			AssetID:       7,
			AssetAmount:   0,
		}})
	}
	if _, err := optIn(); err != nil {
		t.Fatalf("first opt-in: %v", err)
	}
	if !accountOf(t, p, buyer).OptedIn(7) {
		t.Fatal("opt-in not recorded")
	}
	if _, err := optIn(); !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("second opt-in: got %v, want ErrGroupRejected", err)
	}
}

func TestAssetTransferRequiresOptIns(t *testing.T) {
	p := newTestProcessor(t)
	seedAccount(t, p, creator, 0, map[uint64]uint64{7: 5})

	xfer := &types.Transaction{
		Kind:          types.TxKindAssetTransfer,
		Sender:        creator,
		AssetReceiver: buyer,
		AssetID:       7,
		AssetAmount:   2,
	}
	if _, err := p.ApplyGroup([]*types.Transaction{xfer}); !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("transfer to non-holder: got %v, want ErrGroupRejected", err)
	}

	seedAccount(t, p, buyer, 0, map[uint64]uint64{7: 0})
	mustApply(t, p, []*types.Transaction{xfer})
	if got := accountOf(t, p, buyer).AssetBalance(7); got != 2 {
		t.Fatalf("receiver holds %d, want 2", got)
	}
	if got := accountOf(t, p, creator).AssetBalance(7); got != 3 {
		t.Fatalf("sender holds %d, want 3", got)
	}
}

func TestEmptyGroupRejected(t *testing.T) {
	p := newTestProcessor(t)
	if _, err := p.ApplyGroup(nil); !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("empty group: got %v, want ErrGroupRejected", err)
	}
}

const (
	escrowAsset = uint64(7)
	escrowPrice = int64(1_000_000)
)

func createEscrow(t *testing.T, p *Processor) uint64 {
	t.Helper()
	receipt := mustApply(t, p, []*types.Transaction{{
		Kind:    types.TxKindAppCall,
		Sender:  creator,
		AppKind: types.AppKindEscrow,
		AppArgs: [][]byte{
			market.Uint64Bytes(escrowAsset),
			feeReceiver.Bytes(),
			market.Uint64Bytes(5),
		},
	}})
	if len(receipt.CreatedApps) != 1 {
		t.Fatalf("create receipt lists %d apps, want 1", len(receipt.CreatedApps))
	}
	return receipt.CreatedApps[0]
}

func setupEscrow(t *testing.T, p *Processor, appID uint64) {
	t.Helper()
	custody := crypto.CustodyAddress(appID)
	funding := market.DefaultParams().EscrowMinimumBalance()
	mustApply(t, p, []*types.Transaction{
		{Kind: types.TxKindPayment, Sender: creator, Receiver: custody, Amount: funding},
		{
			Kind:    types.TxKindAppCall,
			Sender:  creator,
			AppID:   appID,
			AppArgs: [][]byte{[]byte(escrow.MethodSetup), market.Uint64Bytes(uint64(escrowPrice))},
		},
		{
			Kind:          types.TxKindAssetTransfer,
			Sender:        creator,
			AssetReceiver: custody,
			AssetID:       escrowAsset,
			AssetAmount:   3,
		},
	})
}

func TestEscrowLifecycle(t *testing.T) {
	p := newTestProcessor(t)
	rec := &recorder{}
	p.SetEmitter(rec)
	seedAccount(t, p, creator, 10_000_000, map[uint64]uint64{escrowAsset: 5})
	seedAccount(t, p, buyer, 5_000_000, nil)

	appID := createEscrow(t, p)
	custody := crypto.CustodyAddress(appID)
	setupEscrow(t, p, appID)

	custodyAcct := accountOf(t, p, custody)
	if custodyAcct.Balance.Cmp(market.DefaultParams().EscrowMinimumBalance()) != 0 {
		t.Fatalf("custody balance after setup = %s", custodyAcct.Balance)
	}
	if custodyAcct.AssetBalance(escrowAsset) != 3 {
		t.Fatalf("custody stock after setup = %d, want 3", custodyAcct.AssetBalance(escrowAsset))
	}

	// Purchase and teardown in one group: the buyer opts in, pays, buys one
	// unit, and the now idle listing is deleted, sweeping the remainder back
	// to the creator.
	mustApply(t, p, []*types.Transaction{
		{Kind: types.TxKindAssetTransfer, Sender: buyer, AssetReceiver: buyer, AssetID: escrowAsset, AssetAmount: 0},
		{Kind: types.TxKindPayment, Sender: buyer, Receiver: custody, Amount: big.NewInt(escrowPrice)},
		{
			Kind:          types.TxKindAppCall,
			Sender:        buyer,
			AppID:         appID,
			AppArgs:       [][]byte{[]byte(escrow.MethodBuy), market.Uint64Bytes(1)},
			Accounts:      []crypto.Address{buyer, feeReceiver},
			ForeignAssets: []uint64{escrowAsset},
		},
		{
			Kind:          types.TxKindAppCall,
			Sender:        buyer,
			AppID:         appID,
			OnCompletion:  types.OnCompletionDelete,
			Accounts:      []crypto.Address{creator},
			ForeignAssets: []uint64{escrowAsset},
		},
	})

	if got := accountOf(t, p, buyer).AssetBalance(escrowAsset); got != 1 {
		t.Fatalf("buyer holds %d units, want 1", got)
	}
	if got := accountOf(t, p, buyer).Balance; got.Cmp(big.NewInt(4_000_000)) != 0 {
		t.Fatalf("buyer balance = %s, want 4000000", got)
	}
	// 5% of the 1,000,000 purchase.
	if got := accountOf(t, p, feeReceiver).Balance; got.Cmp(big.NewInt(50_000)) != 0 {
		t.Fatalf("fee receiver balance = %s, want 50000", got)
	}
	// The creator recovers the funding plus the sale proceeds net of the fee
	// and the two unsold units.
	creatorAcct := accountOf(t, p, creator)
	if creatorAcct.Balance.Cmp(big.NewInt(10_950_000)) != 0 {
		t.Fatalf("creator balance = %s, want 10950000", creatorAcct.Balance)
	}
	if creatorAcct.AssetBalance(escrowAsset) != 4 {
		t.Fatalf("creator holds %d units, want 4", creatorAcct.AssetBalance(escrowAsset))
	}
	if !accountOf(t, p, custody).IsEmpty() {
		t.Fatal("custody account survives teardown")
	}
	if _, ok := p.State().ListingGet(appID); ok {
		t.Fatal("listing survives teardown")
	}

	// The destroyed instance no longer accepts calls.
	_, err := p.ApplyGroup([]*types.Transaction{{
		Kind:    types.TxKindAppCall,
		Sender:  buyer,
		AppID:   appID,
		AppArgs: [][]byte{[]byte(escrow.MethodBuy), market.Uint64Bytes(1)},
	}})
	if !errors.Is(err, ErrUnknownApp) {
		t.Fatalf("call to destroyed app: got %v, want ErrUnknownApp", err)
	}

	want := []string{"escrow.created", "escrow.listed", "escrow.sold", "escrow.closed"}
	if len(rec.seen) != len(want) {
		t.Fatalf("emitted %v, want %v", rec.seen, want)
	}
	for i, typ := range want {
		if rec.seen[i] != typ {
			t.Fatalf("event %d = %q, want %q", i, rec.seen[i], typ)
		}
	}
}

func TestEscrowRejectionLeavesNoTrace(t *testing.T) {
	p := newTestProcessor(t)
	seedAccount(t, p, creator, 10_000_000, map[uint64]uint64{escrowAsset: 5})
	seedAccount(t, p, buyer, 5_000_000, map[uint64]uint64{escrowAsset: 0})

	appID := createEscrow(t, p)
	custody := crypto.CustodyAddress(appID)
	setupEscrow(t, p, appID)

	// Underpays by one: the whole group is rejected, including the payment
	// leg that already executed inside the overlay.
	_, err := p.ApplyGroup([]*types.Transaction{
		{Kind: types.TxKindPayment, Sender: buyer, Receiver: custody, Amount: big.NewInt(escrowPrice - 1)},
		{
			Kind:          types.TxKindAppCall,
			Sender:        buyer,
			AppID:         appID,
			AppArgs:       [][]byte{[]byte(escrow.MethodBuy), market.Uint64Bytes(1)},
			Accounts:      []crypto.Address{buyer, feeReceiver},
			ForeignAssets: []uint64{escrowAsset},
		},
	})
	if !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("underpayment: got %v, want ErrGroupRejected", err)
	}
	if got := accountOf(t, p, buyer).Balance; got.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("buyer balance after rejected group = %s, want 5000000", got)
	}
	if got := accountOf(t, p, custody).Balance; got.Cmp(market.DefaultParams().EscrowMinimumBalance()) != 0 {
		t.Fatalf("custody balance after rejected group = %s", got)
	}
}

func TestCustodyAccountCannotSign(t *testing.T) {
	p := newTestProcessor(t)
	seedAccount(t, p, creator, 10_000_000, map[uint64]uint64{escrowAsset: 5})
	seedAccount(t, p, buyer, 5_000_000, map[uint64]uint64{escrowAsset: 0})

	appID := createEscrow(t, p)
	custody := crypto.CustodyAddress(appID)
	setupEscrow(t, p, appID)

	funding := market.DefaultParams().EscrowMinimumBalance()

	// No key exists for a custody address, so externally submitted transfers
	// out of it are rejected outright.
	_, err := p.ApplyGroup([]*types.Transaction{{
		Kind:     types.TxKindPayment,
		Sender:   custody,
		Receiver: buyer,
		Amount:   funding,
	}})
	if !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("forged custody payment: got %v, want ErrGroupRejected", err)
	}
	if got := accountOf(t, p, custody).Balance; got.Cmp(funding) != 0 {
		t.Fatalf("custody balance drained to %s, want %s", got, funding)
	}
	if got := accountOf(t, p, buyer).Balance; got.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("buyer balance = %s, want 5000000", got)
	}

	_, err = p.ApplyGroup([]*types.Transaction{{
		Kind:          types.TxKindAssetTransfer,
		Sender:        custody,
		AssetReceiver: buyer,
		AssetID:       escrowAsset,
		AssetAmount:   3,
	}})
	if !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("forged custody asset transfer: got %v, want ErrGroupRejected", err)
	}
	if got := accountOf(t, p, custody).AssetBalance(escrowAsset); got != 3 {
		t.Fatalf("custody stock drained to %d, want 3", got)
	}

	// Teardown releases the registration along with the instance, so the
	// address behaves like any other afterwards.
	mustApply(t, p, []*types.Transaction{{
		Kind:          types.TxKindAppCall,
		Sender:        creator,
		AppID:         appID,
		OnCompletion:  types.OnCompletionDelete,
		Accounts:      []crypto.Address{creator},
		ForeignAssets: []uint64{escrowAsset},
	}})
	if _, ok, err := p.State().CustodyApp(custody); err != nil || ok {
		t.Fatalf("custody registration after teardown: ok=%v err=%v", ok, err)
	}
	mustApply(t, p, []*types.Transaction{{
		Kind:     types.TxKindPayment,
		Sender:   creator,
		Receiver: custody,
		Amount:   big.NewInt(1),
	}})
	mustApply(t, p, []*types.Transaction{{
		Kind:     types.TxKindPayment,
		Sender:   custody,
		Receiver: creator,
		Amount:   big.NewInt(1),
	}})
}

const (
	auctionAsset   = uint64(42)
	auctionStart   = int64(10_000)
	auctionEnd     = int64(20_000)
	auctionReserve = uint64(1_000_000)
	auctionIncr    = uint64(100_000)
)

func createAuction(t *testing.T, p *Processor) uint64 {
	t.Helper()
	receipt := mustApply(t, p, []*types.Transaction{{
		Kind:    types.TxKindAppCall,
		Sender:  creator,
		AppKind: types.AppKindAuction,
		AppArgs: [][]byte{
			seller.Bytes(),
			market.Uint64Bytes(auctionAsset),
			market.Uint64Bytes(uint64(auctionStart)),
			market.Uint64Bytes(uint64(auctionEnd)),
			market.Uint64Bytes(auctionReserve),
			market.Uint64Bytes(auctionIncr),
			market.Uint64Bytes(1),
		},
	}})
	return receipt.CreatedApps[0]
}

func setupAuction(t *testing.T, p *Processor, appID uint64) {
	t.Helper()
	custody := crypto.CustodyAddress(appID)
	mustApply(t, p, []*types.Transaction{
		{Kind: types.TxKindPayment, Sender: seller, Receiver: custody, Amount: market.DefaultParams().AuctionMinimumBalance()},
		{
			Kind:          types.TxKindAppCall,
			Sender:        seller,
			AppID:         appID,
			AppArgs:       [][]byte{[]byte(auction.MethodSetup)},
			ForeignAssets: []uint64{auctionAsset},
		},
		{
			Kind:          types.TxKindAssetTransfer,
			Sender:        seller,
			AssetReceiver: custody,
			AssetID:       auctionAsset,
			AssetAmount:   1,
		},
	})
}

func bidTxns(appID uint64, bidder crypto.Address, amount int64) []*types.Transaction {
	custody := crypto.CustodyAddress(appID)
	return []*types.Transaction{
		{Kind: types.TxKindPayment, Sender: bidder, Receiver: custody, Amount: big.NewInt(amount)},
		{
			Kind:    types.TxKindAppCall,
			Sender:  bidder,
			AppID:   appID,
			AppArgs: [][]byte{[]byte(auction.MethodBid)},
		},
	}
}

func closeTxns(appID uint64, sender crypto.Address, accounts []crypto.Address) []*types.Transaction {
	return []*types.Transaction{{
		Kind:          types.TxKindAppCall,
		Sender:        sender,
		AppID:         appID,
		OnCompletion:  types.OnCompletionDelete,
		Accounts:      accounts,
		ForeignAssets: []uint64{auctionAsset},
	}}
}

func TestAuctionReserveNotMet(t *testing.T) {
	p := newTestProcessor(t)
	now := auctionStart - 1_000
	p.SetNowFunc(func() int64 { return now })
	seedAccount(t, p, creator, 1_000_000, nil)
	seedAccount(t, p, seller, 1_000_000, map[uint64]uint64{auctionAsset: 1})
	seedAccount(t, p, bidder1, 2_000_000, nil)
	seedAccount(t, p, bidder2, 2_000_000, nil)

	appID := createAuction(t, p)
	custody := crypto.CustodyAddress(appID)
	setupAuction(t, p, appID)

	now = auctionStart
	mustApply(t, p, bidTxns(appID, bidder1, 500_000))

	// Below the leading bid plus the minimum increment: the whole group is
	// rejected and the bid payment is reverted with it.
	if _, err := p.ApplyGroup(bidTxns(appID, bidder2, 599_999)); !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("low bid: got %v, want ErrGroupRejected", err)
	}
	if got := accountOf(t, p, bidder2).Balance; got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("bidder2 balance after rejected bid = %s, want 2000000", got)
	}

	mustApply(t, p, bidTxns(appID, bidder2, 700_000))
	if got := accountOf(t, p, bidder1).Balance; got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("superseded bidder not refunded: %s", got)
	}
	if got := accountOf(t, p, bidder2).Balance; got.Cmp(big.NewInt(1_300_000)) != 0 {
		t.Fatalf("bidder2 balance = %s, want 1300000", got)
	}

	// Cannot close while bidding is open.
	if _, err := p.ApplyGroup(closeTxns(appID, seller, []crypto.Address{seller, bidder2})); !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("close while open: got %v, want ErrGroupRejected", err)
	}

	now = auctionEnd
	mustApply(t, p, closeTxns(appID, bidder1, []crypto.Address{seller, bidder2}))

	// 700,000 never met the 1,000,000 reserve: the bidder is refunded, the
	// asset returns to the seller and the creator recovers the funding.
	if got := accountOf(t, p, bidder2).Balance; got.Cmp(big.NewInt(2_000_000)) != 0 {
		t.Fatalf("losing bidder refund: balance = %s, want 2000000", got)
	}
	sellerAcct := accountOf(t, p, seller)
	if sellerAcct.AssetBalance(auctionAsset) != 1 {
		t.Fatal("asset did not return to the seller")
	}
	wantCreator := new(big.Int).Add(big.NewInt(1_000_000), market.DefaultParams().AuctionMinimumBalance())
	if got := accountOf(t, p, creator).Balance; got.Cmp(wantCreator) != 0 {
		t.Fatalf("creator balance = %s, want %s", got, wantCreator)
	}
	if !accountOf(t, p, custody).IsEmpty() {
		t.Fatal("custody account survives settlement")
	}
	if _, ok := p.State().AuctionGet(appID); ok {
		t.Fatal("auction survives settlement")
	}
}

func TestAuctionSettles(t *testing.T) {
	p := newTestProcessor(t)
	now := auctionStart - 1_000
	p.SetNowFunc(func() int64 { return now })
	seedAccount(t, p, creator, 0, nil)
	seedAccount(t, p, seller, 1_000_000, map[uint64]uint64{auctionAsset: 1})
	seedAccount(t, p, bidder1, 2_000_000, map[uint64]uint64{auctionAsset: 0})

	appID := createAuction(t, p)
	setupAuction(t, p, appID)

	now = auctionStart
	mustApply(t, p, bidTxns(appID, bidder1, int64(auctionReserve)))

	now = auctionEnd
	mustApply(t, p, closeTxns(appID, bidder1, []crypto.Address{seller, bidder1}))

	winner := accountOf(t, p, bidder1)
	if winner.AssetBalance(auctionAsset) != 1 {
		t.Fatal("winner did not receive the asset")
	}
	// 1% fee on the winning bid, the rest to the seller. The seller paid the
	// funding out of their starting balance.
	fee := market.SaleFee(1, big.NewInt(int64(auctionReserve)))
	wantSeller := new(big.Int).Sub(big.NewInt(1_000_000+int64(auctionReserve)), market.DefaultParams().AuctionMinimumBalance())
	wantSeller.Sub(wantSeller, fee)
	if got := accountOf(t, p, seller).Balance; got.Cmp(wantSeller) != 0 {
		t.Fatalf("seller balance = %s, want %s", got, wantSeller)
	}
	wantCreator := new(big.Int).Add(fee, market.DefaultParams().AuctionMinimumBalance())
	if got := accountOf(t, p, creator).Balance; got.Cmp(wantCreator) != 0 {
		t.Fatalf("creator balance = %s, want %s", got, wantCreator)
	}
}

func TestUnknownAppRejected(t *testing.T) {
	p := newTestProcessor(t)
	_, err := p.ApplyGroup([]*types.Transaction{{
		Kind:    types.TxKindAppCall,
		Sender:  creator,
		AppID:   999,
		AppArgs: [][]byte{[]byte(escrow.MethodBuy), market.Uint64Bytes(1)},
	}})
	if !errors.Is(err, ErrUnknownApp) {
		t.Fatalf("unknown app: got %v, want ErrUnknownApp", err)
	}
	if !errors.Is(err, ErrGroupRejected) {
		t.Fatalf("unknown app: %v does not wrap ErrGroupRejected", err)
	}
}
