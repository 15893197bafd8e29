package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market/auction"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market/escrow"
	"github.com/dopepandaorg/dp-marketplace-contracts/storage"
)

var (
	acctPrefix    = []byte("acct/")
	escrowPrefix  = []byte("market/escrow/")
	auctionPrefix = []byte("market/auction/")
	appKindPrefix = []byte("app/kind/")
	custodyPrefix = []byte("app/custody/")
	appSeqKey     = []byte("app/seq")
)

// Manager persists accounts, program instances and their records in a
// key-value store. It implements the state interfaces of both contract
// engines, so the same manager can back an overlay during group execution
// and the base database for queries.
type Manager struct {
	db storage.Database
}

// NewManager wraps the given database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Manager) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

// --- Accounts ---

type storedHolding struct {
	AssetID uint64
	Amount  uint64
}

type storedAccount struct {
	Balance  *big.Int
	Holdings []storedHolding
}

func acctKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), acctPrefix...), addr[:]...)
}

// GetAccount loads the account record for addr. An address with no stored
// record reads as an empty account.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	var stored storedAccount
	ok, err := m.get(acctKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	acct := types.NewAccount()
	if !ok {
		return acct, nil
	}
	if stored.Balance != nil {
		acct.Balance = new(big.Int).Set(stored.Balance)
	}
	for _, h := range stored.Holdings {
		acct.Holdings[h.AssetID] = h.Amount
	}
	return acct, nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr crypto.Address, acct *types.Account) error {
	if acct == nil {
		return fmt.Errorf("state: nil account")
	}
	stored := storedAccount{Balance: acct.Balance}
	if stored.Balance == nil {
		stored.Balance = big.NewInt(0)
	}
	if stored.Balance.Sign() < 0 {
		return fmt.Errorf("state: negative account balance")
	}
	for id, amount := range acct.Holdings {
		stored.Holdings = append(stored.Holdings, storedHolding{AssetID: id, Amount: amount})
	}
	sort.Slice(stored.Holdings, func(i, j int) bool {
		return stored.Holdings[i].AssetID < stored.Holdings[j].AssetID
	})
	return m.put(acctKey(addr), &stored)
}

// RemoveAccount drops the account record from the ledger's accounting.
func (m *Manager) RemoveAccount(addr crypto.Address) error {
	return m.db.Delete(acctKey(addr))
}

// --- Program instances ---

func appKindKey(appID uint64) []byte {
	return append(append([]byte(nil), appKindPrefix...), market.Uint64Bytes(appID)...)
}

// NextAppID allocates the next program instance identifier.
func (m *Manager) NextAppID() (uint64, error) {
	var seq uint64
	if _, err := m.get(appSeqKey, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := m.put(appSeqKey, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// SetAppKind records which contract program instance appID runs.
func (m *Manager) SetAppKind(appID uint64, kind types.AppKind) error {
	return m.put(appKindKey(appID), uint64(kind))
}

// AppKind resolves the contract program of instance appID.
func (m *Manager) AppKind(appID uint64) (types.AppKind, bool, error) {
	var kind uint64
	ok, err := m.get(appKindKey(appID), &kind)
	if err != nil || !ok {
		return 0, false, err
	}
	return types.AppKind(kind), true, nil
}

// RemoveApp forgets a destroyed program instance.
func (m *Manager) RemoveApp(appID uint64) error {
	return m.db.Delete(appKindKey(appID))
}

func custodyKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), custodyPrefix...), addr[:]...)
}

// SetCustody records that addr is the custody account of program instance
// appID. No key exists for a custody account, so while the registration is
// live only program-authorized transfers may move its funds.
func (m *Manager) SetCustody(addr crypto.Address, appID uint64) error {
	return m.put(custodyKey(addr), appID)
}

// CustodyApp reports whether addr is a live custody account and, if so,
// which program instance it belongs to.
func (m *Manager) CustodyApp(addr crypto.Address) (uint64, bool, error) {
	var appID uint64
	ok, err := m.get(custodyKey(addr), &appID)
	if err != nil || !ok {
		return 0, false, err
	}
	return appID, true, nil
}

// RemoveCustody releases a custody registration after its program instance
// is destroyed.
func (m *Manager) RemoveCustody(addr crypto.Address) error {
	return m.db.Delete(custodyKey(addr))
}

// --- Escrow listings ---

type storedListing struct {
	AppID       uint64
	Creator     crypto.Address
	Custody     crypto.Address
	AssetID     uint64
	AssetPrice  uint64
	FeeReceiver crypto.Address
	FeePercent  uint64
	Status      uint8
}

func escrowKey(appID uint64) []byte {
	return append(append([]byte(nil), escrowPrefix...), market.Uint64Bytes(appID)...)
}

// ListingPut persists an escrow listing.
func (m *Manager) ListingPut(l *escrow.Listing) error {
	sanitized, err := escrow.SanitizeListing(l)
	if err != nil {
		return err
	}
	stored := storedListing{
		AppID:       sanitized.AppID,
		Creator:     sanitized.Creator,
		Custody:     sanitized.Custody,
		AssetID:     sanitized.AssetID,
		AssetPrice:  sanitized.AssetPrice,
		FeeReceiver: sanitized.FeeReceiver,
		FeePercent:  sanitized.FeePercent,
		Status:      uint8(sanitized.Status),
	}
	return m.put(escrowKey(sanitized.AppID), &stored)
}

// ListingGet loads an escrow listing.
func (m *Manager) ListingGet(appID uint64) (*escrow.Listing, bool) {
	var stored storedListing
	ok, err := m.get(escrowKey(appID), &stored)
	if err != nil || !ok {
		return nil, false
	}
	return &escrow.Listing{
		AppID:       stored.AppID,
		Creator:     stored.Creator,
		Custody:     stored.Custody,
		AssetID:     stored.AssetID,
		AssetPrice:  stored.AssetPrice,
		FeeReceiver: stored.FeeReceiver,
		FeePercent:  stored.FeePercent,
		Status:      escrow.Status(stored.Status),
	}, true
}

// ListingDelete removes an escrow listing.
func (m *Manager) ListingDelete(appID uint64) error {
	return m.db.Delete(escrowKey(appID))
}

// --- Auctions ---

type storedAuction struct {
	AppID           uint64
	Creator         crypto.Address
	Custody         crypto.Address
	Seller          crypto.Address
	AssetID         uint64
	Start           uint64
	End             uint64
	ReserveAmount   uint64
	MinBidIncrement uint64
	FeePercent      uint64
	BidAccount      crypto.Address
	BidAmount       *big.Int
	NumBids         uint64
}

func auctionKey(appID uint64) []byte {
	return append(append([]byte(nil), auctionPrefix...), market.Uint64Bytes(appID)...)
}

// AuctionPut persists an auction.
func (m *Manager) AuctionPut(a *auction.Auction) error {
	sanitized, err := auction.SanitizeAuction(a)
	if err != nil {
		return err
	}
	stored := storedAuction{
		AppID:           sanitized.AppID,
		Creator:         sanitized.Creator,
		Custody:         sanitized.Custody,
		Seller:          sanitized.Seller,
		AssetID:         sanitized.AssetID,
		Start:           uint64(sanitized.Start),
		End:             uint64(sanitized.End),
		ReserveAmount:   sanitized.ReserveAmount,
		MinBidIncrement: sanitized.MinBidIncrement,
		FeePercent:      sanitized.FeePercent,
		BidAccount:      sanitized.BidAccount,
		BidAmount:       sanitized.BidAmount,
		NumBids:         sanitized.NumBids,
	}
	return m.put(auctionKey(sanitized.AppID), &stored)
}

// AuctionGet loads an auction.
func (m *Manager) AuctionGet(appID uint64) (*auction.Auction, bool) {
	var stored storedAuction
	ok, err := m.get(auctionKey(appID), &stored)
	if err != nil || !ok {
		return nil, false
	}
	bid := stored.BidAmount
	if bid == nil {
		bid = big.NewInt(0)
	}
	return &auction.Auction{
		AppID:           stored.AppID,
		Creator:         stored.Creator,
		Custody:         stored.Custody,
		Seller:          stored.Seller,
		AssetID:         stored.AssetID,
		Start:           int64(stored.Start),
		End:             int64(stored.End),
		ReserveAmount:   stored.ReserveAmount,
		MinBidIncrement: stored.MinBidIncrement,
		FeePercent:      stored.FeePercent,
		BidAccount:      stored.BidAccount,
		BidAmount:       new(big.Int).Set(bid),
		NumBids:         stored.NumBids,
	}, true
}

// AuctionDelete removes an auction.
func (m *Manager) AuctionDelete(appID uint64) error {
	return m.db.Delete(auctionKey(appID))
}
