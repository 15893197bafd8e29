package types

import "math/big"

// Account holds the native currency balance and per-asset holdings of one
// ledger account. An asset appears in Holdings only after the account opted
// into it; a holding of zero units is still an opt-in.
type Account struct {
	Balance  *big.Int
	Holdings map[uint64]uint64
}

// NewAccount returns an empty account with initialised fields.
func NewAccount() *Account {
	return &Account{
		Balance:  big.NewInt(0),
		Holdings: make(map[uint64]uint64),
	}
}

// Clone returns a deep copy so callers can mutate the result without
// affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := NewAccount()
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	for id, amount := range a.Holdings {
		clone.Holdings[id] = amount
	}
	return clone
}

// OptedIn reports whether the account holds the asset.
func (a *Account) OptedIn(assetID uint64) bool {
	if a == nil {
		return false
	}
	_, ok := a.Holdings[assetID]
	return ok
}

// AssetBalance returns the held units of the asset, zero when not opted in.
func (a *Account) AssetBalance(assetID uint64) uint64 {
	if a == nil {
		return 0
	}
	return a.Holdings[assetID]
}

// IsEmpty reports whether the account carries no balance and no holdings and
// can therefore be removed from the ledger's accounting.
func (a *Account) IsEmpty() bool {
	if a == nil {
		return true
	}
	if a.Balance != nil && a.Balance.Sign() != 0 {
		return false
	}
	return len(a.Holdings) == 0
}
