package market

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
)

var (
	// ErrAlreadyOptedIn marks an opt-in attempt for an asset the account
	// already holds. Contract setup relies on this to run at most once.
	ErrAlreadyOptedIn = errors.New("market: account already opted into asset")
	// ErrReceiverNotOptedIn marks an asset transfer whose receiver cannot
	// hold the asset.
	ErrReceiverNotOptedIn = errors.New("market: receiver not opted into asset")
)

// Ledger is the account surface the custody executor and the contract
// engines operate on. An address with no stored record reads as an empty
// account; RemoveAccount drops the record from the ledger's accounting.
type Ledger interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, acct *types.Account) error
	RemoveAccount(addr crypto.Address) error
}

// Vault executes program-authorized transfers out of one custody account.
// It is the only path through which escrowed currency or assets move;
// external callers can only trigger it indirectly by satisfying a contract
// validator. Transfer primitives are silent no-ops when the custody balance
// guard fails, since validators check sufficiency for every case that
// matters before effects run.
type Vault struct {
	ledger Ledger
	addr   crypto.Address
}

// NewVault binds a custody executor to its account.
func NewVault(ledger Ledger, addr crypto.Address) *Vault {
	return &Vault{ledger: ledger, addr: addr}
}

// Address returns the custody account address.
func (v *Vault) Address() crypto.Address {
	return v.addr
}

// Balance returns the custody account's currency balance.
func (v *Vault) Balance() (*big.Int, error) {
	acct, err := v.ledger.GetAccount(v.addr)
	if err != nil {
		return nil, err
	}
	if acct.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(acct.Balance), nil
}

// AssetBalance returns the custody account's holding of the asset, zero when
// not opted in.
func (v *Vault) AssetBalance(assetID uint64) (uint64, error) {
	acct, err := v.ledger.GetAccount(v.addr)
	if err != nil {
		return 0, err
	}
	return acct.AssetBalance(assetID), nil
}

// OptedIn reports whether the custody account holds the asset.
func (v *Vault) OptedIn(assetID uint64) (bool, error) {
	acct, err := v.ledger.GetAccount(v.addr)
	if err != nil {
		return false, err
	}
	return acct.OptedIn(assetID), nil
}

// OptInAsset registers the custody account to hold the asset. Opting in a
// second time fails, which contract setup uses as its idempotence guard.
func (v *Vault) OptInAsset(assetID uint64) error {
	acct, err := v.ledger.GetAccount(v.addr)
	if err != nil {
		return err
	}
	if acct.OptedIn(assetID) {
		return ErrAlreadyOptedIn
	}
	acct.Holdings[assetID] = 0
	return v.ledger.PutAccount(v.addr, acct)
}

// SendAsset transfers amount units of the asset from custody to account.
// A holding below amount makes the call a no-op; a receiver that cannot
// hold the asset is an error, since a validator must catch that before any
// effect runs.
func (v *Vault) SendAsset(assetID uint64, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	acct, err := v.ledger.GetAccount(v.addr)
	if err != nil {
		return err
	}
	if acct.AssetBalance(assetID) < amount {
		return nil
	}
	toAcct, err := v.ledger.GetAccount(to)
	if err != nil {
		return err
	}
	if !toAcct.OptedIn(assetID) {
		return fmt.Errorf("%w: asset %d to %s", ErrReceiverNotOptedIn, assetID, to)
	}
	acct.Holdings[assetID] -= amount
	toAcct.Holdings[assetID] += amount
	if err := v.ledger.PutAccount(v.addr, acct); err != nil {
		return err
	}
	return v.ledger.PutAccount(to, toAcct)
}

// SendPayment transfers currency from custody to account, a no-op when the
// custody balance is below amount.
func (v *Vault) SendPayment(to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	acct, err := v.ledger.GetAccount(v.addr)
	if err != nil {
		return err
	}
	if acct.Balance == nil || acct.Balance.Cmp(amount) < 0 {
		return nil
	}
	toAcct, err := v.ledger.GetAccount(to)
	if err != nil {
		return err
	}
	acct.Balance = new(big.Int).Sub(acct.Balance, amount)
	toAcct.Balance = new(big.Int).Add(toAcct.Balance, amount)
	if err := v.ledger.PutAccount(v.addr, acct); err != nil {
		return err
	}
	return v.ledger.PutAccount(to, toAcct)
}

// CloseAsset transfers the custody account's entire holding of the asset to
// account and drops the opt-in. A custody account that never opted in makes
// the call a no-op.
func (v *Vault) CloseAsset(assetID uint64, to crypto.Address) error {
	acct, err := v.ledger.GetAccount(v.addr)
	if err != nil {
		return err
	}
	if !acct.OptedIn(assetID) {
		return nil
	}
	remaining := acct.Holdings[assetID]
	if remaining > 0 {
		toAcct, err := v.ledger.GetAccount(to)
		if err != nil {
			return err
		}
		if !toAcct.OptedIn(assetID) {
			return fmt.Errorf("%w: asset %d to %s", ErrReceiverNotOptedIn, assetID, to)
		}
		toAcct.Holdings[assetID] += remaining
		if err := v.ledger.PutAccount(to, toAcct); err != nil {
			return err
		}
	}
	delete(acct.Holdings, assetID)
	return v.ledger.PutAccount(v.addr, acct)
}

// CloseAccount transfers the custody account's entire remaining currency
// balance to account and removes the custody account from the ledger's
// accounting.
func (v *Vault) CloseAccount(to crypto.Address) error {
	acct, err := v.ledger.GetAccount(v.addr)
	if err != nil {
		return err
	}
	if acct.Balance != nil && acct.Balance.Sign() > 0 {
		toAcct, err := v.ledger.GetAccount(to)
		if err != nil {
			return err
		}
		toAcct.Balance = new(big.Int).Add(toAcct.Balance, acct.Balance)
		if err := v.ledger.PutAccount(to, toAcct); err != nil {
			return err
		}
	}
	return v.ledger.RemoveAccount(v.addr)
}
