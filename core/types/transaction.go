package types

import (
	"math/big"

	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
)

// TxKind defines the purpose of a transaction inside an atomic group.
type TxKind byte

const (
	TxKindPayment       TxKind = 0x01 // moves native currency between accounts
	TxKindAssetTransfer TxKind = 0x02 // moves units of an asset, or opts an account in
	TxKindAppCall       TxKind = 0x03 // invokes a program instance
)

// OnCompletion selects what an application call asks the instance to do once
// the call itself is approved.
type OnCompletion byte

const (
	OnCompletionNoOp OnCompletion = iota
	OnCompletionOptIn
	OnCompletionCloseOut
	OnCompletionUpdate
	OnCompletionDelete
)

// AppKind identifies which contract program a creation call deploys. It
// stands in for the compiled approval program an on-chain deployment would
// carry.
type AppKind byte

const (
	AppKindEscrow AppKind = iota + 1
	AppKindAuction
)

// Transaction is one member of an atomic group submitted to the ledger.
// Exactly one field set is meaningful per kind; validators inspect the
// declared fields of sibling transactions, never their effects.
type Transaction struct {
	Kind   TxKind
	Sender crypto.Address

	// Payment fields.
	Receiver crypto.Address
	Amount   *big.Int

	// Asset transfer fields. An asset transfer of zero units from an
	// account to itself is the account's opt-in to the asset.
	AssetID       uint64
	AssetAmount   uint64
	AssetReceiver crypto.Address

	// Application call fields.
	AppID         uint64
	AppKind       AppKind
	OnCompletion  OnCompletion
	AppArgs       [][]byte
	Accounts      []crypto.Address
	ForeignAssets []uint64
}

// IsOptIn reports whether an asset transfer is the sender's opt-in.
func (tx *Transaction) IsOptIn() bool {
	return tx.Kind == TxKindAssetTransfer && tx.AssetAmount == 0 && tx.AssetReceiver == tx.Sender
}

// PaymentAmount returns the declared payment amount, treating nil as zero.
func (tx *Transaction) PaymentAmount() *big.Int {
	if tx.Amount == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(tx.Amount)
}
