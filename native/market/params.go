package market

import "math/big"

// Params carries the protocol constants behind the custody accounts'
// minimum-balance requirements. The reserved-transfer counts track how many
// payout legs each contract's entry points may perform and must be raised if
// an entry point ever gains one.
type Params struct {
	// AccountFloor is the minimum balance any ledger account must hold.
	AccountFloor uint64
	// AssetOptInReserve is the additional balance required per asset
	// opt-in.
	AssetOptInReserve uint64
	// TxnReserve is the balance reserved per future program-authorized
	// transfer.
	TxnReserve uint64
	// EscrowReservedTxns counts the internal transfers an escrow sale may
	// issue over its lifetime.
	EscrowReservedTxns uint64
	// AuctionReservedTxns counts the internal transfers an auction may
	// issue over its lifetime.
	AuctionReservedTxns uint64
}

// DefaultParams returns the production protocol constants.
func DefaultParams() Params {
	return Params{
		AccountFloor:        100_000,
		AssetOptInReserve:   100_000,
		TxnReserve:          1_000,
		EscrowReservedTxns:  5,
		AuctionReservedTxns: 4,
	}
}

// EscrowMinimumBalance is the exact funding payment an escrow setup group
// must carry: the custody floor, the asset opt-in reserve, and one transfer
// reserve per future internal transfer.
func (p Params) EscrowMinimumBalance() *big.Int {
	return p.minimumBalance(p.EscrowReservedTxns)
}

// AuctionMinimumBalance is the exact funding payment an auction setup group
// must carry.
func (p Params) AuctionMinimumBalance() *big.Int {
	return p.minimumBalance(p.AuctionReservedTxns)
}

func (p Params) minimumBalance(reservedTxns uint64) *big.Int {
	total := new(big.Int).SetUint64(p.AccountFloor)
	total.Add(total, new(big.Int).SetUint64(p.AssetOptInReserve))
	reserve := new(big.Int).Mul(
		new(big.Int).SetUint64(p.TxnReserve),
		new(big.Int).SetUint64(reservedTxns),
	)
	return total.Add(total, reserve)
}
