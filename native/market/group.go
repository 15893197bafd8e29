package market

import (
	"errors"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
)

// MaxGroupSize caps how many transactions one atomic group may carry.
const MaxGroupSize = 16

var (
	// ErrEmptyGroup marks a submission with no transactions.
	ErrEmptyGroup = errors.New("market: empty transaction group")
	// ErrGroupTooLarge marks a submission above MaxGroupSize.
	ErrGroupTooLarge = errors.New("market: transaction group too large")
	// ErrGroupIndex marks a view built on an out-of-range index.
	ErrGroupIndex = errors.New("market: group index out of range")
)

// GroupView gives a validator indexed, read-only access to the sibling
// transactions of an atomic group, relative to the transaction being
// validated. The ledger fixes ordering within a group but does not otherwise
// authenticate grouping intent, so validators trust only declared relative
// offsets from their own position.
type GroupView struct {
	txns  []*types.Transaction
	index int
}

// NewGroupView builds a view over txns positioned at index.
func NewGroupView(txns []*types.Transaction, index int) (*GroupView, error) {
	if len(txns) == 0 {
		return nil, ErrEmptyGroup
	}
	if len(txns) > MaxGroupSize {
		return nil, ErrGroupTooLarge
	}
	if index < 0 || index >= len(txns) {
		return nil, ErrGroupIndex
	}
	return &GroupView{txns: txns, index: index}, nil
}

// Size returns the number of transactions in the group.
func (g *GroupView) Size() int {
	return len(g.txns)
}

// Index returns the position of the validating transaction.
func (g *GroupView) Index() int {
	return g.index
}

// Current returns the transaction being validated.
func (g *GroupView) Current() *types.Transaction {
	return g.txns[g.index]
}

// At returns the sibling at the given offset from the current transaction,
// and whether such a sibling exists.
func (g *GroupView) At(offset int) (*types.Transaction, bool) {
	i := g.index + offset
	if i < 0 || i >= len(g.txns) {
		return nil, false
	}
	return g.txns[i], true
}
