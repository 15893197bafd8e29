package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/dopepandaorg/dp-marketplace-contracts/core/types"
	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market/auction"
	"github.com/dopepandaorg/dp-marketplace-contracts/native/market/escrow"
)

// TransactionParam is the wire form of one transaction in a submitted group.
// Addresses are bech32 strings, currency amounts decimal strings, and call
// arguments hex encoded.
type TransactionParam struct {
	Kind   string `json:"kind"`
	Sender string `json:"sender"`

	Receiver string `json:"receiver,omitempty"`
	Amount   string `json:"amount,omitempty"`

	AssetID       uint64 `json:"assetId,omitempty"`
	AssetAmount   uint64 `json:"assetAmount,omitempty"`
	AssetReceiver string `json:"assetReceiver,omitempty"`

	AppID         uint64   `json:"appId,omitempty"`
	AppKind       string   `json:"appKind,omitempty"`
	OnCompletion  string   `json:"onCompletion,omitempty"`
	Args          []string `json:"args,omitempty"`
	Accounts      []string `json:"accounts,omitempty"`
	ForeignAssets []uint64 `json:"foreignAssets,omitempty"`
}

func decodeAddress(field, value string) (crypto.Address, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.Address{}, fmt.Errorf("rpc: %s must be set", field)
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("rpc: invalid %s: %w", field, err)
	}
	return addr, nil
}

func decodeAmount(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("rpc: invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("rpc: negative amount %q", value)
	}
	return amount, nil
}

// Decode converts the wire form into a ledger transaction.
func (p *TransactionParam) Decode() (*types.Transaction, error) {
	sender, err := decodeAddress("sender", p.Sender)
	if err != nil {
		return nil, err
	}
	tx := &types.Transaction{Sender: sender}

	switch p.Kind {
	case "payment":
		tx.Kind = types.TxKindPayment
		if tx.Receiver, err = decodeAddress("receiver", p.Receiver); err != nil {
			return nil, err
		}
		if tx.Amount, err = decodeAmount(p.Amount); err != nil {
			return nil, err
		}
	case "assetTransfer":
		tx.Kind = types.TxKindAssetTransfer
		tx.AssetID = p.AssetID
		tx.AssetAmount = p.AssetAmount
		if tx.AssetReceiver, err = decodeAddress("assetReceiver", p.AssetReceiver); err != nil {
			return nil, err
		}
	case "appCall":
		tx.Kind = types.TxKindAppCall
		tx.AppID = p.AppID
		switch p.AppKind {
		case "":
		case "escrow":
			tx.AppKind = types.AppKindEscrow
		case "auction":
			tx.AppKind = types.AppKindAuction
		default:
			return nil, fmt.Errorf("rpc: unknown app kind %q", p.AppKind)
		}
		switch p.OnCompletion {
		case "", "noop":
			tx.OnCompletion = types.OnCompletionNoOp
		case "optin":
			tx.OnCompletion = types.OnCompletionOptIn
		case "closeout":
			tx.OnCompletion = types.OnCompletionCloseOut
		case "update":
			tx.OnCompletion = types.OnCompletionUpdate
		case "delete":
			tx.OnCompletion = types.OnCompletionDelete
		default:
			return nil, fmt.Errorf("rpc: unknown on-completion %q", p.OnCompletion)
		}
		for i, arg := range p.Args {
			raw, err := hex.DecodeString(strings.TrimPrefix(arg, "0x"))
			if err != nil {
				return nil, fmt.Errorf("rpc: argument %d is not hex: %w", i, err)
			}
			tx.AppArgs = append(tx.AppArgs, raw)
		}
		for _, account := range p.Accounts {
			addr, err := decodeAddress("accounts entry", account)
			if err != nil {
				return nil, err
			}
			tx.Accounts = append(tx.Accounts, addr)
		}
		tx.ForeignAssets = append(tx.ForeignAssets, p.ForeignAssets...)
	default:
		return nil, fmt.Errorf("rpc: unknown transaction kind %q", p.Kind)
	}
	return tx, nil
}

// SubmitResult reports what an accepted group produced.
type SubmitResult struct {
	CreatedApps []uint64 `json:"createdApps,omitempty"`
}

// AccountResult is the wire form of a ledger account.
type AccountResult struct {
	Address  string            `json:"address"`
	Balance  string            `json:"balance"`
	Holdings map[uint64]uint64 `json:"holdings,omitempty"`
}

func formatAccount(addr crypto.Address, acct *types.Account) *AccountResult {
	result := &AccountResult{
		Address: addr.String(),
		Balance: "0",
	}
	if acct == nil {
		return result
	}
	if acct.Balance != nil {
		result.Balance = acct.Balance.String()
	}
	if len(acct.Holdings) > 0 {
		result.Holdings = make(map[uint64]uint64, len(acct.Holdings))
		for id, amount := range acct.Holdings {
			result.Holdings[id] = amount
		}
	}
	return result
}

// ListingResult is the wire form of a fixed-price sale listing.
type ListingResult struct {
	AppID       uint64 `json:"appId"`
	Creator     string `json:"creator"`
	Custody     string `json:"custody"`
	AssetID     uint64 `json:"assetId"`
	AssetPrice  uint64 `json:"assetPrice"`
	FeeReceiver string `json:"feeReceiver"`
	FeePercent  uint64 `json:"feePercent"`
	Status      string `json:"status"`
}

func formatListing(l *escrow.Listing) *ListingResult {
	status := "unknown"
	switch l.Status {
	case escrow.StatusNotInit:
		status = "notInitialized"
	case escrow.StatusActive:
		status = "active"
	case escrow.StatusInProgress:
		status = "selling"
	}
	return &ListingResult{
		AppID:       l.AppID,
		Creator:     l.Creator.String(),
		Custody:     l.Custody.String(),
		AssetID:     l.AssetID,
		AssetPrice:  l.AssetPrice,
		FeeReceiver: l.FeeReceiver.String(),
		FeePercent:  l.FeePercent,
		Status:      status,
	}
}

// AuctionResult is the wire form of an auction.
type AuctionResult struct {
	AppID           uint64 `json:"appId"`
	Creator         string `json:"creator"`
	Custody         string `json:"custody"`
	Seller          string `json:"seller"`
	AssetID         uint64 `json:"assetId"`
	Start           int64  `json:"start"`
	End             int64  `json:"end"`
	ReserveAmount   uint64 `json:"reserveAmount"`
	MinBidIncrement uint64 `json:"minBidIncrement"`
	FeePercent      uint64 `json:"feePercent"`
	BidAccount      string `json:"bidAccount,omitempty"`
	BidAmount       string `json:"bidAmount"`
	NumBids         uint64 `json:"numBids"`
}

func formatAuction(a *auction.Auction) *AuctionResult {
	result := &AuctionResult{
		AppID:           a.AppID,
		Creator:         a.Creator.String(),
		Custody:         a.Custody.String(),
		Seller:          a.Seller.String(),
		AssetID:         a.AssetID,
		Start:           a.Start,
		End:             a.End,
		ReserveAmount:   a.ReserveAmount,
		MinBidIncrement: a.MinBidIncrement,
		FeePercent:      a.FeePercent,
		BidAmount:       a.LeadingBid().String(),
		NumBids:         a.NumBids,
	}
	if a.HasBid() {
		result.BidAccount = a.BidAccount.String()
	}
	return result
}
