package crypto

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable prefix used when rendering addresses.
const AddressPrefix = "dp"

// AddressLength is the raw byte length of a ledger address.
const AddressLength = 32

// custodyDomain separates custody-address derivation from any other use of
// the hash function.
var custodyDomain = []byte("dp/custody/")

// Address represents a 32-byte ledger address. The zero value stands for
// "no account" and is what an auction reports before its first bid.
type Address [AddressLength]byte

// NewAddress builds an address from raw bytes.
func NewAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, fmt.Errorf("crypto: address must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// IsZero reports whether the address is the zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// String renders the address in bech32 with the dp prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses a bech32 dp address back into its raw form.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("crypto: unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("crypto: error converting bits: %w", err)
	}
	return NewAddress(conv)
}

// CustodyAddress derives the deterministic custody account address for a
// program instance. Every instance controls exactly one such account and no
// key exists that could sign for it.
func CustodyAddress(appID uint64) Address {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], appID)
	digest := ethcrypto.Keccak256(custodyDomain, id[:])
	var addr Address
	copy(addr[:], digest)
	return addr
}
