package market

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dopepandaorg/dp-marketplace-contracts/crypto"
)

// ErrBadArguments marks a call whose argument count or shape does not match
// the entry point's schema.
var ErrBadArguments = errors.New("market: malformed call arguments")

// Uint64Arg decodes argument i as an 8-byte big-endian integer.
func Uint64Arg(args [][]byte, i int) (uint64, error) {
	if i < 0 || i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrBadArguments, i)
	}
	if len(args[i]) != 8 {
		return 0, fmt.Errorf("%w: argument %d is not an 8-byte integer", ErrBadArguments, i)
	}
	return binary.BigEndian.Uint64(args[i]), nil
}

// AddressArg decodes argument i as a raw 32-byte address.
func AddressArg(args [][]byte, i int) (crypto.Address, error) {
	if i < 0 || i >= len(args) {
		return crypto.Address{}, fmt.Errorf("%w: missing argument %d", ErrBadArguments, i)
	}
	addr, err := crypto.NewAddress(args[i])
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: argument %d is not an address", ErrBadArguments, i)
	}
	return addr, nil
}

// MethodArg returns the leading method-name argument of a call.
func MethodArg(args [][]byte) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: missing method name", ErrBadArguments)
	}
	return string(args[0]), nil
}

// Uint64Bytes encodes v as the 8-byte big-endian argument form. Clients use
// it to build call arguments; tests use it to mirror what clients submit.
func Uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}
