package market

import "math/big"

// MaxFeePercent bounds the protocol fee taken on a sale. The percent is
// validated once, at instance creation, and never again.
const MaxFeePercent = 100

var feeDivisor = big.NewInt(100)

// ValidFeePercent reports whether percent is an acceptable protocol fee.
func ValidFeePercent(percent uint64) bool {
	return percent <= MaxFeePercent
}

// SalePrice computes the gross proceeds of a sale, price times quantity,
// without the possibility of 64-bit overflow.
func SalePrice(unitPrice, quantity uint64) *big.Int {
	return new(big.Int).Mul(
		new(big.Int).SetUint64(unitPrice),
		new(big.Int).SetUint64(quantity),
	)
}

// SaleFee computes the protocol fee on gross proceeds as
// floor(percent * gross / 100). Truncation is intentional: there is no
// fractional currency unit and the fee never rounds up.
func SaleFee(percent uint64, gross *big.Int) *big.Int {
	if gross == nil || gross.Sign() <= 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(gross, new(big.Int).SetUint64(percent))
	return fee.Div(fee, feeDivisor)
}
