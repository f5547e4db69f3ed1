package domain

import (
	"fmt"
	"math/big"
)

const koboPerNaira = 100

// Rate converts gift coins into currency. It is injected into the
// components that need it; there is no package-level rate.
type Rate struct {
	coinsPerUnit int64
}

// NewRate builds a rate of coinsPerUnit coins per unit of currency.
func NewRate(coinsPerUnit int64) (Rate, error) {
	if coinsPerUnit <= 0 {
		return Rate{}, fmt.Errorf("%w: coins per unit must be positive, got %d", ErrValidation, coinsPerUnit)
	}
	return Rate{coinsPerUnit: coinsPerUnit}, nil
}

// CoinsPerUnit exposes the configured ratio.
func (r Rate) CoinsPerUnit() int64 { return r.coinsPerUnit }

// Kobo converts a coin total into currency minor units using exact
// rational arithmetic. A total the rate cannot represent as a whole
// number of kobo is an error rather than a rounded value, so money is
// neither lost nor fabricated.
func (r Rate) Kobo(coins int64) (int64, error) {
	if r.coinsPerUnit <= 0 {
		return 0, fmt.Errorf("%w: rate not configured", ErrValidation)
	}
	if coins < 0 {
		return 0, fmt.Errorf("%w: negative coin total %d", ErrValidation, coins)
	}
	num := new(big.Int).Mul(big.NewInt(coins), big.NewInt(koboPerNaira))
	rat := new(big.Rat).SetFrac(num, big.NewInt(r.coinsPerUnit))
	if !rat.IsInt() {
		return 0, fmt.Errorf("%w: %d coins at %d coins/unit", ErrInexactRate, coins, r.coinsPerUnit)
	}
	n := rat.Num()
	if !n.IsInt64() {
		return 0, fmt.Errorf("%w: amount overflows minor units", ErrValidation)
	}
	return n.Int64(), nil
}
