// Package collateral decides whether new issuance stays fully backed.
//
// All comparisons happen in integer base units. The decimal reserve figure
// is truncated when scaled so it is never over-counted; requested amounts
// that cannot be represented exactly are refused rather than rounded.
package collateral

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	dErrors "bskt/pkg/domain-errors"
)

// ErrPrecision means an amount has more fractional digits than the token.
var ErrPrecision = errors.New("amount exceeds token precision")

// Decision is the outcome of one collateralization check. It is derived
// per run and never stored.
type Decision struct {
	Approved        bool
	TrustedReserve  *big.Int
	CurrentSupply   *big.Int
	RequestedAmount *big.Int
	// Deficit is set only when the check is rejected.
	Deficit  *big.Int
	Decimals int32
}

// ProjectedSupply is supply plus the requested amount.
func (d Decision) ProjectedSupply() *big.Int {
	return new(big.Int).Add(d.CurrentSupply, d.RequestedAmount)
}

// DeficitUnits renders the deficit as a currency amount, zero when approved.
func (d Decision) DeficitUnits() decimal.Decimal {
	if d.Deficit == nil {
		return decimal.Zero
	}
	return FromBaseUnits(d.Deficit, d.Decimals)
}

// ToBaseUnits scales v by 10^decimals and truncates toward zero.
func ToBaseUnits(v decimal.Decimal, decimals int32) *big.Int {
	return v.Shift(decimals).BigInt()
}

// FromBaseUnits is the inverse of ToBaseUnits for display.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(v, -decimals)
}

// RequestedBaseUnits scales a requested amount exactly. Amounts with more
// fractional digits than decimals fail with ErrPrecision.
func RequestedBaseUnits(v decimal.Decimal, decimals int32) (*big.Int, error) {
	scaled := v.Shift(decimals)
	if !scaled.IsInteger() {
		msg := fmt.Sprintf("amount %s has more than %d fractional digits", v, decimals)
		return nil, dErrors.Wrap(fmt.Errorf("%w: %s", ErrPrecision, msg), dErrors.CodeValidation, msg)
	}
	return scaled.BigInt(), nil
}

// Check approves when floor(reserve * 10^decimals) >= supply + requested.
func Check(reserve decimal.Decimal, supply, requested *big.Int, decimals int32) Decision {
	trusted := ToBaseUnits(reserve, decimals)
	d := Decision{
		TrustedReserve:  trusted,
		CurrentSupply:   new(big.Int).Set(supply),
		RequestedAmount: new(big.Int).Set(requested),
		Decimals:        decimals,
	}
	projected := d.ProjectedSupply()
	if trusted.Cmp(projected) >= 0 {
		d.Approved = true
		return d
	}
	d.Deficit = new(big.Int).Sub(projected, trusted)
	return d
}
