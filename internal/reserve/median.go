package reserve

import (
	"slices"

	"github.com/shopspring/decimal"
)

// Median returns the median of values. For an even count the lower of the
// two middle values is returned so reserves are never over-counted.
// It panics on an empty slice.
func Median(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		panic("reserve: median of empty set")
	}
	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b decimal.Decimal) int {
		return a.Cmp(b)
	})
	return sorted[(len(sorted)-1)/2]
}
