package shared

import "github.com/shopspring/decimal"

// MinorUnits is the number of decimal places for monetary amounts.
const MinorUnits = 2

// MinAmount is the smallest postable amount.
var MinAmount = decimal.New(1, -MinorUnits)

// Round2 rounds half away from zero to the minor unit.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(MinorUnits)
}

// IsMinorUnit reports whether v has no more than two decimals.
func IsMinorUnit(v decimal.Decimal) bool {
	return v.Equal(v.Round(MinorUnits))
}

// Monetary returns qty * unitCost rounded to the minor unit.
func Monetary(qty, unitCost decimal.Decimal) decimal.Decimal {
	return Round2(qty.Mul(unitCost))
}

// Sum adds amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Prorate returns round2(amount * part / whole). A zero whole yields zero.
func Prorate(amount, part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return Round2(amount.Mul(part).Div(whole))
}
