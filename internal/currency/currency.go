// Package currency converts provider currency codes into the major-unit
// codes used for display.
package currency

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// minorUnits maps codes of securities quoted in a minor unit to the ISO code
// of the major unit. All of them are hundredths.
var minorUnits = map[string]string{
	"GBp": "GBP", // pence
	"GBX": "GBP",
	"ZAc": "ZAR", // cents
	"ZAC": "ZAR",
	"ILA": "ILS", // agorot
}

// IsMinor reports whether code denotes a minor currency unit.
func IsMinor(code string) bool {
	_, ok := minorUnits[code]
	return ok
}

// Major returns the major-unit code for code. Codes that are not minor units
// are returned upper-cased.
func Major(code string) string {
	if major, ok := minorUnits[code]; ok {
		return major
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// Normalize converts amount expressed in code into the major unit.
// Amounts already in a major unit pass through unchanged.
func Normalize(amount decimal.Decimal, code string) (decimal.Decimal, string) {
	if major, ok := minorUnits[code]; ok {
		return amount.Shift(-2), major
	}
	return amount, Major(code)
}

// Known reports whether code is an ISO 4217 currency known to go-money.
func Known(code string) bool {
	return money.GetCurrency(code) != nil
}

// Format renders amount in code with the currency's symbol and fraction
// digits, e.g. "£72.50". Unknown codes fall back to "72.50 XYZ".
func Format(amount decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	units := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(units, cur.Code).Display()
}
