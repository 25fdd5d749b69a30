package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnknownUnit is returned for a mass unit other than t, kg or g.
var ErrUnknownUnit = errors.New("unknown mass unit")

// tonneExponent maps a mass unit to the power of ten converting it to tonnes.
var tonneExponent = map[string]int32{
	"":       0,
	"t":      0,
	"tonne":  0,
	"tonnes": 0,
	"kg":     -3,
	"g":      -6,
}

// ToTonnes parses raw as a quantity expressed in unit and returns it in
// tonnes. The conversion is a decimal shift so "1234.5" kg becomes exactly
// the float nearest to 1.2345.
func ToTonnes(raw, unit string) (float64, error) {
	exp, ok := tonneExponent[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}

	s := strings.TrimSpace(raw)
	// Decimal comma, as in "12,5".
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", raw, err)
	}
	f, _ := d.Shift(exp).Float64()
	return f, nil
}
