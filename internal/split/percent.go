package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"conti/internal/core"
)

// basisPointsPerCent is 100.00% expressed in basis points.
const basisPointsPerCent = 10000

// ParsePercent converts a percentage string like "33.33" into basis points.
// At most two decimal places are allowed; the sum-to-100.00 validation in
// the percentage strategy is exact, so the input must be too. Float parsing
// is deliberately avoided here.
func ParsePercent(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid percentage %q", core.ErrValidation, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative percentage %q", core.ErrValidation, s)
	}
	if d.GreaterThan(decimal.NewFromInt(100)) {
		return 0, fmt.Errorf("%w: percentage %q above 100", core.ErrValidation, s)
	}
	bp := d.Mul(decimal.NewFromInt(100))
	if !bp.IsInteger() {
		return 0, fmt.Errorf("%w: percentage %q has more than two decimal places", core.ErrValidation, s)
	}
	return bp.IntPart(), nil
}

// ParsePercents parses one percentage string per member.
func ParsePercents(raw map[core.MemberID]string) (map[core.MemberID]int64, error) {
	bps := make(map[core.MemberID]int64, len(raw))
	for m, s := range raw {
		bp, err := ParsePercent(s)
		if err != nil {
			return nil, fmt.Errorf("member %s: %w", m, err)
		}
		bps[m] = bp
	}
	return bps, nil
}

// FormatBasisPoints renders basis points as a percentage string, e.g.
// 3334 -> "33.34".
func FormatBasisPoints(bp int64) string {
	return decimal.New(bp, -2).StringFixed(2) + "%"
}
