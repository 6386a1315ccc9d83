// Package sizing provides an exact, unit-suffixed byte count.
//
// Sizes are plain integers so that sums never drift; only formatting and
// ratios use floating point.
package sizing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/meigma/repack/internal/archtype"
)

// Size is a signed byte count.
type Size int64

type unit struct {
	factor int64
	suffix string
}

// units are ordered from smallest to largest; String picks the first unit
// in which the magnitude stays below formatThreshold.
var units = []unit{
	{1, ""},
	{1_000, "K"},
	{1_000_000, "M"},
	{1_000_000_000, "G"},
}

const formatThreshold = 500

// maxFractionDigits bounds the parsed fraction; digits past the largest
// unit factor cannot contribute a whole byte.
const maxFractionDigits = 9

var sizePattern = regexp.MustCompile(`^(-?)([0-9]+)(?:\.([0-9]+))?([KMG]?)$`)

// Parse converts text such as "1500", "3M" or "1.25K" into a Size.
// A fractional part is accepted so that String output parses back; bytes
// below one are truncated.
func Parse(text string) (Size, error) {
	m := sizePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("%w: size %q (not [0-9]+[KMG]?)", archtype.ErrFormat, text)
	}
	factor := int64(1)
	for _, u := range units {
		if u.suffix == m[4] {
			factor = u.factor
			break
		}
	}

	whole, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil || whole > math.MaxInt64/factor {
		return 0, fmt.Errorf("%w: size %q out of range", archtype.ErrFormat, text)
	}
	value := whole * factor

	if frac := m[3]; frac != "" {
		if len(frac) > maxFractionDigits {
			frac = frac[:maxFractionDigits]
		}
		digits, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: size %q", archtype.ErrFormat, text)
		}
		scale := int64(math.Pow10(len(frac)))
		// factor and digits are both below 1e9, the product fits in int64.
		part := factor * digits / scale
		if value > math.MaxInt64-part {
			return 0, fmt.Errorf("%w: size %q out of range", archtype.ErrFormat, text)
		}
		value += part
	}

	if m[1] == "-" {
		value = -value
	}
	return Size(value), nil
}

// MustParse is like Parse but panics on malformed input.
// It is intended for constants and tests.
func MustParse(text string) Size {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// String formats the size with two decimals in the smallest unit whose
// magnitude is below 500, e.g. "499.00", "0.50K", "3.00M".
func (s Size) String() string {
	v := int64(s)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	u := units[len(units)-1]
	for _, cand := range units {
		if v < cand.factor*formatThreshold {
			u = cand
			break
		}
	}
	return fmt.Sprintf("%s%.2f%s", sign, float64(v)/float64(u.factor), u.suffix)
}

// Set implements flag.Value.
func (s *Size) Set(text string) error {
	v, err := Parse(text)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Int64 returns the byte count.
func (s Size) Int64() int64 {
	return int64(s)
}

// IsZero reports whether the size is zero bytes.
func (s Size) IsZero() bool {
	return s == 0
}

// Add returns s+o.
func (s Size) Add(o Size) Size {
	return s + o
}

// Sub returns s-o.
func (s Size) Sub(o Size) Size {
	return s - o
}

// Mul returns s scaled by an integer factor.
func (s Size) Mul(n int64) Size {
	return s * Size(n)
}

// Div returns s divided by n, truncated toward zero. n must not be zero.
func (s Size) Div(n int64) Size {
	return s / Size(n)
}

// Compare returns -1, 0 or +1 depending on whether s is less than, equal to,
// or greater than o.
func (s Size) Compare(o Size) int {
	switch {
	case s < o:
		return -1
	case s > o:
		return 1
	default:
		return 0
	}
}

// Ratio returns s/d as a dimensionless value.
// Dividing by a zero size returns ErrInvalidOperand instead of an infinity.
func (s Size) Ratio(d Size) (float64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%w: ratio of %s to zero size", archtype.ErrInvalidOperand, s)
	}
	return float64(s) / float64(d), nil
}

// Sum adds all sizes.
func Sum(sizes ...Size) Size {
	var total Size
	for _, s := range sizes {
		total += s
	}
	return total
}
