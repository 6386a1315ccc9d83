package sizing

import (
	"flag"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/repack/internal/archtype"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Size
	}{
		{"plain bytes", "1500", 1500},
		{"zero", "0", 0},
		{"kilo", "3K", 3_000},
		{"mega", "3M", 3_000_000},
		{"giga", "2G", 2_000_000_000},
		{"fraction kilo", "1.25K", 1_250},
		{"fraction mega", "0.50M", 500_000},
		{"fraction bytes truncated", "499.99", 499},
		{"negative", "-1.00K", -1_000},
		{"long fraction", "1.1234567891G", 1_123_456_789},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, input := range []string{"", "M", "3T", "3k", "1,5M", " 3M", "3M ", "1.M", "abc", "99999999999999999999"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.ErrorIs(t, err, archtype.ErrFormat)
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size Size
		want string
	}{
		{0, "0.00"},
		{499, "499.00"},
		{500, "0.50K"},
		{1_500, "1.50K"},
		{499_000, "499.00K"},
		{3_000_000, "3.00M"},
		{255_461_122, "255.46M"},
		{750_000_000, "0.75G"},
		{2_000_000_000_000, "2000.00G"},
		{-2_500, "-2.50K"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.size.String())
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"10", "499", "1K", "1.50K", "3M", "12.34M", "1G", "480.25G"} {
		t.Run(text, func(t *testing.T) {
			parsed := MustParse(text)
			again := MustParse(parsed.String())
			assert.Equal(t, parsed.String(), again.String())
		})
	}

	for _, v := range []Size{1, 777, 1_234_567, 98_765_432_109, -4_321_000} {
		got := MustParse(v.String())
		unit := float64(units[len(units)-1].factor)
		for _, u := range units {
			if math.Abs(float64(v)) < float64(u.factor*formatThreshold) {
				unit = float64(u.factor)
				break
			}
		}
		assert.InDelta(t, float64(v), float64(got), 0.01*unit, "value %d", v)
	}
}

func TestArithmetic(t *testing.T) {
	t.Parallel()

	a, b, c := Size(1_234), Size(98_765), Size(-50)
	assert.Equal(t, a.Add(b).Add(c), a.Add(b.Add(c)))
	assert.Equal(t, a.Add(b), b.Add(a))
	assert.Equal(t, Size(97_531), b.Sub(a))
	assert.Equal(t, Size(3_702), a.Mul(3))
	assert.Equal(t, Size(617), a.Div(2))
	assert.Equal(t, Size(99_949), Sum(a, b, c))
	assert.Equal(t, Size(0), Sum())
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, Size(0).IsZero())
}

func TestRatio(t *testing.T) {
	t.Parallel()

	r, err := Size(48_000_000).Ratio(Size(50_000_000))
	require.NoError(t, err)
	assert.InDelta(t, 0.96, r, 1e-9)

	_, err = Size(10).Ratio(0)
	require.ErrorIs(t, err, archtype.ErrInvalidOperand)
}

func TestFlagValue(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	limit := MustParse("3M")
	fs.Var(&limit, "limit", "size limit")

	require.NoError(t, fs.Parse([]string{"-limit", "1.5M"}))
	assert.Equal(t, Size(1_500_000), limit)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(nopWriter{})
	fs.Var(&limit, "limit", "size limit")
	require.Error(t, fs.Parse([]string{"-limit", "lots"}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
