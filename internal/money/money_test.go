package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxScale int
		wantErr  bool
	}{
		{name: "simple money", input: "500.00", maxScale: 2},
		{name: "integer", input: "10", maxScale: 2},
		{name: "negative", input: "-3.25", maxScale: 2},
		{name: "quantity six places", input: "0.000001", maxScale: 6},
		{name: "too many fraction digits", input: "1.001", maxScale: 2, wantErr: true},
		{name: "seven fraction digits", input: "1.0000001", maxScale: 6, wantErr: true},
		{name: "sixteen integer digits", input: "1234567890123456.00", maxScale: 2, wantErr: true},
		{name: "fifteen integer digits ok", input: "123456789012345.00", maxScale: 2},
		{name: "empty", input: "", maxScale: 2, wantErr: true},
		{name: "garbage", input: "12a.00", maxScale: 2, wantErr: true},
		{name: "float noise", input: "0.1000000000000000055511", maxScale: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.input, tt.maxScale)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrParse)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, v.String())
		})
	}
}

func TestArithmetic(t *testing.T) {
	a := MustParse("10")
	b := MustParse("50.00")

	assert.Equal(t, "500", a.Mul(b).String())
	assert.Equal(t, "60", a.Add(b).String())
	assert.Equal(t, "-40", a.Sub(b).String())

	q, ok := b.Div(MustParse("3"))
	require.True(t, ok)
	assert.Equal(t, "16.666667", q.String())

	_, ok = b.Div(Zero())
	assert.False(t, ok)
}

func TestDivBankersRounding(t *testing.T) {
	// 0.0000025 rounds half-even to 0.000002, not 0.000003.
	q, ok := MustParse("0.000025").Div(MustParse("10"))
	require.True(t, ok)
	assert.Equal(t, "0.000002", q.String())

	// 0.0000035 rounds half-even up to 0.000004.
	q, ok = MustParse("0.000035").Div(MustParse("10"))
	require.True(t, ok)
	assert.Equal(t, "0.000004", q.String())
}

func TestAddCommutesExactly(t *testing.T) {
	a := MustParse("123.45")
	b := MustParse("0.055555")
	assert.True(t, a.Add(b).EqualsWithin(b.Add(a), Zero()))
}

func TestEqualsWithin(t *testing.T) {
	a := MustParse("100.00")
	assert.True(t, a.EqualsWithin(MustParse("100.01"), MoneyTolerance))
	assert.True(t, a.EqualsWithin(MustParse("99.99"), MoneyTolerance))
	assert.False(t, a.EqualsWithin(MustParse("100.02"), MoneyTolerance))
	assert.True(t, a.EqualsWithin(a, Zero()))
}

func TestWithinRelative(t *testing.T) {
	po := MustParse("50.00")
	assert.True(t, po.WithinRelative(MustParse("50.00"), PriceRelTolerance))
	assert.True(t, po.WithinRelative(MustParse("50.05"), PriceRelTolerance))  // exactly 0.1%
	assert.False(t, po.WithinRelative(MustParse("50.50"), PriceRelTolerance)) // 1%
	assert.True(t, Zero().WithinRelative(Zero(), PriceRelTolerance))
	assert.False(t, Zero().WithinRelative(MustParse("1.00"), PriceRelTolerance))
}
