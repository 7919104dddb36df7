package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseTruncates(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"100", "100.000"},
		{"35.5", "35.500"},
		{"0.0019", "0.001"},
		{"1.9999", "1.999"},
		{"-2.5559", "-2.555"},
		{" 7.25 ", "7.250"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			a, err := Parse(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, a.String())
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1,5", "1.2.3"} {
		_, err := Parse(in)
		require.ErrorIs(t, err, ErrMalformed, in)
	}
}

func TestMulRateNeverRoundsUp(t *testing.T) {
	// 0.598 × 3 × 1.07 = 1.91958
	base, err := MustParse("0.598").Mul(3)
	require.NoError(t, err)
	require.Equal(t, "1.794", base.String())

	vip, err := base.MulRate(decimal.RequireFromString("1.07"))
	require.NoError(t, err)
	require.Equal(t, "1.919", vip.String())
}

func TestRangeLimit(t *testing.T) {
	cases := []struct {
		in   string
		want string // пусто — ErrOutOfRange
	}{
		{"1000000000000000", "1000000000000000.000"},
		{"-1000000000000000", "-1000000000000000.000"},
		{"1000000000000000.0009", "1000000000000000.000"},
		{"999999999999999.999", "999999999999999.999"},
		{"1000000000000000.001", ""},
		{"-1000000000000000.001", ""},
		{"9223372036854776", ""},
		{"100000000000000000", ""},
		{"99999999999999999999", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			a, err := Parse(tc.in)
			if tc.want == "" {
				require.ErrorIs(t, err, ErrOutOfRange)
				require.Equal(t, Zero, a)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, a.String())
		})
	}
}

func TestArithmeticRangeLimit(t *testing.T) {
	top := FromInt(MaxUnits)

	_, err := top.Mul(2)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = top.MulRate(decimal.RequireFromString("1.07"))
	require.ErrorIs(t, err, ErrOutOfRange)

	half, err := FromInt(MaxUnits / 2).Mul(2)
	require.NoError(t, err)
	require.Equal(t, top, half)

	var got struct {
		A Amount `json:"a"`
	}
	err = json.Unmarshal([]byte(`{"a":"100000000000000000"}`), &got)
	require.ErrorIs(t, err, ErrOutOfRange)
	err = json.Unmarshal([]byte(`{"a":100000000000000000}`), &got)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestJSONUsesStrings(t *testing.T) {
	raw, err := json.Marshal(struct {
		Main Amount `json:"main"`
	}{Main: MustParse("64.5")})
	require.NoError(t, err)
	require.JSONEq(t, `{"main":"64.500"}`, string(raw))

	var got struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"1.2345","b":10}`), &got))
	require.Equal(t, MustParse("1.234"), got.A)
	require.Equal(t, FromInt(10), got.B)
}

func TestScan(t *testing.T) {
	var a Amount
	require.NoError(t, a.Scan("1500.000"))
	require.Equal(t, FromInt(1500), a)
	require.NoError(t, a.Scan([]byte("0.598")))
	require.Equal(t, FromMilli(598), a)
	require.NoError(t, a.Scan(int64(3)))
	require.Equal(t, FromInt(3), a)
	require.NoError(t, a.Scan(nil))
	require.True(t, a.IsZero())
	require.Error(t, a.Scan(true))

	v, err := MustParse("12.3").Value()
	require.NoError(t, err)
	require.Equal(t, "12.300", v)
}
