package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want Money
	}{
		{"10", 1000},
		{"10.5", 1050},
		{"10.50", 1050},
		{"0.01", 1},
		{".5", 50},
		{"7.", 700},
		{"+5", 500},
		{"-5", -500},
		{"-0.05", -5},
		{" 3.00 ", 300},
		{"999.99", 99999},
		{"92233720368547758.07", 9223372036854775807},
		{"-92233720368547758.08", -9223372036854775808},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMoneyRejectsMalformed(t *testing.T) {
	for _, in := range []string{
		"", " ", ".", "-.", "+", "1.+5", "1.-5", "-+5", "+-5", "--1",
		"1.2.3", "abc", "1e2", "1,000", "RM5", "1.234", "1.500",
		"92233720368547758.08", "-92233720368547758.09",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseMoney(in)
			assert.Error(t, err)
		})
	}
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "0.00", Money(0).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "-0.05", Money(-5).String())
	assert.Equal(t, "-12.30", Money(-1230).String())
	assert.Equal(t, "99999.00", MustMoney("999.99").Mul(100).String())
}

func TestMoneyJSON(t *testing.T) {
	type payload struct {
		Amount Money `json:"amount"`
	}

	out, err := json.Marshal(payload{Amount: 3050})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":30.50}`, string(out))

	var back payload
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, Money(3050), back.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":"12.3"}`), &back))
	assert.Equal(t, Money(1230), back.Amount)

	for _, body := range []string{`{"amount":"1.+5"}`, `{"amount":"."}`, `{"amount":"-+5"}`, `{"amount":1.005}`} {
		var p payload
		assert.Error(t, json.Unmarshal([]byte(body), &p), body)
	}
}

func TestMoneyScanValue(t *testing.T) {
	var m Money

	require.NoError(t, m.Scan([]byte("12.30")))
	assert.Equal(t, Money(1230), m)

	v, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, "12.30", v)

	require.NoError(t, m.Scan("-4.50"))
	assert.Equal(t, Money(-450), m)

	require.NoError(t, m.Scan(int64(7)))
	assert.Equal(t, Money(700), m)

	require.NoError(t, m.Scan(0.1+0.2))
	assert.Equal(t, Money(30), m)

	require.NoError(t, m.Scan(nil))
	assert.Equal(t, Money(0), m)

	assert.Error(t, m.Scan([]byte("1.+5")))
	assert.Error(t, m.Scan(true))
}
