package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrencyScale(t *testing.T) {
	assert.Equal(t, int32(0), CurrencyScale("KRW"))
	assert.Equal(t, int32(0), CurrencyScale("jpy"))
	assert.Equal(t, int32(2), CurrencyScale("USD"))
	assert.Equal(t, int32(2), CurrencyScale("EUR"))
}

func TestRoundAmount(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"10000.5", "KRW", "10001"},
		{"10000.49", "KRW", "10000"},
		{"1.005", "USD", "1.01"},
		{"1.004", "USD", "1"},
		{"-2.5", "KRW", "-3"},
	}

	for _, tt := range tests {
		t.Run(tt.amount+tt.currency, func(t *testing.T) {
			got := RoundAmount(dec(tt.amount), tt.currency)
			assert.True(t, dec(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestApplyPercentage(t *testing.T) {
	assert.Equal(t, "10000", ApplyPercentage(dec("200000"), dec("5")).String())
	assert.Equal(t, "0.0725", ApplyPercentage(dec("1"), dec("7.25")).String())
}
