package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in       string
		pence    int64
		currency string
	}{
		{"£1,299.00", 129900, "GBP"},
		{"£899", 89900, "GBP"},
		{"Now: £449.99", 44999, "GBP"},
		{"1299.00", 129900, "GBP"},
		{"£0.99", 99, "GBP"},
		{"€249.50", 24950, "EUR"},
		{"$1,099.95", 109995, "USD"},
		{"£1,299.5", 129950, "GBP"},
	}
	for _, c := range cases {
		pence, currency, err := ParsePrice(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.pence, pence, c.in)
		assert.Equal(t, c.currency, currency, c.in)
	}
}

func TestParsePriceRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "out of stock", "£"} {
		_, _, err := ParsePrice(in)
		assert.Error(t, err, "%q", in)
	}
}

func TestFormatPence(t *testing.T) {
	assert.Equal(t, "1299.00", FormatPence(129900))
	assert.Equal(t, "0.99", FormatPence(99))
	assert.Equal(t, "0.00", FormatPence(0))
	assert.Equal(t, "-12.50", FormatPence(-1250))
}
