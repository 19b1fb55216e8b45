package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Prices are carried as integer minor units (pence) so no float arithmetic
// ever touches a money value.

var priceRe = regexp.MustCompile(`(\d+(?:,\d{3})*)(?:\.(\d{1,2}))?`)

var currencySymbols = map[string]string{
	"£": "GBP",
	"€": "EUR",
	"$": "USD",
}

// ParsePrice extracts the first money amount from scraped text such as
// "£1,299.00" or "Now: £899". It returns the amount in pence and the
// currency code (defaulting to GBP when no symbol is present).
func ParsePrice(text string) (pence int64, currency string, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, "", fmt.Errorf("empty price text")
	}

	currency = "GBP"
	for sym, code := range currencySymbols {
		if strings.Contains(text, sym) {
			currency = code
			break
		}
	}

	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, "", fmt.Errorf("no amount found in %q", text)
	}

	whole, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse amount %q: %w", m[1], err)
	}

	var frac int64
	if m[2] != "" {
		f := m[2]
		if len(f) == 1 {
			f += "0"
		}
		frac, err = strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, "", fmt.Errorf("parse fraction %q: %w", m[2], err)
		}
	}

	return whole*100 + frac, currency, nil
}

// FormatPence renders pence as a decimal string, e.g. 129900 -> "1299.00".
func FormatPence(pence int64) string {
	sign := ""
	if pence < 0 {
		sign = "-"
		pence = -pence
	}
	return fmt.Sprintf("%s%d.%02d", sign, pence/100, pence%100)
}
