package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
}

var zeroDecimalCurrencies = map[string]bool{
	"jpy": true,
	"krw": true,
}

// FormatMoney renders minor units for display, e.g. 6997 usd -> "$69.97".
func FormatMoney(amount int64, currency string) string {
	cur := strings.ToLower(currency)

	var s string
	if zeroDecimalCurrencies[cur] {
		s = decimal.New(amount, 0).StringFixed(0)
	} else {
		s = decimal.New(amount, -2).StringFixed(2)
	}

	if sym, ok := currencySymbols[cur]; ok {
		if strings.HasPrefix(s, "-") {
			return "-" + sym + s[1:]
		}
		return sym + s
	}
	return fmt.Sprintf("%s %s", s, strings.ToUpper(cur))
}
