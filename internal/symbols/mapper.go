package symbols

import "strings"

// NormalizeCurrency converts an exchange-native currency code to its
// canonical form. BitMEX quotes bitcoin as XBT; Binance prefixes some
// futures bases with a 1000x multiplier.
func NormalizeCurrency(exchange, code string) string {
	code = strings.ToUpper(code)
	switch strings.ToLower(exchange) {
	case "bitmex":
		if code == "XBT" {
			return "BTC"
		}
	case "binance":
		switch code {
		case "1000BONK":
			return "BONK"
		case "1000PEPE":
			return "PEPE"
		case "1000SHIB":
			return "SHIB"
		}
	}
	return code
}

// Pair builds the normalized "BASE/QUOTE" pair identifier from
// exchange-native currency codes.
func Pair(exchange, base, quote string) string {
	return NormalizeCurrency(exchange, base) + "/" + NormalizeCurrency(exchange, quote)
}
