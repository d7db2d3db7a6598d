package marketdata

import (
	"fmt"
	"regexp"
	"strings"
)

var jpCode = regexp.MustCompile(`^[0-9]{4}$`)

// Inbound spellings seen in brokerage exports and hand-kept watchlists.
// Only the first matching rule applies.
var symbolRules = []struct {
	pattern *regexp.Regexp
	repl    string
}{
	{regexp.MustCompile(`^"([^"]+)"$`), "$1"},     // quoted: "9432"
	{regexp.MustCompile(`^(\d{4})\.T$`), "$1"},    // yahoo suffix: 9432.T
	{regexp.MustCompile(`^(\d{4})\s.*$`), "$1"},   // trailing name: 8316 SMFG
	{regexp.MustCompile(`^\s*(\d{4})\s*$`), "$1"}, // surrounding space
}

// NormalizeSymbol reduces the various spellings of a Japanese securities
// code to the bare 4-digit form. Returns "" when the input cannot be one.
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	for _, r := range symbolRules {
		if r.pattern.MatchString(s) {
			s = r.pattern.ReplaceAllString(s, r.repl)
			break
		}
	}
	if !jpCode.MatchString(s) {
		return ""
	}
	return s
}

// IsJapaneseCode reports whether symbol normalizes to a 4-digit code.
func IsJapaneseCode(symbol string) bool {
	return NormalizeSymbol(symbol) != ""
}

// YahooSymbol converts a code to the .T-suffixed form the provider expects.
func YahooSymbol(symbol string) (string, error) {
	n := NormalizeSymbol(symbol)
	if n == "" {
		return "", fmt.Errorf("invalid securities code %q", symbol)
	}
	return n + ".T", nil
}
