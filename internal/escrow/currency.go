package escrow

import "fmt"

// Currencies the platform settles in. Codes are ISO-4217, lowercase on the
// wire and in storage; the gateway adapter upcases where its API wants it.
var supportedCurrencies = map[string]struct{}{
	"ngn": {},
	"usd": {},
	"gbp": {},
	"eur": {},
	"ghs": {},
	"kes": {},
	"zar": {},
}

// ValidateCurrency checks the code against the supported set before any
// gateway call or ledger write.
func ValidateCurrency(code string) error {
	if _, ok := supportedCurrencies[code]; !ok {
		return fmt.Errorf("currency %q: %w", code, ErrUnsupportedCurrency)
	}
	return nil
}
