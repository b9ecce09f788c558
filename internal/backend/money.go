package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a raw loan amount into a float. The backend sends
// amounts either as JSON numbers or as currency-formatted strings like
// "₦100,000.00"; both forms of the same amount must contribute the same
// value to a sum.
func ParseAmount(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("amount is empty")
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("amount is neither number nor string: %s", string(raw))
	}
	return ParseAmountString(str)
}

// ParseAmountString strips currency symbols and separators, then parses
// the remainder exactly.
func ParseAmountString(s string) (float64, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("unparseable amount %q", s)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("unparseable amount %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}
