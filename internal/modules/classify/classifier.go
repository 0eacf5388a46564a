// Package classify decides whether a transaction description represents a
// payment (account-leveling activity) or spend. The heuristic is a flat rule
// table of substrings; it is intentionally coarse, and downstream spend
// totals depend on it being stable.
package classify

import "strings"

// paymentKeywords is the fixed vocabulary of substrings associated with
// account-leveling activity. Matching is case-insensitive.
var paymentKeywords = []string{
	"payment",
	"pymt",
	"pay ment",
	"autopay",
	"auto pay",
	"auto-pay",
	"bill pay",
	"billpay",
	"bill-pay",
	"ach transfer",
	"ach pmt",
	"ach debit",
	"ach credit",
	"direct debit",
	"directpay",
	"e-payment",
	"epay",
	"online pmt",
	"wire transfer",
	"wire trf",
	"balance transfer",
	"thank you",
}

// Classifier reports whether transaction descriptions represent payments.
// The zero value uses the built-in vocabulary; per-issuer overrides extend
// it with issuer-specific phrasing rather than growing ad hoc conditionals.
type Classifier struct {
	overrides []string
}

// New returns a classifier using only the built-in vocabulary.
func New() *Classifier {
	return &Classifier{}
}

// NewWithOverrides returns a classifier whose vocabulary is extended with
// issuer-specific payment phrases.
func NewWithOverrides(overrides []string) *Classifier {
	lowered := make([]string, 0, len(overrides))
	for _, o := range overrides {
		o = strings.ToLower(strings.TrimSpace(o))
		if o != "" {
			lowered = append(lowered, o)
		}
	}
	return &Classifier{overrides: lowered}
}

// IsPayment reports whether the description matches the payment vocabulary,
// or contains "transfer" without also containing "fee" or "charge" (so
// transfer-related fees stay classified as spend). Pure, no side effects.
func (c *Classifier) IsPayment(description string) bool {
	desc := strings.ToLower(description)

	for _, kw := range paymentKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	for _, kw := range c.overrides {
		if strings.Contains(desc, kw) {
			return true
		}
	}

	// Generic transfers level the account balance, but transfer fees are
	// real spend and must not be swallowed by the transfer rule.
	if strings.Contains(desc, "transfer") &&
		!strings.Contains(desc, "fee") &&
		!strings.Contains(desc, "charge") {
		return true
	}

	return false
}
