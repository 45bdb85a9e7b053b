package engine

import "strings"

// errClass maps a submission failure to its backoff policy.
type errClass int

const (
	errGeneric errClass = iota
	errNoMatch
	errInsufficient
	errPriceRange
)

// classifyError interprets CLOB error text. The API does not return
// structured error codes, so this is the single place where error
// strings are matched; nothing else in the engine looks at message text.
func classifyError(err error) errClass {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no match"),
		strings.Contains(msg, "couldn't match"),
		strings.Contains(msg, "order couldnt be fully filled"),
		strings.Contains(msg, "fok order not filled"):
		return errNoMatch
	case strings.Contains(msg, "not enough balance"),
		strings.Contains(msg, "insufficient"),
		strings.Contains(msg, "allowance"):
		return errInsufficient
	case strings.Contains(msg, "invalid price"),
		strings.Contains(msg, "price out of range"),
		strings.Contains(msg, "min tick"),
		strings.Contains(msg, "max price"):
		return errPriceRange
	default:
		return errGeneric
	}
}
