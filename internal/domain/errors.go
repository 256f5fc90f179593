package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// Error is a purchase-flow error with a machine-readable kind and a
// human-readable reason that is safe to show to the end user. Errors of the
// same kind match under errors.Is regardless of their reason text.
type Error struct {
	Kind   string
	Reason string
	Err    error
}

// Sentinel errors for each failure class in the purchase flow. Use them as
// errors.Is targets; use E or Wrap to build instances carrying context.
var (
	ErrUnsupportedChain             = &Error{Kind: "unsupported_chain", Reason: "no pricing source configured for this chain"}
	ErrUnsupportedSourceForCurrency = &Error{Kind: "unsupported_source_for_currency", Reason: "no route for this currency and liquidity source"}
	ErrDecimalsUnavailable          = &Error{Kind: "decimals_unavailable", Reason: "token does not expose a readable decimals value"}
	ErrQuoteUnavailable             = &Error{Kind: "quote_unavailable", Reason: "pricing source could not produce a quote"}
	ErrInsufficientListings         = &Error{Kind: "insufficient_listings", Reason: "not enough priced listings to cover the requirement"}
	ErrAllowanceReadFailed          = &Error{Kind: "allowance_read_failed", Reason: "could not read the on-chain allowance"}
	ErrQuoteExpired                 = &Error{Kind: "quote_expired", Reason: "the quote expired, request a new one"}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by kind so that errors.Is(err, ErrQuoteUnavailable) holds
// for any quote_unavailable error, whatever its reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// E derives a new error of the given sentinel's kind with a specific reason.
func E(kind *Error, format string, args ...any) *Error {
	return &Error{Kind: kind.Kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap derives a new error of the given sentinel's kind wrapping an
// underlying cause. The sentinel's default reason is kept.
func Wrap(kind *Error, err error) *Error {
	return &Error{Kind: kind.Kind, Reason: kind.Reason, Err: err}
}
