package binance

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when a signed operation is attempted
// with no credentials configured.
var ErrNotAuthenticated = errors.New("api credentials not set")

// ErrUnknownSymbol is returned when a symbol is absent from the
// exchange's published instrument set.
var ErrUnknownSymbol = errors.New("symbol not listed on exchange")

// Error codes from the exchange error envelope.
const (
	codeUnknownOrder = -2011
)

// APIError is a business-rule rejection reported by the exchange for a
// well-formed request: the HTTP exchange succeeded but the order was
// refused.
type APIError struct {
	Status  int
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange rejected request: code=%d msg=%q (http %d)", e.Code, e.Message, e.Status)
}

// IsUnknownOrder reports whether the rejection means the order is not in
// the open set anymore (already canceled, filled or never existed).
// Callers should treat it as a reconciliation signal, not a hard error.
func (e *APIError) IsUnknownOrder() bool {
	return e.Code == codeUnknownOrder
}

// TransportError wraps a network-level failure: timeout, DNS, connection
// reset or a canceled context. The request may or may not have reached
// the exchange.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUnknownOrder reports whether err is an exchange rejection with the
// unknown-order subcode.
func IsUnknownOrder(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsUnknownOrder()
}
