package exchange

import (
	"errors"
	"fmt"
	"strings"
)

var ErrExchangeFailed = errors.New("exchange: token exchange failed")

// ExchangeError is a classified exchange failure. StatusCode is zero when
// the failure did not carry an HTTP status (transport errors, malformed
// responses); throttle classification only applies when it is set.
type ExchangeError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Cause      error
}

func (e *ExchangeError) Error() string {
	if e == nil {
		return ErrExchangeFailed.Error()
	}
	base := ErrExchangeFailed.Error()
	if strings.TrimSpace(e.ErrorCode) != "" {
		base += ": " + strings.TrimSpace(e.ErrorCode)
	}
	if strings.TrimSpace(e.Message) != "" {
		base += ": " + strings.TrimSpace(e.Message)
	}
	if e.StatusCode > 0 {
		base += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}
	return base
}

func (e *ExchangeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// StatusOf extracts the HTTP status from a status-carrying exchange failure.
func StatusOf(err error) (int, bool) {
	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) && exchangeErr.StatusCode > 0 {
		return exchangeErr.StatusCode, true
	}
	return 0, false
}
