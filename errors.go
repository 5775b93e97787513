package chainquery

import (
	"errors"
	"fmt"
)

// ErrNoClient is returned when a read call is issued without an established
// chain-client context. It is a configuration error and is never retried.
var ErrNoClient = errors.New("no chain client context established")

// ErrDisconnected is used to fail calls that were still queued when their
// connection context was torn down.
var ErrDisconnected = errors.New("connection closed with calls pending")

// TransportError wraps a network or RPC failure reported by the batch
// executor. Transport errors are retryable.
type TransportError struct {
	Err error
}

func NewTransportError(err error) *TransportError {
	return &TransportError{Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExhaustedRetriesError is the terminal form of a transport failure once the
// attempt limit is reached. Last holds the error from the final attempt.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}

// IsRetryable reports whether a failed read attempt may be retried.
// Configuration errors and disconnection are final; everything else,
// transport failures included, is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoClient) || errors.Is(err, ErrDisconnected) {
		return false
	}
	var exhausted *ExhaustedRetriesError
	if errors.As(err, &exhausted) {
		return false
	}
	return true
}
