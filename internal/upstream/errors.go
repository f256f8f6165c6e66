package upstream

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks an upstream reply that could not be decoded into the expected shape.
var ErrMalformedResponse = errors.New("malformed upstream response")

// AuthError reports a failed identity exchange. Code carries the upstream errcode
// or the HTTP status; it is zero for transport failures.
type AuthError struct {
	Code    int
	Message string
	Err     error
}

func (e *AuthError) Error() string { return describe(e.Message, e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// RelayError reports a failed forward to the message endpoint.
type RelayError struct {
	Code    int
	Message string
	Err     error
}

func (e *RelayError) Error() string { return describe(e.Message, e.Err) }
func (e *RelayError) Unwrap() error { return e.Err }

func describe(msg string, err error) string {
	switch {
	case err != nil && msg != "":
		return fmt.Sprintf("%s: %v", msg, err)
	case err != nil:
		return err.Error()
	}
	return msg
}
