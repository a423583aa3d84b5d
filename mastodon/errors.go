package mastodon

import (
	"errors"
	"fmt"
)

// ErrAccountNotFound is returned when upstream has no account for a handle.
// It is permanent and should be shown to the user instead of retried.
var ErrAccountNotFound = errors.New("account not found")

// ErrMalformedData marks upstream payloads we cannot make sense of, such as
// an unparseable timestamp. It only ever appears wrapped in a *FetchError.
var ErrMalformedData = errors.New("malformed upstream data")

// FetchError is any transport failure, non-success status other than 404 or
// malformed payload while talking to upstream.
type FetchError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op + ": fetch error"
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Malformed wraps err as malformed upstream data for operation op
func Malformed(op string, err error) *FetchError {
	return &FetchError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedData, err)}
}

// IsFetchError reports whether err is (or wraps) a *FetchError
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsPermanent reports errors that a retry cannot fix
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrMalformedData)
}
