package wire

import (
	"errors"
	"fmt"
)

// ErrNotBeacon is returned for datagrams that do not carry the beacon header.
// Such datagrams are foreign traffic and are dropped without logging an error.
var ErrNotBeacon = errors.New("not a discovery beacon")

// ErrInvalidUTF8 is returned when encoding a message whose text is not valid
// UTF-8. Neither encoding can carry such bytes unchanged.
var ErrInvalidUTF8 = errors.New("message text is not valid UTF-8")

// DecodeError reports bytes that could not be turned into a beacon or message
type DecodeError struct {
	What   string // "beacon" or "message"
	Reason string
	Err    error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed %s: %s: %v", e.What, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed %s: %s", e.What, e.Reason)
}

// Unwrap returns the underlying parse error, if any
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func beaconError(reason string) *DecodeError {
	return &DecodeError{What: "beacon", Reason: reason}
}

func messageError(reason string, err error) *DecodeError {
	return &DecodeError{What: "message", Reason: reason, Err: err}
}

// IsDecodeError reports whether err is, or wraps, a DecodeError
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
