package meteoam

import (
	"errors"
	"fmt"
)

var (
	ErrCannotConnect = errors.New("cannot connect to meteoam")
	ErrTimeout       = errors.New("timeout fetching meteoam data")
)

// ParseError is returned when a response arrived but could not be turned
// into a snapshot.
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("error parsing meteoam payload: %s", e.Msg)
	}
	return fmt.Sprintf("error parsing meteoam payload: %s: %v", e.Msg, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseError(err error, format string, args ...any) *ParseError {
	return &ParseError{Msg: fmt.Sprintf(format, args...), Err: err}
}
