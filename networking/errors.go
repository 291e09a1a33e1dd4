package networking

import (
	"errors"
	"fmt"
	"go_msgq_copy/networking/status"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrFileOpenFailed  = errors.New("file open failed")
	ErrReadFailed      = errors.New("read failed")
	ErrPayloadTooLarge = errors.New("payload does not fit the record")
	ErrMalformedRecord = errors.New("malformed record")
	ErrUnknownStatus   = errors.New("unknown transfer status")
)

// classified is an error of a known class together with its particulars
type classified struct {
	class  error
	detail string
}

func (c *classified) Error() string {
	return c.class.Error() + ": " + c.detail
}

func (c *classified) Unwrap() error {
	return c.class
}

// classify returns an error of given class described by detail
func classify(class error, format string, args ...any) error {
	return &classified{class: class, detail: fmt.Sprintf(format, args...)}
}

// Detail returns the text of err without its class prefix
func Detail(err error) string {
	var c *classified
	if errors.As(err, &c) {
		return c.detail
	}
	return err.Error()
}

// StatusError maps a sentinel status to the error it reports, nil for OK
func StatusError(code int32, detail string) error {
	var err error
	switch code {
	case status.OK:
		return nil
	case status.FILEOPENFAILED:
		err = ErrFileOpenFailed
	case status.READFAILED:
		err = ErrReadFailed
	case status.INVALIDREQUEST:
		err = ErrInvalidRequest
	default:
		err = fmt.Errorf("%w %d", ErrUnknownStatus, code)
	}
	if detail == "" {
		return err
	}
	return &classified{class: err, detail: detail}
}

// StatusOf returns the status code reporting err
func StatusOf(err error) int32 {
	switch {
	case err == nil:
		return status.OK
	case errors.Is(err, ErrFileOpenFailed):
		return status.FILEOPENFAILED
	case errors.Is(err, ErrInvalidRequest):
		return status.INVALIDREQUEST
	default:
		return status.READFAILED
	}
}
