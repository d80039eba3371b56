package block

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned for a block version other than 0.1a or 0.3.
	ErrUnsupportedVersion = errors.New("unsupported block version")
	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing field")
	// ErrInvalidField is returned when a field cannot be converted.
	ErrInvalidField = errors.New("invalid field")
	// ErrMalformed is returned when the payload is not a JSON object.
	ErrMalformed = errors.New("malformed payload")
)

// DecodeError describes why a block or transaction record could not be decoded.
type DecodeError struct {
	Kind    error
	Field   string
	Version string
	Err     error
}

func (e *DecodeError) Error() string {
	var msg string
	switch {
	case errors.Is(e.Kind, ErrUnsupportedVersion):
		msg = fmt.Sprintf("%s %q", e.Kind, e.Version)
	case e.Field != "":
		msg = fmt.Sprintf("%s %q", e.Kind, e.Field)
	default:
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func missingField(name string) error {
	return &DecodeError{Kind: ErrMissingField, Field: name}
}

func invalidField(name string, err error) error {
	return &DecodeError{Kind: ErrInvalidField, Field: name, Err: err}
}
