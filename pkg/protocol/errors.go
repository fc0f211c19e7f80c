package protocol

import (
	"errors"
	"fmt"
)

// Decoding errors. These are wrapped by *DecodeError; match them with
// errors.Is.
var (
	ErrNotMap        = errors.New("protocol: frame is not a msgpack map")
	ErrUnknownKind   = errors.New("protocol: unknown message kind")
	ErrMissingField  = errors.New("protocol: missing required field")
	ErrInvalidField  = errors.New("protocol: invalid field value")
	ErrEncodeUnknown = errors.New("protocol: cannot encode unknown body type")
)

// DecodeError describes why a frame was rejected. Kind and Field are set
// when the failure was localized that far.
type DecodeError struct {
	Kind  Kind
	Field string
	Err   error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	switch {
	case e.Kind != "" && e.Field != "":
		return fmt.Sprintf("decode %s: field %q: %v", e.Kind, e.Field, e.Err)
	case e.Kind != "":
		return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("decode: %v", e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

func missingField(k Kind, field string) *DecodeError {
	return &DecodeError{Kind: k, Field: field, Err: ErrMissingField}
}

func invalidField(k Kind, field string, detail string) *DecodeError {
	return &DecodeError{Kind: k, Field: field, Err: fmt.Errorf("%w: %s", ErrInvalidField, detail)}
}
