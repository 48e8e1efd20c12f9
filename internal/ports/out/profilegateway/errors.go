package profilegateway

import (
	"errors"
	"fmt"
)

// NetworkError is a transport failure or a non-2xx response.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("profile %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("profile %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SchemaError reports a remote payload that does not match the wire contract.
type SchemaError struct {
	Key    string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Key == "" {
		return "profile schema: " + e.Reason
	}
	return fmt.Sprintf("profile schema: %s: %s", e.Key, e.Reason)
}

// ValidationError is the remote side rejecting a save. Message is surfaced verbatim.
type ValidationError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
}

func (e *ValidationError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("profile rejected (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("profile rejected (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
