package mpesa

import (
	"errors"
	"fmt"
)

// ErrStaticCredentialMissing is returned when a caller asks for the static
// security credential but none is configured.
var ErrStaticCredentialMissing = errors.New("static security credential is not configured")

// ValidationError reports malformed caller input. It is raised before any
// remote call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigurationError reports a missing or unusable setting discovered at the
// point of use.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Setting, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CryptoError reports a failure to encrypt the initiator password.
type CryptoError struct {
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("encrypt security credential: %v", e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// UpstreamError wraps a non-2xx status or a transport failure from Daraja.
// StatusCode is zero when no response was received.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": upstream failure"
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
