package services

import (
	"errors"
	"fmt"
)

// ConfigurationError is raised when the process is missing a required
// setting. It is never caused by the request itself.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func NewMissingCredentialError(key string) *ConfigurationError {
	return &ConfigurationError{
		Key:     key,
		Message: fmt.Sprintf("No %s found in environment variables.", key),
	}
}

type ResolutionErrorKind string

const (
	UnsupportedFormat ResolutionErrorKind = "unsupported_format"
	MalformedInline   ResolutionErrorKind = "malformed_inline"
	FetchFailed       ResolutionErrorKind = "fetch_failed"
	FileNotFound      ResolutionErrorKind = "file_not_found"
	PathTraversal     ResolutionErrorKind = "path_traversal"
	EmptyPayload      ResolutionErrorKind = "empty_payload"
	PayloadTooLarge   ResolutionErrorKind = "payload_too_large"
)

// ResolutionError is returned when an image reference cannot be turned into
// binary content.
type ResolutionError struct {
	Kind    ResolutionErrorKind
	Message string
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

type GatewayErrorKind string

const (
	ConnectionFailed GatewayErrorKind = "connection_failed"
	AuthRejected     GatewayErrorKind = "auth_rejected"
	BackendJobFailed GatewayErrorKind = "backend_job_failed"
)

// GatewayError covers everything that can go wrong between us and the hosted
// model. Kind lets callers tell network, auth and remote job failures apart.
type GatewayError struct {
	Kind    GatewayErrorKind
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

type ExtractionErrorKind string

const (
	EmptyResult     ExtractionErrorKind = "empty_result"
	MissingLocation ExtractionErrorKind = "missing_location"
)

type ExtractionError struct {
	Kind    ExtractionErrorKind
	Message string
}

func (e *ExtractionError) Error() string {
	return e.Message
}

// ErrorKind returns a short tag for reporting, "unknown" for errors outside
// the taxonomy.
func ErrorKind(err error) string {
	var configErr *ConfigurationError
	var resolutionErr *ResolutionError
	var gatewayErr *GatewayError
	var extractionErr *ExtractionError
	switch {
	case errors.As(err, &configErr):
		return "configuration"
	case errors.As(err, &resolutionErr):
		return string(resolutionErr.Kind)
	case errors.As(err, &gatewayErr):
		return string(gatewayErr.Kind)
	case errors.As(err, &extractionErr):
		return string(extractionErr.Kind)
	}
	return "unknown"
}
