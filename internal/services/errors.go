package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrIntegrity     = errors.New("data integrity issue")
	ErrPersistence   = errors.New("persistence failure")
	ErrConflict      = errors.New("conflict")
)

// ErrorKind is the coarse classification used in logs and statement records.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindTimeout       ErrorKind = "timeout"
	KindTransient     ErrorKind = "transient"
	KindIntegrity     ErrorKind = "integrity"
	KindPersistence   ErrorKind = "persistence"
	KindConflict      ErrorKind = "conflict"
	KindUnknown       ErrorKind = "unknown"
)

// ServiceError carries the marker and location of a failure.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	marker := "service failure"
	if e.Marker != nil {
		marker = e.Marker.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", marker, detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", marker, detail)
}

func (e *ServiceError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the log-friendly breakdown of an error.
type ErrorDetails struct {
	Kind      ErrorKind
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts classification data from err. Errors not produced by Wrap
// are reported with KindUnknown and their full text as the message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: Classify(err), Message: err.Error()}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		details.Stage = svcErr.Stage
		details.Operation = svcErr.Operation
		if svcErr.Message != "" {
			details.Message = svcErr.Message
		}
		details.Cause = svcErr.Cause
	}
	details.Hint = hintFor(details.Kind)
	return details
}

// Classify maps an error to its ErrorKind.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err must abort a statement run. Transient and
// integrity issues are absorbed per row; everything else fails the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case KindTransient, KindIntegrity:
		return false
	default:
		return true
	}
}

func hintFor(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "check the statement file layout and required columns"
	case KindConfiguration:
		return "review the configuration file"
	case KindNotFound:
		return "verify the identifier exists"
	case KindTimeout:
		return "increase processing.task_timeout_minutes or split the statement"
	case KindTransient:
		return "retry; the collaborator may be unavailable"
	case KindIntegrity:
		return "review catalog shares and identifiers"
	case KindPersistence:
		return "check database access and disk space"
	case KindConflict:
		return "another worker may be processing the same statement"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
