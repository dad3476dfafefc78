package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeSpawn         ErrorType = "spawn"
	ErrorTypeIO            ErrorType = "io"
	ErrorTypeRemoteCommand ErrorType = "remote_command"
	ErrorTypeProcess       ErrorType = "process"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeCancelled     ErrorType = "cancelled"
	ErrorTypeInternal      ErrorType = "internal"
)

// EntryAlreadyExists is the text pathcom reports when an ADD targets an existing entry
const EntryAlreadyExists = "ENTRY ALREADY EXISTS"

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

// NewSpawnError reports a child process that could not be created
func NewSpawnError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeSpawn, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewProcessError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcess, message, cause)
}

func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

// NewCancelledError reports work abandoned because its context ended
func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

// RemoteCommandError is raised when the administration tool answers a command
// with an error. Segment holds the tool output captured since the command was sent.
type RemoteCommandError struct {
	*DomainError
	Segment string
}

func (e *RemoteCommandError) Unwrap() error {
	return e.DomainError
}

// NewRemoteCommandError creates a remote command error carrying the raw segment
func NewRemoteCommandError(segment string) *RemoteCommandError {
	return &RemoteCommandError{
		DomainError: NewDomainError(ErrorTypeRemoteCommand, segment, nil),
		Segment:     segment,
	}
}

// isType looks through the whole chain, a wrapping error of another type does
// not hide the cause
func isType(err error, errorType ErrorType) bool {
	for err != nil {
		if domainErr, ok := err.(*DomainError); ok && domainErr.Type == errorType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

func IsSpawnError(err error) bool {
	return isType(err, ErrorTypeSpawn)
}

func IsIOError(err error) bool {
	return isType(err, ErrorTypeIO)
}

func IsRemoteCommandError(err error) bool {
	var remoteErr *RemoteCommandError
	return errors.As(err, &remoteErr)
}

func IsProcessError(err error) bool {
	return isType(err, ErrorTypeProcess)
}

func IsTimeoutError(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

func IsCancelledError(err error) bool {
	return isType(err, ErrorTypeCancelled)
}

func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// RemoteSegment returns the captured segment of a remote command error in the chain
func RemoteSegment(err error) (string, bool) {
	var remoteErr *RemoteCommandError
	if !errors.As(err, &remoteErr) {
		return "", false
	}
	return remoteErr.Segment, true
}

// IsEntryAlreadyExists reports whether err is a remote command error whose
// segment says the entry being added already exists.
func IsEntryAlreadyExists(err error) bool {
	segment, ok := RemoteSegment(err)
	return ok && strings.Contains(segment, EntryAlreadyExists)
}
