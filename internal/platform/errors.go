package platform

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/temirov/trustx-migrate/internal/shared"
)

const (
	authErrorTemplateConstant                 = "%s rejected credentials for %s (status %d)"
	authErrorWithCauseTemplateConstant        = "%s rejected credentials for %s: %v"
	notFoundErrorTemplateConstant             = "%s: %s not found"
	validationErrorTemplateConstant           = "%s rejected by platform (status %d): %s"
	transientErrorStatusTemplateConstant      = "%s failed transiently (status %d)"
	transientErrorCauseTemplateConstant       = "%s failed transiently: %v"
	operationErrorMessageTemplateConstant     = "%s operation failed"
	operationErrorWithCauseTemplateConstant   = "%s operation failed: %v"
	responseDecodingErrorTemplateConstant     = "%s response decoding failed: %v"
	payloadEncodingErrorTemplateConstant      = "%s payload encoding failed: %v"
	missingContentErrorTemplateConstant       = "%s response is missing %s"
	invalidInputErrorTemplateConstant         = "%s: %s"
	environmentUnnamedValueConstant           = "environment"
	maximumValidationMessageLengthConstant    = 512
	validationMessageTruncationSuffixConstant = "..."
)

// OperationName describes a named platform request supported by the client.
type OperationName string

// AuthError reports a rejected bearer token or API key. It is never retried.
type AuthError struct {
	Environment string
	Operation   OperationName
	StatusCode  int
	Cause       error
}

// Error describes the authentication failure.
func (authError AuthError) Error() string {
	environmentName := authError.Environment
	if len(environmentName) == 0 {
		environmentName = environmentUnnamedValueConstant
	}
	if authError.Cause != nil {
		return fmt.Sprintf(authErrorWithCauseTemplateConstant, authError.Operation, environmentName, authError.Cause)
	}
	return fmt.Sprintf(authErrorTemplateConstant, authError.Operation, environmentName, authError.StatusCode)
}

// Unwrap exposes the underlying cause.
func (authError AuthError) Unwrap() error {
	return authError.Cause
}

// NotFoundError reports a missing resource or a missing asset version.
type NotFoundError struct {
	Operation  OperationName
	Resource   string
	StatusCode int
}

// Error describes the missing resource.
func (notFoundError NotFoundError) Error() string {
	return fmt.Sprintf(notFoundErrorTemplateConstant, notFoundError.Operation, notFoundError.Resource)
}

// ValidationError reports a 4xx response other than authentication failures and 404.
type ValidationError struct {
	Operation  OperationName
	StatusCode int
	Message    string
}

// Error describes the rejected request.
func (validationError ValidationError) Error() string {
	return fmt.Sprintf(validationErrorTemplateConstant, validationError.Operation, validationError.StatusCode, validationError.Message)
}

// TransientNetworkError reports timeouts, connection failures, server errors and an open circuit.
type TransientNetworkError struct {
	Operation  OperationName
	StatusCode int
	Cause      error
}

// Error describes the transient failure.
func (transientError TransientNetworkError) Error() string {
	if transientError.Cause != nil {
		return fmt.Sprintf(transientErrorCauseTemplateConstant, transientError.Operation, transientError.Cause)
	}
	return fmt.Sprintf(transientErrorStatusTemplateConstant, transientError.Operation, transientError.StatusCode)
}

// Unwrap exposes the underlying transport error.
func (transientError TransientNetworkError) Unwrap() error {
	return transientError.Cause
}

// OperationError wraps request construction and cancellation failures.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates JSON or base64 decoding failures.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying decoding error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// PayloadEncodingError indicates JSON encoding issues.
type PayloadEncodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the encoding failure.
func (encodingError PayloadEncodingError) Error() string {
	return fmt.Sprintf(payloadEncodingErrorTemplateConstant, encodingError.Operation, encodingError.Cause)
}

// Unwrap exposes the underlying error.
func (encodingError PayloadEncodingError) Unwrap() error {
	return encodingError.Cause
}

// MissingContentError indicates a well-formed response without the expected payload.
type MissingContentError struct {
	Operation OperationName
	Field     string
}

// Error describes the missing field.
func (contentError MissingContentError) Error() string {
	return fmt.Sprintf(missingContentErrorTemplateConstant, contentError.Operation, contentError.Field)
}

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// IsRetryable reports whether the error may succeed when the call is repeated.
func IsRetryable(err error) bool {
	var transientError TransientNetworkError
	return errors.As(err, &transientError)
}

// IsAuthError reports whether the error is an authentication failure.
func IsAuthError(err error) bool {
	var authError AuthError
	return errors.As(err, &authError)
}

// Classify maps an error to the failure category recorded in migration mappings.
func Classify(err error) shared.FailureCategory {
	if err == nil {
		return shared.FailureCategoryNone
	}

	var authError AuthError
	var notFoundError NotFoundError
	var validationError ValidationError
	var transientError TransientNetworkError
	var decodingError ResponseDecodingError
	var encodingError PayloadEncodingError
	var contentError MissingContentError
	var inputError InvalidInputError

	switch {
	case errors.As(err, &authError):
		return shared.FailureCategoryAuth
	case errors.As(err, &notFoundError):
		return shared.FailureCategoryNotFound
	case errors.As(err, &validationError), errors.As(err, &inputError):
		return shared.FailureCategoryValidation
	case errors.As(err, &transientError):
		return shared.FailureCategoryTransient
	case errors.As(err, &decodingError), errors.As(err, &encodingError), errors.As(err, &contentError):
		return shared.FailureCategoryContent
	default:
		return shared.FailureCategoryUnknown
	}
}

func truncateValidationMessage(message string) string {
	if len(message) <= maximumValidationMessageLengthConstant {
		return message
	}
	cut := maximumValidationMessageLengthConstant
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut] + validationMessageTruncationSuffixConstant
}
