package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized       ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden          ErrorType = "FORBIDDEN"
	ErrorTypeConflict           ErrorType = "CONFLICT"
	ErrorTypeDependencyConflict ErrorType = "DEPENDENCY_CONFLICT"
	ErrorTypeInternal           ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed      ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidID             ErrorCode = "INVALID_ID"
	ErrCodeInvalidUsername       ErrorCode = "INVALID_USERNAME"
	ErrCodeInvalidEmail          ErrorCode = "INVALID_EMAIL"
	ErrCodeWeakPassword          ErrorCode = "WEAK_PASSWORD"
	ErrCodeInvalidStatus         ErrorCode = "INVALID_STATUS"
	ErrCodeInvalidRoleName       ErrorCode = "INVALID_ROLE_NAME"
	ErrCodeInvalidRoleCode       ErrorCode = "INVALID_ROLE_CODE"
	ErrCodeInvalidPermissionCode ErrorCode = "INVALID_PERMISSION_CODE"
	ErrCodeInvalidPermission     ErrorCode = "INVALID_PERMISSION_DEFINITION"

	ErrCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrCodeRoleNotFound       ErrorCode = "ROLE_NOT_FOUND"
	ErrCodePermissionNotFound ErrorCode = "PERMISSION_NOT_FOUND"

	ErrCodeDuplicateUser       ErrorCode = "DUPLICATE_USER"
	ErrCodeDuplicateRole       ErrorCode = "DUPLICATE_ROLE"
	ErrCodeDuplicatePermission ErrorCode = "DUPLICATE_PERMISSION"
	ErrCodeDuplicateAssignment ErrorCode = "DUPLICATE_ASSIGNMENT"
	ErrCodeDuplicateGrant      ErrorCode = "DUPLICATE_GRANT"
	ErrCodeSelfAssignment      ErrorCode = "SELF_ASSIGNMENT"
	ErrCodeSelfDisable         ErrorCode = "SELF_DISABLE"
	ErrCodeRoleDisabled        ErrorCode = "ROLE_DISABLED"
	ErrCodeSamePassword        ErrorCode = "SAME_PASSWORD"

	ErrCodeRoleInUse       ErrorCode = "ROLE_IN_USE"
	ErrCodePermissionInUse ErrorCode = "PERMISSION_IN_USE"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeMissingToken       ErrorCode = "MISSING_TOKEN"

	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError with the same type and code, so copies made by
// WithCause or WithDetails still compare equal to the package sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithCause returns a copy carrying cause. Sentinels stay untouched.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithMessage returns a copy with message replaced.
func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

type DependencyDetails struct {
	Dependents []string `json:"dependents"`
	Total      int      `json:"total"`
}

type LockoutDetails struct {
	RemainingMinutes int `json:"remaining_minutes"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewUnauthorizedError builds an authentication failure.
func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewForbiddenError builds an authorization failure for a valid session.
func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewDependencyConflictError reports a deletion blocked by live dependents.
// At most three dependents are named in the message; total is the full count.
func NewDependencyConflictError(message string, code ErrorCode, dependents []string, total int) *AppError {
	named := dependents
	if len(named) > 3 {
		named = named[:3]
	}
	msg := message
	if len(named) > 0 {
		msg = fmt.Sprintf("%s: %s", message, strings.Join(named, ", "))
		if total > len(named) {
			msg = fmt.Sprintf("%s and %d more", msg, total-len(named))
		}
	}
	return &AppError{
		Type:       ErrorTypeDependencyConflict,
		Code:       code,
		Message:    msg,
		StatusCode: http.StatusConflict,
		Details:    DependencyDetails{Dependents: named, Total: total},
	}
}

// NewBusinessLogicError wraps an unexpected store or driver failure. The
// cause is kept for logs and never serialized.
func NewBusinessLogicError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewAccountLockedError(remainingMinutes int) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       ErrCodeAccountLocked,
		Message:    fmt.Sprintf("Account is locked, try again in %d minutes", remainingMinutes),
		StatusCode: http.StatusUnauthorized,
		Details:    LockoutDetails{RemainingMinutes: remainingMinutes},
	}
}

var (
	ErrInvalidCredentials = NewUnauthorizedError("Invalid username or password", ErrCodeInvalidCredentials)
	ErrInvalidToken       = NewUnauthorizedError("Invalid or expired token", ErrCodeInvalidToken)
	ErrMissingToken       = NewUnauthorizedError("Missing authorization token", ErrCodeMissingToken)
	ErrPermissionDenied   = NewForbiddenError("Insufficient permissions", ErrCodePermissionDenied)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsType(err error, t ErrorType) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}

// RemainingLockout extracts the lockout minutes from an ACCOUNT_LOCKED error.
func RemainingLockout(err error) (int, bool) {
	appErr, ok := IsAppError(err)
	if !ok || appErr.Code != ErrCodeAccountLocked {
		return 0, false
	}
	details, ok := appErr.Details.(LockoutDetails)
	if !ok {
		return 0, false
	}
	return details.RemainingMinutes, true
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
