package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"tablero/api/internal/attachments"
	"tablero/api/internal/auth"
	"tablero/api/internal/authpw"
	"tablero/api/internal/board"
	"tablero/api/internal/boardlock"
	"tablero/api/internal/session"
	"tablero/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// errForbidden never says whether the target exists.
func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action", nil)
}

func errNotFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func errValidation(field, message string) *DomainError {
	var details any
	if field != "" {
		details = map[string]string{field: message}
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func errUnauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, "CONFLICT", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validationErr *board.ValidationError
	if errors.As(err, &validationErr) {
		var fields any
		if validationErr.Field != "" {
			fields = map[string]string{validationErr.Field: validationErr.Message}
		}
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Message, fields
	}
	var inputErr *authpw.InputError
	if errors.As(err, &inputErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", inputErr.Message, map[string]string{inputErr.Field: inputErr.Message}
	}
	var notFoundErr *board.NotFoundError
	if errors.As(err, &notFoundErr) {
		return http.StatusNotFound, "NOT_FOUND", notFoundErr.Error(), nil
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, board.ErrVersionConflict), errors.Is(err, boardlock.ErrLockTimeout):
		return http.StatusConflict, "CONFLICT", "The board was modified concurrently, please retry", nil
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "A record with the same name or code already exists", nil
	case errors.Is(err, store.ErrAlreadyInvited):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "User is already invited", nil
	case errors.Is(err, store.ErrInUse):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Record is still in use", nil
	case errors.Is(err, store.ErrInvalidReference):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Referenced record does not exist", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, authpw.ErrAccountDisabled):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Account is deactivated", nil
	case errors.Is(err, authpw.ErrEmailNotVerified):
		return http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Please verify your email before signing in", nil
	case errors.Is(err, authpw.ErrInvalidToken):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invalid or expired token", nil
	case errors.Is(err, authpw.ErrWrongPassword):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Current password is incorrect", map[string]string{"currentPassword": "incorrect"}
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, attachments.ErrInvalidKey):
		return http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
