package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"organiflow/api/internal/audit"
	"organiflow/api/internal/export"
	"organiflow/api/internal/gesture"
	"organiflow/api/internal/hierarchy"
	"organiflow/api/internal/orgsync"
	"organiflow/api/internal/store"
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

// mapError turns service errors into an HTTP status and JSON error body.
// Order matters: a rolled-back gesture wraps whatever the remote returned.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, orgsync.ErrBusy) {
		return http.StatusConflict, "GESTURE_PENDING", "Wait for the previous change to finish saving.", nil
	}
	if errors.Is(err, orgsync.ErrRemoteUpdate) {
		return http.StatusBadGateway, "REMOTE_UPDATE_FAILED", "The change could not be saved and was undone.", nil
	}
	if errors.Is(err, orgsync.ErrNotLoaded) || errors.Is(err, orgsync.ErrDataFetch) {
		return http.StatusServiceUnavailable, "DATA_UNAVAILABLE", "Employee data is not available.", nil
	}

	var rejected *hierarchy.RejectedMove
	if errors.As(err, &rejected) {
		return http.StatusUnprocessableEntity, "INVALID_MOVE", rejected.Reason.Message(), map[string]any{
			"reason":     string(rejected.Reason),
			"employeeId": rejected.EmployeeID,
		}
	}

	var slotErr *gesture.SlotError
	if errors.As(err, &slotErr) {
		return http.StatusBadRequest, "INVALID_SLOT", slotErr.Error(), map[string]any{"slot": slotErr.Slot}
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body failed validation", fields
	}

	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusBadRequest, "INVALID_FORMAT", "Export format must be html or pdf", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusNotImplemented, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	}

	if errors.Is(err, audit.ErrNoHistory) || errors.Is(err, audit.ErrUnknownCommit) {
		return http.StatusNotFound, "COMMIT_NOT_FOUND", "No audit commit matches that hash", nil
	}
	if errors.Is(err, store.ErrInvalidEmployee) {
		return http.StatusUnprocessableEntity, "INVALID_EMPLOYEE", err.Error(), nil
	}

	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
