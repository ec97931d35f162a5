package app

import (
	"errors"
	"fmt"
	"net/http"

	"draftwise/api/internal/annotation"
	"draftwise/api/internal/auth"
	"draftwise/api/internal/editor"
	"draftwise/api/internal/gitrepo"
	"draftwise/api/internal/store"
	"draftwise/api/internal/syncer"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var conflict *syncer.ConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict, "CONFLICT", "Document changed remotely", map[string]any{"version": conflict.Version}
	}
	var transport *syncer.TransportError
	if errors.As(err, &transport) {
		return http.StatusBadGateway, "SAVE_FAILED", "Save failed; it will be retried", nil
	}
	switch {
	case errors.Is(err, annotation.ErrDuplicateID):
		return http.StatusConflict, "DUPLICATE_ID", err.Error(), nil
	case errors.Is(err, annotation.ErrNotFound):
		return http.StatusNotFound, "ANNOTATION_NOT_FOUND", err.Error(), nil
	case errors.Is(err, annotation.ErrStaleAnnotation):
		return http.StatusConflict, "STALE_ANNOTATION", err.Error(), nil
	case errors.Is(err, annotation.ErrInvalidRange):
		return http.StatusUnprocessableEntity, "INVALID_RANGE", err.Error(), nil
	case errors.Is(err, annotation.ErrInvalidAnnotation), errors.Is(err, editor.ErrEmptyText):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, annotation.ErrNotApplicable):
		return http.StatusUnprocessableEntity, "NOT_APPLICABLE", err.Error(), nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gitrepo.ErrRepoNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, syncer.ErrClosed):
		return http.StatusConflict, "DOCUMENT_CLOSED", "Document is closing", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
