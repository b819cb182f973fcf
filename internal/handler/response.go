package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"project-reaper/internal/model"
	"project-reaper/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.Is(err, model.ErrProjectNotFound):
		status, body.Code, body.Message = http.StatusNotFound, "NOT_FOUND", "Project not found"
	case errors.Is(err, model.ErrJobNotFound):
		status, body.Code, body.Message = http.StatusNotFound, "NOT_FOUND", "Job not found"
	case errors.Is(err, model.ErrUserNotFound):
		status, body.Code, body.Message = http.StatusNotFound, "NOT_FOUND", "User not found"
	case errors.Is(err, model.ErrDeletionPending):
		status, body.Code, body.Message = http.StatusConflict, "CONFLICT", "Project deletion already in progress"
	case errors.Is(err, model.ErrInvalidTransition):
		status, body.Code, body.Message = http.StatusConflict, "CONFLICT", "Project cannot be deleted in its current state"
	case errors.Is(err, model.ErrPathConflict):
		status, body.Code, body.Message = http.StatusConflict, "CONFLICT", "Path already exists"
	case errors.Is(err, model.ErrInvalidCredentials):
		status, body.Code, body.Message = http.StatusUnauthorized, "UNAUTHORIZED", "Invalid credentials"
	case errors.Is(err, model.ErrUnauthorized):
		status, body.Code, body.Message = http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"
	case errors.Is(err, model.ErrForbidden):
		status, body.Code, body.Message = http.StatusForbidden, "FORBIDDEN", "Access denied"
	case errors.Is(err, model.ErrInvalidInput):
		status, body.Code, body.Message = http.StatusBadRequest, "BAD_REQUEST", "Invalid input"
		body.Details = err.Error()
	default:
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}
