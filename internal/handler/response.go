package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"quotefiles/internal/domain"
	"quotefiles/internal/preview"
	"quotefiles/internal/repository"
	"quotefiles/internal/service"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибки сервисов в HTTP-коды
func writeError(w http.ResponseWriter, err error) {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: validation.Error(), Fields: validation.Fields})
		return
	}

	var apiErr *repository.APIError
	switch {
	case errors.Is(err, service.ErrNotConfirmed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, service.ErrFileNotInCatalog),
		errors.Is(err, service.ErrUnknownTask),
		errors.Is(err, service.ErrUnknownGrant),
		errors.Is(err, service.ErrUnknownVersion),
		errors.Is(err, service.ErrUnknownAction),
		errors.Is(err, preview.ErrUnknownView):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrTaskNotFailed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrTooManyFiles):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotPreviewable):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: err.Error()})
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// scopeFromQuery читает ?context=&context_id=
func scopeFromQuery(r *http.Request) domain.Scope {
	q := r.URL.Query()
	return domain.Scope{
		Context:   domain.ContextType(q.Get("context")),
		ContextID: q.Get("context_id"),
	}
}

// queryConfirmer подтверждает действие параметром ?confirm=true
func queryConfirmer(r *http.Request) service.Confirmer {
	v := strings.ToLower(r.URL.Query().Get("confirm"))
	return service.Confirmed(v == "true" || v == "1" || v == "yes")
}

// attachmentSaver отдаёт скачанное содержимое клиенту как вложение
type attachmentSaver struct {
	w       http.ResponseWriter
	written bool
}

func (s *attachmentSaver) Save(name, contentType string, r io.Reader) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	// Подготавливаем имя файла для Content-Disposition
	encodedFileName := url.PathEscape(name)
	asciiName := strings.ReplaceAll(name, `"`, `\"`)

	s.w.Header().Set("Content-Type", contentType)
	s.w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiName, encodedFileName))
	s.w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	s.w.WriteHeader(http.StatusOK)
	s.written = true

	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(s.w, r, buf); err != nil {
		return fmt.Errorf("failed to stream download: %w", err)
	}
	return nil
}
