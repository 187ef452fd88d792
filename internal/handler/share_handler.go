package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
	"quotefiles/internal/service"
)

type ShareHandler struct {
	shares *service.ShareService
	logger *zap.Logger
}

func NewShareHandler(shares *service.ShareService, logger *zap.Logger) *ShareHandler {
	return &ShareHandler{
		shares: shares,
		logger: logger.With(zap.String("component", "share_handler")),
	}
}

// ListShares обрабатывает GET /v1/files/{id}/shares. Возвращает только активные доступы.
func (h *ShareHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	grants, err := h.shares.ListGrants(r.Context(), fileID(r))
	if err != nil {
		h.logger.Debug("share list partially failed", zap.String("file_id", fileID(r).String()), zap.Error(err))
		// Один из списков мог загрузиться; если нет никакого локального состояния, отдаём ошибку
		if len(grants.Links) == 0 && len(grants.Otps) == 0 {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, grants)
}

// CreatePasswordLink обрабатывает POST /v1/files/{id}/shares/password
func (h *ShareHandler) CreatePasswordLink(w http.ResponseWriter, r *http.Request) {
	var req domain.PasswordLinkRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	grant, err := h.shares.CreatePasswordLink(r.Context(), fileID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

// CreateOtpGrant обрабатывает POST /v1/files/{id}/shares/otp
func (h *ShareHandler) CreateOtpGrant(w http.ResponseWriter, r *http.Request) {
	var req domain.OtpGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.shares.CreateOtpGrant(r.Context(), fileID(r), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.shares.ActiveGrants(fileID(r)))
}

// RevokeShare обрабатывает DELETE /v1/files/{id}/shares/{shareID}?confirm=true
func (h *ShareHandler) RevokeShare(w http.ResponseWriter, r *http.Request) {
	shareID := domain.ID(chi.URLParam(r, "shareID"))
	if err := h.shares.Revoke(r.Context(), fileID(r), shareID, queryConfirmer(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
