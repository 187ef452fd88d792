package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
	"quotefiles/internal/preview"
	"quotefiles/internal/service"
)

// ViewHandler: окна предпросмотра. Файл берётся из каталога scope запроса.
type ViewHandler struct {
	views  *preview.Manager
	files  *service.FileService
	logger *zap.Logger
}

type viewRequest struct {
	FileID domain.ID `json:"file_id"`
}

func NewViewHandler(views *preview.Manager, files *service.FileService, logger *zap.Logger) *ViewHandler {
	return &ViewHandler{
		views:  views,
		files:  files,
		logger: logger.With(zap.String("component", "view_handler")),
	}
}

// CreateView обрабатывает POST /v1/views {file_id}. Пустой file_id создаёт окно без файла.
func (h *ViewHandler) CreateView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	var file *domain.File
	if !req.FileID.IsZero() {
		f, err := h.lookup(r, req.FileID)
		if err != nil {
			writeError(w, err)
			return
		}
		file = &f
	}

	view := h.views.NewView()
	if file != nil {
		if err := h.open(r, view, *file); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, view.Snapshot())
}

// GetView обрабатывает GET /v1/views/{id}
func (h *ViewHandler) GetView(w http.ResponseWriter, r *http.Request) {
	view, ok := h.views.View(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, preview.ErrUnknownView)
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot())
}

// UpdateView обрабатывает PUT /v1/views/{id} {file_id}: окно переключается на другой файл
func (h *ViewHandler) UpdateView(w http.ResponseWriter, r *http.Request) {
	view, ok := h.views.View(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, preview.ErrUnknownView)
		return
	}

	var req viewRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.FileID.IsZero() {
		view.Close()
		writeJSON(w, http.StatusOK, view.Snapshot())
		return
	}

	file, err := h.lookup(r, req.FileID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.open(r, view, file); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot())
}

// DeleteView обрабатывает DELETE /v1/views/{id}
func (h *ViewHandler) DeleteView(w http.ResponseWriter, r *http.Request) {
	if err := h.views.CloseView(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ViewHandler) lookup(r *http.Request, id domain.ID) (domain.File, error) {
	c := h.files.Catalog(scopeFromQuery(r))
	if !c.Loaded() {
		if err := c.Fetch(r.Context()); err != nil {
			return domain.File{}, err
		}
	}
	file, ok := c.Get(id)
	if !ok {
		return domain.File{}, service.ErrFileNotInCatalog
	}
	return file, nil
}

// open ждёт загрузки. Ошибка загрузки уже отражена в состоянии окна,
// наружу возвращается только закрытие окна параллельным запросом.
func (h *ViewHandler) open(r *http.Request, view *preview.View, file domain.File) error {
	err := view.Open(r.Context(), file)
	if errors.Is(err, preview.ErrUnknownView) {
		return err
	}
	if err != nil {
		h.logger.Debug("preview failed", zap.String("view_id", view.ID()), zap.String("file_id", file.ID.String()), zap.Error(err))
	}
	return nil
}
