package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
	"quotefiles/internal/service"
)

// maxMemory: сколько multipart-данных держится в памяти до временных файлов
const maxMemory = 32 << 20

type FileHandler struct {
	files    *service.FileService
	versions *service.VersionService
	logger   *zap.Logger
}

type renameRequest struct {
	NewName string `json:"new_name"`
}

func NewFileHandler(files *service.FileService, versions *service.VersionService, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		files:    files,
		versions: versions,
		logger:   logger.With(zap.String("component", "file_handler")),
	}
}

// catalog возвращает каталог scope запроса, загружая его при первом обращении
func (h *FileHandler) catalog(r *http.Request) (*service.Catalog, error) {
	c := h.files.Catalog(scopeFromQuery(r))
	if !c.Loaded() {
		if err := c.Fetch(r.Context()); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ListFiles обрабатывает GET /v1/files?context=&context_id=&search=&type=&refresh=
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	c := h.files.Catalog(scopeFromQuery(r))

	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	if refresh || !c.Loaded() {
		// При ошибке отдаём прежний список вместе с текстом ошибки
		if err := c.Fetch(r.Context()); err != nil && !c.Loaded() {
			writeError(w, err)
			return
		}
	}

	filter := domain.Filter{
		Search: r.URL.Query().Get("search"),
		Type:   domain.TypeFilter(r.URL.Query().Get("type")),
	}
	writeJSON(w, http.StatusOK, c.View(filter))
}

// GetFile обрабатывает GET /v1/files/{id}
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog(r)
	if err != nil {
		writeError(w, err)
		return
	}
	file, err := c.Details(r.Context(), fileID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// RenameFile обрабатывает PUT /v1/files/{id}/rename
func (h *FileHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	c, err := h.catalog(r)
	if err != nil {
		writeError(w, err)
		return
	}
	file, err := c.Rename(r.Context(), fileID(r), req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// DeleteFile обрабатывает DELETE /v1/files/{id}?confirm=true
func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.Delete(r.Context(), fileID(r), queryConfirmer(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadFile обрабатывает GET /v1/files/{id}/download
func (h *FileHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog(r)
	if err != nil {
		writeError(w, err)
		return
	}

	saver := &attachmentSaver{w: w}
	if err := c.Download(r.Context(), fileID(r), saver); err != nil {
		if saver.written {
			h.logger.Warn("download interrupted", zap.String("file_id", fileID(r).String()), zap.Error(err))
			return
		}
		writeError(w, err)
	}
}

// PreviewFile обрабатывает GET /v1/files/{id}/preview.
// Изображение отдаётся как есть, для PDF возвращается ссылка внешнего просмотрщика.
func (h *FileHandler) PreviewFile(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := c.Preview(r.Context(), fileID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if result.Preview == service.PreviewInline && result.Blob != nil {
		writeBlob(w, *result.Blob)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DispatchAction обрабатывает POST /v1/files/{id}/actions/{action}
func (h *FileHandler) DispatchAction(w http.ResponseWriter, r *http.Request) {
	action := service.Action(chi.URLParam(r, "action"))

	var req renameRequest
	if action == service.ActionRename {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}

	c, err := h.catalog(r)
	if err != nil {
		writeError(w, err)
		return
	}

	saver := &attachmentSaver{w: w}
	result, err := c.Dispatch(r.Context(), action, fileID(r), service.ActionOptions{
		NewName:   req.NewName,
		Confirmer: queryConfirmer(r),
		Saver:     saver,
	})
	switch {
	case saver.written:
		if err != nil {
			h.logger.Warn("download interrupted", zap.String("file_id", fileID(r).String()), zap.Error(err))
		}
	case err != nil:
		writeError(w, err)
	case result.Preview == service.PreviewInline && result.Blob != nil:
		writeBlob(w, *result.Blob)
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// ListVersions обрабатывает GET /v1/files/{id}/versions
func (h *FileHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.versions.ListVersions(r.Context(), fileID(r)))
}

// UploadVersion обрабатывает POST /v1/files/{id}/versions, multipart-поле file
func (h *FileHandler) UploadVersion(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		badRequest(w, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "No file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		badRequest(w, "Failed to read file")
		return
	}

	payload := domain.BytesPayload(header.Filename, header.Header.Get("Content-Type"), data)
	entries, err := h.versions.UploadNewVersion(r.Context(), fileID(r), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entries)
}

// DownloadVersion обрабатывает GET /v1/files/{id}/versions/{versionID}/download
func (h *FileHandler) DownloadVersion(w http.ResponseWriter, r *http.Request) {
	versionID := domain.ID(chi.URLParam(r, "versionID"))

	saver := &attachmentSaver{w: w}
	if err := h.versions.DownloadVersionByID(r.Context(), fileID(r), versionID, saver); err != nil {
		if saver.written {
			h.logger.Warn("version download interrupted", zap.String("version_id", versionID.String()), zap.Error(err))
			return
		}
		writeError(w, err)
	}
}

func fileID(r *http.Request) domain.ID {
	return domain.ID(chi.URLParam(r, "id"))
}

func writeBlob(w http.ResponseWriter, blob domain.Blob) {
	contentType := blob.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(blob.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Content-Disposition", "inline")
	w.WriteHeader(http.StatusOK)
	w.Write(blob.Data)
}
