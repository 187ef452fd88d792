package preview

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler отдаёт содержимое живых ссылок MemoryStore
type Handler struct {
	store *MemoryStore
}

func NewHandler(store *MemoryStore) *Handler {
	return &Handler{store: store}
}

// GetBlob обрабатывает GET /v1/blobs/{id}. Освобождённая ссылка отвечает 404.
func (h *Handler) GetBlob(w http.ResponseWriter, r *http.Request) {
	blob, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "Preview not found", http.StatusNotFound)
		return
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(blob.Data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Cache-Control", "no-store")

	w.WriteHeader(http.StatusOK)
	w.Write(blob.Data)
}
