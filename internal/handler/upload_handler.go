package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
	"quotefiles/internal/service"
)

// keepAlive: период комментариев SSE, чтобы прокси не закрывали поток
const keepAlive = 15 * time.Second

type UploadHandler struct {
	uploads *service.UploadService
	logger  *zap.Logger
}

// UploadResponse: ответ на выбор файлов.
// Task пустой, если ни один файл не прошёл проверку размера.
type UploadResponse struct {
	Task     *domain.UploadTask `json:"task"`
	Rejected []string           `json:"rejected,omitempty"`
}

func NewUploadHandler(uploads *service.UploadService, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		logger:  logger.With(zap.String("component", "upload_handler")),
	}
}

// UploadFiles обрабатывает POST /v1/files, multipart-поле files.
// Ответ приходит сразу, передача идёт в фоне; прогресс в /v1/uploads/progress.
func (h *UploadHandler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		badRequest(w, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		badRequest(w, "No files uploaded")
		return
	}

	selected := make([]domain.Payload, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		selected = append(selected, domain.NewPayload(fh.Filename, fh.Header.Get("Content-Type"), fh.Size,
			func() (io.ReadCloser, error) { return fh.Open() }))
	}

	valid, err := h.uploads.Validate(selected)
	if err != nil {
		writeError(w, err)
		return
	}

	// Временные файлы формы удаляются по завершении запроса, а загрузка живёт дольше
	accepted := make([]domain.Payload, 0, len(valid))
	for _, p := range valid {
		data, err := readPayload(p)
		if err != nil {
			h.logger.Warn("failed to read uploaded file", zap.String("file", p.Name), zap.Error(err))
			badRequest(w, fmt.Sprintf("Failed to read %s", p.Name))
			return
		}
		accepted = append(accepted, domain.BytesPayload(p.Name, p.ContentType, data))
	}

	task, err := h.uploads.Submit(r.Context(), scopeFromQuery(r), accepted)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := UploadResponse{Task: task, Rejected: rejectedNames(selected, valid)}
	if task == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// ListUploads обрабатывает GET /v1/uploads
func (h *UploadHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.uploads.Tasks())
}

// RetryUpload обрабатывает POST /v1/uploads/{id}/retry
func (h *UploadHandler) RetryUpload(w http.ResponseWriter, r *http.Request) {
	task, err := h.uploads.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// DismissUpload обрабатывает DELETE /v1/uploads/{id}
func (h *UploadHandler) DismissUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.uploads.Dismiss(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUploadProgress отдает SSE события о прогрессе загрузки.
// Сначала текущие задачи, затем каждое изменение.
func (h *UploadHandler) GetUploadProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	events, cancel := h.uploads.Subscribe()
	defer cancel()

	startEventStream(w)
	for _, task := range h.uploads.Tasks() {
		if err := sendSSEEvent(w, service.UploadEvent{Task: task}); err != nil {
			return
		}
	}
	flusher.Flush()

	streamEvents(r, w, flusher, events, h.logger)
}

func startEventStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

// streamEvents пишет события канала до отключения клиента или закрытия канала
func streamEvents[T any](r *http.Request, w http.ResponseWriter, flusher http.Flusher, events <-chan T, logger *zap.Logger) {
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sendSSEEvent(w, ev); err != nil {
				logger.Debug("sse client gone", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Вспомогательная функция для отправки SSE событий
func sendSSEEvent(w io.Writer, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshaling SSE data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return fmt.Errorf("error writing SSE data: %w", err)
	}
	return nil
}

func readPayload(p domain.Payload) ([]byte, error) {
	rc, err := p.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func rejectedNames(selected, valid []domain.Payload) []string {
	if len(selected) == len(valid) {
		return nil
	}
	kept := make(map[string]int, len(valid))
	for _, p := range valid {
		kept[p.Name]++
	}
	var out []string
	for _, p := range selected {
		if kept[p.Name] > 0 {
			kept[p.Name]--
			continue
		}
		out = append(out, p.Name)
	}
	return out
}
