package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quotefiles/internal/auth"
	"quotefiles/internal/preview"
)

// Handlers: все обработчики консоли. Blobs задаётся только для memory-хранилища ссылок.
type Handlers struct {
	Files         *FileHandler
	Uploads       *UploadHandler
	Shares        *ShareHandler
	Views         *ViewHandler
	Notifications *NotificationHandler
	Blobs         *preview.Handler
}

type RouterOptions struct {
	AllowedOrigins []string
	RequireAuth    bool
}

func NewRouter(h Handlers, opts RouterOptions, logger *zap.Logger) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	r.Handle("/metrics", promhttp.Handler())

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		// Ссылки на содержимое открываются браузером напрямую, без Authorization
		if h.Blobs != nil {
			r.Get("/blobs/{id}", h.Blobs.GetBlob)
		}

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(opts.RequireAuth))

			r.Get("/files", h.Files.ListFiles)
			r.Post("/files", h.Uploads.UploadFiles)

			r.Route("/files/{id}", func(r chi.Router) {
				r.Get("/", h.Files.GetFile)
				r.Delete("/", h.Files.DeleteFile)
				r.Put("/rename", h.Files.RenameFile)
				r.Get("/download", h.Files.DownloadFile)
				r.Get("/preview", h.Files.PreviewFile)
				r.Post("/actions/{action}", h.Files.DispatchAction)

				r.Get("/versions", h.Files.ListVersions)
				r.Post("/versions", h.Files.UploadVersion)
				r.Get("/versions/{versionID}/download", h.Files.DownloadVersion)

				r.Get("/shares", h.Shares.ListShares)
				r.Post("/shares/password", h.Shares.CreatePasswordLink)
				r.Post("/shares/otp", h.Shares.CreateOtpGrant)
				r.Delete("/shares/{shareID}", h.Shares.RevokeShare)
			})

			r.Route("/uploads", func(r chi.Router) {
				r.Get("/", h.Uploads.ListUploads)
				r.Get("/progress", h.Uploads.GetUploadProgress)
				r.Post("/{id}/retry", h.Uploads.RetryUpload)
				r.Delete("/{id}", h.Uploads.DismissUpload)
			})

			r.Route("/views", func(r chi.Router) {
				r.Post("/", h.Views.CreateView)
				r.Get("/{id}", h.Views.GetView)
				r.Put("/{id}", h.Views.UpdateView)
				r.Delete("/{id}", h.Views.DeleteView)
			})

			r.Get("/notifications", h.Notifications.ListNotifications)
			r.Get("/notifications/stream", h.Notifications.StreamNotifications)
		})
	})

	return r
}
