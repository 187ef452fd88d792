// storage.go
package s3

import (
	"context"
	"time"
)

// Storage: операции хранилища, которые нужны PreviewStore
type Storage interface {
	UploadBytes(ctx context.Context, key, contentType string, data []byte) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}
