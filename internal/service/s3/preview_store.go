package s3

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quotefiles/internal/domain"
)

const previewPrefix = "previews/"

// PreviewStore хранит содержимое предпросмотра в бакете.
// Ссылкой служит presigned GET URL, освобождение удаляет объект.
type PreviewStore struct {
	storage Storage
	prefix  string
	ttl     time.Duration
}

func NewPreviewStore(storage Storage, prefix string, ttl time.Duration) *PreviewStore {
	if prefix == "" {
		prefix = previewPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PreviewStore{storage: storage, prefix: prefix, ttl: ttl}
}

func (s *PreviewStore) Create(ctx context.Context, blob domain.Blob) (domain.Reference, error) {
	key := s.prefix + uuid.NewString()
	if err := s.storage.UploadBytes(ctx, key, blob.ContentType, blob.Data); err != nil {
		return domain.Reference{}, err
	}

	link, err := s.storage.PresignGet(ctx, key, s.ttl)
	if err != nil {
		if delErr := s.storage.DeleteObject(ctx, key); delErr != nil {
			return domain.Reference{}, fmt.Errorf("%w (cleanup: %v)", err, delErr)
		}
		return domain.Reference{}, err
	}
	return domain.Reference{ID: key, URL: link}, nil
}

func (s *PreviewStore) Release(ctx context.Context, ref domain.Reference) error {
	if !strings.HasPrefix(ref.ID, s.prefix) {
		return fmt.Errorf("reference %s does not belong to this store", ref.ID)
	}
	return s.storage.DeleteObject(ctx, ref.ID)
}
