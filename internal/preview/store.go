package preview

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"quotefiles/internal/domain"
)

// ErrUnknownReference: ссылка не создавалась этим хранилищем или уже освобождена
var ErrUnknownReference = errors.New("unknown preview reference")

// Store создаёт и освобождает ссылки на содержимое.
// Каждая созданная ссылка освобождается ровно один раз.
type Store interface {
	Create(ctx context.Context, blob domain.Blob) (domain.Reference, error)
	Release(ctx context.Context, ref domain.Reference) error
}

// MemoryStore держит содержимое в памяти процесса; URL ведёт на GET /v1/blobs/{id}
type MemoryStore struct {
	baseURL string

	mu       sync.RWMutex
	blobs    map[string]domain.Blob
	created  int
	released int
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		blobs:   make(map[string]domain.Blob),
	}
}

func (s *MemoryStore) Create(_ context.Context, blob domain.Blob) (domain.Reference, error) {
	id := uuid.NewString()

	s.mu.Lock()
	s.blobs[id] = blob
	s.created++
	s.mu.Unlock()

	return domain.Reference{ID: id, URL: s.baseURL + "/" + id}, nil
}

func (s *MemoryStore) Release(_ context.Context, ref domain.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref.ID]; !ok {
		return ErrUnknownReference
	}
	delete(s.blobs, ref.ID)
	s.released++
	return nil
}

// Get возвращает содержимое живой ссылки
func (s *MemoryStore) Get(id string) (domain.Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[id]
	return blob, ok
}

// Live: число неосвобождённых ссылок
func (s *MemoryStore) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// Stats: сколько ссылок создано и освобождено за всё время
func (s *MemoryStore) Stats() (created, released int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created, s.released
}
