package preview

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
)

// fakeSource отдаёт содержимое; если gate задан, ждёт его закрытия
type fakeSource struct {
	mu    sync.Mutex
	calls []domain.ID
	gates map[domain.ID]chan struct{}
	err   error
}

func (s *fakeSource) DownloadBlob(ctx context.Context, id domain.ID) (*domain.Blob, error) {
	s.mu.Lock()
	s.calls = append(s.calls, id)
	gate := s.gates[id]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if s.err != nil {
		return nil, s.err
	}
	return &domain.Blob{Data: []byte("data-" + string(id)), ContentType: "image/png"}, nil
}

func (s *fakeSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func setupManager(t *testing.T, source *fakeSource, grace time.Duration) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore("/v1/blobs")
	return NewManager(source, store, Config{ExternalGrace: grace}, zap.NewNop()), store
}

var photo = domain.File{ID: "p1", Name: "car.png", MIMEType: "image/png"}

func TestView_OpenImageCreatesReference(t *testing.T) {
	m, store := setupManager(t, &fakeSource{}, time.Second)
	v := m.NewView()

	require.NoError(t, v.Open(context.Background(), photo))
	snap := v.Snapshot()
	assert.Equal(t, ViewReady, snap.State)
	require.NotNil(t, snap.Reference)
	assert.Contains(t, snap.Reference.URL, "/v1/blobs/")
	assert.Equal(t, 1, store.Live())

	v.Close()
	v.Close()
	assert.Equal(t, 0, store.Live())
	created, released := store.Stats()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, released)
}

func TestView_NonImageDoesNotFetch(t *testing.T) {
	source := &fakeSource{}
	m, store := setupManager(t, source, time.Second)
	v := m.NewView()

	require.NoError(t, v.Open(context.Background(), domain.File{ID: "d1", MIMEType: "application/pdf"}))
	assert.Equal(t, ViewUnsupported, v.Snapshot().State)

	require.NoError(t, v.Open(context.Background(), domain.File{Name: "pending.png", MIMEType: "image/png"}))
	assert.Equal(t, ViewUnsupported, v.Snapshot().State)

	assert.Zero(t, source.Calls())
	assert.Zero(t, store.Live())
}

// Закрытие до окончания загрузки: ссылка не создаётся вовсе
func TestView_CloseBeforeFetchResolves(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSource{gates: map[domain.ID]chan struct{}{"p1": gate}}
	m, store := setupManager(t, source, time.Second)
	v := m.NewView()

	done := make(chan error, 1)
	go func() { done <- v.Open(context.Background(), photo) }()

	require.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, time.Millisecond)
	v.Close()
	close(gate)
	require.NoError(t, <-done)

	created, released := store.Stats()
	assert.Zero(t, created)
	assert.Zero(t, released)
	assert.Equal(t, ViewIdle, v.Snapshot().State)
	assert.Nil(t, v.Snapshot().Reference)
}

// Смена файла во время загрузки: результат прежнего файла отбрасывается
func TestView_StaleFetchDoesNotOverwriteNewFile(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSource{gates: map[domain.ID]chan struct{}{"p1": gate}}
	m, store := setupManager(t, source, time.Second)
	v := m.NewView()

	done := make(chan error, 1)
	go func() { done <- v.Open(context.Background(), photo) }()
	require.Eventually(t, func() bool { return source.Calls() == 1 }, time.Second, time.Millisecond)

	second := domain.File{ID: "p2", Name: "wheel.png", MIMEType: "image/png"}
	require.NoError(t, v.Open(context.Background(), second))
	close(gate)
	require.NoError(t, <-done)

	snap := v.Snapshot()
	assert.Equal(t, domain.ID("p2"), snap.FileID)
	require.NotNil(t, snap.Reference)
	blob, ok := store.Get(snap.Reference.ID)
	require.True(t, ok)
	assert.Equal(t, "data-p2", string(blob.Data))
	assert.Equal(t, 1, store.Live())

	v.Close()
	assert.Equal(t, 0, store.Live())
}

func TestView_ReopenReleasesPrevious(t *testing.T) {
	m, store := setupManager(t, &fakeSource{}, time.Second)
	v := m.NewView()

	require.NoError(t, v.Open(context.Background(), photo))
	require.NoError(t, v.Open(context.Background(), domain.File{ID: "p2", MIMEType: "image/jpeg"}))
	assert.Equal(t, 1, store.Live())

	created, released := store.Stats()
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, released)
}

func TestView_FetchFailure(t *testing.T) {
	m, store := setupManager(t, &fakeSource{err: errors.New("503")}, time.Second)
	v := m.NewView()

	require.Error(t, v.Open(context.Background(), photo))
	snap := v.Snapshot()
	assert.Equal(t, ViewFailed, snap.State)
	assert.Contains(t, snap.Error, "503")
	assert.Zero(t, store.Live())
}

func TestManager_OpenExternalReleasesAfterGrace(t *testing.T) {
	m, store := setupManager(t, &fakeSource{}, 30*time.Millisecond)

	ref, err := m.OpenExternal(context.Background(), &domain.File{ID: "pdf", MIMEType: "application/pdf"})
	require.NoError(t, err)
	_, ok := store.Get(ref.ID)
	assert.True(t, ok)

	require.Eventually(t, func() bool { return store.Live() == 0 }, time.Second, 5*time.Millisecond)
	_, released := store.Stats()
	assert.Equal(t, 1, released)
}

func TestManager_ShutdownReleasesEverything(t *testing.T) {
	m, store := setupManager(t, &fakeSource{}, time.Hour)

	_, err := m.OpenExternal(context.Background(), &domain.File{ID: "pdf", MIMEType: "application/pdf"})
	require.NoError(t, err)
	v := m.NewView()
	require.NoError(t, v.Open(context.Background(), photo))
	assert.Equal(t, 2, store.Live())

	m.Shutdown()
	assert.Equal(t, 0, store.Live())
	_, ok := m.View(v.ID())
	assert.False(t, ok)
}

func TestManager_CloseView(t *testing.T) {
	m, store := setupManager(t, &fakeSource{}, time.Second)
	v := m.NewView()
	require.NoError(t, v.Open(context.Background(), photo))

	require.NoError(t, m.CloseView(v.ID()))
	assert.ErrorIs(t, m.CloseView(v.ID()), ErrUnknownView)
	assert.Equal(t, 0, store.Live())
}

// Окно, закрытое через Manager, не принимает Open: иначе ссылка осталась бы без владельца
func TestManager_OpenAfterCloseView(t *testing.T) {
	source := &fakeSource{}
	m, store := setupManager(t, source, time.Second)
	v := m.NewView()
	view, ok := m.View(v.ID())
	require.True(t, ok)

	require.NoError(t, m.CloseView(v.ID()))
	assert.ErrorIs(t, view.Open(context.Background(), photo), ErrUnknownView)
	assert.Zero(t, source.Calls())

	m.Shutdown()
	assert.Equal(t, 0, store.Live())
	created, _ := store.Stats()
	assert.Zero(t, created)
}

// Shutdown закрывает окна так же окончательно, как CloseView
func TestManager_OpenAfterShutdown(t *testing.T) {
	m, store := setupManager(t, &fakeSource{}, time.Second)
	v := m.NewView()

	m.Shutdown()
	assert.ErrorIs(t, v.Open(context.Background(), photo), ErrUnknownView)
	assert.Zero(t, store.Live())
}

// flakyStore не освобождает ссылки, пока failures > 0
type flakyStore struct {
	*MemoryStore

	mu       sync.Mutex
	failures int
}

func (s *flakyStore) Release(ctx context.Context, ref domain.Reference) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("delete object: timeout")
	}
	s.mu.Unlock()
	return s.MemoryStore.Release(ctx, ref)
}

func TestManager_ReleaseRetriesOnce(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore("/v1/blobs")}
	m := NewManager(&fakeSource{}, store, Config{ExternalGrace: time.Second}, zap.NewNop())
	v := m.NewView()
	require.NoError(t, v.Open(context.Background(), photo))

	store.failures = 1
	v.Close()
	assert.Equal(t, 0, store.Live())
	assert.Zero(t, m.Unreleased())
}

func TestManager_ShutdownDrainsFailedReleases(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore("/v1/blobs")}
	m := NewManager(&fakeSource{}, store, Config{ExternalGrace: time.Second}, zap.NewNop())
	v := m.NewView()
	require.NoError(t, v.Open(context.Background(), photo))

	store.failures = 2
	v.Close()
	assert.Equal(t, 1, store.Live())
	assert.Equal(t, 1, m.Unreleased())

	m.Shutdown()
	assert.Equal(t, 0, store.Live())
	assert.Zero(t, m.Unreleased())
}

func TestMemoryStore_DoubleRelease(t *testing.T) {
	store := NewMemoryStore("/v1/blobs/")
	ref, err := store.Create(context.Background(), domain.Blob{Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "/v1/blobs/"+ref.ID, ref.URL)

	require.NoError(t, store.Release(context.Background(), ref))
	assert.ErrorIs(t, store.Release(context.Background(), ref), ErrUnknownReference)
}

func TestThumbnail_DownscalesLargeImages(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for x := 0; x < 400; x++ {
		img.Set(x, 100, color.RGBA{R: 255, A: 255})
	}
	require.NoError(t, png.Encode(&buf, img))
	original := domain.Blob{Data: buf.Bytes(), ContentType: "image/png"}

	thumb, err := Thumbnail(original, 100)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", thumb.ContentType)

	decoded, _, err := image.Decode(bytes.NewReader(thumb.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
	assert.Equal(t, 50, decoded.Bounds().Dy())

	same, err := Thumbnail(original, 1024)
	require.NoError(t, err)
	assert.Equal(t, original, same)

	notImage := domain.Blob{Data: []byte("<svg/>"), ContentType: "image/svg+xml"}
	kept, err := Thumbnail(notImage, 100)
	require.NoError(t, err)
	assert.Equal(t, notImage, kept)
}

func TestHandler_GetBlob(t *testing.T) {
	store := NewMemoryStore("/v1/blobs")
	ref, err := store.Create(context.Background(), domain.Blob{Data: []byte("png"), ContentType: "image/png"})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Get("/v1/blobs/{id}", NewHandler(store).GetBlob)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ref.URL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "png", rec.Body.String())

	require.NoError(t, store.Release(context.Background(), ref))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ref.URL, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
