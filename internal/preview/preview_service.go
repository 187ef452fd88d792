// Пакет preview управляет ссылками на содержимое для предпросмотра.
// Ссылка создаётся при открытии и освобождается на любом пути закрытия,
// включая смену файла во время загрузки.
package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
)

var ErrUnknownView = errors.New("unknown preview view")

var refsLive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "quotefiles_preview_refs_live",
	Help: "Preview references created and not yet released.",
})

// BlobSource: откуда берётся содержимое файла (repository.FileRepository)
type BlobSource interface {
	DownloadBlob(ctx context.Context, id domain.ID) (*domain.Blob, error)
}

type Config struct {
	// ExternalGrace: через сколько освобождается ссылка, отданная внешнему просмотрщику
	ExternalGrace    time.Duration
	ThumbnailMaxSize int
}

type ViewState string

const (
	ViewIdle        ViewState = "idle"
	ViewLoading     ViewState = "loading"
	ViewReady       ViewState = "ready"
	ViewFailed      ViewState = "failed"
	ViewUnsupported ViewState = "unsupported"
)

// Manager создаёт представления предпросмотра и следит за внешними ссылками
type Manager struct {
	source BlobSource
	store  Store
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	views    map[string]*View
	external map[string]*externalRef

	// unreleased: ссылки, которые хранилище не смогло освободить; Shutdown пробует снова
	unreleased map[string]domain.Reference
}

type externalRef struct {
	ref   domain.Reference
	timer *time.Timer
}

func NewManager(source BlobSource, store Store, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		source:     source,
		store:      store,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "preview")),
		views:      make(map[string]*View),
		external:   make(map[string]*externalRef),
		unreleased: make(map[string]domain.Reference),
	}
}

// NewView регистрирует пустое представление
func (m *Manager) NewView() *View {
	v := &View{id: uuid.NewString(), m: m, state: ViewIdle}
	m.mu.Lock()
	m.views[v.id] = v
	m.mu.Unlock()
	return v
}

func (m *Manager) View(id string) (*View, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.views[id]
	return v, ok
}

// CloseView закрывает представление и забывает его
func (m *Manager) CloseView(id string) error {
	m.mu.Lock()
	v, ok := m.views[id]
	delete(m.views, id)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownView
	}
	v.shut()
	return nil
}

// OpenExternal создаёт ссылку для внешнего просмотрщика (PDF в новой вкладке)
// и освобождает её по истечении ExternalGrace.
func (m *Manager) OpenExternal(ctx context.Context, file *domain.File) (domain.Reference, error) {
	if file == nil || file.IsPending() {
		return domain.Reference{}, fmt.Errorf("file has no id")
	}

	blob, err := m.source.DownloadBlob(ctx, file.ID)
	if err != nil {
		return domain.Reference{}, err
	}
	if blob.ContentType == "" {
		blob.ContentType = file.ContentType()
	}

	ref, err := m.create(ctx, *blob)
	if err != nil {
		return domain.Reference{}, err
	}

	m.mu.Lock()
	m.external[ref.ID] = &externalRef{
		ref:   ref,
		timer: time.AfterFunc(m.cfg.ExternalGrace, func() { m.expireExternal(ref.ID) }),
	}
	m.mu.Unlock()
	return ref, nil
}

func (m *Manager) expireExternal(id string) {
	m.mu.Lock()
	ext, ok := m.external[id]
	delete(m.external, id)
	m.mu.Unlock()
	if ok {
		m.release(ext.ref)
	}
}

// Shutdown закрывает все представления и сразу освобождает внешние ссылки
func (m *Manager) Shutdown() {
	m.mu.Lock()
	views := make([]*View, 0, len(m.views))
	for id, v := range m.views {
		views = append(views, v)
		delete(m.views, id)
	}
	pending := make([]domain.Reference, 0, len(m.external))
	for id, ext := range m.external {
		if ext.timer.Stop() {
			pending = append(pending, ext.ref)
		}
		delete(m.external, id)
	}
	m.mu.Unlock()

	for _, v := range views {
		v.shut()
	}
	for _, ref := range pending {
		m.release(ref)
	}

	m.mu.Lock()
	retry := make([]domain.Reference, 0, len(m.unreleased))
	for id, ref := range m.unreleased {
		retry = append(retry, ref)
		delete(m.unreleased, id)
	}
	m.mu.Unlock()

	for _, ref := range retry {
		if err := m.tryRelease(ref); err != nil {
			m.logger.Error("preview reference leaked on shutdown", zap.String("ref", ref.ID), zap.Error(err))
		}
	}
}

// Unreleased: число ссылок, ожидающих повторного освобождения
func (m *Manager) Unreleased() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unreleased)
}

func (m *Manager) create(ctx context.Context, blob domain.Blob) (domain.Reference, error) {
	ref, err := m.store.Create(ctx, blob)
	if err != nil {
		return domain.Reference{}, fmt.Errorf("failed to create preview reference: %w", err)
	}
	refsLive.Inc()
	return ref, nil
}

// release освобождает ссылку с одной повторной попыткой.
// Если хранилище так и не ответило, ссылка ждёт Shutdown.
func (m *Manager) release(ref domain.Reference) {
	err := m.tryRelease(ref)
	if err != nil && !errors.Is(err, ErrUnknownReference) {
		err = m.tryRelease(ref)
	}
	if err == nil {
		return
	}
	m.logger.Warn("failed to release preview reference", zap.String("ref", ref.ID), zap.Error(err))
	if errors.Is(err, ErrUnknownReference) {
		return
	}
	m.mu.Lock()
	m.unreleased[ref.ID] = ref
	m.mu.Unlock()
}

func (m *Manager) tryRelease(ref domain.Reference) error {
	if err := m.store.Release(context.Background(), ref); err != nil {
		return err
	}
	refsLive.Dec()
	return nil
}

// View: одно окно предпросмотра. Каждое Open и Close увеличивает поколение;
// результат загрузки прежнего поколения отбрасывается, а ссылка, если успела создаться, освобождается.
type View struct {
	id string
	m  *Manager

	mu     sync.Mutex
	gen    uint64
	closed bool
	file   *domain.File
	state  ViewState
	ref    *domain.Reference
	err    string
}

// ViewSnapshot: состояние представления для API
type ViewSnapshot struct {
	ID        string            `json:"id"`
	FileID    domain.ID         `json:"file_id,omitempty"`
	State     ViewState         `json:"state"`
	Reference *domain.Reference `json:"reference,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func (v *View) ID() string {
	return v.id
}

// Open привязывает представление к файлу. Содержимое загружается только для
// изображений с id; прежняя ссылка освобождается.
// Представление, закрытое через Manager, больше не открывается.
func (v *View) Open(ctx context.Context, file domain.File) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrUnknownView
	}
	v.gen++
	gen := v.gen
	old := v.ref
	v.ref = nil
	v.file = &file
	v.err = ""
	eligible := file.IsImage() && !file.IsPending()
	if eligible {
		v.state = ViewLoading
	} else {
		v.state = ViewUnsupported
	}
	v.mu.Unlock()

	if old != nil {
		v.m.release(*old)
	}
	if !eligible {
		return nil
	}

	blob, err := v.m.source.DownloadBlob(ctx, file.ID)
	if err != nil {
		v.failed(gen, err)
		return fmt.Errorf("failed to load preview of %s: %w", file.ID, err)
	}
	if !v.current(gen) {
		return nil
	}

	if blob.ContentType == "" {
		blob.ContentType = file.ContentType()
	}
	thumb, err := Thumbnail(*blob, v.m.cfg.ThumbnailMaxSize)
	if err != nil {
		v.m.logger.Debug("thumbnail failed, using original", zap.String("file_id", file.ID.String()), zap.Error(err))
	}

	ref, err := v.m.create(ctx, thumb)
	if err != nil {
		v.failed(gen, err)
		return err
	}

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		v.m.release(ref)
		return nil
	}
	v.ref = &ref
	v.state = ViewReady
	v.mu.Unlock()
	return nil
}

// Close освобождает ссылку, если она есть. Повторный вызов ничего не делает.
func (v *View) Close() {
	v.mu.Lock()
	v.gen++
	old := v.ref
	v.ref = nil
	v.file = nil
	v.state = ViewIdle
	v.err = ""
	v.mu.Unlock()

	if old != nil {
		v.m.release(*old)
	}
}

// shut закрывает представление навсегда: Manager его больше не отслеживает
func (v *View) shut() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.Close()
}

func (v *View) Snapshot() ViewSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap := ViewSnapshot{ID: v.id, State: v.state, Error: v.err}
	if v.file != nil {
		snap.FileID = v.file.ID
	}
	if v.ref != nil {
		ref := *v.ref
		snap.Reference = &ref
	}
	return snap
}

func (v *View) current(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gen == gen
}

func (v *View) failed(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.gen == gen {
		v.state = ViewFailed
		v.err = err.Error()
	}
}
