package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
	"quotefiles/internal/repository"
)

// FileRepository: операции File Service, нужные каталогу
type FileRepository interface {
	List(ctx context.Context, scope domain.Scope) ([]domain.File, error)
	GetByID(ctx context.Context, id domain.ID) (*domain.File, error)
	Update(ctx context.Context, id domain.ID, fields map[string]interface{}) (*domain.File, error)
	Delete(ctx context.Context, id domain.ID) error
	Download(ctx context.Context, id domain.ID) (io.ReadCloser, string, error)
	DownloadBlob(ctx context.Context, id domain.ID) (*domain.Blob, error)
}

// Previewer открывает PDF во внешнем просмотрщике (preview.Manager)
type Previewer interface {
	OpenExternal(ctx context.Context, file *domain.File) (domain.Reference, error)
}

// Saver сохраняет скачанное содержимое локально
type Saver interface {
	Save(name, contentType string, r io.Reader) error
}

type Action string

const (
	ActionDelete   Action = "delete"
	ActionDownload Action = "download"
	ActionRename   Action = "rename"
	ActionDetails  Action = "details"
	ActionShare    Action = "share"
	ActionPreview  Action = "preview"
	ActionVersions Action = "versions"
)

// ActionOptions: входные данные действий, которым они нужны
type ActionOptions struct {
	NewName   string
	Confirmer Confirmer
	Saver     Saver
}

// PreviewKind: как показывается файл
type PreviewKind string

const (
	PreviewInline   PreviewKind = "inline"
	PreviewExternal PreviewKind = "external"
)

// ActionResult: итог действия. Panel заполняется для share/versions.
type ActionResult struct {
	Action    Action            `json:"action"`
	File      *domain.File      `json:"file,omitempty"`
	Panel     string            `json:"panel,omitempty"`
	Preview   PreviewKind       `json:"preview,omitempty"`
	Reference *domain.Reference `json:"reference,omitempty"`
	Blob      *domain.Blob      `json:"-"`
}

type CatalogConfig struct {
	Size int
	TTL  time.Duration
}

// FileService держит живые каталоги, по одному на Scope
type FileService struct {
	repo      FileRepository
	notifier  Notifier
	previewer Previewer
	logger    *zap.Logger

	mu       sync.Mutex
	catalogs *expirable.LRU[string, *Catalog]
}

func NewFileService(repo FileRepository, notifier Notifier, previewer Previewer, cfg CatalogConfig, logger *zap.Logger) *FileService {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	return &FileService{
		repo:      repo,
		notifier:  notifier,
		previewer: previewer,
		logger:    logger.With(zap.String("component", "catalog")),
		catalogs:  expirable.NewLRU[string, *Catalog](cfg.Size, nil, cfg.TTL),
	}
}

// Catalog возвращает каталог для scope, создавая пустой при необходимости
func (s *FileService) Catalog(scope domain.Scope) *Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.catalogs.Get(scope.Key()); ok {
		catalogCacheHits.Inc()
		return c
	}
	catalogCacheMisses.Inc()

	c := &Catalog{
		scope:     scope,
		repo:      s.repo,
		notifier:  s.notifier,
		previewer: s.previewer,
		logger:    s.logger.With(zap.String("scope", scope.Key())),
	}
	s.catalogs.Add(scope.Key(), c)
	return c
}

// OnUploadComplete принимает результат UploadService, и новая запись попадает в каталог своего scope
func (s *FileService) OnUploadComplete(scope domain.Scope, file domain.File) {
	s.Catalog(scope).AddRecords(file)
}

// RefreshFile перечитывает запись во всех каталогах, где она есть
func (s *FileService) RefreshFile(ctx context.Context, id domain.ID) {
	for _, c := range s.catalogs.Values() {
		if _, ok := c.Get(id); ok {
			c.RefreshRecord(ctx, id)
		}
	}
}

// Catalog: авторитетный список записей одного scope.
// Список меняет только сам каталог; подсистемы передают результаты через AddRecords/RefreshRecord.
type Catalog struct {
	scope     domain.Scope
	repo      FileRepository
	notifier  Notifier
	previewer Previewer
	logger    *zap.Logger

	mu      sync.RWMutex
	files   []domain.File
	loaded  bool
	lastErr error
}

// CatalogState: снимок каталога для API
type CatalogState struct {
	Scope  domain.Scope  `json:"scope"`
	Files  []domain.File `json:"files"`
	Loaded bool          `json:"loaded"`
	Error  string        `json:"error,omitempty"`
}

func (c *Catalog) Scope() domain.Scope {
	return c.scope
}

// Fetch загружает список. При ошибке прежнее состояние сохраняется, пользователь получает уведомление.
func (c *Catalog) Fetch(ctx context.Context) error {
	files, err := c.repo.List(ctx, c.scope)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn("failed to fetch files", zap.Error(err))
		c.notifier.Notify(toast(domain.LevelError, "Failed to load files"))
		return fmt.Errorf("failed to fetch files: %w", err)
	}

	c.mu.Lock()
	c.files = files
	c.loaded = true
	c.lastErr = nil
	c.mu.Unlock()
	return nil
}

// Loaded сообщает, был ли хотя бы один успешный Fetch
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// View возвращает отфильтрованную копию списка
func (c *Catalog) View(filter domain.Filter) CatalogState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.File, 0, len(c.files))
	for i := range c.files {
		if filter.Matches(&c.files[i]) {
			out = append(out, c.files[i])
		}
	}
	state := CatalogState{Scope: c.scope, Files: out, Loaded: c.loaded}
	if c.lastErr != nil {
		state.Error = c.lastErr.Error()
	}
	return state
}

// Get возвращает копию записи
func (c *Catalog) Get(id domain.ID) (domain.File, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(id); i >= 0 {
		return c.files[i], true
	}
	return domain.File{}, false
}

// AddRecords добавляет новые записи или заменяет существующие с тем же id
func (c *Catalog) AddRecords(files ...domain.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		if f.IsPending() {
			continue
		}
		if i := c.indexOf(f.ID); i >= 0 {
			c.files[i] = f
			continue
		}
		c.files = append(c.files, f)
	}
}

// RefreshRecord перечитывает одну запись; 404 удаляет её из списка
func (c *Catalog) RefreshRecord(ctx context.Context, id domain.ID) {
	file, err := c.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.drop(id)
			return
		}
		c.logger.Warn("failed to refresh file", zap.String("file_id", id.String()), zap.Error(err))
		return
	}
	if file != nil {
		c.AddRecords(*file)
	}
}

// Dispatch выполняет пользовательское действие над записью каталога
func (c *Catalog) Dispatch(ctx context.Context, action Action, id domain.ID, opts ActionOptions) (*ActionResult, error) {
	switch action {
	case ActionDelete:
		return &ActionResult{Action: action}, c.Delete(ctx, id, opts.Confirmer)
	case ActionDownload:
		return &ActionResult{Action: action}, c.Download(ctx, id, opts.Saver)
	case ActionRename:
		file, err := c.Rename(ctx, id, opts.NewName)
		return &ActionResult{Action: action, File: file}, err
	case ActionDetails:
		file, err := c.Details(ctx, id)
		return &ActionResult{Action: action, File: file}, err
	case ActionPreview:
		return c.Preview(ctx, id)
	case ActionShare, ActionVersions:
		file, ok := c.Get(id)
		if !ok {
			return nil, ErrFileNotInCatalog
		}
		return &ActionResult{Action: action, File: &file, Panel: string(action)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

// Delete требует подтверждения и убирает запись только после ответа сервера
func (c *Catalog) Delete(ctx context.Context, id domain.ID, confirmer Confirmer) error {
	file, ok := c.Get(id)
	if !ok {
		return ErrFileNotInCatalog
	}
	if err := confirm(ctx, confirmer, fmt.Sprintf("Delete %s?", file.ResolvedName())); err != nil {
		return err
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		if c.dropIfGone(id, err) {
			return fmt.Errorf("failed to delete file %s: %w", id, err)
		}
		c.logger.Error("failed to delete file", zap.String("file_id", id.String()), zap.Error(err))
		c.notifier.Notify(alert(fmt.Sprintf("Could not delete %s", file.ResolvedName())))
		return fmt.Errorf("failed to delete file %s: %w", id, err)
	}

	c.drop(id)
	c.notifier.Notify(toast(domain.LevelSuccess, fmt.Sprintf("Deleted %s", file.ResolvedName())))
	return nil
}

// Download передаёт содержимое в Saver под разрешённым именем записи
func (c *Catalog) Download(ctx context.Context, id domain.ID, saver Saver) error {
	file, ok := c.Get(id)
	if !ok {
		return ErrFileNotInCatalog
	}
	if saver == nil {
		return fmt.Errorf("no saver for download of %s", id)
	}

	body, contentType, err := c.repo.Download(ctx, id)
	if err != nil {
		c.dropIfGone(id, err)
		c.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("Failed to download %s", file.ResolvedName())))
		return fmt.Errorf("failed to download file %s: %w", id, err)
	}
	defer body.Close()

	if contentType == "" {
		contentType = file.ContentType()
	}
	if err := saver.Save(file.ResolvedName(), contentType, body); err != nil {
		return fmt.Errorf("failed to save file %s: %w", id, err)
	}
	return nil
}

// Rename меняет имя оптимистично: сразу локально, с откатом при ошибке сервера
func (c *Catalog) Rename(ctx context.Context, id domain.ID, newName string) (*domain.File, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, newValidationError("new_name", "name must not be empty")
	}
	if _, ok := c.Get(id); !ok {
		return nil, ErrFileNotInCatalog
	}

	var updated *domain.File
	err := optimistic(ctx,
		func() func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			i := c.indexOf(id)
			if i < 0 {
				return nil
			}
			previous := c.files[i]
			c.files[i].SetName(newName)
			return func() { c.restoreNames(previous) }
		},
		func(ctx context.Context) error {
			var err error
			updated, err = c.repo.Update(ctx, id, map[string]interface{}{"name": newName})
			return err
		},
		nil,
	)
	if err != nil {
		c.dropIfGone(id, err)
		c.logger.Warn("failed to rename file", zap.String("file_id", id.String()), zap.Error(err))
		c.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("Failed to rename to %s", newName)))
		return nil, fmt.Errorf("failed to rename file %s: %w", id, err)
	}

	if updated != nil && updated.ID == id {
		updated.SetName(newName)
		c.AddRecords(*updated)
	}
	c.notifier.Notify(toast(domain.LevelSuccess, fmt.Sprintf("Renamed to %s", newName)))

	file, _ := c.Get(id)
	return &file, nil
}

// Details перечитывает запись целиком; при ошибке возвращает частичную запись из списка
func (c *Catalog) Details(ctx context.Context, id domain.ID) (*domain.File, error) {
	partial, inCatalog := c.Get(id)

	file, err := c.repo.GetByID(ctx, id)
	if err == nil && file != nil {
		return file, nil
	}
	if err != nil && c.dropIfGone(id, err) {
		return nil, fmt.Errorf("failed to load details of %s: %w", id, err)
	}
	if !inCatalog {
		if err == nil {
			err = ErrFileNotInCatalog
		}
		return nil, fmt.Errorf("failed to load details of %s: %w", id, err)
	}

	c.logger.Debug("details fetch failed, using list record", zap.String("file_id", id.String()), zap.Error(err))
	return &partial, nil
}

// Preview показывает изображения inline, PDF открывает во внешнем просмотрщике, прочее не поддерживается
func (c *Catalog) Preview(ctx context.Context, id domain.ID) (*ActionResult, error) {
	file, ok := c.Get(id)
	if !ok {
		return nil, ErrFileNotInCatalog
	}

	switch {
	case file.IsImage():
		blob, err := c.repo.DownloadBlob(ctx, id)
		if err != nil {
			c.dropIfGone(id, err)
			c.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("Failed to load preview of %s", file.ResolvedName())))
			return nil, fmt.Errorf("failed to load preview of %s: %w", id, err)
		}
		if blob.ContentType == "" {
			blob.ContentType = file.ContentType()
		}
		return &ActionResult{Action: ActionPreview, File: &file, Preview: PreviewInline, Blob: blob}, nil

	case file.IsPDF():
		if c.previewer == nil {
			return nil, ErrNotPreviewable
		}
		ref, err := c.previewer.OpenExternal(ctx, &file)
		if err != nil {
			c.dropIfGone(id, err)
			c.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("Failed to open %s", file.ResolvedName())))
			return nil, fmt.Errorf("failed to open preview of %s: %w", id, err)
		}
		return &ActionResult{Action: ActionPreview, File: &file, Preview: PreviewExternal, Reference: &ref}, nil

	default:
		c.notifier.Notify(toast(domain.LevelInfo, fmt.Sprintf("Preview is not available for %s", file.ResolvedName())))
		return nil, ErrNotPreviewable
	}
}

// dropIfGone убирает запись, если сервер её уже не знает
func (c *Catalog) dropIfGone(id domain.ID, err error) bool {
	if !errors.Is(err, repository.ErrNotFound) {
		return false
	}
	if c.drop(id) {
		c.notifier.Notify(toast(domain.LevelInfo, "The file no longer exists and was removed from the list"))
	}
	return true
}

func (c *Catalog) drop(id domain.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	c.files = append(c.files[:i], c.files[i+1:]...)
	return true
}

// restoreNames возвращает поля имени; прочие поля могли обновиться параллельно
func (c *Catalog) restoreNames(previous domain.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(previous.ID)
	if i < 0 {
		return
	}
	f := &c.files[i]
	f.Name = previous.Name
	f.DisplayName = previous.DisplayName
	f.FileName = previous.FileName
	f.Filename = previous.Filename
	f.OriginalName = previous.OriginalName
}

// indexOf вызывается под c.mu
func (c *Catalog) indexOf(id domain.ID) int {
	for i := range c.files {
		if c.files[i].ID == id {
			return i
		}
	}
	return -1
}
