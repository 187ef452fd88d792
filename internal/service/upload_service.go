package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
	"quotefiles/internal/repository"
)

// Uploader: бэкенд загрузки (repository.FileRepository)
type Uploader interface {
	Upload(ctx context.Context, scope domain.Scope, payload domain.Payload, progress repository.ProgressFunc) (*domain.File, error)
	UploadBatch(ctx context.Context, scope domain.Scope, payloads []domain.Payload, progress repository.ProgressFunc) ([]repository.UploadResult, error)
}

// UploadCompleteFunc вызывается один раз на каждую созданную запись
type UploadCompleteFunc func(scope domain.Scope, file domain.File)

type UploadConfig struct {
	MaxSize      int64
	MaxCount     int
	DismissAfter time.Duration
}

// UploadEvent: изменение задачи для подписчиков (SSE)
type UploadEvent struct {
	Task    domain.UploadTask `json:"task"`
	Removed bool              `json:"removed,omitempty"`
}

// UploadService проверяет лимиты и ведёт задачи загрузки с их прогрессом.
// Задачи независимы и выполняются параллельно; отмены передачи нет,
// Dismiss только убирает задачу из локального списка.
type UploadService struct {
	uploader   Uploader
	notifier   Notifier
	cfg        UploadConfig
	logger     *zap.Logger
	onComplete UploadCompleteFunc
	newID      func() (string, error)
	now        func() time.Time

	mu     sync.Mutex
	tasks  map[string]*domain.UploadTask
	order  []string
	timers map[string]*time.Timer
	subs   map[chan UploadEvent]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewUploadService(uploader Uploader, notifier Notifier, cfg UploadConfig, logger *zap.Logger) *UploadService {
	return &UploadService{
		uploader: uploader,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "uploads")),
		newID:    func() (string, error) { return gonanoid.New() },
		now:      time.Now,
		tasks:    make(map[string]*domain.UploadTask),
		timers:   make(map[string]*time.Timer),
		subs:     make(map[chan UploadEvent]struct{}),
	}
}

// OnComplete задаёт получателя созданных записей (каталог)
func (s *UploadService) OnComplete(fn UploadCompleteFunc) {
	s.mu.Lock()
	s.onComplete = fn
	s.mu.Unlock()
}

// Validate отбрасывает файлы больше MaxSize (с временным уведомлением).
// Если оставшихся файлов больше MaxCount, отклоняется весь выбор целиком.
func (s *UploadService) Validate(files []domain.Payload) ([]domain.Payload, error) {
	valid := make([]domain.Payload, 0, len(files))
	var oversized []string
	for _, f := range files {
		if s.cfg.MaxSize > 0 && f.Size > s.cfg.MaxSize {
			oversized = append(oversized, f.Name)
			continue
		}
		valid = append(valid, f)
	}

	if len(oversized) > 0 {
		s.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("Files exceed the %s limit: %s",
			humanSize(s.cfg.MaxSize), strings.Join(oversized, ", "))))
	}

	if s.cfg.MaxCount > 0 && len(valid) > s.cfg.MaxCount {
		s.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("You can upload at most %d files at once", s.cfg.MaxCount)))
		return nil, fmt.Errorf("%w: %d selected, limit is %d", ErrTooManyFiles, len(valid), s.cfg.MaxCount)
	}
	return valid, nil
}

// Submit создаёт одну задачу: пакетную для N>1, одиночную для N=1; для N=0 возвращает nil.
// Загрузка запускается сразу и переживает ctx вызывающего (кроме его значений).
func (s *UploadService) Submit(ctx context.Context, scope domain.Scope, files []domain.Payload) (*domain.UploadTask, error) {
	if len(files) == 0 {
		return nil, nil
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate task id: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	task := &domain.UploadTask{
		ID:        id,
		Label:     strings.Join(names, ", "),
		Batch:     len(files) > 1,
		Files:     names,
		Status:    domain.UploadPending,
		Scope:     scope,
		CreatedAt: s.now(),
		Payloads:  append([]domain.Payload(nil), files...),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("upload service is shut down")
	}
	s.supersede(task.Label)
	s.tasks[id] = task
	s.order = append(s.order, id)
	snapshot := task.Snapshot()
	s.wg.Add(1)
	s.mu.Unlock()

	s.publish(UploadEvent{Task: snapshot})
	go s.run(context.WithoutCancel(ctx), task)

	return &snapshot, nil
}

// Accept: общий путь для drag-and-drop и выбора файлов
func (s *UploadService) Accept(ctx context.Context, scope domain.Scope, files []domain.Payload) (*domain.UploadTask, error) {
	valid, err := s.Validate(files)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, scope, valid)
}

// Tasks возвращает видимые задачи в порядке создания
func (s *UploadService) Tasks() []domain.UploadTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UploadTask, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Snapshot())
	}
	return out
}

// Task возвращает снимок задачи по id
func (s *UploadService) Task(id string) (domain.UploadTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return domain.UploadTask{}, false
	}
	return task.Snapshot(), true
}

// Subscribe возвращает канал изменений задач и функцию отписки
func (s *UploadService) Subscribe() (<-chan UploadEvent, func()) {
	ch := make(chan UploadEvent, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Retry перезапускает задачу в статусе error.
// Для частично неудачного пакета повторяются только отклонённые файлы.
func (s *UploadService) Retry(ctx context.Context, id string) (*domain.UploadTask, error) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownTask
	}
	if task.Status != domain.UploadError {
		s.mu.Unlock()
		return nil, ErrTaskNotFailed
	}
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("upload service is shut down")
	}
	s.stopTimer(id)
	task.Status = domain.UploadPending
	task.Progress = 0
	task.Error = ""
	task.ItemErrors = nil
	snapshot := task.Snapshot()
	s.wg.Add(1)
	s.mu.Unlock()

	s.publish(UploadEvent{Task: snapshot})
	go s.run(context.WithoutCancel(ctx), task)
	return &snapshot, nil
}

// Dismiss убирает задачу из списка. Передача, если она идёт, не прерывается.
func (s *UploadService) Dismiss(id string) error {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownTask
	}
	snapshot := task.Snapshot()
	s.remove(id)
	s.mu.Unlock()

	s.publish(UploadEvent{Task: snapshot, Removed: true})
	return nil
}

// Shutdown останавливает таймеры скрытия и ждёт завершения начатых загрузок
func (s *UploadService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id := range s.timers {
		s.stopTimer(id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("uploads still in flight: %w", ctx.Err())
	}
}

func (s *UploadService) run(ctx context.Context, task *domain.UploadTask) {
	defer s.wg.Done()
	activeUploads.Inc()
	defer activeUploads.Dec()

	s.mu.Lock()
	task.Status = domain.UploadUploading
	scope := task.Scope
	payloads := append([]domain.Payload(nil), task.Payloads...)
	batch := task.Batch
	snapshot := task.Snapshot()
	s.mu.Unlock()
	s.publish(UploadEvent{Task: snapshot})

	progress := s.progressFunc(task)

	var (
		created []domain.File
		failed  []domain.ItemError
		retry   []domain.Payload
		err     error
	)
	if batch {
		var results []repository.UploadResult
		results, err = s.uploader.UploadBatch(ctx, scope, payloads, progress)
		for i, r := range results {
			if r.File != nil {
				created = append(created, *r.File)
				continue
			}
			failed = append(failed, domain.ItemError{Name: r.Name, Error: r.Error})
			if p, ok := payloadByName(payloads, r.Name, i); ok {
				retry = append(retry, p)
			}
		}
	} else {
		var file *domain.File
		file, err = s.uploader.Upload(ctx, scope, payloads[0], progress)
		if err == nil && file != nil {
			created = append(created, *file)
		}
	}

	for _, f := range created {
		uploadBytesTotal.Add(float64(f.Size))
	}
	s.deliver(scope, created)

	switch {
	case err != nil:
		uploadsTotal.WithLabelValues(uploadKind(batch), "error").Inc()
		s.logger.Warn("upload failed", zap.String("task", task.ID), zap.Strings("files", snapshot.Files), zap.Error(err))
		s.fail(task, err.Error(), nil, nil)
		s.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("Upload of %s failed", snapshot.Label)))
	case len(failed) > 0:
		uploadsTotal.WithLabelValues(uploadKind(batch), "partial").Inc()
		msg := fmt.Sprintf("%d of %d files failed to upload", len(failed), len(payloads))
		s.logger.Warn("batch upload partially failed", zap.String("task", task.ID), zap.Int("failed", len(failed)))
		s.fail(task, msg, failed, retry)
		s.notifier.Notify(toast(domain.LevelError, msg))
	default:
		uploadsTotal.WithLabelValues(uploadKind(batch), "success").Inc()
		s.finish(task)
		s.notifier.Notify(toast(domain.LevelSuccess, fmt.Sprintf("Uploaded %s", snapshot.Label)))
	}
}

func (s *UploadService) progressFunc(task *domain.UploadTask) repository.ProgressFunc {
	return func(sent, total int64) {
		percent := 0
		if total > 0 {
			percent = int(sent * 100 / total)
		}
		if percent > 100 {
			percent = 100
		}

		s.mu.Lock()
		if percent <= task.Progress {
			s.mu.Unlock()
			return
		}
		task.Progress = percent
		snapshot := task.Snapshot()
		visible := s.tasks[task.ID] == task
		s.mu.Unlock()

		if visible {
			s.publish(UploadEvent{Task: snapshot})
		}
	}
}

func (s *UploadService) deliver(scope domain.Scope, files []domain.File) {
	s.mu.Lock()
	fn := s.onComplete
	s.mu.Unlock()
	if fn == nil {
		return
	}
	for _, f := range files {
		fn(scope, f)
	}
}

// finish: 100% и удаление задачи из списка
func (s *UploadService) finish(task *domain.UploadTask) {
	s.mu.Lock()
	task.Progress = 100
	snapshot := task.Snapshot()
	visible := s.tasks[task.ID] == task
	if visible {
		s.remove(task.ID)
	}
	s.mu.Unlock()

	if visible {
		s.publish(UploadEvent{Task: snapshot})
		s.publish(UploadEvent{Task: snapshot, Removed: true})
	}
}

// fail переводит задачу в error и ставит таймер автоматического скрытия
func (s *UploadService) fail(task *domain.UploadTask, msg string, items []domain.ItemError, retry []domain.Payload) {
	s.mu.Lock()
	if s.tasks[task.ID] != task {
		s.mu.Unlock()
		return
	}
	task.Status = domain.UploadError
	task.Error = msg
	task.ItemErrors = items
	if len(retry) > 0 {
		task.Payloads = retry
		task.Files = task.Files[:0]
		for _, p := range retry {
			task.Files = append(task.Files, p.Name)
		}
		task.Batch = len(retry) > 1
	}
	snapshot := task.Snapshot()
	if !s.closed && s.cfg.DismissAfter > 0 {
		s.stopTimer(task.ID)
		s.timers[task.ID] = time.AfterFunc(s.cfg.DismissAfter, func() { s.expire(task) })
	}
	s.mu.Unlock()

	s.publish(UploadEvent{Task: snapshot})
}

func (s *UploadService) expire(task *domain.UploadTask) {
	s.mu.Lock()
	if s.tasks[task.ID] != task || task.Status != domain.UploadError {
		s.mu.Unlock()
		return
	}
	delete(s.timers, task.ID)
	snapshot := task.Snapshot()
	s.remove(task.ID)
	s.mu.Unlock()

	s.publish(UploadEvent{Task: snapshot, Removed: true})
}

// supersede убирает упавшую задачу с той же меткой. Вызывается под s.mu.
func (s *UploadService) supersede(label string) {
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Label == label && t.Status == domain.UploadError {
			s.remove(id)
			return
		}
	}
}

// remove вызывается под s.mu
func (s *UploadService) remove(id string) {
	s.stopTimer(id)
	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// stopTimer вызывается под s.mu
func (s *UploadService) stopTimer(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *UploadService) publish(ev UploadEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func payloadByName(payloads []domain.Payload, name string, index int) (domain.Payload, bool) {
	for _, p := range payloads {
		if p.Name == name {
			return p, true
		}
	}
	if index < len(payloads) {
		return payloads[index], true
	}
	return domain.Payload{}, false
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.0f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
