package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"quotefiles/internal/domain"
)

// Notifier принимает сообщения для пользователя (toast или диалог)
type Notifier interface {
	Notify(n domain.Notification)
}

func toast(level domain.NotificationLevel, message string) domain.Notification {
	return domain.Notification{Level: level, Message: message, Transient: true}
}

func alert(message string) domain.Notification {
	return domain.Notification{Level: domain.LevelError, Message: message, Blocking: true}
}

type FeedConfig struct {
	Capacity int
	TTL      time.Duration
}

// NotificationFeed: ограниченная лента уведомлений в памяти.
// Transient-записи исчезают из Recent по истечении TTL.
type NotificationFeed struct {
	cfg    FeedConfig
	now    func() time.Time
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	items  []domain.Notification
	subs   map[chan domain.Notification]struct{}
}

func NewNotificationFeed(cfg FeedConfig, logger *zap.Logger) *NotificationFeed {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	return &NotificationFeed{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(zap.String("component", "notifications")),
		subs:   make(map[chan domain.Notification]struct{}),
	}
}

// WithClock подменяет часы ленты
func (f *NotificationFeed) WithClock(now func() time.Time) *NotificationFeed {
	f.now = now
	return f
}

func (f *NotificationFeed) Notify(n domain.Notification) {
	f.mu.Lock()
	f.nextID++
	n.ID = f.nextID
	n.CreatedAt = f.now()

	f.prune(n.CreatedAt)
	f.items = append(f.items, n)
	if len(f.items) > f.cfg.Capacity {
		f.items = append([]domain.Notification(nil), f.items[len(f.items)-f.cfg.Capacity:]...)
	}

	for ch := range f.subs {
		select {
		case ch <- n:
		default:
		}
	}
	f.mu.Unlock()

	f.logger.Debug("notification",
		zap.String("level", string(n.Level)),
		zap.String("message", n.Message),
		zap.Bool("blocking", n.Blocking),
	)
}

// Recent возвращает ещё не истёкшие уведомления, от старых к новым
func (f *NotificationFeed) Recent() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prune(f.now())
	return append([]domain.Notification(nil), f.items...)
}

// Subscribe возвращает канал новых уведомлений и функцию отписки.
// Медленный подписчик пропускает уведомления, а не блокирует ленту.
func (f *NotificationFeed) Subscribe() (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, 16)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *NotificationFeed) prune(now time.Time) {
	if f.cfg.TTL <= 0 {
		return
	}
	kept := f.items[:0]
	for _, n := range f.items {
		if n.Transient && now.Sub(n.CreatedAt) >= f.cfg.TTL {
			continue
		}
		kept = append(kept, n)
	}
	f.items = kept
}
