package service

import (
	"context"
	"sync"
)

// pending: локальное изменение, ожидающее ответа сервера.
// Откат выполняется не больше одного раза и только до Commit.
type pending struct {
	mu       sync.Mutex
	rollback func()
	settled  bool
}

// applyPending применяет изменение; apply возвращает функцию отката
func applyPending(apply func() (rollback func())) *pending {
	return &pending{rollback: apply()}
}

func (p *pending) commit() {
	p.mu.Lock()
	p.settled = true
	p.mu.Unlock()
}

func (p *pending) revert() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.settled {
		return
	}
	p.settled = true
	if p.rollback != nil {
		p.rollback()
	}
}

// optimistic: применить локально, вызвать сервер, при ошибке откатить.
// keep решает, какие ошибки всё же не откатывают изменение (например, 404 для уже удалённой записи).
func optimistic(ctx context.Context, apply func() (rollback func()), call func(ctx context.Context) error, keep func(error) bool) error {
	p := applyPending(apply)
	err := call(ctx)
	if err != nil && (keep == nil || !keep(err)) {
		p.revert()
		return err
	}
	p.commit()
	return err
}
