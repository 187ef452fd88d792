package service

import "context"

// Confirmer спрашивает у пользователя подтверждение разрушительного действия
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Confirmed возвращает заранее известный ответ (например, ?confirm=true в HTTP-запросе)
type Confirmed bool

func (c Confirmed) Confirm(context.Context, string) bool {
	return bool(c)
}

func confirm(ctx context.Context, c Confirmer, prompt string) error {
	if c == nil || !c.Confirm(ctx, prompt) {
		return ErrNotConfirmed
	}
	return nil
}
