package domain

import "time"

type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
)

// Notification: неблокирующее (toast) или блокирующее (dialog) сообщение пользователю.
// Transient-уведомления исчезают сами по истечении TTL ленты.
type Notification struct {
	ID        uint64            `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	Blocking  bool              `json:"blocking,omitempty"`
	Transient bool              `json:"transient,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
