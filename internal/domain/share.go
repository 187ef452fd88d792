package domain

import (
	"time"
)

type GrantKind string
type GrantState string

const (
	GrantKindPassword GrantKind = "password"
	GrantKindOTP      GrantKind = "otp"

	GrantActive  GrantState = "active"
	GrantExpired GrantState = "expired"
	GrantRevoked GrantState = "revoked"
)

// ShareGrant описывает доступ к файлу, то есть публичную ссылку с паролем или OTP-доступ по email.
// Статус в основном вычисляется, хранимым бывает только "expired" или "revoked".
type ShareGrant struct {
	ID             ID        `json:"id"`
	FileID         ID        `json:"file_id,omitempty"`
	Kind           GrantKind `json:"kind"`
	Status         string    `json:"status,omitempty"`
	Token          string    `json:"token,omitempty"`
	URL            string    `json:"url,omitempty"`
	Email          string    `json:"email,omitempty"`
	MaxAccessCount int       `json:"max_access_count,omitempty"`
	AccessCount    int       `json:"access_count,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// State вычисляет состояние доступа на момент now.
// Из Expired и Revoked обратного перехода в Active нет.
func (g *ShareGrant) State(now time.Time) GrantState {
	switch g.Status {
	case string(GrantRevoked):
		return GrantRevoked
	case string(GrantExpired):
		return GrantExpired
	}
	if !g.ExpiresAt.After(now) {
		return GrantExpired
	}
	return GrantActive
}

// IsDisplayablyActive: хранимый статус не "expired" и срок строго в будущем
func (g *ShareGrant) IsDisplayablyActive(now time.Time) bool {
	return g.State(now) == GrantActive
}

// PasswordLinkRequest: параметры публичной ссылки.
// Все три поля обязательны: ссылка всегда ограничена паролем, сроком и числом обращений.
type PasswordLinkRequest struct {
	Password       string    `json:"password" validate:"required,min=4,max=50"`
	ExpiresAt      time.Time `json:"expires_at" validate:"required,future"`
	MaxAccessCount int       `json:"max_access_count" validate:"required,gt=0"`
}

// OtpGrantRequest: параметры доступа по одноразовому коду на email
type OtpGrantRequest struct {
	Email          string `json:"email" validate:"required,email"`
	ExpiresInHours int    `json:"expires_in_hours" validate:"required,min=1,max=168"`
}
