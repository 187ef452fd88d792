package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"quotefiles/internal/domain"
)

type ShareRepository struct {
	client *Client
}

func NewShareRepository(client *Client) *ShareRepository {
	return &ShareRepository{client: client}
}

// ListPasswordShares вызывает GET /files/:id/shares
func (r *ShareRepository) ListPasswordShares(ctx context.Context, fileID domain.ID) ([]domain.ShareGrant, error) {
	return r.list(ctx, fileID, "shares", domain.GrantKindPassword)
}

// ListOtpShares вызывает GET /files/:id/otp-shares
func (r *ShareRepository) ListOtpShares(ctx context.Context, fileID domain.ID) ([]domain.ShareGrant, error) {
	return r.list(ctx, fileID, "otp-shares", domain.GrantKindOTP)
}

func (r *ShareRepository) list(ctx context.Context, fileID domain.ID, resource string, kind domain.GrantKind) ([]domain.ShareGrant, error) {
	data, err := r.client.doJSON(ctx, request{method: http.MethodGet, path: filePath(fileID.String(), resource)})
	if err != nil {
		return nil, err
	}

	grants, err := decodeList[domain.ShareGrant](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s of %s: %w", resource, fileID, err)
	}
	for i := range grants {
		grants[i].Kind = kind
		if grants[i].FileID.IsZero() {
			grants[i].FileID = fileID
		}
	}
	return grants, nil
}

type createShareRequest struct {
	Password       string    `json:"password"`
	ExpiresAt      time.Time `json:"expires_at"`
	MaxAccessCount int       `json:"max_access_count"`
}

// CreatePasswordShare вызывает POST /files/:id/share.
// Токен и ссылка ищутся во всех известных полях ответа, в том числе во вложенных data/share.
func (r *ShareRepository) CreatePasswordShare(ctx context.Context, fileID domain.ID, req domain.PasswordLinkRequest) (*domain.ShareGrant, error) {
	payload, err := json.Marshal(createShareRequest{
		Password:       req.Password,
		ExpiresAt:      req.ExpiresAt.UTC(),
		MaxAccessCount: req.MaxAccessCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode share request: %w", err)
	}

	data, err := r.client.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        filePath(fileID.String(), "share"),
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	grant, err := decodeCreatedShare(data)
	if err != nil {
		return nil, err
	}
	grant.Kind = domain.GrantKindPassword
	grant.FileID = fileID
	if grant.ExpiresAt.IsZero() {
		grant.ExpiresAt = req.ExpiresAt
	}
	if grant.MaxAccessCount == 0 {
		grant.MaxAccessCount = req.MaxAccessCount
	}
	return grant, nil
}

// shareFields: все варианты полей, в которых бэкенд возвращает созданную ссылку
type shareFields struct {
	domain.ShareGrant
	ShareURL string `json:"share_url,omitempty"`
	Link     string `json:"link,omitempty"`
}

func decodeCreatedShare(data []byte) (*domain.ShareGrant, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("unexpected share response")
	}

	var top shareFields
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("failed to decode share response: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode share response: %w", err)
	}
	for _, key := range []string{"data", "share"} {
		raw := bytes.TrimSpace(envelope[key])
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var nested shareFields
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, fmt.Errorf("failed to decode share response: %w", err)
		}
		mergeShareFields(&top, nested)
	}

	grant := top.ShareGrant
	if grant.URL == "" {
		grant.URL = top.ShareURL
	}
	if grant.URL == "" {
		grant.URL = top.Link
	}
	return &grant, nil
}

func mergeShareFields(dst *shareFields, src shareFields) {
	if dst.ID.IsZero() {
		dst.ID = src.ID
	}
	if dst.Token == "" {
		dst.Token = src.Token
	}
	if dst.URL == "" {
		dst.URL = src.URL
	}
	if dst.ShareURL == "" {
		dst.ShareURL = src.ShareURL
	}
	if dst.Link == "" {
		dst.Link = src.Link
	}
	if dst.Status == "" {
		dst.Status = src.Status
	}
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if dst.ExpiresAt.IsZero() {
		dst.ExpiresAt = src.ExpiresAt
	}
	if dst.MaxAccessCount == 0 {
		dst.MaxAccessCount = src.MaxAccessCount
	}
}

type createOtpShareRequest struct {
	Email          string    `json:"email"`
	ExpiresAt      time.Time `json:"expires_at"`
	ExpiresInHours int       `json:"expires_in_hours"`
}

// CreateOtpShare вызывает POST /files/:id/share-otp. Бэкенд сам отправляет письмо.
func (r *ShareRepository) CreateOtpShare(ctx context.Context, fileID domain.ID, email string, hours int, expiresAt time.Time) error {
	payload, err := json.Marshal(createOtpShareRequest{
		Email:          email,
		ExpiresAt:      expiresAt.UTC(),
		ExpiresInHours: hours,
	})
	if err != nil {
		return fmt.Errorf("failed to encode otp share request: %w", err)
	}

	_, err = r.client.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        filePath(fileID.String(), "share-otp"),
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	})
	return err
}

// Revoke вызывает DELETE /files/:id/shares/:shareId, общий для обоих видов доступа
func (r *ShareRepository) Revoke(ctx context.Context, fileID, shareID domain.ID) error {
	_, err := r.client.doJSON(ctx, request{
		method: http.MethodDelete,
		path:   filePath(fileID.String(), "shares", url.PathEscape(shareID.String())),
	})
	return err
}
