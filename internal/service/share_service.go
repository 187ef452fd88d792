package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quotefiles/internal/domain"
	"quotefiles/internal/repository"
)

// ShareRepository: операции File Service для доступа к файлам
type ShareRepository interface {
	ListPasswordShares(ctx context.Context, fileID domain.ID) ([]domain.ShareGrant, error)
	ListOtpShares(ctx context.Context, fileID domain.ID) ([]domain.ShareGrant, error)
	CreatePasswordShare(ctx context.Context, fileID domain.ID, req domain.PasswordLinkRequest) (*domain.ShareGrant, error)
	CreateOtpShare(ctx context.Context, fileID domain.ID, email string, hours int, expiresAt time.Time) error
	Revoke(ctx context.Context, fileID, shareID domain.ID) error
}

type ShareConfig struct {
	// BaseURL: префикс публичной ссылки, когда бэкенд вернул только токен
	BaseURL string
}

// GrantLists: доступы файла, по видам
type GrantLists struct {
	Links []domain.ShareGrant `json:"links"`
	Otps  []domain.ShareGrant `json:"otps"`
}

// grantBoard: локальное состояние доступов одного файла.
// revoked хранит отозванные id, чтобы повторный список их не вернул.
type grantBoard struct {
	links   []domain.ShareGrant
	otps    []domain.ShareGrant
	revoked map[domain.ID]struct{}
}

func (b *grantBoard) list(kind domain.GrantKind) *[]domain.ShareGrant {
	if kind == domain.GrantKindOTP {
		return &b.otps
	}
	return &b.links
}

// ShareService: ссылки с паролем и OTP-доступы.
// Состояние доступа вычисляется на клиенте по часам сервиса.
type ShareService struct {
	repo     ShareRepository
	notifier Notifier
	cfg      ShareConfig
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	boards map[domain.ID]*grantBoard
}

func NewShareService(repo ShareRepository, notifier Notifier, cfg ShareConfig, logger *zap.Logger) *ShareService {
	s := &ShareService{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "shares")),
		boards:   make(map[domain.ID]*grantBoard),
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// future читает часы при каждой проверке, поэтому WithClock на неё влияет
	v.RegisterValidation("future", func(fl validator.FieldLevel) bool {
		t, ok := fl.Field().Interface().(time.Time)
		return ok && t.After(s.now())
	})
	s.validate = v
	return s
}

// WithClock подменяет часы (тесты, симуляция течения времени)
func (s *ShareService) WithClock(now func() time.Time) *ShareService {
	s.now = now
	return s
}

// CreatePasswordLink создаёт публичную ссылку. Пароль, срок и лимит обращений обязательны.
func (s *ShareService) CreatePasswordLink(ctx context.Context, fileID domain.ID, req domain.PasswordLinkRequest) (*domain.ShareGrant, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	grant, err := s.repo.CreatePasswordShare(ctx, fileID, req)
	if err != nil {
		s.logger.Warn("failed to create share link", zap.String("file_id", fileID.String()), zap.Error(err))
		s.notifier.Notify(toast(domain.LevelError, "Failed to create share link"))
		return nil, fmt.Errorf("failed to create share link for %s: %w", fileID, err)
	}

	link, err := s.resolveURL(grant)
	if err != nil {
		s.notifier.Notify(toast(domain.LevelError, "Share link was created but no address was returned"))
		return nil, err
	}
	grant.URL = link

	s.mu.Lock()
	board := s.board(fileID)
	board.links = upsertGrant(board.links, *grant)
	s.mu.Unlock()

	shareGrantsCreated.WithLabelValues(string(domain.GrantKindPassword)).Inc()
	s.notifier.Notify(toast(domain.LevelSuccess, "Share link created"))
	return grant, nil
}

// CreateOtpGrant отправляет доступ по коду на email. Срок: now + hours*3600s.
func (s *ShareService) CreateOtpGrant(ctx context.Context, fileID domain.ID, req domain.OtpGrantRequest) error {
	if err := s.check(req); err != nil {
		return err
	}

	expiresAt := s.now().Add(time.Duration(req.ExpiresInHours) * time.Hour)
	if err := s.repo.CreateOtpShare(ctx, fileID, req.Email, req.ExpiresInHours, expiresAt); err != nil {
		s.logger.Warn("failed to create otp share", zap.String("file_id", fileID.String()), zap.Error(err))
		s.notifier.Notify(toast(domain.LevelError, "Failed to send access code"))
		return fmt.Errorf("failed to create otp share for %s: %w", fileID, err)
	}

	shareGrantsCreated.WithLabelValues(string(domain.GrantKindOTP)).Inc()
	s.notifier.Notify(toast(domain.LevelSuccess, fmt.Sprintf("Access code sent to %s", req.Email)))

	otps, err := s.repo.ListOtpShares(ctx, fileID)
	if err != nil {
		s.logger.Debug("failed to refresh otp shares", zap.String("file_id", fileID.String()), zap.Error(err))
		return nil
	}
	s.mu.Lock()
	board := s.board(fileID)
	board.otps = withoutRevoked(otps, board.revoked)
	s.mu.Unlock()
	return nil
}

// ListGrants загружает оба вида доступов параллельно.
// Каждый список обновляется независимо: ошибка одного не затирает другой.
func (s *ShareService) ListGrants(ctx context.Context, fileID domain.ID) (GrantLists, error) {
	var (
		links, otps       []domain.ShareGrant
		linksErr, otpsErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		links, linksErr = s.repo.ListPasswordShares(gctx, fileID)
		return nil
	})
	g.Go(func() error {
		otps, otpsErr = s.repo.ListOtpShares(gctx, fileID)
		return nil
	})
	g.Wait()

	s.mu.Lock()
	board := s.board(fileID)
	if linksErr == nil {
		board.links = withoutRevoked(links, board.revoked)
	}
	if otpsErr == nil {
		board.otps = withoutRevoked(otps, board.revoked)
	}
	s.mu.Unlock()

	if err := errors.Join(linksErr, otpsErr); err != nil {
		s.logger.Warn("failed to list shares", zap.String("file_id", fileID.String()), zap.Error(err))
		s.notifier.Notify(toast(domain.LevelError, "Failed to load sharing settings"))
		return s.ActiveGrants(fileID), fmt.Errorf("failed to list shares of %s: %w", fileID, err)
	}
	return s.ActiveGrants(fileID), nil
}

// ActiveGrants фильтрует локальные доступы без обращения к сети
func (s *ShareService) ActiveGrants(fileID domain.ID) GrantLists {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[fileID]
	if !ok {
		return GrantLists{Links: []domain.ShareGrant{}, Otps: []domain.ShareGrant{}}
	}
	return GrantLists{
		Links: activeOnly(board.links, board.revoked, now),
		Otps:  activeOnly(board.otps, board.revoked, now),
	}
}

// Revoke отзывает доступ после подтверждения.
// Доступ пропадает из списка сразу; при ошибке сервера возвращается на место.
func (s *ShareService) Revoke(ctx context.Context, fileID, grantID domain.ID, confirmer Confirmer) error {
	s.mu.Lock()
	grant, _, ok := s.find(fileID, grantID)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownGrant
	}

	if err := confirm(ctx, confirmer, "Revoke access to this file?"); err != nil {
		return err
	}

	err := optimistic(ctx,
		func() func() { return s.removeLocally(fileID, grantID) },
		func(ctx context.Context) error { return s.repo.Revoke(ctx, fileID, grantID) },
		func(err error) bool { return errors.Is(err, repository.ErrNotFound) },
	)
	switch {
	case err == nil:
		shareRevocations.WithLabelValues("success").Inc()
		s.notifier.Notify(toast(domain.LevelSuccess, "Access revoked"))
		return nil
	case errors.Is(err, repository.ErrNotFound):
		shareRevocations.WithLabelValues("gone").Inc()
		s.notifier.Notify(toast(domain.LevelInfo, "Access was already removed"))
		return nil
	default:
		shareRevocations.WithLabelValues("failed").Inc()
		s.logger.Warn("failed to revoke share",
			zap.String("file_id", fileID.String()),
			zap.String("share_id", grantID.String()),
			zap.String("kind", string(grant.Kind)),
			zap.Error(err),
		)
		s.notifier.Notify(toast(domain.LevelError, "Failed to revoke access"))
		return fmt.Errorf("failed to revoke share %s: %w", grantID, err)
	}
}

// removeLocally убирает доступ и возвращает откат, восстанавливающий его на прежнем месте
func (s *ShareService) removeLocally(fileID, grantID domain.ID) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, index, ok := s.find(fileID, grantID)
	if !ok {
		return nil
	}
	board := s.boards[fileID]
	list := board.list(grant.Kind)
	*list = append((*list)[:index:index], (*list)[index+1:]...)
	board.revoked[grantID] = struct{}{}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(board.revoked, grantID)
		list := board.list(grant.Kind)
		for _, g := range *list {
			if g.ID == grantID {
				return
			}
		}
		if index > len(*list) {
			index = len(*list)
		}
		restored := make([]domain.ShareGrant, 0, len(*list)+1)
		restored = append(restored, (*list)[:index]...)
		restored = append(restored, grant)
		restored = append(restored, (*list)[index:]...)
		*list = restored
	}
}

// find вызывается под s.mu
func (s *ShareService) find(fileID, grantID domain.ID) (domain.ShareGrant, int, bool) {
	board, ok := s.boards[fileID]
	if !ok {
		return domain.ShareGrant{}, 0, false
	}
	for _, kind := range []domain.GrantKind{domain.GrantKindPassword, domain.GrantKindOTP} {
		for i, g := range *board.list(kind) {
			if g.ID == grantID {
				g.Kind = kind
				return g, i, true
			}
		}
	}
	return domain.ShareGrant{}, 0, false
}

// board вызывается под s.mu
func (s *ShareService) board(fileID domain.ID) *grantBoard {
	b, ok := s.boards[fileID]
	if !ok {
		b = &grantBoard{revoked: make(map[domain.ID]struct{})}
		s.boards[fileID] = b
	}
	return b
}

// resolveURL: абсолютный url из ответа важнее; иначе токен добавляется к BaseURL.
// Если пришёл только относительный путь, токеном считается его последний сегмент.
func (s *ShareService) resolveURL(grant *domain.ShareGrant) (string, error) {
	if u, err := url.Parse(grant.URL); err == nil && u.IsAbs() {
		if grant.Token == "" {
			grant.Token = path.Base(strings.TrimRight(u.Path, "/"))
		}
		return grant.URL, nil
	}

	token := grant.Token
	if token == "" && grant.URL != "" {
		token = path.Base(strings.TrimRight(grant.URL, "/"))
		grant.Token = token
	}
	if token == "" || token == "." || token == "/" {
		return "", fmt.Errorf("file service returned no share token")
	}
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/" + url.PathEscape(token), nil
}

func (s *ShareService) check(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "future":
		return fmt.Sprintf("%s must be in the future", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func activeOnly(grants []domain.ShareGrant, revoked map[domain.ID]struct{}, now time.Time) []domain.ShareGrant {
	out := make([]domain.ShareGrant, 0, len(grants))
	for i := range grants {
		if _, gone := revoked[grants[i].ID]; gone {
			continue
		}
		if grants[i].IsDisplayablyActive(now) {
			out = append(out, grants[i])
		}
	}
	return out
}

func withoutRevoked(grants []domain.ShareGrant, revoked map[domain.ID]struct{}) []domain.ShareGrant {
	out := make([]domain.ShareGrant, 0, len(grants))
	for _, g := range grants {
		if _, gone := revoked[g.ID]; !gone {
			out = append(out, g)
		}
	}
	return out
}

func upsertGrant(grants []domain.ShareGrant, grant domain.ShareGrant) []domain.ShareGrant {
	for i := range grants {
		if grants[i].ID == grant.ID {
			grants[i] = grant
			return grants
		}
	}
	return append(grants, grant)
}
