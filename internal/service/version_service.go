package service

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"quotefiles/internal/domain"
)

// VersionRepository: операции File Service для истории версий
type VersionRepository interface {
	GetByID(ctx context.Context, id domain.ID) (*domain.File, error)
	Versions(ctx context.Context, id domain.ID) ([]domain.FileVersion, error)
	UploadVersion(ctx context.Context, id domain.ID, payload domain.Payload) (*domain.FileVersion, error)
	Download(ctx context.Context, id domain.ID) (io.ReadCloser, string, error)
}

// VersionService: история версий файла.
// История вспомогательная: ошибка списка даёт пустой результат, а не ошибку.
type VersionService struct {
	repo     VersionRepository
	notifier Notifier
	onChange func(ctx context.Context, fileID domain.ID)
	logger   *zap.Logger
}

func NewVersionService(repo VersionRepository, notifier Notifier, logger *zap.Logger) *VersionService {
	return &VersionService{
		repo:     repo,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "versions")),
	}
}

// OnChange задаёт хук обновления каталога после новой версии
func (s *VersionService) OnChange(fn func(ctx context.Context, fileID domain.ID)) {
	s.onChange = fn
}

// ListVersions возвращает версии с номерами для отображения
func (s *VersionService) ListVersions(ctx context.Context, fileID domain.ID) []domain.VersionEntry {
	versions, err := s.repo.Versions(ctx, fileID)
	if err != nil {
		s.logger.Warn("failed to list versions", zap.String("file_id", fileID.String()), zap.Error(err))
		return []domain.VersionEntry{}
	}
	return domain.NumberVersions(versions)
}

// UploadNewVersion добавляет ревизию, перечитывает историю и обновляет запись в каталоге
func (s *VersionService) UploadNewVersion(ctx context.Context, fileID domain.ID, payload domain.Payload) ([]domain.VersionEntry, error) {
	if _, err := s.repo.UploadVersion(ctx, fileID, payload); err != nil {
		s.logger.Warn("failed to upload version", zap.String("file_id", fileID.String()), zap.Error(err))
		s.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("Failed to upload new version of %s", payload.Name)))
		return nil, fmt.Errorf("failed to upload version of %s: %w", fileID, err)
	}

	s.notifier.Notify(toast(domain.LevelSuccess, "New version uploaded"))
	entries := s.ListVersions(ctx, fileID)
	if s.onChange != nil {
		s.onChange(ctx, fileID)
	}
	return entries, nil
}

// FindVersion ищет версию в текущей истории файла
func (s *VersionService) FindVersion(ctx context.Context, fileID, versionID domain.ID) (domain.VersionEntry, error) {
	versions, err := s.repo.Versions(ctx, fileID)
	if err != nil {
		return domain.VersionEntry{}, fmt.Errorf("failed to list versions of %s: %w", fileID, err)
	}
	for _, entry := range domain.NumberVersions(versions) {
		if entry.ID == versionID {
			return entry, nil
		}
	}
	return domain.VersionEntry{}, ErrUnknownVersion
}

// DownloadVersion скачивает версию по её собственному id.
// Имя файла содержит номер версии: report.pdf → report_v3.pdf.
func (s *VersionService) DownloadVersion(ctx context.Context, fileName string, version domain.VersionEntry, saver Saver) error {
	if saver == nil {
		return fmt.Errorf("no saver for download of version %s", version.ID)
	}

	body, contentType, err := s.repo.Download(ctx, version.ID)
	if err != nil {
		s.notifier.Notify(toast(domain.LevelError, fmt.Sprintf("Failed to download version %d", version.Number)))
		return fmt.Errorf("failed to download version %s: %w", version.ID, err)
	}
	defer body.Close()

	name := domain.VersionFileName(fileName, version.Number)
	if err := saver.Save(name, contentType, body); err != nil {
		return fmt.Errorf("failed to save version %s: %w", version.ID, err)
	}
	return nil
}

// DownloadVersionByID находит версию и имя родительского файла, затем скачивает
func (s *VersionService) DownloadVersionByID(ctx context.Context, fileID, versionID domain.ID, saver Saver) error {
	entry, err := s.FindVersion(ctx, fileID, versionID)
	if err != nil {
		return err
	}

	name := domain.DefaultDownloadName
	if file, err := s.repo.GetByID(ctx, fileID); err == nil && file != nil {
		name = file.ResolvedName()
	} else if err != nil {
		s.logger.Debug("parent file lookup failed", zap.String("file_id", fileID.String()), zap.Error(err))
	}
	return s.DownloadVersion(ctx, name, entry, saver)
}
