package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
)

type MockVersionRepository struct {
	mock.Mock
}

func (m *MockVersionRepository) GetByID(ctx context.Context, id domain.ID) (*domain.File, error) {
	args := m.Called(ctx, id)
	file, _ := args.Get(0).(*domain.File)
	return file, args.Error(1)
}

func (m *MockVersionRepository) Versions(ctx context.Context, id domain.ID) ([]domain.FileVersion, error) {
	args := m.Called(ctx, id)
	versions, _ := args.Get(0).([]domain.FileVersion)
	return versions, args.Error(1)
}

func (m *MockVersionRepository) UploadVersion(ctx context.Context, id domain.ID, payload domain.Payload) (*domain.FileVersion, error) {
	args := m.Called(ctx, id, payload.Name)
	version, _ := args.Get(0).(*domain.FileVersion)
	return version, args.Error(1)
}

func (m *MockVersionRepository) Download(ctx context.Context, id domain.ID) (io.ReadCloser, string, error) {
	args := m.Called(ctx, id)
	body, _ := args.Get(0).(io.ReadCloser)
	return body, args.String(1), args.Error(2)
}

func setupVersions(t *testing.T) (*VersionService, *MockVersionRepository) {
	t.Helper()
	repo := new(MockVersionRepository)
	feed := NewNotificationFeed(FeedConfig{}, zap.NewNop())
	return NewVersionService(repo, feed, zap.NewNop()), repo
}

func TestVersionService_PositionalNumbering(t *testing.T) {
	svc, repo := setupVersions(t)
	repo.On("Versions", mock.Anything, domain.ID("f1")).Return([]domain.FileVersion{{ID: "v3"}, {ID: "v2"}, {ID: "v1"}}, nil)

	entries := svc.ListVersions(context.Background(), "f1")
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, len(entries)-i, e.Number)
	}
}

func TestVersionService_StoredNumberWins(t *testing.T) {
	svc, repo := setupVersions(t)
	repo.On("Versions", mock.Anything, domain.ID("f1")).
		Return([]domain.FileVersion{{ID: "v9", VersionNumber: 9}, {ID: "v7", Version: 7}, {ID: "x"}}, nil)

	entries := svc.ListVersions(context.Background(), "f1")
	assert.Equal(t, 9, entries[0].Number)
	assert.Equal(t, 7, entries[1].Number)
	assert.Equal(t, 1, entries[2].Number)
}

func TestVersionService_ListFailureIsEmpty(t *testing.T) {
	svc, repo := setupVersions(t)
	repo.On("Versions", mock.Anything, domain.ID("f1")).Return(nil, errors.New("502"))

	entries := svc.ListVersions(context.Background(), "f1")
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestVersionService_UploadRelistsAndRefreshes(t *testing.T) {
	svc, repo := setupVersions(t)
	repo.On("UploadVersion", mock.Anything, domain.ID("f1"), "report.pdf").Return(&domain.FileVersion{ID: "v2"}, nil)
	repo.On("Versions", mock.Anything, domain.ID("f1")).Return([]domain.FileVersion{{ID: "v2"}, {ID: "v1"}}, nil)

	var refreshed domain.ID
	svc.OnChange(func(_ context.Context, id domain.ID) { refreshed = id })

	entries, err := svc.UploadNewVersion(context.Background(), "f1", domain.BytesPayload("report.pdf", "application/pdf", []byte("x")))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, domain.ID("f1"), refreshed)
	repo.AssertExpectations(t)
}

func TestVersionService_UploadFailureSkipsRefresh(t *testing.T) {
	svc, repo := setupVersions(t)
	repo.On("UploadVersion", mock.Anything, domain.ID("f1"), "report.pdf").Return(nil, errors.New("too large"))

	called := false
	svc.OnChange(func(context.Context, domain.ID) { called = true })

	_, err := svc.UploadNewVersion(context.Background(), "f1", domain.BytesPayload("report.pdf", "", nil))
	require.Error(t, err)
	assert.False(t, called)
	repo.AssertNotCalled(t, "Versions", mock.Anything, mock.Anything)
}

func TestVersionService_DownloadUsesVersionIDAndName(t *testing.T) {
	svc, repo := setupVersions(t)
	repo.On("Versions", mock.Anything, domain.ID("f1")).Return([]domain.FileVersion{{ID: "v2"}, {ID: "v1"}}, nil)
	repo.On("GetByID", mock.Anything, domain.ID("f1")).Return(&domain.File{ID: "f1", Name: "report.pdf"}, nil)
	repo.On("Download", mock.Anything, domain.ID("v1")).
		Return(io.NopCloser(bytes.NewReader([]byte("old"))), "application/pdf", nil)

	saver := &memorySaver{}
	require.NoError(t, svc.DownloadVersionByID(context.Background(), "f1", "v1", saver))
	assert.Equal(t, "report_v1.pdf", saver.name)
	assert.Equal(t, []byte("old"), saver.data)
	repo.AssertNotCalled(t, "Download", mock.Anything, domain.ID("f1"))
}

func TestVersionService_DownloadUnknownVersion(t *testing.T) {
	svc, repo := setupVersions(t)
	repo.On("Versions", mock.Anything, domain.ID("f1")).Return([]domain.FileVersion{{ID: "v1"}}, nil)

	err := svc.DownloadVersionByID(context.Background(), "f1", "v7", &memorySaver{})
	assert.ErrorIs(t, err, ErrUnknownVersion)
}
