package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"quotefiles/internal/domain"
)

// UploadResult: результат по одному файлу пакетной загрузки.
// File == nil означает, что бэкенд отклонил именно этот файл.
type UploadResult struct {
	Name  string
	File  *domain.File
	Error string
}

type FileRepository struct {
	client *Client
}

func NewFileRepository(client *Client) *FileRepository {
	return &FileRepository{client: client}
}

// List вызывает GET /files?context&context_id
func (r *FileRepository) List(ctx context.Context, scope domain.Scope) ([]domain.File, error) {
	query := url.Values{}
	if scope.Context != "" {
		query.Set("context", string(scope.Context))
	}
	if scope.ContextID != "" {
		query.Set("context_id", scope.ContextID)
	}

	data, err := r.client.doJSON(ctx, request{method: http.MethodGet, path: "/files", query: query})
	if err != nil {
		return nil, err
	}
	files, err := decodeList[domain.File](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode file list: %w", err)
	}
	return files, nil
}

// GetByID вызывает GET /files/:id
func (r *FileRepository) GetByID(ctx context.Context, id domain.ID) (*domain.File, error) {
	data, err := r.client.doJSON(ctx, request{method: http.MethodGet, path: filePath(id.String())})
	if err != nil {
		return nil, err
	}
	file, err := decodeOne[domain.File](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode file %s: %w", id, err)
	}
	return file, nil
}

// Upload вызывает POST /files с одним файлом в поле file
func (r *FileRepository) Upload(ctx context.Context, scope domain.Scope, payload domain.Payload, progress ProgressFunc) (*domain.File, error) {
	body, contentType := multipartBody("file", []domain.Payload{payload}, scopeFields(scope), progress)
	defer body.Close()

	data, err := r.client.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        "/files",
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	file, err := decodeOne[domain.File](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode uploaded file: %w", err)
	}
	return file, nil
}

// UploadBatch вызывает POST /files с несколькими файлами в поле files[].
// Бэкенд может вернуть либо список созданных записей, либо
// {results:[{file, error}]} с результатом по каждому файлу.
func (r *FileRepository) UploadBatch(ctx context.Context, scope domain.Scope, payloads []domain.Payload, progress ProgressFunc) ([]UploadResult, error) {
	body, contentType := multipartBody("files[]", payloads, scopeFields(scope), progress)
	defer body.Close()

	data, err := r.client.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        "/files",
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	return decodeBatchResults(data, payloads)
}

type batchItem struct {
	File  *domain.File `json:"file"`
	Name  string       `json:"name"`
	Error string       `json:"error"`
}

func decodeBatchResults(data []byte, payloads []domain.Payload) ([]UploadResult, error) {
	var envelope struct {
		Results []batchItem `json:"results"`
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Results != nil {
			results := make([]UploadResult, 0, len(envelope.Results))
			for i, item := range envelope.Results {
				name := item.Name
				if name == "" && i < len(payloads) {
					name = payloads[i].Name
				}
				if item.File != nil && item.Error == "" {
					results = append(results, UploadResult{Name: name, File: item.File})
					continue
				}
				msg := item.Error
				if msg == "" {
					msg = "rejected by file service"
				}
				results = append(results, UploadResult{Name: name, Error: msg})
			}
			return results, nil
		}
	}

	files, err := decodeList[domain.File](data)
	if err != nil {
		// Одиночная запись на пакетный запрос означает агрегированный ответ
		return nil, fmt.Errorf("failed to decode batch upload response: %w", err)
	}

	results := make([]UploadResult, 0, len(files))
	for i := range files {
		results = append(results, UploadResult{Name: files[i].ResolvedName(), File: &files[i]})
	}
	return results, nil
}

// Update вызывает PUT /files/:id
func (r *FileRepository) Update(ctx context.Context, id domain.ID, fields map[string]interface{}) (*domain.File, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode update: %w", err)
	}

	data, err := r.client.doJSON(ctx, request{
		method:      http.MethodPut,
		path:        filePath(id.String()),
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	// Часть бэкендов отвечает пустым телом
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	file, err := decodeOne[domain.File](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode updated file: %w", err)
	}
	return file, nil
}

// Delete вызывает DELETE /files/:id
func (r *FileRepository) Delete(ctx context.Context, id domain.ID) error {
	_, err := r.client.doJSON(ctx, request{method: http.MethodDelete, path: filePath(id.String())})
	return err
}

// Download вызывает GET /files/:id/download. Вызывающий закрывает ReadCloser.
func (r *FileRepository) Download(ctx context.Context, id domain.ID) (io.ReadCloser, string, error) {
	resp, err := r.client.do(ctx, request{method: http.MethodGet, path: filePath(id.String(), "download")})
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// DownloadBlob читает содержимое файла целиком
func (r *FileRepository) DownloadBlob(ctx context.Context, id domain.ID) (*domain.Blob, error) {
	body, contentType, err := r.Download(ctx, id)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read content of %s: %w", id, err)
	}
	return &domain.Blob{Data: data, ContentType: contentType}, nil
}

// Versions вызывает GET /files/:id/versions
func (r *FileRepository) Versions(ctx context.Context, id domain.ID) ([]domain.FileVersion, error) {
	data, err := r.client.doJSON(ctx, request{method: http.MethodGet, path: filePath(id.String(), "versions")})
	if err != nil {
		return nil, err
	}
	versions, err := decodeList[domain.FileVersion](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode versions of %s: %w", id, err)
	}
	return versions, nil
}

// UploadVersion вызывает POST /files/:id/versions
func (r *FileRepository) UploadVersion(ctx context.Context, id domain.ID, payload domain.Payload) (*domain.FileVersion, error) {
	body, contentType := multipartBody("file", []domain.Payload{payload}, nil, nil)
	defer body.Close()

	data, err := r.client.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        filePath(id.String(), "versions"),
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	version, err := decodeOne[domain.FileVersion](data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode new version of %s: %w", id, err)
	}
	return version, nil
}

func scopeFields(scope domain.Scope) map[string]string {
	return map[string]string{
		"context":    string(scope.Context),
		"context_id": scope.ContextID,
	}
}
