// Пакет repository реализует HTTP-доступ к внешнему File Service.
// Формат ответов бэкенда непостоянен, поэтому декодирование списков и
// одиночных записей сведено в normalize.go.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"quotefiles/internal/auth"
)

// ErrNotFound: бэкенд ответил 404 (запись уже удалена)
var ErrNotFound = errors.New("not found")

var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quotefiles_upstream_requests_total",
		Help: "Requests sent to the File Service, by method and status code.",
	}, []string{"method", "status"})

	upstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quotefiles_upstream_request_duration_seconds",
		Help:    "Time until the File Service returned response headers.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)

// maxErrorBody ограничивает тело ответа, которое попадает в APIError
const maxErrorBody = 4 << 10

// APIError: ответ File Service с кодом вне 2xx
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("file service returned %d for %s %s", e.StatusCode, e.Method, e.Path)
	}
	return fmt.Sprintf("file service returned %d for %s %s: %s", e.StatusCode, e.Method, e.Path, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client: базовый HTTP-клиент для File Service.
// Таймаут на запрос задаётся самим http.Client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient создаёт клиента. baseURL, например http://files-api:8080/api
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger.With(zap.String("component", "file_api_client")),
	}
}

// WithHTTPClient подменяет транспорт (тесты, кастомный TLS)
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

// do выполняет запрос и возвращает ответ с кодом 2xx.
// Для остальных кодов тело читается, закрывается и возвращается *APIError.
func (c *Client) do(ctx context.Context, req request) (*http.Response, error) {
	reqURL := c.baseURL + req.path
	if len(req.query) > 0 {
		reqURL += "?" + req.query.Encode()
	}

	body := req.body
	if body == nil {
		body = http.NoBody
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", req.method, req.path, err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token := auth.TokenFromContext(ctx); token != "" {
		httpReq.Header.Set("Authorization", token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	upstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(req.method, "error").Inc()
		c.logger.Warn("file service request failed",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to call %s %s: %w", req.method, req.path, err)
	}
	upstreamRequestsTotal.WithLabelValues(req.method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Method:     req.method,
			Path:       req.path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
		c.logger.Debug("file service returned error status",
			zap.String("method", req.method),
			zap.String("path", req.path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, apiErr
	}

	return resp, nil
}

// doJSON выполняет запрос и полностью читает тело ответа
func (c *Client) doJSON(ctx context.Context, req request) ([]byte, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", req.method, req.path, err)
	}
	return data, nil
}

func filePath(id string, parts ...string) string {
	p := "/files/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}
