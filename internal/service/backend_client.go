package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edugen-studio/internal/models"
	"github.com/noah-isme/edugen-studio/pkg/config"
	appErrors "github.com/noah-isme/edugen-studio/pkg/errors"
	"github.com/noah-isme/edugen-studio/pkg/middleware/requestid"
)

// Backend operation labels used in logs and metrics.
const (
	opGenerate = "generate"
	opSave     = "save"
	opHistory  = "history"
	opDownload = "download"
	opPing     = "ping"
)

const maxErrorBody = 64 << 10

// HTTPError is a non-2xx answer from the generation backend.
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "http error"
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "http error"
	}
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, msg)
}

// parseHTTPError reads the backend's {"error": "..."} envelope when present.
func parseHTTPError(status int, raw []byte) *HTTPError {
	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	out := &HTTPError{StatusCode: status, Body: strings.TrimSpace(string(raw))}
	if err := json.Unmarshal(raw, &env); err == nil {
		out.Message = strings.TrimSpace(firstText(env.Error, env.Message))
	}
	return out
}

// BackendClient talks to the generation backend. It never retries.
type BackendClient struct {
	baseURL           *url.URL
	client            *http.Client
	requestTimeout    time.Duration
	generationTimeout time.Duration
	metrics           *MetricsService
	logger            *zap.Logger
}

// NewBackendClient constructs a client for cfg.BaseURL. A nil httpClient uses a plain client;
// deadlines come from the per-call contexts.
func NewBackendClient(cfg config.BackendConfig, httpClient *http.Client, metrics *MetricsService, logger *zap.Logger) (*BackendClient, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	generationTimeout := cfg.GenerationTimeout
	if generationTimeout <= 0 {
		generationTimeout = 3 * time.Minute
	}
	return &BackendClient{
		baseURL:           base,
		client:            httpClient,
		requestTimeout:    requestTimeout,
		generationTimeout: generationTimeout,
		metrics:           metrics,
		logger:            logger,
	}, nil
}

// Generate posts the request and returns the raw response body, unparsed.
func (c *BackendClient) Generate(ctx context.Context, req models.GenerationRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(defaultCtx(ctx), c.generationTimeout)
	defer cancel()

	resp, err := c.do(ctx, opGenerate, http.MethodPost, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, opGenerate, err)
	}
	return body, nil
}

type saveRequest struct {
	Content  models.ContentBundle     `json:"content"`
	FormData models.GenerationRequest `json:"formData"`
}

// Save stores a bundle on the backend. The acknowledgement body is discarded.
func (c *BackendClient) Save(ctx context.Context, bundle models.ContentBundle, req models.GenerationRequest) error {
	ctx, cancel := context.WithTimeout(defaultCtx(ctx), c.requestTimeout)
	defer cancel()

	resp, err := c.do(ctx, opSave, http.MethodPost, "/api/save", saveRequest{Content: bundle, FormData: req})
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// History returns past generations in the order the backend sent them.
func (c *BackendClient) History(ctx context.Context) ([]models.HistoryRecord, error) {
	ctx, cancel := context.WithTimeout(defaultCtx(ctx), c.requestTimeout)
	defer cancel()

	resp, err := c.do(ctx, opHistory, http.MethodGet, "/api/history", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, opHistory, err)
	}
	records := []models.HistoryRecord{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrResponseFormat.Code, appErrors.ErrResponseFormat.Status, appErrors.ErrResponseFormat.Message)
	}
	return records, nil
}

// Download opens the document for id. The caller owns the returned body and must close it.
func (c *BackendClient) Download(ctx context.Context, id string) (*models.DownloadDescriptor, error) {
	ctx, cancel := context.WithTimeout(defaultCtx(ctx), c.requestTimeout)

	resp, err := c.do(ctx, opDownload, http.MethodGet, "/api/download-pdf/"+url.PathEscape(id), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	return &models.DownloadDescriptor{
		RecordID:    id,
		Filename:    ResolveFilename(resp.Header.Get("Content-Disposition"), id),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
		Body:        &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// Ping checks that the backend answers at all; any HTTP status counts as reachable.
func (c *BackendClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(defaultCtx(ctx), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/history"), nil)
	if err != nil {
		return err
	}
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.ObserveBackendCall(opPing, "error", time.Since(start))
		return c.transportError(ctx, opPing, err)
	}
	_ = resp.Body.Close()
	c.metrics.ObserveBackendCall(opPing, "ok", time.Since(start))
	return nil
}

func (c *BackendClient) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode backend request")
		}
		reader = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build backend request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.metrics.ObserveBackendCall(op, outcomeFor(ctx, err), duration)
		return nil, c.transportError(ctx, op, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := parseHTTPError(resp.StatusCode, raw)
		c.metrics.ObserveBackendCall(op, "status_"+fmt.Sprint(resp.StatusCode), duration)
		c.logger.Warn("backend returned error status",
			zap.String("operation", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", httpErr.Message),
		)
		message := httpErr.Message
		if message == "" {
			message = fmt.Sprintf("backend responded with status %d", resp.StatusCode)
		}
		return nil, appErrors.Wrap(httpErr, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, message)
	}

	c.metrics.ObserveBackendCall(op, "ok", duration)
	c.logger.Debug("backend call completed", zap.String("operation", op), zap.Duration("duration", duration))
	return resp, nil
}

func (c *BackendClient) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *BackendClient) transportError(ctx context.Context, op string, err error) error {
	if isTimeout(ctx, err) {
		c.logger.Warn("backend call timed out", zap.String("operation", op), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, appErrors.ErrTimeout.Message)
	}
	c.logger.Warn("backend call failed", zap.String("operation", op), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, appErrors.ErrNetwork.Message)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeFor(ctx context.Context, err error) string {
	if isTimeout(ctx, err) {
		return "timeout"
	}
	return "error"
}

// cancelOnClose ties a download's deadline to the life of its body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func defaultCtx(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func firstText(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
