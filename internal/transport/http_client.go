package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/vocabsync/internal/config"
	"github.com/TheMichaelB/vocabsync/internal/events"
	"github.com/TheMichaelB/vocabsync/internal/models"
)

// Wire paths.
const (
	PathHealth = "/health"
	PathVocab  = "/vocab"
)

// HTTPClient handles HTTP communication with the sync server.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	logger    *events.Logger

	mu    sync.RWMutex
	token string
}

// NewHTTPClient creates an HTTP client.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	// Create transport with HTTP/2 support
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	// Configure HTTP/2
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		logger:    logger.WithField("component", "http_client"),
	}
}

// SetToken sets the authentication token.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// GetToken returns the current authentication token.
func (c *HTTPClient) GetToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// GetVocab fetches the server document.
func (c *HTTPClient) GetVocab(ctx context.Context) (*models.ServerData, error) {
	var data models.ServerData
	if err := c.do(ctx, http.MethodGet, PathVocab, nil, &data); err != nil {
		if models.StatusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", models.ErrNoServerData, err)
		}
		return nil, err
	}
	if data.File == nil {
		return nil, fmt.Errorf("parse response: %w: missing file", models.ErrInvalidResponse)
	}
	data.File.Normalize()
	return &data, nil
}

// PutVocab sends a revision-checked update.
func (c *HTTPClient) PutVocab(ctx context.Context, req *models.SyncRequest) (*models.SyncResponse, error) {
	var resp models.SyncResponse
	if err := c.do(ctx, http.MethodPut, PathVocab, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForcePutVocab sends an unconditional update.
func (c *HTTPClient) ForcePutVocab(ctx context.Context, req *models.ForceSyncRequest) (*models.SyncResponse, error) {
	var resp models.SyncResponse
	if err := c.do(ctx, http.MethodPut, PathVocab+"?force=true", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks that the server answers.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, PathHealth, nil, nil)
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// do performs one request. Non-2xx responses become *models.APIError and
// transport failures become a NETWORK_ERROR APIError without a status.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	url := c.baseURL + path

	var body io.Reader
	size := 0
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
		size = len(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.GetToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := events.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	c.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    url,
		"size":   size,
	}).Debug("Sending request")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &models.APIError{
			Code:    models.ErrCodeNetwork,
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.APIError{
			Code:    models.ErrCodeNetwork,
			Message: fmt.Sprintf("read response: %v", err),
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"status": resp.StatusCode,
		"size":   len(respBody),
	}).Debug("Received response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w: %w", models.ErrInvalidResponse, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, body []byte) error {
	apiErr := &models.APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	apiErr.StatusCode = resp.StatusCode
	if apiErr.Code == "" {
		apiErr.Code = models.CodeForStatus(resp.StatusCode)
	}
	if apiErr.RequestID == "" {
		apiErr.RequestID = resp.Header.Get("X-Request-ID")
	}
	return apiErr
}
