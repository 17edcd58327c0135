package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/mdelaney/catsync/internal/config"
	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/store"
)

// HTTPRemote talks to the category service over REST.
type HTTPRemote struct {
	client    *http.Client
	baseURL   string
	userAgent string
	token     string
	logger    *events.Logger

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPRemote creates an HTTP remote adapter.
func NewHTTPRemote(cfg *config.RemoteConfig, logger *events.Logger) *HTTPRemote {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPRemote{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		token:      cfg.Token,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Second,
		logger:     logger.WithField("component", "http_remote"),
	}
}

// Select fetches all records of a kind.
func (r *HTTPRemote) Select(ctx context.Context, kind store.Kind) ([]store.Record, error) {
	var records []store.Record
	if err := r.doJSON(ctx, http.MethodGet, "/v1/"+string(kind), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Insert creates a record.
func (r *HTTPRemote) Insert(ctx context.Context, kind store.Kind, rec store.Record) (*store.Record, error) {
	var created store.Record
	if err := r.doJSON(ctx, http.MethodPost, "/v1/"+string(kind), rec, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update patches a record by id.
func (r *HTTPRemote) Update(ctx context.Context, kind store.Kind, id string, rec store.Record) (*store.Record, error) {
	var updated store.Record
	path := "/v1/" + string(kind) + "/" + url.PathEscape(id)
	if err := r.doJSON(ctx, http.MethodPut, path, rec, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a record by id. A missing id is success so that
// replayed queue items stay no-ops.
func (r *HTTPRemote) Delete(ctx context.Context, kind store.Kind, id string) error {
	path := "/v1/" + string(kind) + "/" + url.PathEscape(id)
	err := r.doJSON(ctx, http.MethodDelete, path, nil, nil)

	var apiErr *models.APIError
	if err != nil && asAPIError(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// Upsert replaces records by id.
func (r *HTTPRemote) Upsert(ctx context.Context, kind store.Kind, recs []store.Record) error {
	return r.doJSON(ctx, http.MethodPost, "/v1/"+string(kind)+"/upsert", recs, nil)
}

// Ping checks service reachability.
func (r *HTTPRemote) Ping(ctx context.Context) error {
	return r.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// Close releases idle connections.
func (r *HTTPRemote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// doJSON executes a request with retry, decoding the response into
// out when non-nil. Connectivity failures come back wrapped in
// models.ErrRemoteUnavailable so callers can queue instead of fail.
func (r *HTTPRemote) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	reqURL := r.baseURL + path

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"method": method,
		"url":    reqURL,
		"size":   len(body),
	}).Debug("Sending request")

	var respBody []byte
	err := r.retry(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", r.userAgent)
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			apiErr := &models.APIError{
				Code:       http.StatusText(resp.StatusCode),
				Message:    string(respBody),
				StatusCode: resp.StatusCode,
			}
			if isRetryable(resp.StatusCode) {
				return fmt.Errorf("%w: %v", models.ErrRemoteUnavailable, apiErr)
			}
			return apiErr
		}

		return nil
	})
	if err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// retry runs fn with escalating delay. Only connectivity-class
// failures are retried; API rejections return immediately.
func (r *HTTPRemote) retry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.retryDelay * time.Duration(attempt)

			r.logger.WithFields(map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Debug("Retrying request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var apiErr *models.APIError
		if asAPIError(lastErr, &apiErr) && !isRetryable(apiErr.StatusCode) {
			return lastErr
		}
	}

	return lastErr
}

func asAPIError(err error, target **models.APIError) bool {
	return errors.As(err, target)
}

func isRetryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
