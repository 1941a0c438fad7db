// Package backend talks to the SmartMart REST service. It is the only place
// network I/O happens; every failure comes back as a tagged salesync error,
// never a panic or an untyped string.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	salesync "github.com/smartmart/salesync/components/salesync"
)

// DefaultTimeout bounds every request; on expiry the in-flight call is
// cancelled and reported as a timeout.
const DefaultTimeout = 8 * time.Second

func init() {
	// The backend speaks bare JSON numbers for money fields.
	decimal.MarshalJSONWithoutQuotes = true
}

// Config configures the backend client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Recorder   salesync.Recorder
}

// Client implements salesync.Backend and salesync.Transfer over REST.
type Client struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	recorder salesync.Recorder
}

var (
	_ salesync.Backend  = (*Client)(nil)
	_ salesync.Transfer = (*Client)(nil)
)

// New builds a client for the given backend.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		timeout:  timeout,
		client:   httpClient,
		recorder: recorder,
	}, nil
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, string, map[string]any) {}

// FetchProducts lists products, optionally filtered by category.
func (c *Client) FetchProducts(ctx context.Context, categoryID string) ([]salesync.Product, error) {
	path := "/products"
	if categoryID != "" {
		path += "?category_id=" + url.QueryEscape(categoryID)
	}
	var products []salesync.Product
	if err := c.do(ctx, http.MethodGet, path, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// FetchCategories lists categories, tolerating both a bare array and a
// {data: [...]} envelope.
func (c *Client) FetchCategories(ctx context.Context) ([]salesync.Category, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &raw); err != nil {
		return nil, err
	}
	var categories []salesync.Category
	if err := json.Unmarshal(raw, &categories); err == nil {
		return categories, nil
	}
	var envelope struct {
		Data []salesync.Category `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("backend: decode categories: %w", err)
	}
	return envelope.Data, nil
}

// FetchStats loads raw per-month sales buckets for the filter.
func (c *Client) FetchStats(ctx context.Context, year int, categoryID string) (salesync.RawStats, error) {
	query := url.Values{}
	query.Set("year", strconv.Itoa(year))
	if categoryID != "" {
		query.Set("category_id", categoryID)
	}
	var raw salesync.RawStats
	if err := c.do(ctx, http.MethodGet, "/sales/stats?"+query.Encode(), nil, &raw); err != nil {
		return salesync.RawStats{}, err
	}
	return raw, nil
}

// FetchYears lists the years with recorded sales. Callers apply the
// current-year fallback; an empty list is returned as-is.
func (c *Client) FetchYears(ctx context.Context) ([]int, error) {
	var years []int
	if err := c.do(ctx, http.MethodGet, "/sales/years", nil, &years); err != nil {
		return nil, err
	}
	return years, nil
}

// UpdateSale sends a single PUT carrying the accumulated patch and returns
// the server's echoed representation.
func (c *Client) UpdateSale(ctx context.Context, id int, patch map[string]any) (salesync.Sale, error) {
	var sale salesync.Sale
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/sales/%d", id), patch, &sale); err != nil {
		return salesync.Sale{}, err
	}
	return sale, nil
}

// ImportCSV uploads a CSV file via the multipart import endpoint.
func (c *Client) ImportCSV(ctx context.Context, kind salesync.ImportKind, filename string, file io.Reader) (salesync.ImportReport, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return salesync.ImportReport{}, fmt.Errorf("backend: build multipart: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return salesync.ImportReport{}, fmt.Errorf("backend: copy import payload: %w", err)
	}
	if err := writer.WriteField("type", string(kind)); err != nil {
		return salesync.ImportReport{}, fmt.Errorf("backend: build multipart: %w", err)
	}
	if err := writer.Close(); err != nil {
		return salesync.ImportReport{}, fmt.Errorf("backend: build multipart: %w", err)
	}

	var report salesync.ImportReport
	if err := c.doRaw(ctx, http.MethodPost, "/import/csv", &body, writer.FormDataContentType(), &report); err != nil {
		return salesync.ImportReport{}, err
	}
	return report, nil
}

// ExportCSV downloads the CSV export of a resource.
func (c *Client) ExportCSV(ctx context.Context, resource string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/"+resource+"/export", nil, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, translateTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, translateStatus(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read export: %w", err)
	}
	return data, nil
}

// do issues a JSON request and decodes the response into target.
func (c *Client) do(ctx context.Context, method, path string, payload any, target any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("backend: encode payload: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.doRaw(ctx, method, path, body, contentType, target)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body io.Reader, contentType string, target any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	requestID := req.Header.Get("X-Request-ID")
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		translated := translateTransportError(err)
		c.recorder.Record(ctx, "backend.request.failed", map[string]any{
			"request_id": requestID,
			"method":     method,
			"path":       path,
			"error":      translated.Error(),
		})
		return translated
	}
	defer resp.Body.Close()

	c.recorder.Record(ctx, "backend.request", map[string]any{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     resp.StatusCode,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode >= 300 {
		return translateStatus(resp)
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// translateTransportError maps client.Do failures into the error taxonomy:
// deadline expiry becomes a timeout, everything else a connection-level
// failure where the server never answered.
func translateTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return salesync.TimeoutError(err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return salesync.TimeoutError(err)
	}
	return salesync.UnreachableError(err)
}

// translateStatus maps non-2xx responses. The server responded, so these are
// never retried as network failures; 4xx payload rejections surface as
// validation errors with the server's message.
func translateStatus(resp *http.Response) error {
	message := readErrorMessage(resp.Body)
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		return salesync.ValidationFailure(resp.StatusCode, "", message)
	}
	return salesync.ServerFailure(resp.StatusCode, message)
}

// readErrorMessage extracts {message} or {detail} from an error body.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return string(data)
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Detail
}
