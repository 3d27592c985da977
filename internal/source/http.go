package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"example.com/vitals/internal/domain"
)

// HTTPConfig contains tunables for the HTTP bridge client.
type HTTPConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Logger        logrus.FieldLogger
	Client        *http.Client
}

// HTTPSource talks to a capability bridge that exposes the device's health store as JSON.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
}

// NewHTTPSource constructs an HTTPSource. A non-positive RatePerSecond disables client-side limiting.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &HTTPSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger.WithField("component", "http_source"),
	}
}

// Initialize asks the bridge to prepare its health store.
func (s *HTTPSource) Initialize(ctx context.Context) error {
	var resp struct {
		Available *bool `json:"available"`
	}
	if err := s.post(ctx, "initialize", "/v1/initialize", "", nil, &resp); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	if resp.Available != nil && !*resp.Available {
		return domain.ErrSourceUnavailable
	}
	return nil
}

// RequestPermission requests every listed capability in a single call and returns the granted subset.
func (s *HTTPSource) RequestPermission(ctx context.Context, requested []domain.PermissionGrant) ([]domain.PermissionGrant, error) {
	var resp struct {
		Granted []domain.PermissionGrant `json:"granted"`
	}
	if err := s.post(ctx, "request_permission", "/v1/permissions", "", map[string]any{"permissions": requested}, &resp); err != nil {
		return nil, err
	}
	return resp.Granted, nil
}

// ReadRecords returns the raw records of one type inside filter.
func (s *HTTPSource) ReadRecords(ctx context.Context, recordType domain.RecordType, filter domain.TimeRangeFilter) ([]json.RawMessage, error) {
	var resp struct {
		Records []json.RawMessage `json:"records"`
	}
	path := "/v1/records/" + url.PathEscape(string(recordType))
	if err := s.post(ctx, "read_records", path, recordType, map[string]any{"timeRangeFilter": filter}, &resp); err != nil {
		return nil, err
	}
	if resp.Records == nil {
		resp.Records = []json.RawMessage{}
	}
	return resp.Records, nil
}

// OpenSettings asks the bridge to deep-link the user into the capability settings screen.
func (s *HTTPSource) OpenSettings(ctx context.Context) error {
	return s.post(ctx, "open_settings", "/v1/settings", "", nil, nil)
}

// errorBody is the bridge's error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *HTTPSource) post(ctx context.Context, op, path string, recordType domain.RecordType, payload any, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return &domain.TransportError{Op: op, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, body)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return s.classify(op, recordType, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &domain.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (s *HTTPSource) classify(op string, recordType domain.RecordType, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var envelope errorBody
	_ = json.Unmarshal(raw, &envelope)

	message := envelope.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode == http.StatusTooManyRequests ||
		strings.EqualFold(envelope.Code, "QUOTA_EXCEEDED") ||
		domain.LooksLikeQuota(message) {
		s.logger.WithFields(logrus.Fields{
			"op":          op,
			"record_type": recordType,
			"status":      resp.StatusCode,
		}).Warn("source quota exceeded")
		return &domain.QuotaExceededError{RecordType: recordType, Message: message}
	}

	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &domain.TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(message)}
}
