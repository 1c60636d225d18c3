package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// maxBodySize caps response bodies read from the remote API.
const maxBodySize = 8 << 20

// HTTPConfig holds configuration for the HTTP source.
type HTTPConfig struct {
	BaseURL    string        // Base URL of the commerce API (e.g., "https://api.example.com/v1")
	APIKey     string        // Sent as X-Api-Key when set
	DataPath   string        // gjson path of the payload inside the response envelope (e.g., "data"); empty keeps the whole body
	Timeout    time.Duration // Per-request timeout (default: 15s)
	HTTPClient *http.Client  // Custom client (optional)
	UserAgent  string
}

// HTTPSource fetches endpoints from a JSON-over-HTTP commerce API.
type HTTPSource struct {
	baseURL   string
	apiKey    string
	dataPath  string
	userAgent string
	client    *http.Client
}

// NewHTTPSource creates a new HTTP source.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &HTTPSource{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		dataPath:  cfg.DataPath,
		userAgent: cfg.UserAgent,
		client:    client,
	}
}

// Fetch performs GET {BaseURL}/{Endpoint}?params&cultureId=N.
func (s *HTTPSource) Fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	if s.baseURL == "" {
		return nil, &Error{Message: "no API base URL configured"}
	}

	u, err := s.buildURL(req)
	if err != nil {
		return nil, &Error{Message: "building request URL", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Message: "creating request", Cause: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("X-Api-Key", s.apiKey)
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	if req.User != nil && req.User.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.User.Token)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &Error{
			Message:   "request failed",
			Cause:     err,
			Retryable: ctx.Err() == nil,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Message: "reading response", Cause: err, Retryable: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Message:    fmt.Sprintf("%s returned %s", req.Endpoint, http.StatusText(resp.StatusCode)),
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	if !gjson.ValidBytes(body) {
		return nil, &Error{Message: fmt.Sprintf("%s returned invalid JSON", req.Endpoint)}
	}

	if s.dataPath == "" {
		return json.RawMessage(body), nil
	}

	data := gjson.GetBytes(body, s.dataPath)
	if !data.Exists() {
		return nil, &Error{Message: fmt.Sprintf("%s response has no %q field", req.Endpoint, s.dataPath)}
	}
	return json.RawMessage(data.Raw), nil
}

// parseRetryAfter reads a Retry-After header given either as delay seconds
// or as an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func (s *HTTPSource) buildURL(req Request) (string, error) {
	u, err := url.Parse(s.baseURL + "/" + strings.TrimLeft(req.Endpoint, "/"))
	if err != nil {
		return "", err
	}

	q := u.Query()
	for k, v := range req.Params {
		q.Set(k, fmt.Sprint(v))
	}
	if req.CultureID != 0 {
		q.Set("cultureId", strconv.Itoa(req.CultureID))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Verify HTTPSource implements Source
var _ Source = (*HTTPSource)(nil)
