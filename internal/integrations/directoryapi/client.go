// Package directoryapi implements directory.Directory over a remote HTTP
// service. The bearer token is read from Parameter Store on first use and
// kept for the life of the process.
package directoryapi

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
	"sync"
	"time"

	"golang.org/x/time/rate"

	"citizen-assistant/internal/directory"
	"citizen-assistant/internal/domain"
)

// tokenPayload is the JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("directoryapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Is lets errors.Is(err, directory.ErrNotFound) match a 404.
func (e *HTTPStatusError) Is(target error) bool {
	return target == directory.ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	limiter     *rate.Limiter
	now         func() time.Time

	tokenMu sync.Mutex
	token   string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit caps outbound requests at rps with the given burst.
// A non-positive rps leaves requests unthrottled.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(baseURL string, ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("directoryapi: base URL must not be empty")
	}
	if ps == nil {
		return nil, errors.New("directoryapi: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("directoryapi: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolveToken caches the first token fetched successfully. Failed fetches
// are not cached, so the next request tries Parameter Store again.
func (c *Client) resolveToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	token, err := fetchToken(ctx, c.getter, c.paramPrefix+"/directory-token")
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// call performs one JSON round trip; out may be nil when no body is expected.
func (c *Client) call(ctx context.Context, method, endpoint string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("directoryapi: rate limit: %w", err)
		}
	}
	token, err := c.resolveToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("directoryapi: marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("directoryapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return fmt.Errorf("directoryapi: %s %s: %w", method, endpoint, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("directoryapi: decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, endpoint string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: endpoint, Body: string(buf)}
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func (c *Client) GetUser(ctx context.Context, userID string) (*domain.UserProfile, error) {
	var u domain.UserProfile
	if err := c.call(ctx, http.MethodGet, c.endpoint("users", userID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GetUserPayments(ctx context.Context, userID string) ([]domain.Payment, error) {
	var out []domain.Payment
	if err := c.call(ctx, http.MethodGet, c.endpoint("users", userID, "payments"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUserApplications(ctx context.Context, userID string) ([]domain.Application, error) {
	var out []domain.Application
	if err := c.call(ctx, http.MethodGet, c.endpoint("users", userID, "applications"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := c.call(ctx, http.MethodGet, c.endpoint("payments", paymentID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetApplication(ctx context.Context, applicationID string) (*domain.Application, error) {
	var a domain.Application
	if err := c.call(ctx, http.MethodGet, c.endpoint("applications", applicationID), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// CalculateAge is computed locally; it needs no remote state.
func (c *Client) CalculateAge(dob time.Time) int {
	return domain.AgeOn(dob, c.now())
}

func (c *Client) CheckEligibility(ctx context.Context, userID string, paymentType domain.PaymentType) (domain.Eligibility, error) {
	var out domain.Eligibility
	err := c.call(ctx, http.MethodGet, c.endpoint("users", userID, "eligibility", string(paymentType)), nil, &out)
	return out, err
}

func (c *Client) CalculatePaymentAmount(ctx context.Context, userID string, paymentType domain.PaymentType) (float64, error) {
	var out struct {
		Amount float64 `json:"amount"`
	}
	if err := c.call(ctx, http.MethodGet, c.endpoint("users", userID, "payment-amounts", string(paymentType)), nil, &out); err != nil {
		return 0, err
	}
	return out.Amount, nil
}

func (c *Client) ProcessLifeEvent(ctx context.Context, userID string, event domain.LifeEvent, data directory.LifeEventData) (domain.LifeEventOutcome, error) {
	in := struct {
		Event domain.LifeEvent        `json:"event"`
		Data  directory.LifeEventData `json:"data"`
	}{Event: event, Data: data}
	var out domain.LifeEventOutcome
	err := c.call(ctx, http.MethodPost, c.endpoint("users", userID, "life-events"), in, &out)
	return out, err
}

func (c *Client) UpdateApplicationStatus(ctx context.Context, applicationID, status, assessor string) (*domain.Application, error) {
	in := struct {
		Status   string `json:"status"`
		Assessor string `json:"assessor,omitempty"`
	}{Status: status, Assessor: assessor}
	var out domain.Application
	if err := c.call(ctx, http.MethodPatch, c.endpoint("applications", applicationID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ScheduleNextPayment(ctx context.Context, paymentID string, next time.Time) (*domain.Payment, error) {
	in := struct {
		NextPaymentDate time.Time `json:"nextPaymentDate"`
	}{NextPaymentDate: next}
	var out domain.Payment
	if err := c.call(ctx, http.MethodPatch, c.endpoint("payments", paymentID), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func fetchToken(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("directoryapi: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("directoryapi: token parameter name is empty")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("directoryapi: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("directoryapi: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("directoryapi: API token is empty")
	}
	return tp.Token, nil
}

var _ directory.Directory = (*Client)(nil)
