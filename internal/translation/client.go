package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Backoff parameters
const (
	BaseBackoff = 500 * time.Millisecond
	MaxJitter   = 150 * time.Millisecond
	MaxBackoff  = 30 * time.Second
)

// maxErrorBody bounds how much of a failed response is kept in a StatusError
const maxErrorBody = 512

// Profile selects the endpoint variant
type Profile string

const (
	// ProfileFactAudio returns translation, fact and base64 audio for both
	ProfileFactAudio Profile = "translate-fact-audio"
	// ProfileFact returns translation and fact without audio
	ProfileFact Profile = "translate-fact"
	// ProfileText returns the bare translation as plain text
	ProfileText Profile = "translate"
)

// ParseProfile validates a profile name. An empty name selects ProfileFactAudio.
func ParseProfile(name string) (Profile, error) {
	switch p := Profile(strings.Trim(strings.TrimSpace(name), "/")); p {
	case "":
		return ProfileFactAudio, nil
	case ProfileFactAudio, ProfileFact, ProfileText:
		return p, nil
	default:
		return "", fmt.Errorf("unknown translation profile %q", name)
	}
}

// Path returns the endpoint path for the profile
func (p Profile) Path() string {
	return "/" + string(p)
}

// Client provides HTTP client functionality for translation lookups
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore

	// jitter and sleep are replaced in tests
	jitter func() time.Duration
	sleep  func(ctx context.Context, d time.Duration) error

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalAttempts   uint64
	totalRetries    uint64
	avgResponseTime time.Duration
	closed          bool

	mu sync.RWMutex
}

// Config contains translation client configuration
type Config struct {
	BaseURL       string
	Profile       Profile
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
	UserAgent     string

	// OnRetry is called before each retry with the attempt number and the status that caused it
	OnRetry func(attempt int, status int)
}

// Result is one successful lookup
type Result struct {
	Translation      string `json:"translation"`
	Fact             string `json:"fact"`
	TranslationAudio string `json:"translation_audio_url,omitempty"`
	FactAudio        string `json:"fact_audio_url,omitempty"`
}

// wireResult distinguishes an absent translation from an empty one
type wireResult struct {
	Translation      *string `json:"translation"`
	Fact             string  `json:"fact"`
	TranslationAudio string  `json:"translation_audio_url"`
	FactAudio        string  `json:"fact_audio_url"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalAttempts   uint64        `json:"total_attempts"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new translation HTTP client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("%w: malformed base URL %q", ErrBadRequest, config.BaseURL)
	}

	if config.Profile == "" {
		config.Profile = ProfileFactAudio
	}

	if config.Timeout <= 0 {
		config.Timeout = 20 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 2
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}

	if config.UserAgent == "" {
		config.UserAgent = "Object-Lingua/1.0"
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		baseURL:    baseURL,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
		jitter:     randomJitter,
		sleep:      sleepContext,
	}, nil
}

// BackoffDelay returns the wait before retry number attempt (1-based):
// 2^(attempt-1) * BaseBackoff plus jitter, capped at MaxBackoff.
func BackoffDelay(attempt int, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := MaxBackoff
	if shift := attempt - 1; shift < 16 {
		delay = BaseBackoff << shift
	}

	delay += jitter
	if delay > MaxBackoff {
		delay = MaxBackoff
	}
	return delay
}

func randomJitter() time.Duration {
	return rand.N(MaxJitter)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Translate looks up name with the configured retry budget
func (c *Client) Translate(ctx context.Context, name string) (*Result, error) {
	return c.Lookup(ctx, name, c.config.MaxRetries)
}

// Lookup resolves name, retrying 5xx responses up to maxRetries additional times.
// A negative maxRetries uses the configured budget.
func (c *Client) Lookup(ctx context.Context, name string, maxRetries int) (*Result, error) {
	if maxRetries < 0 {
		maxRetries = c.config.MaxRetries
	}

	reqURL, err := c.buildURL(name)
	if err != nil {
		return nil, err
	}

	if c.isClosed() {
		return nil, ErrClosed
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			status := 0
			var statusErr *StatusError
			if errors.As(lastErr, &statusErr) {
				status = statusErr.Code
			}
			if c.config.OnRetry != nil {
				c.config.OnRetry(attempt, status)
			}

			// No slot is held while backing off
			if err := c.sleep(ctx, BackoffDelay(attempt, c.jitter())); err != nil {
				c.incrementFailedRequests()
				return nil, err
			}
		}

		if err := c.acquire(ctx); err != nil {
			c.incrementFailedRequests()
			return nil, err
		}
		result, err := c.doRequest(ctx, reqURL)
		c.release()

		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return result, nil
		}

		lastErr = err

		if !isRetryable(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return nil, fmt.Errorf("translation of %q failed: %w", name, lastErr)
}

func (c *Client) buildURL(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrBadRequest)
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + c.config.Profile.Path()
	u.RawPath = ""
	u.RawQuery = url.Values{"text": []string{name}}.Encode()
	return u.String(), nil
}

// doRequest performs a single HTTP request to the translation endpoint
func (c *Client) doRequest(ctx context.Context, reqURL string) (*Result, error) {
	c.incrementTotalAttempts()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	if c.config.Profile == ProfileText {
		httpReq.Header.Set("Accept", "text/plain")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := strings.TrimSpace(string(respBody))
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}

	if len(strings.TrimSpace(string(respBody))) == 0 {
		return nil, ErrEmptyResponse
	}

	return c.parseBody(respBody)
}

func (c *Client) parseBody(body []byte) (*Result, error) {
	if c.config.Profile == ProfileText {
		return &Result{Translation: strings.TrimSpace(string(body))}, nil
	}

	var wire wireResult
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if wire.Translation == nil {
		return nil, &DecodeError{Err: errors.New("missing translation field")}
	}

	return &Result{
		Translation:      *wire.Translation,
		Fact:             wire.Fact,
		TranslationAudio: wire.TranslationAudio,
		FactAudio:        wire.FactAudio,
	}, nil
}

// isRetryable reports whether the error is a server-side failure status
func isRetryable(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Transient()
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalAttempts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalAttempts++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalAttempts:   c.totalAttempts,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Profile returns the endpoint variant the client queries
func (c *Client) Profile() Profile {
	return c.config.Profile
}

// acquire takes a concurrency slot for one attempt
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if c.isClosed() {
		c.release()
		return ErrClosed
	}
	return nil
}

func (c *Client) release() {
	<-c.semaphore
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close waits for in-flight attempts to finish. Later lookups fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	for i := 0; i < c.config.MaxConcurrent; i++ {
		<-c.semaphore
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
