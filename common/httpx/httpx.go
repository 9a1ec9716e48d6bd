package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/config"
)

type Client struct {
	hc        *http.Client
	opt       Options
	fail      int32 // consecutive failures
	openUntil int64 // unix nanos for circuit open deadline
}

type Options struct {
	Timeout            time.Duration
	Retry              int
	BackoffMin         time.Duration
	BackoffMax         time.Duration
	HostAllowlist      []string
	MaxConsecutiveFail int
	CircuitOpen        time.Duration
}

var (
	ErrCircuitOpen    = errors.New("circuit open")
	ErrHostNotAllowed = errors.New("host not allowed")
)

// StatusError reports a non-2xx response that survived all retries.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// NewFromConfig builds a client from config, applying defaults for unset fields.
// timeoutOverride, when positive, replaces the configured per-request timeout.
func NewFromConfig(cfg *config.HTTPClientConfig, timeoutOverride time.Duration) *Client {
	if cfg == nil {
		cfg = &config.HTTPClientConfig{}
	}
	to := config.Millis(cfg.TimeoutMs, 1200*time.Millisecond)
	if timeoutOverride > 0 {
		to = timeoutOverride
	}
	retry := 1
	if cfg.Retry > 0 {
		retry = cfg.Retry
	}
	mcf := 5
	if cfg.MaxConsecutiveFailures > 0 {
		mcf = cfg.MaxConsecutiveFailures
	}
	return New(Options{
		Timeout:            to,
		Retry:              retry,
		BackoffMin:         config.Millis(cfg.BackoffMinMs, 100*time.Millisecond),
		BackoffMax:         config.Millis(cfg.BackoffMaxMs, 800*time.Millisecond),
		HostAllowlist:      cfg.HostAllowlist,
		MaxConsecutiveFail: mcf,
		CircuitOpen:        config.Seconds(cfg.CircuitOpenSeconds, 5*time.Second),
	})
}

// New builds a client from explicit options.
func New(opt Options) *Client {
	if opt.MaxConsecutiveFail <= 0 {
		opt.MaxConsecutiveFail = 5
	}
	transport := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: opt.Timeout}).DialContext,
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		hc:  &http.Client{Timeout: opt.Timeout, Transport: transport},
		opt: opt,
	}
}

func (c *Client) allowed(u *url.URL) bool {
	if len(c.opt.HostAllowlist) == 0 {
		return true
	}
	host := u.Hostname()
	for _, h := range c.opt.HostAllowlist {
		if matchHost(h, host) {
			return true
		}
	}
	return false
}

func matchHost(pattern, host string) bool {
	if pattern == "*" {
		return true
	}
	if strings.EqualFold(pattern, host) {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suf := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, "."+suf) || host == suf
	}
	return false
}

// CircuitOpen reports whether calls are currently short-circuited.
func (c *Client) CircuitOpen() bool {
	return atomic.LoadInt64(&c.openUntil) > time.Now().UnixNano()
}

// Do sends req, retrying transport errors and 5xx responses with jittered backoff.
// Requests with a body must be rewindable (GetBody set), which
// http.NewRequestWithContext does for bytes and strings readers.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if !c.allowed(req.URL) {
		logger.Warnf("httpx: blocked outbound host: %s", req.URL.Host)
		return nil, ErrHostNotAllowed
	}
	if c.CircuitOpen() {
		return nil, ErrCircuitOpen
	}
	var lastErr error
	for i := 0; i <= c.opt.Retry; i++ {
		if i > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req.Body = body
		}
		resp, err := c.hc.Do(req)
		if err == nil && resp.StatusCode < 500 {
			atomic.StoreInt32(&c.fail, 0)
			return resp, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = statusError(req.URL.String(), resp)
		}
		logger.Warnf("httpx: request failed (try %d/%d) to %s: %v", i+1, c.opt.Retry+1, req.URL.Host, lastErr)
		if req.Context().Err() != nil {
			break
		}
		if i < c.opt.Retry {
			select {
			case <-time.After(backoffJitter(c.opt.BackoffMin, c.opt.BackoffMax)):
			case <-req.Context().Done():
			}
		}
	}
	// open circuit on consecutive failures
	if atomic.AddInt32(&c.fail, 1) >= int32(c.opt.MaxConsecutiveFail) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.opt.CircuitOpen).UnixNano())
		atomic.StoreInt32(&c.fail, 0)
		logger.Warnf("httpx: circuit opened for %v", c.opt.CircuitOpen)
	}
	return nil, lastErr
}

func statusError(u string, resp *http.Response) error {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, URL: u, Body: string(b)}
}

// PostJSON marshals in, posts it and returns the response body of a 2xx reply.
func (c *Client) PostJSON(ctx context.Context, u string, in any, header http.Header) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.read(req)
}

// Get issues a GET and returns the response body of a 2xx reply.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.read(req)
}

func (c *Client) read(req *http.Request) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(req.URL.String(), resp)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func backoffJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
