package httpclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Target describes where and how requests are sent: the base host URL, the
// default per-request timeout, and headers applied to every request.
type Target struct {
	BaseURL        string
	DefaultTimeout time.Duration
	DefaultHeaders map[string]string
}

// Validate rejects malformed targets before any virtual user starts.
func (t Target) Validate() error {
	trimmed := strings.TrimSpace(t.BaseURL)
	if trimmed == "" {
		return errors.New("target host is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("invalid target host %q: %w", t.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target host %q must use http or https", t.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("target host %q has no host component", t.BaseURL)
	}
	if t.DefaultTimeout < 0 {
		return errors.New("default timeout must be >= 0")
	}
	for key, value := range t.DefaultHeaders {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") {
			return fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("invalid header value for %s", http.CanonicalHeaderKey(key))
		}
	}
	return nil
}

// NewClient builds an HTTP client tuned for many concurrent virtual users.
// Per-request deadlines come from the execution context, so the client itself
// carries no global timeout unless one is given.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1024,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
