package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// upstreamTransport wraps an http.RoundTripper to collect metrics on calls to
// OAuth providers and the account service
type upstreamTransport struct {
	upstream string
	base     http.RoundTripper
}

// NewUpstreamTransport creates a transport wrapper that labels every call with
// the given upstream name (e.g. "discord", "bungie", "accounts")
func NewUpstreamTransport(upstream string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &upstreamTransport{upstream: upstream, base: base}
}

// NewUpstreamClient returns an *http.Client using an instrumented transport
func NewUpstreamClient(upstream string, base http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewUpstreamTransport(upstream, base),
		Timeout:   timeout,
	}
}

// RoundTrip implements http.RoundTripper
func (t *upstreamTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	route := NormalizeRoute(req.URL.Path)
	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	UpstreamCalls.WithLabelValues(t.upstream, req.Method, route, strconv.Itoa(statusCode)).Inc()
	UpstreamDuration.WithLabelValues(t.upstream, req.Method, route).Observe(float64(duration.Milliseconds()))

	if err != nil || statusCode >= 400 {
		UpstreamErrors.WithLabelValues(t.upstream, route, classifyUpstreamError(statusCode, err)).Inc()
	}

	return resp, err
}

var routePatterns = []struct {
	regex   *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`/\d+(/|$)`), "/:id$1"},
	{regexp.MustCompile(`/-\d+(/|$)`), "/:type$1"},
}

// NormalizeRoute replaces numeric path segments with placeholders to keep
// label cardinality bounded
func NormalizeRoute(path string) string {
	normalized := path
	for _, p := range routePatterns {
		// run twice so adjacent numeric segments are both replaced
		normalized = p.regex.ReplaceAllString(normalized, p.replace)
		normalized = p.regex.ReplaceAllString(normalized, p.replace)
	}
	if normalized == "" {
		return "/"
	}
	return normalized
}

// classifyUpstreamError categorizes upstream errors for metrics
func classifyUpstreamError(statusCode int, err error) string {
	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
			return "timeout"
		case strings.Contains(errStr, "connection"):
			return "connection"
		case strings.Contains(errStr, "TLS"):
			return "tls"
		default:
			return "network"
		}
	}

	switch {
	case statusCode == 400:
		return "bad_request"
	case statusCode == 401:
		return "unauthorized"
	case statusCode == 403:
		return "forbidden"
	case statusCode == 404:
		return "not_found"
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 500:
		return "server_error"
	case statusCode >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
