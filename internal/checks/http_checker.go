package checks

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ozzus/netcheck-agent/internal/domain"
)

type HTTPChecker struct {
	timeout time.Duration
	client  *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPChecker{
		timeout: timeout,
		client:  &http.Client{},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, req HTTPRequest) domain.CheckResult {
	start := time.Now()

	resolvedURL, err := PrepareURL(req.URL)
	if err != nil {
		return failure(checkID("http", req.URL), start, fmt.Errorf("invalid url: %w", err))
	}
	id := checkID("http", resolvedURL)

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOr(req.Timeout, h.timeout))
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, resolvedURL, nil)
	if err != nil {
		return failure(id, start, err)
	}
	httpReq.Header.Set("User-Agent", "netcheck-agent")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return failure(id, start, err)
	}
	defer resp.Body.Close()

	// drain for connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)
	duration := time.Since(start)

	success := resp.StatusCode < http.StatusBadRequest
	if req.ExpectStatus > 0 {
		success = resp.StatusCode == req.ExpectStatus
	}

	message := resp.Status
	if req.ExpectStatus > 0 && !success {
		message = fmt.Sprintf("%s (expected %d)", resp.Status, req.ExpectStatus)
	}

	return domain.CheckResult{
		Check:   id,
		Success: success,
		Message: message,
		Data: map[string]string{
			"status": strconv.Itoa(resp.StatusCode),
			"method": method,
			"ip":     lookupIP(ctx, resolvedURL),
		},
	}.WithDuration(duration)
}

func lookupIP(ctx context.Context, target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return target
	}

	host := parsed.Hostname()
	if host == "" {
		return target
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return host
	}

	return addrs[0].IP.String()
}

// PrepareURL defaults a missing scheme to http and accepts only http/https
// URLs with a host.
func PrepareURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("empty target")
	}

	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host")
	}

	return parsed.String(), nil
}
