package checks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ozzus/netcheck-agent/internal/domain"
)

var ErrInvalidRequest = errors.New("invalid check request")

type PingRequest struct {
	Host    string
	Count   int
	Timeout time.Duration
}

type DNSRequest struct {
	Host       string
	RecordType domain.DNSRecordType
	Timeout    time.Duration
}

type TCPRequest struct {
	Host    string
	Port    int
	Timeout time.Duration
}

type UDPRequest struct {
	Host           string
	Port           int
	Payload        string
	ExpectResponse bool
	Timeout        time.Duration
}

type HTTPRequest struct {
	URL          string
	Method       string
	ExpectStatus int
	Timeout      time.Duration
}

// Service runs individual probes. A failed probe is reported through
// CheckResult.Success; the error is reserved for requests that cannot be
// executed at all.
type Service interface {
	Ping(ctx context.Context, req PingRequest) (domain.CheckResult, error)
	DNS(ctx context.Context, req DNSRequest) (domain.CheckResult, error)
	TCP(ctx context.Context, req TCPRequest) (domain.CheckResult, error)
	UDP(ctx context.Context, req UDPRequest) (domain.CheckResult, error)
	HTTP(ctx context.Context, req HTTPRequest) (domain.CheckResult, error)
}

// Defaults holds the built-in per-kind settings used when a job does not
// supply its own.
type Defaults struct {
	PingTimeout    time.Duration
	PingCount      int
	PingPrivileged bool
	DNSTimeout     time.Duration
	TCPTimeout     time.Duration
	UDPTimeout     time.Duration
	HTTPTimeout    time.Duration
}

func DefaultSettings() Defaults {
	return Defaults{
		PingTimeout:    5 * time.Second,
		PingCount:      4,
		PingPrivileged: true,
		DNSTimeout:     5 * time.Second,
		TCPTimeout:     5 * time.Second,
		UDPTimeout:     5 * time.Second,
		HTTPTimeout:    10 * time.Second,
	}
}

// withFallbacks fills zero fields from DefaultSettings.
func (d Defaults) withFallbacks() Defaults {
	def := DefaultSettings()
	if d.PingTimeout <= 0 {
		d.PingTimeout = def.PingTimeout
	}
	if d.PingCount <= 0 {
		d.PingCount = def.PingCount
	}
	if d.DNSTimeout <= 0 {
		d.DNSTimeout = def.DNSTimeout
	}
	if d.TCPTimeout <= 0 {
		d.TCPTimeout = def.TCPTimeout
	}
	if d.UDPTimeout <= 0 {
		d.UDPTimeout = def.UDPTimeout
	}
	if d.HTTPTimeout <= 0 {
		d.HTTPTimeout = def.HTTPTimeout
	}
	return d
}

// Checker is the network-backed Service.
type Checker struct {
	log      *slog.Logger
	defaults Defaults

	ping *PingChecker
	dns  *DNSChecker
	tcp  *TCPChecker
	udp  *UDPChecker
	http *HTTPChecker
}

func NewChecker(log *slog.Logger, defaults Defaults) *Checker {
	defaults = defaults.withFallbacks()

	return &Checker{
		log:      log.With(slog.String("component", "checks")),
		defaults: defaults,
		ping:     NewPingChecker(defaults.PingTimeout, defaults.PingCount, defaults.PingPrivileged),
		dns:      NewDNSChecker(defaults.DNSTimeout, nil),
		tcp:      NewTCPChecker(defaults.TCPTimeout),
		udp:      NewUDPChecker(defaults.UDPTimeout),
		http:     NewHTTPChecker(defaults.HTTPTimeout),
	}
}

func (c *Checker) Defaults() Defaults {
	return c.defaults
}

func (c *Checker) Ping(ctx context.Context, req PingRequest) (domain.CheckResult, error) {
	if req.Host == "" {
		return domain.CheckResult{}, invalid("ping: host is required")
	}
	return c.done(c.ping.Check(ctx, req)), nil
}

func (c *Checker) DNS(ctx context.Context, req DNSRequest) (domain.CheckResult, error) {
	if req.Host == "" {
		return domain.CheckResult{}, invalid("dns: host is required")
	}
	if req.RecordType != "" && !validRecordType(req.RecordType) {
		return domain.CheckResult{}, invalid("dns: unsupported record type " + string(req.RecordType))
	}
	return c.done(c.dns.Check(ctx, req)), nil
}

func (c *Checker) TCP(ctx context.Context, req TCPRequest) (domain.CheckResult, error) {
	if req.Host == "" || !validPort(req.Port) {
		return domain.CheckResult{}, invalid("tcp: host and port are required")
	}
	return c.done(c.tcp.Check(ctx, req)), nil
}

func (c *Checker) UDP(ctx context.Context, req UDPRequest) (domain.CheckResult, error) {
	if req.Host == "" || !validPort(req.Port) {
		return domain.CheckResult{}, invalid("udp: host and port are required")
	}
	return c.done(c.udp.Check(ctx, req)), nil
}

func (c *Checker) HTTP(ctx context.Context, req HTTPRequest) (domain.CheckResult, error) {
	if req.URL == "" {
		return domain.CheckResult{}, invalid("http: url is required")
	}
	return c.done(c.http.Check(ctx, req)), nil
}

func (c *Checker) done(res domain.CheckResult) domain.CheckResult {
	c.log.Debug("check finished",
		slog.String("check", res.Check),
		slog.Bool("success", res.Success),
		slog.String("message", res.Message),
	)
	return res
}

func invalid(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return ErrInvalidRequest }
