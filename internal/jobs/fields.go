package jobs

import (
	"errors"
	"strings"
	"time"

	"ozzus/netcheck-agent/internal/checks"
	"ozzus/netcheck-agent/internal/domain"
	"ozzus/netcheck-agent/internal/lib/payload"
)

// Field aliases accepted in job payloads.
var (
	hostKeys           = []string{"host", "hostname", "target", "address"}
	portKeys           = []string{"port"}
	timeoutKeys        = []string{"timeoutMs", "timeout", "timeout_ms"}
	countKeys          = []string{"count", "pingCount"}
	urlKeys            = []string{"url", "uri"}
	methodKeys         = []string{"method"}
	expectStatusKeys   = []string{"expectStatus", "expect_status"}
	recordTypeKeys     = []string{"recordType", "record_type", "record"}
	udpPayloadKeys     = []string{"payload", "data", "message"}
	expectResponseKeys = []string{"expectResponse", "expect_response", "expectReply"}

	skipPingKeys    = []string{"skipPing", "skip_ping", "noPing"}
	skipDNSKeys     = []string{"skipDns", "skip_dns", "noDns"}
	dnsHostKeys     = []string{"dnsHost", "dns_host", "dnsTarget"}
	tcpPortsKeys    = []string{"tcpPorts", "tcp_ports", "ports"}
	udpPortsKeys    = []string{"udpPorts", "udp_ports"}
	udpSharedKeys   = []string{"udpPayload", "udp_payload"}
	udpExpectKeys   = []string{"udpExpectResponse", "udp_expect_response"}
	httpURLsKeys    = []string{"httpUrls", "http_urls", "urls"}
	httpPortsKeys   = []string{"httpPorts", "http_ports"}
	httpPathKeys    = []string{"httpPath", "http_path", "path"}
	httpsKeys       = []string{"https", "useHttps", "tls"}
	httpFlagKeys    = []string{"http"}
	httpMethodKeys  = []string{"httpMethod", "http_method"}
	pingTimeoutKeys = []string{"pingTimeoutMs", "ping_timeout_ms"}
	dnsTimeoutKeys  = []string{"dnsTimeoutMs", "dns_timeout_ms"}
	tcpTimeoutKeys  = []string{"tcpTimeoutMs", "tcp_timeout_ms"}
	udpTimeoutKeys  = []string{"udpTimeoutMs", "udp_timeout_ms"}
	httpTimeoutKeys = []string{"httpTimeoutMs", "http_timeout_ms"}
)

// reader wraps payload.Fields and turns coercion failures into validation errors.
type reader struct {
	f payload.Fields
}

func newReader(p map[string]any) reader {
	if p == nil {
		p = map[string]any{}
	}
	return reader{f: payload.Fields(p)}
}

func (r reader) requiredString(name string, keys []string) (string, error) {
	s, ok, err := r.f.String(keys...)
	if err != nil {
		return "", coercion(err)
	}
	if !ok || s == "" {
		return "", invalidf("%s is required", name)
	}
	return s, nil
}

func (r reader) optionalString(keys []string) (string, error) {
	s, _, err := r.f.String(keys...)
	if err != nil {
		return "", coercion(err)
	}
	return s, nil
}

func (r reader) port(keys []string) (int, error) {
	n, ok, err := r.f.Int(keys...)
	if err != nil {
		return 0, coercion(err)
	}
	if !ok {
		return 0, invalidf("port is required")
	}
	if !validPort(n) {
		return 0, invalidf("port %d is out of range 1-65535", n)
	}
	return n, nil
}

func (r reader) url(keys []string) (string, error) {
	s, err := r.requiredString("url", keys)
	if err != nil {
		return "", err
	}
	return validURL(s)
}

func (r reader) urls(keys []string) ([]string, error) {
	list, _, err := r.f.StringList(keys...)
	if err != nil {
		return nil, coercion(err)
	}
	for i, raw := range list {
		if list[i], err = validURL(raw); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func validURL(raw string) (string, error) {
	u, err := checks.PrepareURL(raw)
	if err != nil {
		return "", invalidf("invalid url %q: %v", raw, err)
	}
	return u, nil
}

func (r reader) ports(name string, keys []string) ([]int, error) {
	list, _, err := r.f.IntList(keys...)
	if err != nil {
		return nil, coercion(err)
	}
	for _, p := range list {
		if !validPort(p) {
			return nil, invalidf("%s: port %d is out of range 1-65535", name, p)
		}
	}
	return list, nil
}

// timeout returns the supplied timeout in milliseconds, or fallback when absent.
func (r reader) timeout(keys []string, fallback time.Duration) (time.Duration, error) {
	n, ok, err := r.f.Int(keys...)
	if err != nil {
		return 0, coercion(err)
	}
	if !ok {
		return fallback, nil
	}
	if n <= 0 {
		return 0, invalidf("timeout must be greater than zero")
	}
	return time.Duration(n) * time.Millisecond, nil
}

func (r reader) positiveInt(name string, keys []string) (int, error) {
	n, ok, err := r.f.Int(keys...)
	if err != nil {
		return 0, coercion(err)
	}
	if ok && n <= 0 {
		return 0, invalidf("%s must be greater than zero", name)
	}
	return n, nil
}

func (r reader) flag(keys []string) (bool, error) {
	b, _, err := r.f.Bool(keys...)
	if err != nil {
		return false, coercion(err)
	}
	return b, nil
}

func (r reader) recordType() (domain.DNSRecordType, error) {
	s, err := r.optionalString(recordTypeKeys)
	if err != nil || s == "" {
		return "", err
	}
	rt := domain.DNSRecordType(strings.ToUpper(s))
	switch rt {
	case domain.DNSRecordA, domain.DNSRecordAAAA, domain.DNSRecordCNAME,
		domain.DNSRecordMX, domain.DNSRecordNS, domain.DNSRecordTXT:
		return rt, nil
	}
	return "", invalidf("unsupported record type %q", s)
}

func coercion(err error) error {
	var ce *payload.CoercionError
	if errors.As(err, &ce) {
		return invalidf("invalid %s: expected %s", ce.Field, ce.Want)
	}
	return invalidf("%v", err)
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
