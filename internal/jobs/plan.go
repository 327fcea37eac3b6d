package jobs

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ozzus/netcheck-agent/internal/checks"
	"ozzus/netcheck-agent/internal/domain"
)

// probe is one planned sub-check of a job.
type probe struct {
	name string
	run  func(ctx context.Context) (domain.CheckResult, error)
}

func (e *Executor) plan(job domain.Job) ([]probe, error) {
	r := newReader(job.Payload)

	switch job.Type {
	case domain.JobTypePing:
		timeout, err := r.timeout(timeoutKeys, e.defaults.PingTimeout)
		if err != nil {
			return nil, err
		}
		req, err := e.pingRequest(r, timeout)
		if err != nil {
			return nil, err
		}
		return []probe{e.pingProbe(req)}, nil

	case domain.JobTypeDNS:
		timeout, err := r.timeout(timeoutKeys, e.defaults.DNSTimeout)
		if err != nil {
			return nil, err
		}
		host, err := r.requiredString("host", hostKeys)
		if err != nil {
			return nil, err
		}
		rt, err := r.recordType()
		if err != nil {
			return nil, err
		}
		return []probe{e.dnsProbe(checks.DNSRequest{Host: host, RecordType: rt, Timeout: timeout})}, nil

	case domain.JobTypeTCP:
		timeout, err := r.timeout(timeoutKeys, e.defaults.TCPTimeout)
		if err != nil {
			return nil, err
		}
		host, err := r.requiredString("host", hostKeys)
		if err != nil {
			return nil, err
		}
		port, err := r.port(portKeys)
		if err != nil {
			return nil, err
		}
		return []probe{e.tcpProbe(checks.TCPRequest{Host: host, Port: port, Timeout: timeout})}, nil

	case domain.JobTypeUDP:
		timeout, err := r.timeout(timeoutKeys, e.defaults.UDPTimeout)
		if err != nil {
			return nil, err
		}
		host, err := r.requiredString("host", hostKeys)
		if err != nil {
			return nil, err
		}
		port, err := r.port(portKeys)
		if err != nil {
			return nil, err
		}
		data, err := r.optionalString(udpPayloadKeys)
		if err != nil {
			return nil, err
		}
		expect, err := r.flag(expectResponseKeys)
		if err != nil {
			return nil, err
		}
		return []probe{e.udpProbe(checks.UDPRequest{
			Host:           host,
			Port:           port,
			Payload:        data,
			ExpectResponse: expect,
			Timeout:        timeout,
		})}, nil

	case domain.JobTypeHTTP:
		timeout, err := r.timeout(timeoutKeys, e.defaults.HTTPTimeout)
		if err != nil {
			return nil, err
		}
		target, err := r.url(urlKeys)
		if err != nil {
			return nil, err
		}
		method, err := r.optionalString(methodKeys)
		if err != nil {
			return nil, err
		}
		expectStatus, err := r.positiveInt("expectStatus", expectStatusKeys)
		if err != nil {
			return nil, err
		}
		return []probe{e.httpProbe(checks.HTTPRequest{
			URL:          target,
			Method:       method,
			ExpectStatus: expectStatus,
			Timeout:      timeout,
		})}, nil

	case domain.JobTypeCheck:
		return e.planComposite(r)
	}

	return nil, invalidf("unsupported job type %q", job.Type)
}

func (e *Executor) pingRequest(r reader, timeout time.Duration) (checks.PingRequest, error) {
	host, err := r.requiredString("host", hostKeys)
	if err != nil {
		return checks.PingRequest{}, err
	}
	count, err := r.positiveInt("count", countKeys)
	if err != nil {
		return checks.PingRequest{}, err
	}
	if count == 0 {
		count = e.defaults.PingCount
	}
	return checks.PingRequest{Host: host, Count: count, Timeout: timeout}, nil
}

// planComposite validates the whole check payload before producing any probe.
// Timeout precedence is kind override, then job-level timeout, then the built-in default.
func (e *Executor) planComposite(r reader) ([]probe, error) {
	jobTimeout, err := r.timeout(timeoutKeys, 0)
	if err != nil {
		return nil, err
	}
	kindTimeout := func(keys []string, builtin time.Duration) (time.Duration, error) {
		if jobTimeout > 0 {
			builtin = jobTimeout
		}
		return r.timeout(keys, builtin)
	}

	pingTimeout, err := kindTimeout(pingTimeoutKeys, e.defaults.PingTimeout)
	if err != nil {
		return nil, err
	}
	dnsTimeout, err := kindTimeout(dnsTimeoutKeys, e.defaults.DNSTimeout)
	if err != nil {
		return nil, err
	}
	tcpTimeout, err := kindTimeout(tcpTimeoutKeys, e.defaults.TCPTimeout)
	if err != nil {
		return nil, err
	}
	udpTimeout, err := kindTimeout(udpTimeoutKeys, e.defaults.UDPTimeout)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := kindTimeout(httpTimeoutKeys, e.defaults.HTTPTimeout)
	if err != nil {
		return nil, err
	}

	host, err := r.optionalString(hostKeys)
	if err != nil {
		return nil, err
	}
	skipPing, err := r.flag(skipPingKeys)
	if err != nil {
		return nil, err
	}
	skipDNS, err := r.flag(skipDNSKeys)
	if err != nil {
		return nil, err
	}
	dnsHost, err := r.optionalString(dnsHostKeys)
	if err != nil {
		return nil, err
	}
	recordType, err := r.recordType()
	if err != nil {
		return nil, err
	}
	count, err := r.positiveInt("count", countKeys)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		count = e.defaults.PingCount
	}

	tcpPorts, err := r.ports("tcpPorts", tcpPortsKeys)
	if err != nil {
		return nil, err
	}
	udpPorts, err := r.ports("udpPorts", udpPortsKeys)
	if err != nil {
		return nil, err
	}
	udpPayload, err := r.optionalString(udpSharedKeys)
	if err != nil {
		return nil, err
	}
	udpExpect, err := r.flag(udpExpectKeys)
	if err != nil {
		return nil, err
	}

	httpURLs, err := r.urls(httpURLsKeys)
	if err != nil {
		return nil, err
	}
	httpPorts, err := r.ports("httpPorts", httpPortsKeys)
	if err != nil {
		return nil, err
	}
	httpPath, err := r.optionalString(httpPathKeys)
	if err != nil {
		return nil, err
	}
	useHTTPS, err := r.flag(httpsKeys)
	if err != nil {
		return nil, err
	}
	httpFlag, err := r.flag(httpFlagKeys)
	if err != nil {
		return nil, err
	}
	httpMethod, err := r.optionalString(httpMethodKeys)
	if err != nil {
		return nil, err
	}
	expectStatus, err := r.positiveInt("expectStatus", expectStatusKeys)
	if err != nil {
		return nil, err
	}

	synthesizeHTTP := len(httpURLs) == 0 && (httpFlag || len(httpPorts) > 0 || httpPath != "" || useHTTPS)
	if dnsHost == "" {
		dnsHost = host
	}

	needsHost := !skipPing || len(tcpPorts) > 0 || len(udpPorts) > 0 || synthesizeHTTP
	if host == "" && needsHost {
		return nil, invalidf("host is required")
	}
	if !skipDNS && dnsHost == "" {
		return nil, invalidf("host is required")
	}

	var probes []probe

	if !skipPing {
		probes = append(probes, e.pingProbe(checks.PingRequest{Host: host, Count: count, Timeout: pingTimeout}))
	}
	if !skipDNS {
		probes = append(probes, e.dnsProbe(checks.DNSRequest{Host: dnsHost, RecordType: recordType, Timeout: dnsTimeout}))
	}
	for _, port := range tcpPorts {
		probes = append(probes, e.tcpProbe(checks.TCPRequest{Host: host, Port: port, Timeout: tcpTimeout}))
	}
	for _, port := range udpPorts {
		probes = append(probes, e.udpProbe(checks.UDPRequest{
			Host:           host,
			Port:           port,
			Payload:        udpPayload,
			ExpectResponse: udpExpect,
			Timeout:        udpTimeout,
		}))
	}

	if synthesizeHTTP {
		httpURLs = synthesizeURLs(host, httpPorts, httpPath, useHTTPS)
	}
	for _, target := range httpURLs {
		probes = append(probes, e.httpProbe(checks.HTTPRequest{
			URL:          target,
			Method:       httpMethod,
			ExpectStatus: expectStatus,
			Timeout:      httpTimeout,
		}))
	}

	return probes, nil
}

// synthesizeURLs builds one URL per port, or a single port-less URL.
func synthesizeURLs(host string, ports []int, path string, useHTTPS bool) []string {
	scheme := "http"
	if useHTTPS {
		scheme = "https"
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if len(ports) == 0 {
		h := host
		if strings.Contains(h, ":") {
			h = "[" + h + "]"
		}
		return []string{(&url.URL{Scheme: scheme, Host: h, Path: path}).String()}
	}

	out := make([]string, 0, len(ports))
	for _, port := range ports {
		u := url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: path}
		out = append(out, u.String())
	}
	return out
}

func (e *Executor) pingProbe(req checks.PingRequest) probe {
	return probe{name: "ping:" + req.Host, run: func(ctx context.Context) (domain.CheckResult, error) {
		return e.checks.Ping(ctx, req)
	}}
}

func (e *Executor) dnsProbe(req checks.DNSRequest) probe {
	return probe{name: "dns:" + req.Host, run: func(ctx context.Context) (domain.CheckResult, error) {
		return e.checks.DNS(ctx, req)
	}}
}

func (e *Executor) tcpProbe(req checks.TCPRequest) probe {
	return probe{name: "tcp:" + net.JoinHostPort(req.Host, strconv.Itoa(req.Port)), run: func(ctx context.Context) (domain.CheckResult, error) {
		return e.checks.TCP(ctx, req)
	}}
}

func (e *Executor) udpProbe(req checks.UDPRequest) probe {
	return probe{name: "udp:" + net.JoinHostPort(req.Host, strconv.Itoa(req.Port)), run: func(ctx context.Context) (domain.CheckResult, error) {
		return e.checks.UDP(ctx, req)
	}}
}

func (e *Executor) httpProbe(req checks.HTTPRequest) probe {
	return probe{name: "http:" + req.URL, run: func(ctx context.Context) (domain.CheckResult, error) {
		return e.checks.HTTP(ctx, req)
	}}
}
