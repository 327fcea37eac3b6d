package checks

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"ozzus/netcheck-agent/internal/domain"
)

type DNSChecker struct {
	timeout  time.Duration
	resolver *net.Resolver
}

// NewDNSChecker uses the OS resolver when resolver is nil.
func NewDNSChecker(timeout time.Duration, resolver *net.Resolver) *DNSChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if resolver == nil {
		resolver = &net.Resolver{}
	}

	return &DNSChecker{
		timeout:  timeout,
		resolver: resolver,
	}
}

func (d *DNSChecker) Check(ctx context.Context, req DNSRequest) domain.CheckResult {
	id := checkID("dns", req.Host)
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeoutOr(req.Timeout, d.timeout))
	defer cancel()

	recordType := req.RecordType
	if recordType == "" {
		recordType = domain.DNSRecordA
	}

	records, err := d.lookup(ctx, req.Host, recordType)
	if err != nil {
		return failure(id, start, err)
	}
	if len(records) == 0 {
		return domain.CheckResult{
			Check:   id,
			Success: false,
			Message: fmt.Sprintf("no %s records", recordType),
			Data:    map[string]string{"recordType": string(recordType)},
		}.WithDuration(time.Since(start))
	}

	return domain.CheckResult{
		Check:   id,
		Success: true,
		Message: fmt.Sprintf("resolved %d %s record(s)", len(records), recordType),
		Data: map[string]string{
			"recordType": string(recordType),
			"records":    strings.Join(records, ","),
		},
	}.WithDuration(time.Since(start))
}

func (d *DNSChecker) lookup(ctx context.Context, host string, recordType domain.DNSRecordType) ([]string, error) {
	switch recordType {
	case domain.DNSRecordA, domain.DNSRecordAAAA:
		network := "ip4"
		if recordType == domain.DNSRecordAAAA {
			network = "ip6"
		}
		ips, err := d.resolver.LookupIP(ctx, network, host)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(ips))
		for _, ip := range ips {
			out = append(out, ip.String())
		}
		return out, nil

	case domain.DNSRecordCNAME:
		cname, err := d.resolver.LookupCNAME(ctx, host)
		if err != nil {
			return nil, err
		}
		return []string{strings.TrimSuffix(cname, ".")}, nil

	case domain.DNSRecordMX:
		mxs, err := d.resolver.LookupMX(ctx, host)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(mxs))
		for _, mx := range mxs {
			out = append(out, fmt.Sprintf("%d %s", mx.Pref, strings.TrimSuffix(mx.Host, ".")))
		}
		return out, nil

	case domain.DNSRecordNS:
		nss, err := d.resolver.LookupNS(ctx, host)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(nss))
		for _, ns := range nss {
			out = append(out, strings.TrimSuffix(ns.Host, "."))
		}
		return out, nil

	case domain.DNSRecordTXT:
		return d.resolver.LookupTXT(ctx, host)
	}

	return nil, fmt.Errorf("unsupported record type %s", recordType)
}
