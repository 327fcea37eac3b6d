package checks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"ozzus/netcheck-agent/internal/domain"
)

func checkID(kind string, parts ...string) string {
	return kind + ":" + strings.Join(parts, ":")
}

func hostPortID(kind, host string, port int) string {
	return checkID(kind, host, strconv.Itoa(port))
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

func validRecordType(t domain.DNSRecordType) bool {
	switch t {
	case domain.DNSRecordA, domain.DNSRecordAAAA, domain.DNSRecordCNAME,
		domain.DNSRecordMX, domain.DNSRecordNS, domain.DNSRecordTXT:
		return true
	}
	return false
}

func timeoutOr(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func failure(id string, started time.Time, err error) domain.CheckResult {
	return domain.CheckResult{
		Check:   id,
		Success: false,
		Message: errorMessage(err),
	}.WithDuration(time.Since(started))
}

// errorMessage shortens common network errors to something readable.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return fmt.Sprintf("host %s not found", dnsErr.Name)
	}
	return err.Error()
}

func formatMilliseconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1f ms", float64(d.Microseconds())/1000.0)
}
