package checks

import (
	"context"
	"net"
	"strconv"
	"time"

	"ozzus/netcheck-agent/internal/domain"
)

type TCPChecker struct {
	timeout time.Duration
}

func NewTCPChecker(timeout time.Duration) *TCPChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TCPChecker{timeout: timeout}
}

func (t *TCPChecker) Check(ctx context.Context, req TCPRequest) domain.CheckResult {
	id := hostPortID("tcp", req.Host, req.Port)
	start := time.Now()

	dialer := net.Dialer{Timeout: timeoutOr(req.Timeout, t.timeout)}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(req.Host, strconv.Itoa(req.Port)))
	if err != nil {
		return failure(id, start, err)
	}
	connectTime := time.Since(start)
	_ = conn.Close()

	return domain.CheckResult{
		Check:   id,
		Success: true,
		Message: "connected",
		Data: map[string]string{
			"ip":          conn.RemoteAddr().String(),
			"connectTime": formatMilliseconds(connectTime),
		},
	}.WithDuration(connectTime)
}
