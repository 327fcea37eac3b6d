package checks

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"ozzus/netcheck-agent/internal/domain"
)

// udpSilenceWait bounds how long a probe that does not expect a reply listens
// for an ICMP port-unreachable before declaring the port open.
const udpSilenceWait = 500 * time.Millisecond

type UDPChecker struct {
	timeout time.Duration
}

func NewUDPChecker(timeout time.Duration) *UDPChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &UDPChecker{timeout: timeout}
}

func (u *UDPChecker) Check(ctx context.Context, req UDPRequest) domain.CheckResult {
	id := hostPortID("udp", req.Host, req.Port)
	start := time.Now()
	timeout := timeoutOr(req.Timeout, u.timeout)

	parent := ctx
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(req.Host, strconv.Itoa(req.Port)))
	if err != nil {
		return failure(id, start, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write([]byte(req.Payload)); err != nil {
		return failure(id, start, err)
	}

	wait := timeout
	if !req.ExpectResponse && wait > udpSilenceWait {
		wait = udpSilenceWait
	}
	_ = conn.SetReadDeadline(time.Now().Add(wait))

	buf := make([]byte, 2048)
	n, err := conn.Read(buf)

	data := map[string]string{"ip": conn.RemoteAddr().String()}

	switch {
	case err == nil:
		data["bytes"] = strconv.Itoa(n)
		return domain.CheckResult{
			Check:   id,
			Success: true,
			Message: "response received",
			Data:    data,
		}.WithDuration(time.Since(start))

	case isTimeout(err) && parent.Err() == nil && !req.ExpectResponse:
		return domain.CheckResult{
			Check:   id,
			Success: true,
			Message: "no response (open or filtered)",
			Data:    data,
		}.WithDuration(time.Since(start))

	case isTimeout(err) && parent.Err() == nil:
		return domain.CheckResult{
			Check:   id,
			Success: false,
			Message: "no response",
			Data:    data,
		}.WithDuration(time.Since(start))
	}

	if parent.Err() != nil {
		return failure(id, start, parent.Err())
	}
	return failure(id, start, err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
