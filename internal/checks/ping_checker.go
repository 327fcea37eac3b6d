package checks

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-ping/ping"

	"ozzus/netcheck-agent/internal/domain"
)

type PingChecker struct {
	timeout    time.Duration
	count      int
	privileged bool
}

func NewPingChecker(timeout time.Duration, count int, privileged bool) *PingChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if count <= 0 {
		count = 4
	}

	return &PingChecker{
		timeout:    timeout,
		count:      count,
		privileged: privileged,
	}
}

func (p *PingChecker) Check(ctx context.Context, req PingRequest) domain.CheckResult {
	id := checkID("ping", req.Host)
	start := time.Now()

	pinger, err := ping.NewPinger(req.Host)
	if err != nil {
		return failure(id, start, err)
	}

	count := req.Count
	if count <= 0 {
		count = p.count
	}

	pinger.Count = count
	pinger.Timeout = timeoutOr(req.Timeout, p.timeout)
	pinger.SetPrivileged(p.privileged)

	stop := context.AfterFunc(ctx, pinger.Stop)
	defer stop()

	if err := pinger.Run(); err != nil {
		return failure(id, start, err)
	}
	if ctx.Err() != nil {
		return failure(id, start, ctx.Err())
	}

	stats := pinger.Statistics()

	data := map[string]string{
		"ip":          stats.IPAddr.String(),
		"transmitted": strconv.Itoa(stats.PacketsSent),
		"received":    strconv.Itoa(stats.PacketsRecv),
		"loss":        fmt.Sprintf("%.0f%%", stats.PacketLoss),
	}

	if stats.PacketsRecv == 0 {
		return domain.CheckResult{
			Check:   id,
			Success: false,
			Message: "no packets received",
			Data:    data,
		}.WithDuration(time.Since(start))
	}

	data["min"] = formatMilliseconds(stats.MinRtt)
	data["avg"] = formatMilliseconds(stats.AvgRtt)
	data["max"] = formatMilliseconds(stats.MaxRtt)

	return domain.CheckResult{
		Check:   id,
		Success: true,
		Message: fmt.Sprintf("%d/%d packets received, avg %s", stats.PacketsRecv, stats.PacketsSent, data["avg"]),
		Data:    data,
	}.WithDuration(time.Since(start))
}
