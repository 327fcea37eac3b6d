package service

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"

	"ozzus/netcheck-agent/internal/domain"
)

func collectRuntimeInfo(ctx context.Context, instanceID string) domain.RuntimeInfo {
	info := domain.RuntimeInfo{
		InstanceID: instanceID,
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		GoVersion:  runtime.Version(),
		PID:        os.Getpid(),
	}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		if h.PlatformVersion != "" {
			info.Platform += " " + h.PlatformVersion
		}
		info.Kernel = h.KernelVersion
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}

	return info
}
