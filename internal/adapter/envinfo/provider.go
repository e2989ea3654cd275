// Package envinfo describes the host a fault happened on.
package envinfo

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/V4T54L/faultline/internal/domain"
)

const bytesPerMB = 1024 * 1024

// Provider resolves the host description once, at construction.
type Provider struct {
	info    domain.EnvironmentInfo
	machine string
}

// New probes the host. Probes that fail leave their fields at the values
// the Go runtime can supply on its own.
func New(ctx context.Context, logger *slog.Logger) *Provider {
	logger = logger.With("component", "envinfo")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	info := domain.EnvironmentInfo{
		OSVersion:      runtime.GOOS,
		Platform:       runtime.GOOS,
		Architecture:   runtime.GOARCH,
		ProcessorCount: runtime.NumCPU(),
		RuntimeVersion: runtime.Version(),
	}
	machine, _ := os.Hostname()

	if h, err := host.InfoWithContext(ctx); err != nil {
		logger.Debug("Host info unavailable", "error", err)
	} else {
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
		info.OSVersion = strings.TrimSpace(h.OS + " " + h.PlatformVersion)
		if h.KernelArch != "" {
			info.Architecture = h.KernelArch
		}
		info.UptimeHours = float64(h.Uptime) / 3600
		if machine == "" {
			machine = h.Hostname
		}
	}

	if n, err := cpu.CountsWithContext(ctx, true); err != nil {
		logger.Debug("CPU count unavailable", "error", err)
	} else if n > 0 {
		info.ProcessorCount = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		logger.Debug("Memory stats unavailable", "error", err)
	} else {
		info.TotalMemoryMB = vm.Total / bytesPerMB
		info.FreeMemoryMB = vm.Available / bytesPerMB
	}

	return &Provider{info: info, machine: machine}
}

// Static returns a provider with a fixed description.
func Static(info domain.EnvironmentInfo, machine string) *Provider {
	return &Provider{info: info, machine: machine}
}

func (p *Provider) Environment() domain.EnvironmentInfo { return p.info }

func (p *Provider) MachineName() string { return p.machine }
