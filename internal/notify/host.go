package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/host"
)

// HostInfo 描述执行本次运行的机器，附在心跳里
type HostInfo struct {
	Hostname string
	Platform string
	Uptime   time.Duration
}

func (h *HostInfo) String() string {
	if h == nil {
		return ""
	}
	if h.Platform == "" {
		return fmt.Sprintf("%s (up %s)", h.Hostname, h.Uptime)
	}
	return fmt.Sprintf("%s, %s (up %s)", h.Hostname, h.Platform, h.Uptime)
}

// CollectHost 读取主机信息；失败时返回 nil，心跳照常发送
func CollectHost(ctx context.Context) *HostInfo {
	info, err := host.InfoWithContext(ctx)
	if err != nil || info == nil {
		return nil
	}
	platform := info.Platform
	if info.PlatformVersion != "" {
		platform += " " + info.PlatformVersion
	}
	return &HostInfo{
		Hostname: info.Hostname,
		Platform: platform,
		Uptime:   (time.Duration(info.Uptime) * time.Second).Round(time.Minute),
	}
}
