package systemd

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Listeners holds all systemd-activated listeners
type Listeners struct {
	HTTP      net.Listener
	DNSUdp    net.PacketConn
	DNSTcp    net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors.
// Returns empty listeners if not running under socket activation.
//
// Names come from FileDescriptorName= in sitebudget.socket: http, dns-udp,
// dns-tcp and metrics. Unknown names are closed.
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{}

	files := activation.Files(true)
	if len(files) == 0 {
		return listeners, nil
	}
	listeners.Activated = true

	for _, f := range files {
		name := f.Name()
		switch name {
		case "http", "dns-tcp", "metrics":
			ln, err := net.FileListener(f)
			if err != nil {
				return nil, fmt.Errorf("socket %q is not a stream listener: %w", name, err)
			}
			switch name {
			case "http":
				listeners.HTTP = ln
			case "dns-tcp":
				listeners.DNSTcp = ln
			case "metrics":
				listeners.Metrics = ln
			}
		case "dns-udp":
			pc, err := net.FilePacketConn(f)
			if err != nil {
				return nil, fmt.Errorf("socket %q is not a datagram socket: %w", name, err)
			}
			listeners.DNSUdp = pc
		}
		// The net package dups the descriptor, so the original is always closed.
		_ = f.Close()
	}

	return listeners, nil
}

// NotifyReady sends READY=1 notification to systemd
func NotifyReady() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// NotifyWatchdog sends WATCHDOG=1 notification to systemd
func NotifyWatchdog() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		return fmt.Errorf("failed to send sd_notify watchdog: %w", err)
	}
	return nil
}

// WatchdogInterval returns how often to ping the watchdog, or zero when the
// unit has no WatchdogSec= configured.
func WatchdogInterval() time.Duration {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return 0
	}
	return interval / 2
}

// IsSystemdService returns true if running as a systemd notify service
func IsSystemdService() bool {
	return os.Getenv("NOTIFY_SOCKET") != ""
}
