//go:build linux

package app

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "crosspub/pkg/logx"
)

// notifyReady tells systemd the service is up when running under a unit
// with Type=notify. Outside systemd both calls are no-ops.
func notifyReady(log logx.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Debug("sd_notify ready failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify ready sent")
	}
}

func notifyStopping(log logx.Logger) {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		log.Debug("sd_notify stopping failed", logx.Err(err))
	}
}
