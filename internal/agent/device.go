// Package agent implements the guest-side process that reads newline-
// delimited JSON requests off the virtio-serial device and replies with
// probe results. It has no teacher equivalent; the read/dispatch/single-
// writer shape follows the line-oriented framing idiom used throughout the
// codebase's SSH exec wrappers, generalized to a persistent bidirectional
// device instead of one-shot command execution.
package agent

import (
	"os"
	"time"

	"go.uber.org/zap"
)

// candidateDevices are tried in order; intar.agent is the named virtio-
// serial port intar's QEMU command line declares, vport0p1 is the fallback
// raw device node some guest kernels expose it as.
var candidateDevices = []string{
	"/dev/virtio-ports/intar.agent",
	"/dev/vport0p1",
}

const (
	openBackoffInitial = 250 * time.Millisecond
	openBackoffMax      = 5 * time.Second
)

// OpenDevice opens the virtio-serial device, preferring
// /dev/virtio-ports/intar.agent and falling back to /dev/vport0p1, retrying
// forever with exponential backoff capped at 5s. It never returns an error:
// the agent must never exit for want of a device.
func OpenDevice(log *zap.Logger) *os.File {
	backoff := openBackoffInitial
	for {
		for _, path := range candidateDevices {
			f, err := os.OpenFile(path, os.O_RDWR, 0)
			if err == nil {
				log.Info("opened agent device", zap.String("path", path))
				return f
			}
			log.Debug("device open failed", zap.String("path", path), zap.Error(err))
		}
		time.Sleep(backoff)
		backoff *= 2
		if backoff > openBackoffMax {
			backoff = openBackoffMax
		}
	}
}
