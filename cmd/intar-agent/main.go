// Command intar-agent runs inside the guest VM, listening on the
// virtio-serial device for host-issued probe checks and replying over
// the same channel.
package main

import (
	"go.uber.org/zap"

	"github.com/intar-dev/intar-cli/internal/agent"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck

	device := agent.OpenDevice(log)
	defer device.Close()

	loop := agent.New(device, log)
	if err := loop.Run(); err != nil {
		log.Fatal("agent loop exited", zap.Error(err))
	}
}
