package vm

import (
	"context"
	"fmt"
	"net"
	"os/exec"

	"github.com/pkg/errors"
)

// buildArgv constructs the QEMU command line from cfg: requested cpu/memory,
// two NICs (a user-mode NIC for outbound internet and a private cluster
// NIC), hardware acceleration, a virtio-serial chardev backed by a unix
// socket, and a host-forwarded SSH port. Mirrors the option-map idiom
// (kind + key=value pairs joined with commas) used by QEMU-launching worker
// engines elsewhere in the ecosystem.
func (s *Supervisor) buildArgv(sshPort int) []string {
	type opts map[string]string
	arg := func(kind string, o opts) string {
		result := kind
		for k, v := range o {
			if result != "" {
				result += ","
			}
			result += k + "=" + v
		}
		return result
	}

	accel := string(s.cfg.Accel)
	if accel == "" {
		accel = string(AccelTCG)
	}

	argv := []string{
		"-name", s.cfg.VMName,
		"-machine", arg("pc", opts{"accel": accel + ":tcg"}),
		"-m", fmt.Sprintf("%d", s.cfg.MemoryMiB),
		"-smp", fmt.Sprintf("cpus=%d", s.cfg.CPU),
		"-no-user-config", "-nodefaults",
		"-display", "none",
		"-serial", "null",

		"-drive", arg("", opts{
			"file":   s.cfg.OverlayDisk,
			"if":     "virtio",
			"format": "qcow2",
		}),
		"-drive", arg("", opts{
			"file":   s.cfg.SeedImage,
			"if":     "virtio",
			"format": "raw",
			"readonly": "on",
		}),

		"-netdev", arg("user", opts{"id": "netuser0", "hostfwd": fmt.Sprintf("tcp::%d-:22", sshPort)}),
		"-device", arg("virtio-net-pci", opts{"netdev": "netuser0"}),

		"-netdev", arg("socket", opts{"id": "netcluster0", "listen": ":0"}),
		"-device", arg("virtio-net-pci", opts{"netdev": "netcluster0"}),

		"-chardev", arg("socket", opts{"id": "agentserial0", "path": s.cfg.SerialSock, "server": "on", "wait": "off"}),
		"-device", arg("virtio-serial", nil),
		"-device", arg("virtserialport", opts{"chardev": "agentserial0", "name": "intar.agent"}),

		"-chardev", arg("socket", opts{"id": "qmpsock0", "path": s.qmpSock, "server": "on", "wait": "off"}),
		"-mon", arg("chardev=qmpsock0", opts{"mode": "control"}),
	}
	return argv
}

// createOverlayDisk creates a VM-private qcow2 overlay disk backed by the
// scenario's base image, with the requested capacity, via qemu-img.
func (s *Supervisor) createOverlayDisk(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "qemu-img", "create",
		"-f", "qcow2",
		"-F", "qcow2",
		"-b", s.cfg.BaseImage,
		s.cfg.OverlayDisk,
		fmt.Sprintf("%dG", s.cfg.DiskGiB),
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "qemu-img create: %s", out)
	}
	return nil
}

// acpiPowerOff sends a QMP "system_powerdown" command over the monitor
// socket to request a graceful in-guest ACPI shutdown.
func (s *Supervisor) acpiPowerOff() error {
	conn, err := net.Dial("unix", s.qmpSock)
	if err != nil {
		return errors.Wrap(err, "dialing qmp socket")
	}
	defer conn.Close()

	// QMP requires a capabilities handshake before accepting commands.
	if _, err := conn.Write([]byte(`{"execute":"qmp_capabilities"}` + "\n")); err != nil {
		return errors.Wrap(err, "qmp handshake")
	}
	buf := make([]byte, 4096)
	if _, err := conn.Read(buf); err != nil {
		return errors.Wrap(err, "qmp handshake response")
	}

	if _, err := conn.Write([]byte(`{"execute":"system_powerdown"}` + "\n")); err != nil {
		return errors.Wrap(err, "qmp system_powerdown")
	}
	return nil
}

// freeTCPPort asks the OS for an unused TCP port on localhost.
func freeTCPPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
