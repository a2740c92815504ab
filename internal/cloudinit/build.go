// Package cloudinit synthesizes the cloud-init seed image (user-data,
// meta-data, network-config, plus the embedded guest agent binary) each VM
// boots from on first start.
package cloudinit

import (
	"context"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/intar-dev/intar-cli/internal/scenario"
)

// Inputs bundles everything Build needs beyond the VM definition itself:
// the scenario-wide VM ordering (for address allocation and sibling
// /etc/hosts entries) and the run-scoped SSH identity.
type Inputs struct {
	Run              *scenario.Run
	HostArch         scenario.Arch
	AuthorizedSSHKey string // run-scoped public key, authorized_keys format
}

// Build renders user-data/meta-data/network-config for vm, writes them
// alongside a debug copy of user-data under the run's log directory, and
// shells out to genisoimage/xorriso to produce an ISO9660 "cidata" seed
// image at run.SeedImagePath(vm.Name).
func Build(ctx context.Context, in Inputs, vm scenario.VMDefinition) (string, error) {
	index := vmIndex(in.Run.Scenario, vm.Name)
	if index < 0 {
		return "", errors.Errorf("vm %q not found in scenario", vm.Name)
	}

	agentBinary, err := readAgentBinary(in.HostArch)
	if err != nil {
		return "", err
	}

	siblings := siblingHosts(in.Run.Scenario, vm.Name)
	cfg := buildCloudConfig(vm, in.Run, agentBinary, in.AuthorizedSSHKey, siblings)
	meta := buildMetaData(in.Run.ID, vm.Name)
	netCfg := buildNetworkConfig(index)

	stagingDir, err := os.MkdirTemp("", "intar-cidata-"+vm.Name+"-")
	if err != nil {
		return "", errors.Wrap(err, "creating cidata staging dir")
	}
	defer os.RemoveAll(stagingDir)

	if err := writeUserData(filepath.Join(stagingDir, "user-data"), cfg); err != nil {
		return "", err
	}
	if err := writeYAMLFile(filepath.Join(stagingDir, "meta-data"), meta); err != nil {
		return "", err
	}
	if err := writeYAMLFile(filepath.Join(stagingDir, "network-config"), netCfg); err != nil {
		return "", err
	}

	debugPath := in.Run.UserDataDebugPath(vm.Name)
	if err := os.MkdirAll(filepath.Dir(debugPath), 0o755); err != nil {
		return "", errors.Wrap(err, "creating log directory")
	}
	if err := copyFile(filepath.Join(stagingDir, "user-data"), debugPath); err != nil {
		return "", err
	}

	seedPath := in.Run.SeedImagePath(vm.Name)
	if err := buildISO(ctx, stagingDir, seedPath); err != nil {
		return "", err
	}
	return seedPath, nil
}

// writeUserData renders cfg with the #cloud-config header cloud-init
// requires on the first line of user-data.
func writeUserData(path string, cfg cloudConfig) error {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrapf(err, "rendering %s", path)
	}
	out := append([]byte("#cloud-config\n"), body...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func writeYAMLFile(path string, doc interface{}) error {
	body, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "rendering %s", path)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "reading %s", src)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", dst)
	}
	return nil
}

// buildISO shells out to genisoimage (preferring it for availability on
// most Linux distros) falling back to xorriso, producing a "cidata"
// labelled ISO9660 image from stagingDir's three files.
func buildISO(ctx context.Context, stagingDir, outPath string) error {
	if path, err := exec.LookPath("genisoimage"); err == nil {
		cmd := exec.CommandContext(ctx, path,
			"-output", outPath,
			"-volid", "cidata",
			"-joliet", "-rock",
			filepath.Join(stagingDir, "user-data"),
			filepath.Join(stagingDir, "meta-data"),
			filepath.Join(stagingDir, "network-config"),
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			return errors.Wrapf(err, "genisoimage failed: %s", out)
		}
		return nil
	}

	path, err := exec.LookPath("xorriso")
	if err != nil {
		return errors.New("neither genisoimage nor xorriso found on PATH")
	}
	cmd := exec.CommandContext(ctx, path,
		"-as", "genisoimage",
		"-output", outPath,
		"-volid", "cidata",
		"-joliet", "-rock",
		filepath.Join(stagingDir, "user-data"),
		filepath.Join(stagingDir, "meta-data"),
		filepath.Join(stagingDir, "network-config"),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "xorriso failed: %s", out)
	}
	return nil
}

func vmIndex(s *scenario.Scenario, name string) int {
	for i, vm := range s.VMs {
		if vm.Name == name {
			return i
		}
	}
	return -1
}

// siblingHosts returns every other VM's allocated cluster address, keyed by
// hostname, for seeding /etc/hosts.
func siblingHosts(s *scenario.Scenario, exclude string) map[string]net.IP {
	out := make(map[string]net.IP)
	for i, vm := range s.VMs {
		if vm.Name == exclude {
			continue
		}
		out[vm.Name] = AllocateAddress(i)
	}
	return out
}
