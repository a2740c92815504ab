package cloudinit

import (
	"encoding/base64"
	"fmt"
	"net"

	"github.com/intar-dev/intar-cli/internal/scenario"
)

// cloudConfig is the (small, hand-picked) subset of #cloud-config we emit,
// kept as typed structs with yaml tags rather than a string template so the
// renderer can't produce malformed YAML.
type cloudConfig struct {
	Hostname       string       `yaml:"hostname"`
	FQDN           string       `yaml:"fqdn,omitempty"`
	ManageEtcHosts bool         `yaml:"manage_etc_hosts"`
	Users          []cloudUser  `yaml:"users"`
	Packages       []string     `yaml:"packages,omitempty"`
	WriteFiles     []writeFile  `yaml:"write_files"`
	RunCmd         []string     `yaml:"runcmd"`
}

type cloudUser struct {
	Name              string   `yaml:"name"`
	Sudo              string   `yaml:"sudo,omitempty"`
	Shell             string   `yaml:"shell,omitempty"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
}

type writeFile struct {
	Path        string `yaml:"path"`
	Content     string `yaml:"content"`
	Encoding    string `yaml:"encoding,omitempty"`
	Permissions string `yaml:"permissions,omitempty"`
}

const agentUnit = `[Unit]
Description=intar guest agent
After=network.target

[Service]
ExecStart=/usr/local/bin/intar-agent
Restart=always
RestartSec=1

[Install]
WantedBy=multi-user.target
`

// buildCloudConfig assembles the full user-data document for vm.
func buildCloudConfig(vm scenario.VMDefinition, run *scenario.Run, agentBinary []byte, authorizedKey string, siblingHosts map[string]net.IP) cloudConfig {
	cfg := cloudConfig{
		Hostname:       vm.Name,
		ManageEtcHosts: true,
		Users: []cloudUser{
			{
				Name:              "intar",
				Sudo:              "ALL=(ALL) NOPASSWD:ALL",
				Shell:             "/bin/bash",
				SSHAuthorizedKeys: []string{authorizedKey},
			},
		},
		WriteFiles: []writeFile{
			{
				Path:        "/usr/local/bin/intar-agent",
				Content:     base64.StdEncoding.EncodeToString(agentBinary),
				Encoding:    "base64",
				Permissions: "0755",
			},
			{
				Path:    "/etc/systemd/system/intar-agent.service",
				Content: agentUnit,
			},
		},
		RunCmd: []string{
			"mkdir -p /var/log/intar",
			"chown intar:intar /var/log/intar",
			"systemctl daemon-reload",
			"systemctl enable --now intar-agent.service",
		},
	}

	if vm.CloudInit != nil {
		cfg.Packages = append(cfg.Packages, vm.CloudInit.Packages...)
		for _, u := range vm.CloudInit.Users {
			sudo := ""
			if u.Sudo {
				sudo = "ALL=(ALL) NOPASSWD:ALL"
			}
			cfg.Users = append(cfg.Users, cloudUser{Name: u.Name, Sudo: sudo, Shell: u.Shell})
		}
	}

	var hostsLines string
	for name, ip := range siblingHosts {
		hostsLines += fmt.Sprintf("%s %s\n", ip.String(), name)
	}
	if hostsLines != "" {
		cfg.WriteFiles = append(cfg.WriteFiles, writeFile{
			Path:    "/etc/hosts.intar-siblings",
			Content: hostsLines,
		})
		cfg.RunCmd = append(cfg.RunCmd, "cat /etc/hosts.intar-siblings >> /etc/hosts")
	}

	for _, action := range bootTimeFileWrites(vm) {
		cfg.WriteFiles = append(cfg.WriteFiles, writeFile{
			Path:        action.Path,
			Content:     action.Content,
			Permissions: fmt.Sprintf("0%o", permOrDefault(action.Permissions)),
		})
	}

	return cfg
}

// bootTimeFileWrites returns the file_write actions from every step of the
// VM named "boot", wherever it sits in the step list (spec.md §4.3: "scenario-declared
// file writes that are strictly boot-time in nature"). Everything else
// runs through the Step Runner once SSH is up.
func bootTimeFileWrites(vm scenario.VMDefinition) []scenario.Action {
	var out []scenario.Action
	for _, step := range vm.Steps {
		if step.Name != "boot" {
			continue
		}
		for _, a := range step.Actions {
			if a.Kind == scenario.ActionFileWrite {
				out = append(out, a)
			}
		}
	}
	return out
}

func permOrDefault(p uint32) uint32 {
	if p == 0 {
		return 0o644
	}
	return p
}
