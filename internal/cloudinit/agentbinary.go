package cloudinit

import (
	"os"

	"github.com/pkg/errors"

	"github.com/intar-dev/intar-cli/internal/scenario"
)

// AgentBinaryDir can be set by callers to point at a directory containing
// prebuilt intar-agent binaries named intar-agent-<arch>; no CLI flag sets
// it. When empty, the INTAR_AGENT_BIN_DIR environment variable is used,
// falling back to /usr/local/libexec/intar.
var AgentBinaryDir = ""

const defaultAgentBinaryDir = "/usr/local/libexec/intar"

// agentBinaryPath resolves the prebuilt agent binary for arch. The agent is
// a separate cmd/intar-agent build artifact cross-compiled ahead of time;
// this package only ever reads bytes off disk, it never builds anything.
func agentBinaryPath(arch scenario.Arch) string {
	dir := AgentBinaryDir
	if dir == "" {
		dir = os.Getenv("INTAR_AGENT_BIN_DIR")
	}
	if dir == "" {
		dir = defaultAgentBinaryDir
	}
	return dir + "/intar-agent-" + string(arch)
}

func readAgentBinary(arch scenario.Arch) ([]byte, error) {
	path := agentBinaryPath(arch)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading agent binary for %s at %s (set INTAR_AGENT_BIN_DIR)", arch, path)
	}
	return data, nil
}
