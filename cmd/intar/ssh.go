package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/intar-dev/intar-cli/internal/orchestrator"
	"github.com/intar-dev/intar-cli/internal/scenario"
	intarssh "github.com/intar-dev/intar-cli/internal/ssh"
)

var (
	sshCmd     = app.Command("ssh", "Open an SSH session against a VM in a run.")
	sshVMName  = sshCmd.Arg("vm", "VM name within the run").Required().String()
	sshRunFlag = sshCmd.Flag("run", "run id (defaults to the most recent run)").String()
	sshCommand = sshCmd.Flag("command", "run a single command instead of an interactive shell").String()
)

func runSSH() error {
	runID, err := resolveRunID(*sshRunFlag)
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}
	runDir, err := scenario.RunDir(runID)
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}
	run := &scenario.Run{ID: runID, Dir: runDir}

	portBytes, err := os.ReadFile(run.SSHPortFilePath(*sshVMName))
	if err != nil {
		return errors.Wrapf(orchestrator.ErrInternal, "reading ssh port for vm %s: %v", *sshVMName, err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(portBytes)))
	if err != nil {
		return errors.Wrapf(orchestrator.ErrInternal, "malformed ssh port file for vm %s", *sshVMName)
	}

	keyPath := run.SSHPrivateKeyPath()
	if *sshCommand != "" {
		return runSSHCommand(*sshVMName, port, keyPath, *sshCommand)
	}
	return runSSHInteractive(port, keyPath)
}

// runSSHCommand uses the same internal/ssh client the orchestrator's Step
// Runner uses, so a one-off `intar ssh --command` exercises the identical
// exec/timeout/result path that steps run through during a live scenario.
func runSSHCommand(vmName string, port int, keyPath, command string) error {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}

	session, err := intarssh.NewVMSession(context.Background(), intarssh.SessionConfig{
		VMName:        vmName,
		SSHPort:       port,
		PrivateKeyPEM: keyPEM,
	})
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}
	defer session.Close()

	result, err := session.ExecuteCommand(context.Background(), command)
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}
	fmt.Fprint(os.Stdout, result.Stdout)
	fmt.Fprint(os.Stderr, result.Stderr)
	if result.ExitCode != 0 {
		return errors.Errorf("command exited %d", result.ExitCode)
	}
	return nil
}

// runSSHInteractive execs the system ssh client for a real PTY: internal/ssh's
// VMSession is a narrow exec-only seam for the Step Runner and never
// negotiates a pty-req, so an actual interactive shell defers to the
// platform's own client the way a developer would type it by hand.
func runSSHInteractive(port int, keyPath string) error {
	cmd := exec.Command("ssh",
		"-i", keyPath,
		"-p", strconv.Itoa(port),
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"intar@127.0.0.1",
	)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
