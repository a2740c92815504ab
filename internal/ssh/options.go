/*
Copyright 2025 The Crossplane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ssh

import (
	"errors"
	"time"
)

// Sentinel errors for SSH session operations.
var (
	ErrConnectionFailed = errors.New("failed to connect to VM SSH port")
	ErrSSHAuthFailed    = errors.New("SSH authentication failed")
	ErrVMNotReady       = errors.New("VM is not ready")
	ErrTimeout          = errors.New("operation timed out")
	ErrSFTPFailed       = errors.New("SFTP operation failed")
)

// SessionConfig holds the configuration for establishing a direct SSH
// session to a VM's host-forwarded port. The teacher's TunnelConfig dialed a
// WebSocket tunnel to Orchard's port-forward endpoint first; this dials the
// forwarded TCP port on localhost directly, since Boot already publishes it.
type SessionConfig struct {
	// Host is the address the SSH port is forwarded on, normally "127.0.0.1".
	Host string

	// VMName names the target VM, used only for error messages.
	VMName string

	// SSHPort is the host-forwarded SSH port chosen by vm.Supervisor.Boot.
	SSHPort int

	// SSHUsername authenticates as this run-scoped user (default "intar").
	SSHUsername string

	// PrivateKeyPEM is the run-scoped private key generated for this run,
	// matching the public key baked into the VM's cloud-init user-data.
	PrivateKeyPEM []byte

	// Timeout bounds dialing and individual command execution (default 30s).
	Timeout time.Duration
}

// SetDefaults applies default values to the config.
func (c *SessionConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.SSHUsername == "" {
		c.SSHUsername = "intar"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// CommandResult holds the result of executing a command on the VM.
type CommandResult struct {
	// ExitCode is the exit status of the command (0 = success).
	ExitCode int

	// Stdout contains the standard output.
	Stdout string

	// Stderr contains the standard error output.
	Stderr string
}

// FileUploadOptions configures file upload behavior.
type FileUploadOptions struct {
	// RemotePath is the destination path on the VM.
	RemotePath string

	// Permissions are the file permissions (e.g., 0644).
	Permissions uint32

	// CreateDirs creates parent directories if they don't exist.
	CreateDirs bool
}
