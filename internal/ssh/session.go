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
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

// VMSession represents an active SSH session to a VM.
type VMSession interface {
	// ExecuteCommand runs a command on the VM and returns the result.
	ExecuteCommand(ctx context.Context, command string) (*CommandResult, error)

	// ExecuteScript runs a multi-line script on the VM with optional environment variables.
	ExecuteScript(ctx context.Context, script string, env map[string]string) (*CommandResult, error)

	// UploadFile uploads content to a file on the VM.
	UploadFile(ctx context.Context, content io.Reader, opts FileUploadOptions) error

	// UploadBytes is a convenience method for uploading byte content.
	UploadBytes(ctx context.Context, data []byte, opts FileUploadOptions) error

	// Close terminates the SSH session.
	Close() error
}

// vmSession implements VMSession. Connection pool size is 1 per VM; token
// serializes commands issued concurrently against the same VM (spec.md
// §4.5/§5).
type vmSession struct {
	config     SessionConfig
	conn       net.Conn
	sshClient  *xssh.Client
	sftpClient *sftp.Client
	token      chan struct{}
}

// NewVMSession dials the VM's host-forwarded SSH port directly and
// authenticates with the run-scoped private key.
func NewVMSession(ctx context.Context, config SessionConfig) (VMSession, error) {
	config.SetDefaults()

	signer, err := xssh.ParsePrivateKey(config.PrivateKeyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "parsing run-scoped private key")
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.SSHPort)
	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrConnectionFailed, "dialing %s: %v", addr, err)
	}

	sshConfig := &xssh.ClientConfig{
		User: config.SSHUsername,
		Auth: []xssh.AuthMethod{
			xssh.PublicKeys(signer),
		},
		// VM identity is established by the run (fresh overlay disk, fresh
		// key pair baked into cloud-init); there is no persistent host to
		// pin a known_hosts entry to.
		HostKeyCallback: xssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         config.Timeout,
	}

	sshConn, chans, reqs, err := xssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, errors.Wrap(ErrSSHAuthFailed, err.Error())
		}
		return nil, errors.Wrap(err, "failed to establish SSH connection")
	}

	sshClient := xssh.NewClient(sshConn, chans, reqs)

	token := make(chan struct{}, 1)
	token <- struct{}{}

	return &vmSession{
		config:    config,
		conn:      conn,
		sshClient: sshClient,
		token:     token,
	}, nil
}

func (s *vmSession) acquire(ctx context.Context) error {
	select {
	case <-s.token:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *vmSession) release() {
	s.token <- struct{}{}
}

// ExecuteCommand runs a single command on the VM, serialized against other
// commands on the same session.
func (s *vmSession) ExecuteCommand(ctx context.Context, command string) (*CommandResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	session, err := s.sshClient.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create SSH session")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Close()
		return nil, errors.Wrapf(ErrTimeout, "command %q: %v", command, ctx.Err())
	case err = <-done:
	}

	result := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		if exitErr, ok := err.(*xssh.ExitError); ok {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil // Non-zero exit is not an error, just captured in result.
		}
		return result, errors.Wrap(err, "command execution failed")
	}

	result.ExitCode = 0
	return result, nil
}

// ExecuteScript runs a multi-line script on the VM with optional environment variables.
func (s *vmSession) ExecuteScript(ctx context.Context, script string, env map[string]string) (*CommandResult, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	session, err := s.sshClient.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create SSH session")
	}
	defer session.Close()

	var scriptBuilder strings.Builder
	scriptBuilder.WriteString("#!/bin/bash\nset -e\n")
	for key, value := range env {
		escapedValue := strings.ReplaceAll(value, "'", "'\"'\"'")
		scriptBuilder.WriteString(fmt.Sprintf("export %s='%s'\n", key, escapedValue))
	}
	scriptBuilder.WriteString(script)

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	session.Stdin = strings.NewReader(scriptBuilder.String())

	done := make(chan error, 1)
	go func() { done <- session.Run("/bin/bash") }()

	select {
	case <-ctx.Done():
		session.Close()
		return nil, errors.Wrap(ErrTimeout, ctx.Err().Error())
	case err = <-done:
	}

	result := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		if exitErr, ok := err.(*xssh.ExitError); ok {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, errors.Wrap(err, "script execution failed")
	}

	result.ExitCode = 0
	return result, nil
}

// ensureSFTP initializes the SFTP client if not already done.
func (s *vmSession) ensureSFTP() error {
	if s.sftpClient != nil {
		return nil
	}

	client, err := sftp.NewClient(s.sshClient)
	if err != nil {
		return errors.Wrap(ErrSFTPFailed, err.Error())
	}
	s.sftpClient = client
	return nil
}

// UploadFile uploads content to a file on the VM.
func (s *vmSession) UploadFile(ctx context.Context, content io.Reader, opts FileUploadOptions) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	if err := s.ensureSFTP(); err != nil {
		return err
	}

	if opts.CreateDirs {
		dir := filepath.Dir(opts.RemotePath)
		if err := s.sftpClient.MkdirAll(dir); err != nil {
			return errors.Wrapf(ErrSFTPFailed, "failed to create directory %s: %v", dir, err)
		}
	}

	f, err := s.sftpClient.Create(opts.RemotePath)
	if err != nil {
		return errors.Wrapf(ErrSFTPFailed, "failed to create file %s: %v", opts.RemotePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		return errors.Wrap(ErrSFTPFailed, "failed to write file content")
	}

	if opts.Permissions != 0 {
		if err := s.sftpClient.Chmod(opts.RemotePath, os.FileMode(opts.Permissions)); err != nil {
			return errors.Wrap(ErrSFTPFailed, "failed to set file permissions")
		}
	}

	return nil
}

// UploadBytes is a convenience method for uploading byte content.
func (s *vmSession) UploadBytes(ctx context.Context, data []byte, opts FileUploadOptions) error {
	return s.UploadFile(ctx, bytes.NewReader(data), opts)
}

// Close terminates all connections.
func (s *vmSession) Close() error {
	var errs []error

	if s.sftpClient != nil {
		if err := s.sftpClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.sshClient != nil {
		if err := s.sshClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
