package steps

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/intar-dev/intar-cli/internal/scenario"
	"github.com/intar-dev/intar-cli/internal/ssh"
)

// fakeSession is a recording VMSession used to exercise the Runner without a
// real VM.
type fakeSession struct {
	commands []string
	scripts  []string
	uploads  []ssh.FileUploadOptions
	failCmd  string // if non-empty, any command containing this substring fails
}

func (f *fakeSession) ExecuteCommand(ctx context.Context, command string) (*ssh.CommandResult, error) {
	f.commands = append(f.commands, command)
	return f.result(command), nil
}

func (f *fakeSession) ExecuteScript(ctx context.Context, script string, env map[string]string) (*ssh.CommandResult, error) {
	f.scripts = append(f.scripts, script)
	return f.result(script), nil
}

func (f *fakeSession) result(text string) *ssh.CommandResult {
	if f.failCmd != "" && strings.Contains(text, f.failCmd) {
		return &ssh.CommandResult{ExitCode: 1, Stderr: "boom"}
	}
	return &ssh.CommandResult{ExitCode: 0}
}

func (f *fakeSession) UploadFile(ctx context.Context, content io.Reader, opts ssh.FileUploadOptions) error {
	f.uploads = append(f.uploads, opts)
	return nil
}

func (f *fakeSession) UploadBytes(ctx context.Context, data []byte, opts ssh.FileUploadOptions) error {
	f.uploads = append(f.uploads, opts)
	return nil
}

func (f *fakeSession) Close() error { return nil }

func newTestRunner(sess ssh.VMSession) *Runner {
	return New("vm1", sess, zap.NewNop())
}

func TestRunner_FileWrite(t *testing.T) {
	fake := &fakeSession{}
	r := newTestRunner(fake)

	step := scenario.Step{
		Name: "setup",
		Actions: []scenario.Action{
			{Kind: scenario.ActionFileWrite, Path: "/etc/motd", Content: "hello", Permissions: 0o600},
		},
	}

	require.NoError(t, r.Run(context.Background(), step))
	require.Len(t, fake.uploads, 1)
	assert.Equal(t, "/etc/motd.intar-upload", fake.uploads[0].RemotePath)
	assert.True(t, len(fake.commands) >= 2) // mv+chmod, log line, then completion sentinel
}

func TestRunner_CommandFailureStopsStep(t *testing.T) {
	fake := &fakeSession{failCmd: "false"}
	r := newTestRunner(fake)

	step := scenario.Step{
		Name: "fails",
		Actions: []scenario.Action{
			{Kind: scenario.ActionCommand, Cmd: "false"},
			{Kind: scenario.ActionCommand, Cmd: "echo should-not-run"},
		},
	}

	err := r.Run(context.Background(), step)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.Len(t, fake.commands, 1, "second action must not run after the first fails")
}

func TestRunner_Systemctl(t *testing.T) {
	fake := &fakeSession{}
	r := newTestRunner(fake)

	step := scenario.Step{
		Name: "svc",
		Actions: []scenario.Action{
			{Kind: scenario.ActionSystemctl, Unit: "nginx", SystemctlOp: scenario.SystemctlRestart},
		},
	}
	require.NoError(t, r.Run(context.Background(), step))
	require.NotEmpty(t, fake.commands)
	assert.Contains(t, fake.commands[0], "systemctl restart")
	assert.Contains(t, fake.commands[0], "nginx")
}

func TestRunner_K8sDeployment(t *testing.T) {
	fake := &fakeSession{}
	r := newTestRunner(fake)

	step := scenario.Step{
		Name: "deploy",
		Actions: []scenario.Action{
			{
				Kind: scenario.ActionK8sDeployment,
				K8sManifest: scenario.K8sManifest{
					Name:      "web",
					Namespace: "default",
					Selector:  map[string]string{"app": "web"},
					Image:     "nginx:latest",
					Replicas:  2,
				},
			},
		},
	}
	require.NoError(t, r.Run(context.Background(), step))
	require.NotEmpty(t, fake.scripts)
	assert.Contains(t, fake.scripts[0], "kubectl apply -f -")
	assert.Contains(t, fake.scripts[0], "kind: Deployment")
	assert.Contains(t, fake.scripts[0], "nginx:latest")
}
