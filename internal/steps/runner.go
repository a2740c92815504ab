// Package steps executes a scenario.Step's actions sequentially against a
// VM over an established ssh.VMSession, mirroring what cloud-init would do
// at boot time but orchestrated post-boot from the host.
package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/intar-dev/intar-cli/internal/scenario"
	"github.com/intar-dev/intar-cli/internal/ssh"
)

// ErrActionFailed is returned when a remote action exits non-zero.
var ErrActionFailed = errors.New("step action failed")

// Runner executes Steps for one VM over a shared session.
type Runner struct {
	vmName  string
	session ssh.VMSession
	log     *zap.Logger
}

// New builds a Runner bound to a VM's session.
func New(vmName string, session ssh.VMSession, log *zap.Logger) *Runner {
	return &Runner{vmName: vmName, session: session, log: log.With(zap.String("vm", vmName))}
}

// Run executes every action in step, in order, stopping at the first
// failure. On success it appends a completion sentinel line to the step's
// log so callers that only have log access (not this Runner) can
// independently confirm success.
func (r *Runner) Run(ctx context.Context, step scenario.Step) error {
	logPath := fmt.Sprintf("/var/log/intar/step-%s-%s.log", r.vmName, step.Name)

	for i, action := range step.Actions {
		if err := r.runAction(ctx, logPath, action); err != nil {
			return errors.Wrapf(err, "step %q action %d (%s)", step.Name, i, action.Kind)
		}
	}

	sentinel := fmt.Sprintf("step %s/%s complete", r.vmName, step.Name)
	cmd := fmt.Sprintf("echo %q >> %s", sentinel, logPath)
	if _, err := r.session.ExecuteCommand(ctx, sudoNonInteractive(cmd)); err != nil {
		return errors.Wrap(err, "writing completion sentinel")
	}
	r.log.Info("step complete", zap.String("step", step.Name))
	return nil
}

func (r *Runner) runAction(ctx context.Context, logPath string, action scenario.Action) error {
	switch action.Kind {
	case scenario.ActionFileWrite:
		if err := r.fileWrite(ctx, action); err != nil {
			return err
		}
		return r.appendLog(ctx, logPath, fmt.Sprintf("wrote %s", action.Path))
	case scenario.ActionFileDelete:
		return r.run(ctx, logPath, fmt.Sprintf("rm -f %s", shellQuote(action.Path)))
	case scenario.ActionCommand:
		return r.run(ctx, logPath, action.Cmd)
	case scenario.ActionSystemctl:
		return r.run(ctx, logPath, fmt.Sprintf("systemctl %s %s", action.SystemctlOp, shellQuote(action.Unit)))
	case scenario.ActionK8sNamespace:
		manifest, err := renderNamespace(action.Namespace)
		if err != nil {
			return errors.Wrap(err, "rendering namespace manifest")
		}
		return r.kubectlApply(ctx, logPath, manifest)
	case scenario.ActionK8sDeployment:
		manifest, err := renderDeployment(action.K8sManifest)
		if err != nil {
			return errors.Wrap(err, "rendering deployment manifest")
		}
		return r.kubectlApply(ctx, logPath, manifest)
	case scenario.ActionK8sService:
		manifest, err := renderService(action.K8sManifest)
		if err != nil {
			return errors.Wrap(err, "rendering service manifest")
		}
		return r.kubectlApply(ctx, logPath, manifest)
	default:
		return errors.Errorf("unknown action kind %q", action.Kind)
	}
}

// fileWrite uploads content via SFTP to a temp path, then moves it into
// place as root and sets permissions, so the write is atomic from the
// perspective of anything already watching the destination path.
func (r *Runner) fileWrite(ctx context.Context, action scenario.Action) error {
	tmpPath := action.Path + ".intar-upload"
	perm := action.Permissions
	if perm == 0 {
		perm = 0o644
	}

	if err := r.session.UploadBytes(ctx, []byte(action.Content), ssh.FileUploadOptions{
		RemotePath: tmpPath,
		CreateDirs: true,
	}); err != nil {
		return errors.Wrap(err, "uploading file content")
	}

	cmd := fmt.Sprintf("mv %s %s && chmod %o %s",
		shellQuote(tmpPath), shellQuote(action.Path), perm, shellQuote(action.Path))
	return r.run(ctx, "", cmd)
}

// kubectlApply pipes a rendered manifest through kubectl apply -f - with the
// cluster's kubeconfig in the remote environment. The manifest is embedded
// as a heredoc since ExecuteScript's "script" argument becomes the whole
// remote bash script, not separate stdin for a single command.
func (r *Runner) kubectlApply(ctx context.Context, logPath string, manifest []byte) error {
	script := fmt.Sprintf("sudo -n kubectl apply -f - <<'INTAR_MANIFEST_EOF'\n%s\nINTAR_MANIFEST_EOF\n", manifest)
	result, err := r.session.ExecuteScript(ctx, script, map[string]string{
		"KUBECONFIG": "/etc/rancher/k3s/k3s.yaml",
	})
	if err != nil {
		return errors.Wrap(err, "kubectl apply")
	}
	if result.ExitCode != 0 {
		return errors.Wrapf(ErrActionFailed, "kubectl apply exited %d: %s", result.ExitCode, result.Stderr)
	}
	return r.appendLog(ctx, logPath, fmt.Sprintf("applied manifest:\n%s", manifest))
}

// run executes cmd as root (non-interactive sudo) and appends its output to
// logPath when one is given.
func (r *Runner) run(ctx context.Context, logPath, cmd string) error {
	full := sudoNonInteractive(cmd)
	if logPath != "" {
		full = fmt.Sprintf("%s >> %s 2>&1", full, logPath)
	}
	result, err := r.session.ExecuteCommand(ctx, full)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return errors.Wrapf(ErrActionFailed, "%q exited %d: %s", cmd, result.ExitCode, result.Stderr)
	}
	return nil
}

func (r *Runner) appendLog(ctx context.Context, logPath, content string) error {
	if logPath == "" {
		return nil
	}
	_, err := r.session.ExecuteCommand(ctx, fmt.Sprintf("echo %s >> %s", shellQuote(content), logPath))
	return err
}

func sudoNonInteractive(cmd string) string {
	return fmt.Sprintf("sudo -n sh -c %s", shellQuote(cmd))
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
