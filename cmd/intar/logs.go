package main

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/intar-dev/intar-cli/internal/orchestrator"
	"github.com/intar-dev/intar-cli/internal/scenario"
)

var (
	logsCmd     = app.Command("logs", "Print a VM's log file from a run.")
	logsRunFlag = logsCmd.Flag("run", "run id (defaults to the most recent run)").String()
	logsVM      = logsCmd.Flag("vm", "VM name within the run").Required().String()
	logsType    = logsCmd.Flag("log-type", "console, ssh, or system").Default("console").Enum("console", "ssh", "system")
)

func runLogs() error {
	runID, err := resolveRunID(*logsRunFlag)
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}
	runDir, err := scenario.RunDir(runID)
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}
	run := &scenario.Run{ID: runID, Dir: runDir}

	var path string
	switch *logsType {
	case "console":
		path = run.ConsoleLogPath(*logsVM)
	case "ssh":
		path = run.SSHLogPath(*logsVM)
	case "system":
		path = run.SystemLogPath(*logsVM)
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(orchestrator.ErrInternal, "opening %s: %v", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(os.Stdout, f); err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}
	return nil
}
