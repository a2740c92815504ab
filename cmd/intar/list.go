package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/intar-dev/intar-cli/internal/orchestrator"
)

var (
	listCmd = app.Command("list", "Enumerate .hcl scenarios in a directory.")
	listDir = listCmd.Flag("dir", "directory to scan for .hcl scenarios").Default(".").String()
)

func runList() error {
	entries, err := os.ReadDir(*listDir)
	if err != nil {
		return errors.Wrap(orchestrator.ErrInternal, err.Error())
	}

	var scenarios []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".hcl" {
			continue
		}
		scenarios = append(scenarios, e.Name())
	}
	sort.Strings(scenarios)

	if len(scenarios) == 0 {
		fmt.Printf("no .hcl scenarios found in %s\n", *listDir)
		return nil
	}
	for _, name := range scenarios {
		fmt.Println(name)
	}
	return nil
}
