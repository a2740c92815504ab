// Command intar is the host-side CLI: parse a scenario, boot its VMs,
// provision them, and watch probes until interrupted.
package main

import (
	"os"

	"github.com/alecthomas/kingpin/v2"
)

var app = kingpin.New("intar", "Local DevOps lab runner: boot VMs from an HCL scenario, provision, and probe.")

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))
	os.Exit(dispatch(cmd))
}
