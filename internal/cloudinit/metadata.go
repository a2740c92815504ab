package cloudinit

import "fmt"

// metaData is the minimal cloud-init meta-data document.
type metaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

// instanceID derives a stable-within-run, unique-across-runs instance id
// from (runID, vmName), per spec.md §4.3.
func instanceID(runID, vmName string) string {
	return fmt.Sprintf("%s-%s", runID, vmName)
}

func buildMetaData(runID, vmName string) metaData {
	return metaData{InstanceID: instanceID(runID, vmName), LocalHostname: vmName}
}
