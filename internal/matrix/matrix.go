package matrix

import (
	"fmt"

	"github.com/conveyorci/conveyor/internal/config"
)

// Instance is one concrete (os, python) combination executed as an isolated
// build-test job. Instances share no state with their siblings.
type Instance struct {
	OS                 string `json:"os"`
	Python             string `json:"python"`
	EnvironmentFile    string `json:"environment_file"`
	ProvisionerVariant string `json:"provisioner_variant,omitempty"`
	ProvisionerVersion string `json:"provisioner_version,omitempty"`
}

// Name returns the instance's display name, e.g. "ubuntu/py3.10".
func (in Instance) Name() string {
	return fmt.Sprintf("%s/py%s", in.OS, in.Python)
}

// Vars returns the substitution variables an instance contributes to step
// command templates.
func (in Instance) Vars() map[string]string {
	vars := map[string]string{
		"os":               in.OS,
		"python":           in.Python,
		"environment_file": in.EnvironmentFile,
	}
	if in.ProvisionerVariant != "" {
		vars["provisioner_variant"] = in.ProvisionerVariant
	}
	if in.ProvisionerVersion != "" {
		vars["provisioner_version"] = in.ProvisionerVersion
	}
	return vars
}

// Expand materializes the cross product of the matrix axes, merging each os's
// override values into every instance for that os. Order is deterministic:
// os-major, values in declared order.
func Expand(m config.Matrix) []Instance {
	instances := make([]Instance, 0, len(m.OS)*len(m.Python))
	for _, osName := range m.OS {
		ov := m.OverrideFor(osName)
		for _, py := range m.Python {
			instances = append(instances, Instance{
				OS:                 osName,
				Python:             py,
				EnvironmentFile:    ov.EnvironmentFile,
				ProvisionerVariant: ov.ProvisionerVariant,
				ProvisionerVersion: ov.ProvisionerVersion,
			})
		}
	}
	return instances
}
