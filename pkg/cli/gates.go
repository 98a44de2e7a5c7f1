package cli

import "os"

// Environment variables that must both be set before a retention run may
// delete anything.
const (
	EnvAllowDelete = "RETENTION_ALLOW_DELETE"
	EnvConfirm     = "RETENTION_CONFIRM"

	allowDeleteValue = "true"
	confirmValue     = "DELETE"
)

// CheckExecuteGates verifies the deletion gates in the process
// environment.
func CheckExecuteGates() error {
	return CheckExecuteGatesWith(os.Getenv)
}

// CheckExecuteGatesWith verifies the deletion gates using getenv. Values
// must match exactly: "TRUE" or "delete" do not open the gate.
func CheckExecuteGatesWith(getenv func(string) string) error {
	if getenv(EnvAllowDelete) != allowDeleteValue {
		return NewConfigError(EnvAllowDelete, "must be \"true\" to execute deletions")
	}
	if getenv(EnvConfirm) != confirmValue {
		return NewConfigError(EnvConfirm, "must be \"DELETE\" to execute deletions")
	}
	return nil
}
