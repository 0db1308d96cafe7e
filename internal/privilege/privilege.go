// Package privilege checks that the process may read the pairing key store.
package privilege

import (
	"os"
	"path/filepath"
)

// PrivilegeError reports missing elevation with remediation text for the user.
type PrivilegeError struct {
	Remedy string
}

func (e *PrivilegeError) Error() string {
	return "insufficient privileges: " + e.Remedy
}

// Check returns a *PrivilegeError when the process is not elevated.
func Check() error {
	return check(programName())
}

func programName() string {
	if len(os.Args) == 0 {
		return "btmigrate"
	}
	return filepath.Base(os.Args[0])
}
