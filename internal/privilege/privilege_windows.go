//go:build windows

package privilege

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// The BTHPORT keys are only readable by LocalSystem; an elevated
// administrator token is the minimum and psexec -s gives the rest.
func check(name string) error {
	token := windows.GetCurrentProcessToken()
	if token.IsElevated() {
		return nil
	}
	return &PrivilegeError{Remedy: fmt.Sprintf("run %s as administrator; reading pairing keys needs the SYSTEM account, e.g. 'psexec -s %s'", name, name)}
}
