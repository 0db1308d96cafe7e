//go:build !windows

package privilege

import (
	"fmt"

	"btmigrate/internal/util"
)

func check(name string) error {
	if util.IsRoot() {
		return nil
	}
	return &PrivilegeError{Remedy: fmt.Sprintf("run as root, e.g. 'sudo %s'", name)}
}
