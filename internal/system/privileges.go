package system

import (
	"fmt"
	"os"
)

// IsRoot checks if running as root
func IsRoot() bool {
	return os.Geteuid() == 0
}

// RequireRoot ensures the program is running as root. Partitioning, loop
// attachment, pool management and chroot all need it.
func RequireRoot() error {
	if !IsRoot() {
		return fmt.Errorf("%w: this command must be run as root (try with sudo)", ErrPrivilege)
	}
	return nil
}
