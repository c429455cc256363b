//go:build unix

package platform

import (
	"errors"
	"syscall"
)

const noFollowFlag = syscall.O_NOFOLLOW

// isSymlinkLoop reports whether err is the ELOOP an O_NOFOLLOW open
// returns for a symlink.
func isSymlinkLoop(err error) bool {
	return errors.Is(err, syscall.ELOOP)
}
