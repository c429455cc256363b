//go:build !unix

package platform

const noFollowFlag = 0

func isSymlinkLoop(error) bool {
	return false
}
