// Package platform opens payload files without following symbolic links.
package platform

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

var (
	// ErrSymlink is returned when attempting to open a symbolic link.
	ErrSymlink = errors.New("symbolic links not supported")

	// ErrFileTooLarge is returned when a file exceeds the caller's size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// OpenFileNoFollow opens a file under root without following symlinks.
// Returns ErrSymlink if the path is a symbolic link, including one swapped
// in between the check and the open.
func OpenFileNoFollow(root *os.Root, name string) (*os.File, error) {
	before, err := root.Lstat(name)
	if err != nil {
		return nil, err
	}
	if before.Mode()&fs.ModeSymlink != 0 {
		return nil, ErrSymlink
	}

	f, err := root.OpenFile(name, os.O_RDONLY|noFollowFlag, 0)
	if err != nil {
		if isSymlinkLoop(err) {
			return nil, ErrSymlink
		}
		return nil, err
	}

	after, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !os.SameFile(before, after) {
		f.Close()
		return nil, fmt.Errorf("%w: %s changed while opening", ErrSymlink, name)
	}
	return f, nil
}

// ReadFileNoFollow reads the regular file name under root.
// Symbolic links are rejected with ErrSymlink and files larger than
// maxSize with ErrFileTooLarge.
func ReadFileNoFollow(root *os.Root, name string, maxSize int64) ([]byte, error) {
	f, err := OpenFileNoFollow(root, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", name)
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, name, info.Size(), maxSize)
	}

	// The file may grow between Stat and Read; never read past the limit.
	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %s exceeds limit %d", ErrFileTooLarge, name, maxSize)
	}
	return data, nil
}
