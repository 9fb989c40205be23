//go:build !windows

package mcp

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// openPolicyFile opens the policy file read-only. O_NOFOLLOW makes a
// symlinked policy fail with ELOOP, reported as ErrPolicySymlink.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrPolicyNotFound
	case errors.Is(err, syscall.ELOOP) || errors.Is(err, fs.ErrPermission):
		return nil, ErrPolicySymlink
	default:
		return nil, err
	}
}

// checkFileOwnership rejects a policy file owned by another user. A stat
// that carries no ownership information passes.
func checkFileOwnership(info os.FileInfo) error {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if stat.Uid != uint32(os.Getuid()) {
		return ErrPolicyNotOwnedByUser
	}
	return nil
}
