//go:build windows

package mcp

import (
	"os"
)

// openPolicyFile opens the policy file on Windows. Windows has no O_NOFOLLOW;
// symlink creation there requires special privileges, so the permission check
// remains the primary control.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return f, nil
}

// checkFileOwnership on Windows is a no-op. Ownership there is ACL-based and
// handled differently.
func checkFileOwnership(info os.FileInfo) error {
	return nil
}
