//go:build windows

package storage

// checkDiskSpace is a no-op on Windows; metadata writes are tiny and the
// Statfs equivalent is not worth the extra syscall plumbing here.
func checkDiskSpace(path string) error {
	return nil
}
