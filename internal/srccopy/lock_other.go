//go:build !unix

package srccopy

import "os"

// lockFile only creates path, there is no advisory locking on this platform.
func lockFile(path string) (unlock func(), err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return func() { f.Close() }, nil
}
