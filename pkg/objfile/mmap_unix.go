//go:build unix

package objfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps the whole file read-only. The returned function unmaps it.
func mapFile(fh *os.File) ([]byte, func() error, error) {
	fi, err := fh.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := fi.Size()
	if size == 0 || size != int64(int(size)) {
		return readFile(fh)
	}
	data, err := unix.Mmap(int(fh.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		// not every file can be mapped (pipes, some file systems)
		return readFile(fh)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
