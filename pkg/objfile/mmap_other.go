//go:build !unix

package objfile

import "os"

func mapFile(fh *os.File) ([]byte, func() error, error) {
	return readFile(fh)
}
