package os

import (
	"io"
	"os"
)

// CopyFile copies the contents of filePath into dst, returning the byte
// count copied.
func CopyFile(dst io.Writer, filePath string) (int64, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return -1, err
	}
	defer f.Close()

	return io.Copy(dst, f)
}
