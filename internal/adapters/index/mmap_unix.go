//go:build unix

package index

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps path read-only. The returned func unmaps it.
func mapFile(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat index: %w", err)
	}
	size := st.Size()
	if size < HeaderSize {
		return nil, nil, fmt.Errorf("%w: %s is %d bytes", ErrCorrupt, path, size)
	}
	if int64(int(size)) != size {
		return nil, nil, fmt.Errorf("%w: %s is too large to map", ErrCorrupt, path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap index: %w", err)
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
