//go:build !unix

package index

import (
	"fmt"
	"os"
)

// mapFile reads path into memory on platforms without mmap support.
func mapFile(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read index: %w", err)
	}
	return data, func() error { return nil }, nil
}
