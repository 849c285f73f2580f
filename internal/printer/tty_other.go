//go:build !linux

package printer

import "os"

// configureTTY is a no-op off Linux; the device keeps its line settings.
func configureTTY(f *os.File, baud int) (bool, error) {
	return false, nil
}
