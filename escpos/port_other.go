//go:build !linux

package escpos

import "os"

// configurePort leaves the device settings alone; set the baud rate with the
// operating system's tools on these platforms.
func configurePort(f *os.File, baud int) error {
	return nil
}
