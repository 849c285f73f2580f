//go:build linux

package printer

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var baudSpeeds = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

func baudToSpeed(baud int) (uint32, error) {
	speed, ok := baudSpeeds[baud]
	if !ok {
		return 0, fmt.Errorf("unsupported baud rate %d", baud)
	}
	return speed, nil
}

// configureTTY puts a serial printer into raw 8N1 output at baud. It reports
// false for nodes that are not terminals, such as /dev/usb/lp0, which are
// left as they are.
func configureTTY(f *os.File, baud int) (bool, error) {
	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get termios: %w", err)
	}
	speed, err := baudToSpeed(baud)
	if err != nil {
		return true, err
	}

	t.Oflag &^= unix.OPOST
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return true, fmt.Errorf("set termios: %w", err)
	}
	return true, nil
}
