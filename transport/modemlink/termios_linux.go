package modemlink

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ioctlGetAttr/ioctlSetAttr select unix.TCGETS/TCSETS, the same requests
// Daedaluz-goserial issues through its ioctl wrapper.
const (
	ioctlGetAttr = unix.TCGETS
	ioctlSetAttr = unix.TCSETS
)

// makeRaw8N1 configures attrs for raw, 8 data bits, no parity, 1 stop bit,
// at the given baud rate — the termios recipe every AT-command serial
// modem link needs, stripped from Daedaluz-goserial's general-purpose
// Termios.MakeRaw/SetSpeed down to the one mode this link ever uses.
func makeRaw8N1(attrs *unix.Termios, speed uint32) {
	attrs.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	attrs.Oflag &^= unix.OPOST
	attrs.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	attrs.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	attrs.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD | speed
	attrs.Cc[unix.VMIN] = 1
	attrs.Cc[unix.VTIME] = 0
}

func baudConstant(baud int) (uint32, error) {
	switch baud {
	case 1200:
		return unix.B1200, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	default:
		return 0, fmt.Errorf("modemlink: unsupported baud rate %d", baud)
	}
}
