// Package modemlink is the modem command channel: either a TCP socket or
// an RS-232 serial port, config-selected, each
// producing CR/LF-terminated modem lines inbound and accepting
// terminator-appropriate AT command text outbound. The serial backend
// is a raw termios port opened directly via golang.org/x/sys/unix,
// following the ioctl sequencing of Daedaluz-goserial's port_linux.go
// but trimmed to the handful of calls a fixed-baud 8N1 link needs.
package modemlink

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
)

// Link is a bidirectional modem line connection: raw bytes out, scanned
// lines in. Both backends implement it.
type Link interface {
	WriteLine(text string) error
	ReadLine() (string, error)
	Close() error
}

// Run pumps AtTx -> link and link -> ModemRx until ctx is cancelled or the
// link fails. On failure it returns the error rather than reconnecting
// itself; callers log it and call Run again to reconnect.
func Run(ctx context.Context, link Link, atTx *queue.Bounded[string], modemRx *queue.Bounded[string]) error {
	done := make(chan error, 1)
	go func() {
		for {
			line, err := link.ReadLine()
			if err != nil {
				done <- err
				return
			}
			if err := modemRx.Push(ctx, line); err != nil {
				done <- nil
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			link.Close()
			<-done
			return ctx.Err()
		case err := <-done:
			link.Close()
			return err
		case text, ok := <-atTx.Chan():
			atTx.Observe()
			if !ok {
				link.Close()
				<-done
				return nil
			}
			if err := link.WriteLine(text); err != nil {
				link.Close()
				<-done
				return err
			}
		}
	}
}

// --- TCP backend ---

// TCPLink is the modem command channel over TCP, the alternative to the
// RS-232 serial backend below.
type TCPLink struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// DialTCP connects to the modem's AT command TCP port.
func DialTCP(addr protocol.SocketAddress) (*TCPLink, error) {
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("dial modem at %s: %w", addr, err)
	}
	return &TCPLink{conn: conn, scanner: bufio.NewScanner(conn)}, nil
}

func (l *TCPLink) WriteLine(text string) error {
	_, err := l.conn.Write([]byte(text))
	return err
}

func (l *TCPLink) ReadLine() (string, error) {
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("modemlink: connection closed")
	}
	return l.scanner.Text(), nil
}

func (l *TCPLink) Close() error {
	return l.conn.Close()
}

// --- RS-232 backend ---

// SerialLink is the modem command channel over a raw RS-232 port.
type SerialLink struct {
	f       *os.File
	scanner *bufio.Scanner
}

// OpenSerial opens comPort at the given baud rate in raw 8N1 mode.
func OpenSerial(comPort string, baud int) (*SerialLink, error) {
	f, err := os.OpenFile(comPort, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", comPort, err)
	}

	speed, err := baudConstant(baud)
	if err != nil {
		f.Close()
		return nil, err
	}

	t, err := unix.IoctlGetTermios(int(f.Fd()), ioctlGetAttr)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("get termios on %s: %w", comPort, err)
	}

	makeRaw8N1(t, speed)

	if err := unix.IoctlSetTermios(int(f.Fd()), ioctlSetAttr, t); err != nil {
		f.Close()
		return nil, fmt.Errorf("set termios on %s: %w", comPort, err)
	}

	log.Printf("modemlink: opened %s at %d baud", comPort, baud)
	return &SerialLink{f: f, scanner: bufio.NewScanner(f)}, nil
}

func (l *SerialLink) WriteLine(text string) error {
	_, err := l.f.Write([]byte(text))
	return err
}

func (l *SerialLink) ReadLine() (string, error) {
	if !l.scanner.Scan() {
		if err := l.scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("modemlink: serial port closed")
	}
	return l.scanner.Text(), nil
}

func (l *SerialLink) Close() error {
	return l.f.Close()
}
