package middleware

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/oceanic-systems/s2c-middleware/config"
	"github.com/oceanic-systems/s2c-middleware/protocol"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("freePort: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T, modemPort int) *config.Config {
	t.Helper()
	return &config.Config{
		Middleware: config.MiddlewareConfig{
			ServerIP:      "127.0.0.1",
			CommandPort:   freePort(t),
			InterruptPort: freePort(t),
			FilePath:      t.TempDir(),
			BlockSize:     1024,
		},
		Modem: config.ModemConfig{
			ConnectionMode: protocol.ConnectionTCP,
			InetAddr:       "127.0.0.1",
			InetPort:       modemPort,
			FileInetPort:   freePort(t),
		},
	}
}

func TestNewBuildsEveryComponent(t *testing.T) {
	cfg := testConfig(t, freePort(t))
	m := New(cfg)

	if m.dispatcher == nil || m.messageHandler == nil || m.interruptDispatcher == nil || m.fileHandler == nil {
		t.Fatal("New left a core component nil")
	}
	if m.cmdSrv == nil || m.intrSrv == nil {
		t.Fatal("New left a transport server nil")
	}
}

// TestRunServesKillCommandAndShutsDown drives the command port end to end:
// connect, send KILL, read the reply, and confirm Run returns well before
// ForceQuitTimeout once the Dispatcher requests shutdown. The boot-time
// LOADCONFIG round-trips through the modem first, so the fake modem below
// echoes "OK" to every line it receives rather than staying silent —
// otherwise the Dispatcher's single command loop would block forever on
// LOADCONFIG's first AT reply before ever reaching KILL.
func TestRunServesKillCommandAndShutsDown(t *testing.T) {
	modemLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer modemLn.Close()
	go func() {
		conn, err := modemLn.Accept()
		if err != nil {
			return
		}
		go echoModem(conn)
	}()

	cfg := testConfig(t, modemLn.Addr().(*net.TCPAddr).Port)
	m := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	cmdAddr := fmt.Sprintf("%s:%d", cfg.Middleware.ServerIP, cfg.Middleware.CommandPort)
	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", cmdAddr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Dial command port: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("KILL\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The boot-time LOADCONFIG may still be replying ("CONFIG=OK\n\r") ahead
	// of KILL's own "OK\n\r" on this same client-tx stream; skip past it.
	// Response lines end in "\n\r", so each is read up to its final '\r'.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	var line string
	for {
		line, err = reader.ReadString('\r')
		if err != nil {
			t.Fatalf("ReadString: %v", err)
		}
		if line == "OK\n\r" {
			break
		}
	}

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after KILL")
	}
}

// echoModem stands in for a modem that accepts every AT command: it
// answers each line it receives with a plain "OK", which satisfies
// IsError()'s prefix check without modeling any real AT semantics.
func echoModem(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if _, err := conn.Write([]byte("OK\n")); err != nil {
			return
		}
	}
}
