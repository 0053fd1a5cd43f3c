package interruptsrv

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/oceanic-systems/s2c-middleware/queue"
)

func newTestServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	im := queue.NewDefault[string]("test-im")
	fe := queue.NewDefault[string]("test-fe")
	s := New("127.0.0.1:0", im, fe)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx)
	return s, cancel
}

func TestInterruptServerMergesBothSources(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	conn, err := net.Dial("tcp", s.listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	pushCtx, pushCancel := context.WithTimeout(context.Background(), time.Second)
	defer pushCancel()
	if err := s.InstantMessages.Push(pushCtx, "IM,1,hello\n"); err != nil {
		t.Fatalf("Push im: %v", err)
	}
	if err := s.FileEvents.Push(pushCtx, "FILE done\n"); err != nil {
		t.Fatalf("Push file event: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := bufio.NewReader(conn)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("ReadString: %v", err)
		}
		seen[line] = true
	}
	if !seen["IM,1,hello\n"] || !seen["FILE done\n"] {
		t.Fatalf("did not observe both lines, got %v", seen)
	}
}

func TestInterruptServerRejectsSecondConnection(t *testing.T) {
	s, cancel := newTestServer(t)
	defer cancel()

	first, err := net.Dial("tcp", s.listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer first.Close()

	time.Sleep(50 * time.Millisecond)

	second, err := net.Dial("tcp", s.listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 1)
	if _, err := second.Read(buf); err == nil {
		t.Fatal("expected second connection to be closed")
	}
}
