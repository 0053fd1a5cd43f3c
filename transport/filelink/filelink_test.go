package filelink

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
)

func TestRunDialsOnlyWhileOnline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	addr, err := protocol.ResolveSocketAddress("127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	if err != nil {
		t.Fatalf("ResolveSocketAddress: %v", err)
	}

	var online int32
	fileTx := queue.NewDefault[string]("test-file-tx")
	fileRx := queue.NewDefault[protocol.ModemMessage]("test-file-rx")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, addr, &online, fileTx, fileRx)

	select {
	case <-accepted:
		t.Fatal("filelink dialed while offline")
	case <-time.After(300 * time.Millisecond):
	}

	atomic.StoreInt32(&online, 1)

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("filelink did not dial once online")
	}
	defer conn.Close()

	pushCtx, pushCancel := context.WithTimeout(context.Background(), time.Second)
	defer pushCancel()
	if err := fileTx.Push(pushCtx, "header,abcd"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if line != "header,abcd\n" {
		t.Fatalf("got %q, want header,abcd\\n", line)
	}

	if _, err := conn.Write([]byte("RECV,0,0,0,0,0,0,0,0,ack,0\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	popCtx, popCancel := context.WithTimeout(context.Background(), time.Second)
	defer popCancel()
	msg, ok := fileRx.Pop(popCtx)
	if !ok {
		t.Fatal("timed out waiting for fileRx message")
	}
	if msg.Message() != "RECV,0,0,0,0,0,0,0,0,ack,0" {
		t.Fatalf("got %q", msg.Message())
	}
}
