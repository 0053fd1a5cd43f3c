package modemlink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oceanic-systems/s2c-middleware/queue"
)

// fakeLink is an in-memory Link for exercising Run without a real socket
// or serial port.
type fakeLink struct {
	mu     sync.Mutex
	lines  chan string
	writes []string
	closed bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{lines: make(chan string, 16)}
}

func (f *fakeLink) WriteLine(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("modemlink: fake link closed")
	}
	f.writes = append(f.writes, text)
	return nil
}

func (f *fakeLink) ReadLine() (string, error) {
	line, ok := <-f.lines
	if !ok {
		return "", errors.New("modemlink: fake link closed")
	}
	return line, nil
}

func (f *fakeLink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.lines)
	}
	return nil
}

func TestRunPumpsAtTxToLink(t *testing.T) {
	link := newFakeLink()
	atTx := queue.NewDefault[string]("test-at-tx")
	modemRx := queue.NewDefault[string]("test-modem-rx")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, link, atTx, modemRx) }()

	pushCtx, pushCancel := context.WithTimeout(context.Background(), time.Second)
	defer pushCancel()
	if err := atTx.Push(pushCtx, "AT?T"); err != nil {
		t.Fatalf("Push: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		link.mu.Lock()
		n := len(link.writes)
		link.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for write")
		case <-time.After(10 * time.Millisecond):
		}
	}

	link.mu.Lock()
	got := link.writes[0]
	link.mu.Unlock()
	if got != "AT?T" {
		t.Fatalf("got write %q, want AT?T", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunPumpsLinkToModemRx(t *testing.T) {
	link := newFakeLink()
	atTx := queue.NewDefault[string]("test-at-tx-2")
	modemRx := queue.NewDefault[string]("test-modem-rx-2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Run(ctx, link, atTx, modemRx)

	link.lines <- "RECV,..."

	popCtx, popCancel := context.WithTimeout(context.Background(), time.Second)
	defer popCancel()
	line, ok := modemRx.Pop(popCtx)
	if !ok {
		t.Fatal("timed out waiting for modemRx line")
	}
	if line != "RECV,..." {
		t.Fatalf("got %q, want RECV,...", line)
	}
}

func TestRunReturnsErrorWhenLinkDrops(t *testing.T) {
	link := newFakeLink()
	atTx := queue.NewDefault[string]("test-at-tx-3")
	modemRx := queue.NewDefault[string]("test-modem-rx-3")

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, link, atTx, modemRx) }()

	link.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error when the link drops")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return when the link closed")
	}
}

func TestBaudConstantRejectsUnsupportedRate(t *testing.T) {
	if _, err := baudConstant(1234); err == nil {
		t.Fatal("expected an error for an unsupported baud rate")
	}
}

func TestBaudConstantAcceptsKnownRate(t *testing.T) {
	if _, err := baudConstant(9600); err != nil {
		t.Fatalf("baudConstant(9600): %v", err)
	}
}
