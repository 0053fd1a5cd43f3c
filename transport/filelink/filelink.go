// Package filelink is a second TCP port on the modem, used exclusively
// for File Handler
// frames and only while FILETRANSFER is enabled. Structurally this is
// the same pump as transport/modemlink's TCP backend, but gated by the
// Dispatcher's ModemOnline flag rather than held open for the process
// lifetime.
package filelink

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
)

// Run dials addr whenever online reports non-zero and is not yet
// connected, pumping FileTx -> socket and socket -> FileRx, until ctx is
// cancelled. It reconnects automatically if the link drops while online
// is still set, and tears the connection down (without redialing) the
// moment online goes back to zero.
func Run(ctx context.Context, addr protocol.SocketAddress, online *int32, fileTx *queue.Bounded[string], fileRx *queue.Bounded[protocol.ModemMessage]) {
	const pollInterval = 200 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if atomic.LoadInt32(online) == 0 {
				continue
			}
			conn, err := net.Dial("tcp", addr.String())
			if err != nil {
				continue
			}
			runConnection(ctx, conn, online, fileTx, fileRx)
		}
	}
}

func runConnection(ctx context.Context, conn net.Conn, online *int32, fileTx *queue.Bounded[string], fileRx *queue.Bounded[protocol.ModemMessage]) {
	defer conn.Close()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			if err := fileRx.Push(connCtx, protocol.NewModemMessage(scanner.Text())); err != nil {
				return
			}
		}
	}()

	watchdog := time.NewTicker(200 * time.Millisecond)
	defer watchdog.Stop()

	for {
		select {
		case <-connCtx.Done():
			<-done
			return
		case <-done:
			return
		case <-watchdog.C:
			if atomic.LoadInt32(online) == 0 {
				return
			}
		case text, ok := <-fileTx.Chan():
			fileTx.Observe()
			if !ok {
				return
			}
			if _, err := fmt.Fprint(conn, text+"\n"); err != nil {
				return
			}
		}
	}
}
