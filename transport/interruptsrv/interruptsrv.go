// Package interruptsrv is a server-push-only TCP line server carrying
// decoded instant-message notifications (from the Interrupt Dispatcher)
// and file-transfer
// lifecycle notifications (from the File Handler), merged into one
// outbound stream. Structure follows transport/cmdserver, minus the
// inbound half — this port never reads from its client.
package interruptsrv

import (
	"context"
	"log"
	"net"
	"sync"

	"github.com/oceanic-systems/s2c-middleware/queue"
)

// Server serves the single-client interrupt port.
type Server struct {
	Addr string

	InstantMessages *queue.Bounded[string]
	FileEvents      *queue.Bounded[string]

	listener  net.Listener
	slot      chan struct{}
	servingWG sync.WaitGroup
}

// New builds a Server that merges im and file-event notifications onto
// whichever client is currently connected.
func New(addr string, im, fileEvents *queue.Bounded[string]) *Server {
	slot := make(chan struct{}, 1)
	slot <- struct{}{}
	return &Server{
		Addr:            addr,
		InstantMessages: im,
		FileEvents:      fileEvents,
		slot:            slot,
	}
}

// Listen binds the TCP socket. Call before Serve.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	s.listener = l
	return nil
}

// Serve accepts connections until ctx is cancelled, one at a time.
func (s *Server) Serve(ctx context.Context) error {
	s.servingWG.Add(1)
	go func() {
		<-ctx.Done()
		s.listener.Close()
		s.servingWG.Done()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.servingWG.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-s.slot:
			s.servingWG.Add(1)
			go func() {
				defer s.servingWG.Done()
				defer func() { s.slot <- struct{}{} }()
				s.handleConn(ctx, conn)
			}()
		default:
			log.Printf("interruptsrv: rejecting connection from %s, one client already active", conn.RemoteAddr())
			conn.Close()
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Printf("interruptsrv: client %s connected", conn.RemoteAddr())
	defer log.Printf("interruptsrv: client %s disconnected", conn.RemoteAddr())

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		var line string
		var ok bool
		select {
		case <-connCtx.Done():
			return
		case line, ok = <-s.InstantMessages.Chan():
			s.InstantMessages.Observe()
		case line, ok = <-s.FileEvents.Chan():
			s.FileEvents.Observe()
		}
		if !ok {
			return
		}
		if _, err := conn.Write([]byte(line)); err != nil {
			log.Printf("interruptsrv: write to %s failed: %v", conn.RemoteAddr(), err)
			cancel()
			return
		}
	}
}
