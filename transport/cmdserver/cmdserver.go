// Package cmdserver is a line-oriented TCP server that accepts exactly
// one active connection, relaying inbound command lines to the
// Dispatcher and outbound response lines back to the client. It follows
// eventsocket.Server's Listen/Serve split and context-driven shutdown.
package cmdserver

import (
	"bufio"
	"context"
	"log"
	"net"
	"sync"

	"github.com/m-lab/uuid"

	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
)

// Server serves the single-client command port. Unlike eventsocket.Server
// (which fans a stream out to every connected client), only one active
// connection is allowed here: a second connection while one is already
// active is refused outright.
type Server struct {
	Addr string
	Mode protocol.ConnectionMode

	CommandIn *queue.Bounded[protocol.ClientCommand]
	ClientTx  *queue.Bounded[string]

	listener net.Listener
	slot     chan struct{}
	servingWG sync.WaitGroup
}

// New builds a Server bound to addr, ready for Listen.
func New(addr string, mode protocol.ConnectionMode, commandIn *queue.Bounded[protocol.ClientCommand], clientTx *queue.Bounded[string]) *Server {
	slot := make(chan struct{}, 1)
	slot <- struct{}{}
	return &Server{
		Addr:      addr,
		Mode:      mode,
		CommandIn: commandIn,
		ClientTx:  clientTx,
		slot:      slot,
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

// Serve accepts connections until ctx is cancelled. Only one connection is
// served at a time; any other connection attempted while that one is
// active is closed immediately.
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
			log.Printf("cmdserver: rejecting connection from %s, one client already active", conn.RemoteAddr())
			conn.Close()
		}
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	id := connID(conn)
	log.Printf("cmdserver: client %s connected (%s)", conn.RemoteAddr(), id)
	defer log.Printf("cmdserver: client %s disconnected (%s)", conn.RemoteAddr(), id)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.readLoop(connCtx, conn)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.writeLoop(connCtx, conn)
	}()
	// A blocking conn.Read/Write does not observe ctx cancellation on its
	// own; closing the connection is what actually unblocks the loops
	// above once either side (or the outer Serve context) wants out.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()
	wg.Wait()
}

func (s *Server) readLoop(ctx context.Context, conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if err := s.CommandIn.Push(ctx, protocol.NewClientCommand(line)); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn net.Conn) {
	for {
		line, ok := s.ClientTx.Pop(ctx)
		if !ok {
			return
		}
		if _, err := conn.Write([]byte(line)); err != nil {
			log.Printf("cmdserver: write to %s failed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func connID(conn net.Conn) string {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return conn.RemoteAddr().String()
	}
	id, err := uuid.FromTCPConn(tcpConn)
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return id
}
