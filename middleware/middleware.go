// Package middleware wires the four core components and their transport
// collaborators together and owns the process's start/stop sequencing,
// split out from the command entrypoint so it is unit-testable without a
// real socket.
package middleware

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/oceanic-systems/s2c-middleware/config"
	"github.com/oceanic-systems/s2c-middleware/dispatcher"
	"github.com/oceanic-systems/s2c-middleware/filehandler"
	"github.com/oceanic-systems/s2c-middleware/interruptdispatcher"
	"github.com/oceanic-systems/s2c-middleware/messagehandler"
	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
	"github.com/oceanic-systems/s2c-middleware/transport/cmdserver"
	"github.com/oceanic-systems/s2c-middleware/transport/filelink"
	"github.com/oceanic-systems/s2c-middleware/transport/interruptsrv"
	"github.com/oceanic-systems/s2c-middleware/transport/modemlink"
)

// ForceQuitTimeout bounds how long graceful shutdown is given before the
// process is torn down unconditionally — the Go analog of middleware.py's
// T_QUIT-second Timer armed the moment a shutdown begins.
const ForceQuitTimeout = 60 * time.Second

// Middleware owns every queue, every component, and the transport
// goroutines that connect them to the outside world.
type Middleware struct {
	cfg *config.Config

	dispatcher          *dispatcher.Dispatcher
	messageHandler      *messagehandler.Handler
	interruptDispatcher *interruptdispatcher.Dispatcher
	fileHandler         *filehandler.Handler

	cmdSrv  *cmdserver.Server
	intrSrv *interruptsrv.Server

	modemTx *queue.Bounded[string]
	modemRx *queue.Bounded[string]

	killOnce sync.Once
	kill     chan struct{}
}

// New builds every queue and component from cfg but does not yet bind any
// socket or start any goroutine; call Run for that.
func New(cfg *config.Config) *Middleware {
	commandIn := queue.NewDefault[protocol.ClientCommand]("command-in")
	clientTx := queue.NewDefault[string]("client-tx")
	atTx := queue.NewDefault[string]("at-tx")
	modemTx := queue.NewDefault[string]("modem-tx")
	modemRx := queue.NewDefault[string]("modem-rx")
	atReply := queue.NewDefault[protocol.ModemMessage]("at-reply")
	interrupt := queue.NewDefault[protocol.ModemMessage]("interrupt")
	fileRxModem := queue.NewDefault[protocol.ModemMessage]("file-rx-modem")
	fileTxModem := queue.NewDefault[string]("file-tx-modem")
	fileCmdOut := queue.NewDefault[protocol.ClientCommand]("file-cmd-out")
	fileCmdIn := queue.NewDefault[protocol.ClientCommandResponse]("file-cmd-in")
	instantMessages := queue.NewDefault[string]("instant-messages")
	fileEvents := queue.NewDefault[string]("file-events")

	m := &Middleware{
		cfg:     cfg,
		modemTx: modemTx,
		modemRx: modemRx,
		kill:    make(chan struct{}),
	}

	m.messageHandler = messagehandler.New(atTx, modemTx, modemRx, atReply, interrupt, fileRxModem, commandIn)

	m.dispatcher = &dispatcher.Dispatcher{
		Config:            &cfg.Modem,
		MiddlewareVersion: Version,
		FilePath:          cfg.Middleware.FilePath,
		CommandIn:         commandIn,
		ClientTx:          clientTx,
		AtTx:              atTx,
		AtReply:           atReply,
		FileCmdOut:        fileCmdOut,
		FileCmdIn:         fileCmdIn,
		RequestShutdown:   m.requestShutdown,
	}
	if cfg.Middleware.FileTransfer {
		m.dispatcher.ModemOnline = 1
	}

	m.interruptDispatcher = &interruptdispatcher.Dispatcher{
		Interrupt: interrupt,
		ClientTx:  instantMessages,
	}

	m.fileHandler = filehandler.New(
		cfg.Middleware.FilePath, cfg.Middleware.BlockSize,
		fileCmdOut, fileCmdIn, fileRxModem, fileTxModem, fileEvents,
	)

	m.cmdSrv = cmdserver.New(commandAddr(cfg), cfg.Modem.ConnectionMode, commandIn, clientTx)
	m.intrSrv = interruptsrv.New(interruptAddr(cfg), instantMessages, fileEvents)

	return m
}

// Version is stamped onto the MODEM INFO reply's MIDDLEWARE line;
// overridden by cmd/middleware at build time via -ldflags, falling back
// to this placeholder in tests.
var Version = "dev"

func (m *Middleware) requestShutdown() {
	m.killOnce.Do(func() { close(m.kill) })
}

func commandAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Middleware.ServerIP, cfg.Middleware.CommandPort)
}

func interruptAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Middleware.ServerIP, cfg.Middleware.InterruptPort)
}

// Run starts every transport listener and component goroutine, issues
// the boot-time LOADCONFIG, and blocks until ctx is cancelled or a client
// KILL command fires the shutdown sequence. It always returns within
// ForceQuitTimeout of shutdown starting.
func (m *Middleware) Run(ctx context.Context) error {
	if m.cfg.Modem.ConnectionMode != protocol.ConnectionRS232 {
		if _, err := protocol.ResolveSocketAddress(m.cfg.Modem.InetAddr, m.cfg.Modem.InetPort); err != nil {
			return err
		}
	}
	if err := m.cmdSrv.Listen(); err != nil {
		return err
	}
	if err := m.intrSrv.Listen(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(runCtx)
		}()
	}

	start(m.messageHandler.Run)
	start(m.dispatcher.Run)
	start(m.interruptDispatcher.Run)
	start(m.fileHandler.Run)
	start(func(ctx context.Context) { m.cmdSrv.Serve(ctx) })
	start(func(ctx context.Context) { m.intrSrv.Serve(ctx) })
	start(m.runModemLink)

	fileLinkAddr := protocol.SocketAddress{IPAddress: m.cfg.Modem.InetAddr, Port: m.cfg.Modem.FileInetPort}
	start(func(ctx context.Context) {
		filelink.Run(ctx, fileLinkAddr, &m.dispatcher.ModemOnline, m.fileHandlerTx(), m.fileHandlerRx())
	})

	if err := m.dispatcher.CommandIn.Push(runCtx, protocol.NewClientCommand("LOADCONFIG")); err != nil {
		log.Printf("middleware: boot-time LOADCONFIG not delivered: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-m.kill:
	}

	cancel()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(ForceQuitTimeout):
		log.Printf("middleware: forced quit after %s, some goroutines did not exit", ForceQuitTimeout)
	}
	return nil
}

func (m *Middleware) fileHandlerTx() *queue.Bounded[string] {
	return m.fileHandler.ModemFileTx
}

func (m *Middleware) fileHandlerRx() *queue.Bounded[protocol.ModemMessage] {
	return m.fileHandler.ModemFileRx
}

func (m *Middleware) runModemLink(ctx context.Context) {
	for ctx.Err() == nil {
		link, err := m.dialModem()
		if err != nil {
			log.Printf("middleware: modem link unavailable: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}
		if err := modemlink.Run(ctx, link, m.modemTx, m.modemRx); err != nil && ctx.Err() == nil {
			log.Printf("middleware: modem link dropped: %v, reconnecting", err)
		}
	}
}

func (m *Middleware) dialModem() (modemlink.Link, error) {
	if m.cfg.Modem.ConnectionMode == protocol.ConnectionRS232 {
		return modemlink.OpenSerial(m.cfg.Modem.ComPort, m.cfg.Modem.Baudrate)
	}
	addr, err := protocol.ResolveSocketAddress(m.cfg.Modem.InetAddr, m.cfg.Modem.InetPort)
	if err != nil {
		return nil, err
	}
	return modemlink.DialTCP(addr)
}
