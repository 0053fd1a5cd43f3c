// Package messagehandler is the single reader of modem output and single
// writer of modem input. It never interprets command semantics; it only
// routes lines to the queue their kind belongs on.
package messagehandler

import (
	"context"
	"log"
	"sync"

	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
)

// Handler wires together the seven queues the Message Handler sits between.
// AtTx carries outbound AT command lines from the Dispatcher; ModemTx is
// the matching queue read by the link driver. ModemRx carries every raw
// line arriving from the modem; AtReply, Interrupt, and FileRx are the
// three queues modem-rx lines are classified onto. CommandIn receives the
// self-commands synthesized for remote sleep/wakeup requests.
type Handler struct {
	AtTx      *queue.Bounded[string]
	ModemTx   *queue.Bounded[string]
	ModemRx   *queue.Bounded[string]
	AtReply   *queue.Bounded[protocol.ModemMessage]
	Interrupt *queue.Bounded[protocol.ModemMessage]
	FileRx    *queue.Bounded[protocol.ModemMessage]
	CommandIn *queue.Bounded[protocol.ClientCommand]
}

// New builds a Handler over the given queues. Callers construct the
// queues once, at middleware startup, and share them across components.
func New(
	atTx, modemTx *queue.Bounded[string],
	modemRx *queue.Bounded[string],
	atReply, interrupt, fileRx *queue.Bounded[protocol.ModemMessage],
	commandIn *queue.Bounded[protocol.ClientCommand],
) *Handler {
	return &Handler{
		AtTx:      atTx,
		ModemTx:   modemTx,
		ModemRx:   modemRx,
		AtReply:   atReply,
		Interrupt: interrupt,
		FileRx:    fileRx,
		CommandIn: commandIn,
	}
}

// Run drives both duties of the Message Handler concurrently until ctx is
// cancelled: forwarding AT-tx lines to the modem link, and classifying
// modem-rx lines onto the AT-reply, interrupt, or file-rx queues. It
// blocks until both loops have returned.
func (h *Handler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.forwardLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		h.classifyLoop(ctx)
	}()
	wg.Wait()
}

func (h *Handler) forwardLoop(ctx context.Context) {
	for {
		line, ok := h.AtTx.Pop(ctx)
		if !ok {
			return
		}
		if err := h.ModemTx.Push(ctx, line); err != nil {
			return
		}
	}
}

func (h *Handler) classifyLoop(ctx context.Context) {
	for {
		raw, ok := h.ModemRx.Pop(ctx)
		if !ok {
			return
		}
		h.classify(ctx, protocol.NewModemMessage(raw))
	}
}

// classify applies the total, deterministic routing order for a modem-rx
// line: ping echoes are dropped, instant messages and file-channel data
// go to their own queues, remote sleep/wakeup requests are turned into
// self-commands, position reports are dropped, and everything else is
// treated as an AT reply. Only
// this method reads a modem-rx line.
func (h *Handler) classify(ctx context.Context, msg protocol.ModemMessage) {
	switch {
	case msg.IsPingMsg(), msg.IsPowerPingMsg():
		log.Printf("messagehandler: dropping ping echo %q", msg.Message())

	case msg.IsReceivedIM():
		if err := h.Interrupt.Push(ctx, msg); err != nil {
			log.Printf("messagehandler: interrupt queue push: %v", err)
		}

	case msg.IsReceivedData() && msg.IsSleepRequest():
		h.injectSelfCommand(ctx, "MODEM SLEEP")

	case msg.IsReceivedData() && msg.IsWakeupRequest():
		h.injectSelfCommand(ctx, "MODEM WAKEUP")

	case msg.IsReceivedData():
		if err := h.FileRx.Push(ctx, msg); err != nil {
			log.Printf("messagehandler: file-rx queue push: %v", err)
		}

	case msg.IsPositionData():
		log.Printf("messagehandler: dropping position report %q", msg.Message())

	default:
		if err := h.AtReply.Push(ctx, msg); err != nil {
			log.Printf("messagehandler: at-reply queue push: %v", err)
		}
	}
}

// injectSelfCommand synthesizes a ClientCommand and posts it back onto the
// command-in queue. A remote slp/wup request has no client-issued command
// of its own to reply to, so this gives the Dispatcher one to notify on.
func (h *Handler) injectSelfCommand(ctx context.Context, verb string) {
	cmd := protocol.NewClientCommand(verb)
	if err := h.CommandIn.Push(ctx, cmd); err != nil {
		log.Printf("messagehandler: self-command injection %q: %v", verb, err)
	}
}
