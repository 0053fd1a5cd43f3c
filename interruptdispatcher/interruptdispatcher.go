// Package interruptdispatcher is the sole consumer of the interrupt
// queue, turning inbound instant messages into client-facing event
// lines.
package interruptdispatcher

import (
	"context"
	"log"

	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
)

// Dispatcher decodes RECVIM payloads from Interrupt and writes the
// resulting client lines to ClientTx.
type Dispatcher struct {
	Interrupt *queue.Bounded[protocol.ModemMessage]
	ClientTx  *queue.Bounded[string]
}

// New builds a Dispatcher over the given queues.
func New(interrupt *queue.Bounded[protocol.ModemMessage], clientTx *queue.Bounded[string]) *Dispatcher {
	return &Dispatcher{Interrupt: interrupt, ClientTx: clientTx}
}

// Run decodes instant messages until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		msg, ok := d.Interrupt.Pop(ctx)
		if !ok {
			return
		}
		d.process(ctx, msg)
	}
}

// process dispatches on the instant-message payload prefix (measurement
// get/set, raw passthrough, file request, directory listing). Source
// address is field 2, payload is field 9, exactly as the Message Handler
// leaves them.
func (d *Dispatcher) process(ctx context.Context, msg protocol.ModemMessage) {
	sourceAddr := msg.Field(2)
	payload := msg.Field(9)

	var (
		decoded string
		err     error
	)
	switch {
	case protocol.IsMeasureIM(payload):
		decoded, err = protocol.DecodeMeasureIM(payload)
	case protocol.IsFileRequestIM(payload):
		decoded, err = protocol.DecodeGetFileIM(payload)
	case protocol.IsRawIM(payload):
		decoded = protocol.DecodeRawIM(payload)
	case protocol.IsListDirIM(payload):
		decoded = protocol.DecodeListDirIM(payload)
	default:
		return
	}
	if err != nil {
		log.Printf("interruptdispatcher: decode %q: %v", payload, err)
		return
	}

	line := decoded + " ORIGEN=" + sourceAddr + "\r\n"
	if pushErr := d.ClientTx.Push(ctx, line); pushErr != nil {
		log.Printf("interruptdispatcher: client-tx push: %v", pushErr)
	}
}
