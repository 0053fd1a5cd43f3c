// Package dispatcher consumes client commands serially, drives the AT
// command/reply exchange, and produces the client-facing reply for each
// verb.
package dispatcher

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oceanic-systems/s2c-middleware/config"
	"github.com/oceanic-systems/s2c-middleware/metrics"
	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
)

// Dispatcher owns the queues it sits between: client commands in,
// client-facing lines out, the AT-tx/AT-reply pair to the Message
// Handler, and the command/response pair to the File Handler.
type Dispatcher struct {
	Config            *config.ModemConfig
	MiddlewareVersion string
	FilePath          string

	CommandIn *queue.Bounded[protocol.ClientCommand]
	ClientTx  *queue.Bounded[string]

	AtTx    *queue.Bounded[string]
	AtReply *queue.Bounded[protocol.ModemMessage]

	FileCmdOut *queue.Bounded[protocol.ClientCommand]
	FileCmdIn  *queue.Bounded[protocol.ClientCommandResponse]

	// ModemOnline is flipped by FILETRANSFER ENABLE/DISABLE and read by
	// the file-channel transport to gate its connection.
	ModemOnline int32 // atomic bool: 0 = offline, 1 = online

	// RequestShutdown is invoked once, by KILL, to signal the
	// middleware's top-level shutdown sequence.
	RequestShutdown func()
}

// Run consumes client commands one at a time until ctx is cancelled. The
// Dispatcher never pipelines: the next command isn't read until the
// current one's handler returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		cmd, ok := d.CommandIn.Pop(ctx)
		if !ok {
			return
		}
		log.Printf("dispatcher: command received: %s", cmd.Raw())
		d.execute(ctx, cmd)
	}
}

var verbTable = map[string]func(*Dispatcher, context.Context, protocol.ClientCommand){
	"REBOOT":       (*Dispatcher).restartModem,
	"LOADCONFIG":   (*Dispatcher).loadConfig,
	"KILL":         (*Dispatcher).requestKill,
	"MODEM":        (*Dispatcher).getModemState,
	"PING":         (*Dispatcher).getPingParameter,
	"GETMEAS":      (*Dispatcher).getMeas,
	"SENDMEAS":     (*Dispatcher).sendMeas,
	"GETFILE":      (*Dispatcher).getFile,
	"SENDRAW":      (*Dispatcher).sendRaw,
	"GETDIR":       (*Dispatcher).getDir,
	"SENDDIR":      (*Dispatcher).sendDir,
	"SENDFILE":     (*Dispatcher).sendFile,
	"FILETRANSFER": (*Dispatcher).setFileTransfer,
	"SETSLEEP":     (*Dispatcher).setSleep,
	"SETWAKEUP":    (*Dispatcher).setWakeup,
}

func (d *Dispatcher) execute(ctx context.Context, cmd protocol.ClientCommand) {
	handler, ok := verbTable[cmd.Verb()]
	if !ok {
		d.cmdFormatError(ctx)
		return
	}
	handler(d, ctx, cmd)
}

// processAtCommand sends one AT command and blocks for exactly one
// correlated reply: the link only ever has one command outstanding at a
// time, so the next reply to arrive is always this command's.
func (d *Dispatcher) processAtCommand(ctx context.Context, atCommand, value string) (protocol.ModemMessage, bool) {
	start := time.Now()
	text := atCommand + value
	at := protocol.NewAtCommand(text, d.Config.ConnectionMode)
	if err := d.AtTx.Push(ctx, at.Text()); err != nil {
		return protocol.ModemMessage{}, false
	}
	reply, ok := d.AtReply.Pop(ctx)
	if ok {
		metrics.ATRoundTrip.Observe(time.Since(start).Seconds())
	}
	return reply, ok
}

// sendATAndCheck runs processAtCommand and, on a modem ERROR reply or
// cancellation, sends the client a CMD ERROR and reports failure.
func (d *Dispatcher) sendATAndCheck(ctx context.Context, atCommand, value string) (protocol.ModemMessage, bool) {
	reply, ok := d.processAtCommand(ctx, atCommand, value)
	if !ok {
		return reply, false
	}
	if reply.IsError() {
		log.Printf("dispatcher: modem rejected %s%s: %s", atCommand, value, reply.Message())
		d.sendResponseToClient(ctx, "CMD ERROR", "")
		return reply, false
	}
	return reply, true
}

func (d *Dispatcher) sendResponseToClient(ctx context.Context, typeID, value string) {
	resp := protocol.NewClientCommandResponse(typeID, value)
	text := resp.Text()
	log.Printf("dispatcher: client response: %s", strings.TrimRight(text, "\n\r"))
	if err := d.ClientTx.Push(ctx, text); err != nil {
		log.Printf("dispatcher: client-tx push: %v", err)
		return
	}
	outcome := "ok"
	upper := strings.ToUpper(typeID)
	if upper == "CMD ERROR" || strings.HasSuffix(upper, "FAILED") {
		outcome = "failed"
	}
	metrics.ClientCommandsTotal.WithLabelValues(upper, outcome).Inc()
}

func (d *Dispatcher) cmdFormatError(ctx context.Context) {
	d.sendResponseToClient(ctx, "CMD ERROR", "")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func stripPrefix(arg, prefix string) (string, bool) {
	if !strings.HasPrefix(arg, prefix) {
		return "", false
	}
	return arg[len(prefix):], true
}

// --- REBOOT ---

func (d *Dispatcher) restartModem(ctx context.Context, _ protocol.ClientCommand) {
	reply, ok := d.sendATAndCheck(ctx, "ATZ0", "")
	if !ok {
		return
	}
	d.sendResponseToClient(ctx, "REBOOT", reply.Message())
}

// --- LOADCONFIG ---

func (d *Dispatcher) loadConfig(ctx context.Context, _ protocol.ClientCommand) {
	if _, ok := d.sendATAndCheck(ctx, "AT@CTRL", ""); !ok {
		return
	}
	for _, entry := range config.PushOrder {
		if _, ok := d.sendATAndCheck(ctx, entry.Mnemonic, entry.Value(d.Config)); !ok {
			return
		}
	}
	if _, ok := d.sendATAndCheck(ctx, "AT&W", ""); !ok {
		return
	}
	d.sendResponseToClient(ctx, "CONFIG", "OK")
}

// --- KILL ---

func (d *Dispatcher) requestKill(ctx context.Context, _ protocol.ClientCommand) {
	d.sendResponseToClient(ctx, "OK", "")
	if d.RequestShutdown != nil {
		d.RequestShutdown()
	}
}

// --- MODEM TIME|BATTERY|INFO|GETPOWER|SETPOWER|SLEEP|WAKEUP ---

func (d *Dispatcher) getModemState(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) == 0 {
		d.cmdFormatError(ctx)
		return
	}
	if args[0] == "SETPOWER" {
		d.setPower(ctx, args)
		return
	}
	if len(args) != 1 {
		d.cmdFormatError(ctx)
		return
	}
	switch args[0] {
	case "TIME":
		d.getModemTime(ctx)
	case "BATTERY":
		d.getModemBattery(ctx)
	case "INFO":
		d.getModemInfo(ctx)
	case "GETPOWER":
		d.getPower(ctx)
	case "SLEEP":
		// A remote slp request was relayed here by the Message Handler
		// with no destination of its own: this is a notification, not a
		// new command to send.
		d.sendResponseToClient(ctx, "SLEEP", "NOTIFIED")
	case "WAKEUP":
		d.sendResponseToClient(ctx, "WAKEUP", "NOTIFIED")
	default:
		d.cmdFormatError(ctx)
	}
}

func (d *Dispatcher) getModemTime(ctx context.Context) {
	reply, ok := d.sendATAndCheck(ctx, "AT?UT", "")
	if !ok {
		return
	}
	timeOn, err := strconv.ParseFloat(reply.Message(), 64)
	if err != nil {
		log.Printf("dispatcher: AT?UT reply %q not a float: %v", reply.Message(), err)
		d.sendResponseToClient(ctx, "CMD ERROR", "")
		return
	}
	d.sendResponseToClient(ctx, "TIME", strconv.FormatFloat(timeOn, 'f', -1, 64))
}

func (d *Dispatcher) getModemBattery(ctx context.Context) {
	reply, ok := d.sendATAndCheck(ctx, "AT?BV", "")
	if !ok {
		return
	}
	d.sendResponseToClient(ctx, "BATTERY", reply.Message())
}

func (d *Dispatcher) getModemInfo(ctx context.Context) {
	d.sendResponseToClient(ctx, "MIDDLEWARE", d.MiddlewareVersion)

	if reply, ok := d.sendATAndCheck(ctx, "ATI0", ""); ok {
		d.sendResponseToClient(ctx, "FIRMWARE", "v"+reply.Message())
	} else {
		return
	}
	if reply, ok := d.sendATAndCheck(ctx, "ATI2", ""); ok {
		d.sendResponseToClient(ctx, "SERIAL", reply.Message())
	} else {
		return
	}
	if reply, ok := d.sendATAndCheck(ctx, "AT?AL", ""); ok {
		d.sendResponseToClient(ctx, "ADDRESS", reply.Message())
	}
}

func (d *Dispatcher) getPower(ctx context.Context) {
	reply, ok := d.sendATAndCheck(ctx, "AT?L", "")
	if !ok {
		return
	}
	stripped := strings.ReplaceAll(reply.Message(), "[*]", "")
	d.sendResponseToClient(ctx, "POWER", stripped)
}

func (d *Dispatcher) setPower(ctx context.Context, args []string) {
	if len(args) != 2 || !isNumeric(args[1]) {
		d.cmdFormatError(ctx)
		return
	}
	level, _ := strconv.Atoi(args[1])
	if level < 0 || level > 3 {
		d.cmdFormatError(ctx)
		return
	}
	if _, ok := d.sendATAndCheck(ctx, "AT!L", args[1]); !ok {
		return
	}
	d.sendResponseToClient(ctx, "OK", "")
}

// --- FILETRANSFER ENABLE|DISABLE ---

func (d *Dispatcher) setFileTransfer(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) != 1 {
		d.cmdFormatError(ctx)
		return
	}
	switch args[0] {
	case "ENABLE":
		atomic.StoreInt32(&d.ModemOnline, 1)
		d.sendResponseToClient(ctx, "OK", "")
	case "DISABLE":
		atomic.StoreInt32(&d.ModemOnline, 0)
		d.sendResponseToClient(ctx, "OK", "")
	default:
		d.cmdFormatError(ctx)
	}
}

// --- PING DELAY|RSSI|INTEGRITY|POWER addr ---

func (d *Dispatcher) getPingParameter(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) != 2 || !isNumeric(args[1]) {
		d.cmdFormatError(ctx)
		return
	}
	addr := args[1]

	if args[0] == "POWER" {
		if d.sendRawMsg(ctx, addr, "pow") {
			d.sendResponseToClient(ctx, "PING OK", "")
		} else {
			d.sendResponseToClient(ctx, "PING FAILED", "")
		}
		return
	}

	if !d.sendIM(ctx, addr, "mwp", true) {
		d.sendResponseToClient(ctx, "PING FAILED", "")
		return
	}

	switch args[0] {
	case "DELAY":
		if reply, ok := d.sendATAndCheck(ctx, "AT?T", ""); ok {
			d.sendResponseToClient(ctx, "DELAY", reply.Message())
		}
	case "RSSI":
		if reply, ok := d.sendATAndCheck(ctx, "AT?E", ""); ok {
			d.sendResponseToClient(ctx, "RSSI", reply.Message())
		}
	case "INTEGRITY":
		if reply, ok := d.sendATAndCheck(ctx, "AT?I", ""); ok {
			d.sendResponseToClient(ctx, "INTEGRITY", reply.Message())
		}
	default:
		d.cmdFormatError(ctx)
	}
}

// --- GETMEAS / SENDMEAS / GETFILE / SENDRAW ---

func (d *Dispatcher) getMeas(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) != 2 {
		d.cmdFormatError(ctx)
		return
	}
	dest, ok := stripPrefix(args[1], "DESTINO=")
	if !ok {
		d.cmdFormatError(ctx)
		return
	}
	payload, err := protocol.EncodeGetMeas(protocol.MeasureKind(args[0]))
	if err != nil {
		d.cmdFormatError(ctx)
		return
	}
	if !d.sendIM(ctx, dest, payload, true) {
		d.sendResponseToClient(ctx, "GETMEAS FAILED", "")
		return
	}
	d.sendResponseToClient(ctx, "GETMEAS OK", "")
}

func (d *Dispatcher) sendMeas(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) != 2 {
		d.cmdFormatError(ctx)
		return
	}
	dest, ok := stripPrefix(args[1], "DESTINO=")
	if !ok {
		d.cmdFormatError(ctx)
		return
	}
	payload, err := protocol.EncodeSetMeas(args[0])
	if err != nil {
		d.cmdFormatError(ctx)
		return
	}
	if !d.sendIM(ctx, dest, payload, true) {
		d.sendResponseToClient(ctx, "SENDMEAS FAILED", "")
		return
	}
	d.sendResponseToClient(ctx, "SENDMEAS OK", "")
}

func (d *Dispatcher) getFile(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) != 2 {
		d.cmdFormatError(ctx)
		return
	}
	dest, ok := stripPrefix(args[1], "DESTINO=")
	if !ok {
		d.cmdFormatError(ctx)
		return
	}
	payload, err := protocol.EncodeGetFile(args[0])
	if err != nil {
		d.cmdFormatError(ctx)
		return
	}
	if !d.sendIM(ctx, dest, payload, true) {
		d.sendResponseToClient(ctx, "GETFILE FAILED", "")
		return
	}
	d.sendResponseToClient(ctx, "GETFILE OK", "")
}

func (d *Dispatcher) sendRaw(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) < 2 {
		d.cmdFormatError(ctx)
		return
	}
	dest, ok := stripPrefix(args[0], "DESTINO=")
	if !ok || !strings.HasPrefix(args[1], "DATA=") {
		d.cmdFormatError(ctx)
		return
	}
	payload, err := protocol.EncodeSendRaw(cmd.Raw())
	if err != nil {
		d.cmdFormatError(ctx)
		return
	}
	if !d.sendIM(ctx, dest, payload, true) {
		d.sendResponseToClient(ctx, "SENDRAW FAILED", "")
		return
	}
	d.sendResponseToClient(ctx, "SENDRAW OK", "")
}

// --- GETDIR / SENDDIR ---

func (d *Dispatcher) getDir(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) < 1 {
		d.cmdFormatError(ctx)
		return
	}
	dest, ok := stripPrefix(args[len(args)-1], "DESTINO=")
	if !ok {
		d.cmdFormatError(ctx)
		return
	}

	var payload string
	switch {
	case len(args) == 1:
		payload = "ls"
	case len(args) == 2 && args[0] == "FULL":
		payload = "lsf"
	default:
		d.cmdFormatError(ctx)
		return
	}

	if !d.sendIM(ctx, dest, payload, true) {
		d.sendResponseToClient(ctx, "GETDIR FAILED", "")
		return
	}
	d.sendResponseToClient(ctx, "GETDIR OK", "")
}

func (d *Dispatcher) sendDir(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) < 1 {
		d.cmdFormatError(ctx)
		return
	}
	dest, ok := stripPrefix(args[len(args)-1], "DESTINO=")
	if !ok {
		d.cmdFormatError(ctx)
		return
	}

	var full bool
	switch {
	case len(args) == 1:
		full = false
	case len(args) == 2 && args[0] == "FULL":
		full = true
	default:
		d.cmdFormatError(ctx)
		return
	}

	if err := writeDirListing(d.FilePath, full); err != nil {
		log.Printf("dispatcher: SENDDIR listing generation failed: %v", err)
		d.cmdFormatError(ctx)
		return
	}
	log.Printf("dispatcher: dir.txt generated in %s", d.FilePath)

	sendDirCmd := protocol.NewClientCommand("SENDFILE NOMBRE=dir.txt DESTINO=" + dest)
	if err := d.FileCmdOut.Push(ctx, sendDirCmd); err != nil {
		return
	}
	reply, ok := d.FileCmdIn.Pop(ctx)
	if !ok {
		return
	}
	relabeled := strings.Replace(reply.Text(), "SENDFILE", "SENDDIR", 1)
	if err := d.ClientTx.Push(ctx, relabeled); err != nil {
		log.Printf("dispatcher: client-tx push: %v", err)
	}
}

// --- SENDFILE ---

func (d *Dispatcher) sendFile(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) != 2 {
		d.cmdFormatError(ctx)
		return
	}
	name, ok1 := stripPrefix(args[0], "NOMBRE=")
	destArg, ok2 := stripPrefix(args[1], "DESTINO=")
	if !ok1 || !ok2 || name == "" || !isNumeric(destArg) {
		d.cmdFormatError(ctx)
		return
	}

	if err := d.FileCmdOut.Push(ctx, cmd); err != nil {
		return
	}
	reply, ok := d.FileCmdIn.Pop(ctx)
	if !ok {
		return
	}
	if err := d.ClientTx.Push(ctx, reply.Text()); err != nil {
		log.Printf("dispatcher: client-tx push: %v", err)
	}
}

// --- SETSLEEP / SETWAKEUP ---

func (d *Dispatcher) setSleep(ctx context.Context, cmd protocol.ClientCommand) {
	d.setLowPower(ctx, cmd, "slp", "SETSLEEP")
}

func (d *Dispatcher) setWakeup(ctx context.Context, cmd protocol.ClientCommand) {
	d.setLowPower(ctx, cmd, "wup", "SETWAKEUP")
}

func (d *Dispatcher) setLowPower(ctx context.Context, cmd protocol.ClientCommand, payload, label string) {
	args := cmd.Args()
	if len(args) != 1 {
		d.cmdFormatError(ctx)
		return
	}
	dest, ok := stripPrefix(args[0], "DESTINO=")
	if !ok {
		d.cmdFormatError(ctx)
		return
	}
	if !d.sendRawMsg(ctx, dest, payload) {
		log.Printf("dispatcher: %s to %s failed", label, dest)
		d.sendResponseToClient(ctx, label+" FAILED", "")
		return
	}
	d.sendResponseToClient(ctx, label+" OK", "")
}

// --- send primitives ---

// sendIM builds AT*SENDIM and, if ack is set, awaits the DELIVEREDIM
// confirmation after the modem's own echo. Returns false on any modem
// error, delivery failure, or cancellation, and always for a noack send.
func (d *Dispatcher) sendIM(ctx context.Context, dest, data string, ack bool) bool {
	ackStr := "noack"
	if ack {
		ackStr = "ack"
	}
	text := strings.Join([]string{"AT*SENDIM", strconv.Itoa(len(data)), dest, ackStr, data}, ",")
	if _, ok := d.sendATAndCheck(ctx, text, ""); !ok {
		metrics.InstantMessagesTotal.WithLabelValues("failed").Inc()
		return false
	}
	if !ack {
		metrics.InstantMessagesTotal.WithLabelValues("failed").Inc()
		return false
	}
	status, ok := d.AtReply.Pop(ctx)
	if !ok {
		metrics.InstantMessagesTotal.WithLabelValues("failed").Inc()
		return false
	}
	delivered := strings.HasPrefix(status.Message(), "DELIVEREDIM")
	if delivered {
		metrics.InstantMessagesTotal.WithLabelValues("delivered").Inc()
	} else {
		metrics.InstantMessagesTotal.WithLabelValues("failed").Inc()
	}
	return delivered
}

// sendRawMsg builds AT*SEND (no ack/noack distinction) and always awaits
// the modem's DELIVERED confirmation.
func (d *Dispatcher) sendRawMsg(ctx context.Context, dest, data string) bool {
	text := strings.Join([]string{"AT*SEND", strconv.Itoa(len(data)), dest, data}, ",")
	if _, ok := d.sendATAndCheck(ctx, text, ""); !ok {
		metrics.InstantMessagesTotal.WithLabelValues("failed").Inc()
		return false
	}
	status, ok := d.AtReply.Pop(ctx)
	if !ok {
		metrics.InstantMessagesTotal.WithLabelValues("failed").Inc()
		return false
	}
	delivered := strings.HasPrefix(status.Message(), "DELIVERED")
	if delivered {
		metrics.InstantMessagesTotal.WithLabelValues("delivered").Inc()
	} else {
		metrics.InstantMessagesTotal.WithLabelValues("failed").Inc()
	}
	return delivered
}
