// Package filehandler is a single-threaded stop-and-wait file sender and
// receiver, each a small state machine, sharing one event loop. Retry and
// ack timers are additional select cases on that loop rather than
// callbacks on another goroutine, so session state is mutated from
// exactly one place.
package filehandler

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oceanic-systems/s2c-middleware/metrics"
	"github.com/oceanic-systems/s2c-middleware/protocol"
	"github.com/oceanic-systems/s2c-middleware/queue"
)

// Default timeouts and retry cap for a file transfer session.
const (
	DefaultTxTimeout  = 17 * time.Second
	DefaultAckTimeout = 13 * time.Second
	DefaultMaxRetries = 5
)

// txSession is the sender's state: one outstanding file transmission.
type txSession struct {
	filename    string
	receiverDir string
	blocks      [][]byte
	md5         string
	blockCount  int
	cur         int // tx_actual_block: index of the last block sent
	next        int // tx_next_block: next sequence expected to be acked
	retries     int
	cooldown    bool // post-completion settle period; still "busy"
}

// rxSession is the receiver's state: one inbound file reception.
type rxSession struct {
	peer       string
	filename   string
	numBlocks  int
	md5        string
	blocks     [][]byte
	exp        int
	ackRetries int
	tail       bool // file already assembled; waiting out the final ack
	lastValid  bool
	lastSeq    int
}

// Handler owns both sessions and the five queues it sits between.
type Handler struct {
	FilePath   string
	BlockSize  int
	TxTimeout  time.Duration
	AckTimeout time.Duration
	MaxRetries int

	CommandIn       *queue.Bounded[protocol.ClientCommand]
	CommandOut      *queue.Bounded[protocol.ClientCommandResponse]
	ModemFileRx     *queue.Bounded[protocol.ModemMessage]
	ModemFileTx     *queue.Bounded[string]
	ClientInterrupt *queue.Bounded[string]

	tx      *txSession
	rx      *rxSession
	txTimer *time.Timer
	rxTimer *time.Timer
}

// New builds a Handler with the package's default timeouts and retry cap.
func New(
	filePath string, blockSize int,
	commandIn *queue.Bounded[protocol.ClientCommand],
	commandOut *queue.Bounded[protocol.ClientCommandResponse],
	modemFileRx *queue.Bounded[protocol.ModemMessage],
	modemFileTx *queue.Bounded[string],
	clientInterrupt *queue.Bounded[string],
) *Handler {
	return &Handler{
		FilePath:        filePath,
		BlockSize:       blockSize,
		TxTimeout:       DefaultTxTimeout,
		AckTimeout:      DefaultAckTimeout,
		MaxRetries:      DefaultMaxRetries,
		CommandIn:       commandIn,
		CommandOut:      commandOut,
		ModemFileRx:     modemFileRx,
		ModemFileTx:     modemFileTx,
		ClientInterrupt: clientInterrupt,
	}
}

// Run drives the sender and receiver state machines until ctx is
// cancelled. Both timers are ordinary select cases: a timer that is not
// armed contributes a nil channel, which blocks forever, which is
// exactly what an idle session needs.
func (h *Handler) Run(ctx context.Context) {
	for {
		var txC, rxC <-chan time.Time
		if h.txTimer != nil {
			txC = h.txTimer.C
		}
		if h.rxTimer != nil {
			rxC = h.rxTimer.C
		}

		select {
		case <-ctx.Done():
			return
		case cmd := <-h.CommandIn.Chan():
			h.CommandIn.Observe()
			h.handleClientCommand(ctx, cmd)
		case msg := <-h.ModemFileRx.Chan():
			h.ModemFileRx.Observe()
			h.handleModemFrame(ctx, msg)
		case <-txC:
			h.txTimer = nil
			h.onTxTimerExpired(ctx)
		case <-rxC:
			h.rxTimer = nil
			h.onRxTimerExpired(ctx)
		}
	}
}

func (h *Handler) respond(ctx context.Context, responseType, value string) {
	resp := protocol.NewClientCommandResponse(responseType, value)
	log.Printf("filehandler: client response: %s", strings.TrimRight(resp.Text(), "\n\r"))
	if err := h.CommandOut.Push(ctx, resp); err != nil {
		log.Printf("filehandler: command-out push: %v", err)
	}
}

func (h *Handler) interrupt(ctx context.Context, line string) {
	log.Printf("filehandler: client interrupt: %s", strings.TrimRight(line, "\n"))
	if err := h.ClientInterrupt.Push(ctx, line); err != nil {
		log.Printf("filehandler: client-interrupt push: %v", err)
	}
}

func (h *Handler) sendData(ctx context.Context, payload, receiverDir string) {
	text := strings.Join([]string{"AT*SEND", strconv.Itoa(len(payload)), receiverDir, payload}, ",")
	if err := h.ModemFileTx.Push(ctx, text); err != nil {
		log.Printf("filehandler: modem-file-tx push: %v", err)
	}
}

// --- client command side ---

func (h *Handler) handleClientCommand(ctx context.Context, cmd protocol.ClientCommand) {
	if cmd.Verb() != "SENDFILE" {
		return
	}
	if h.tx != nil || h.rx != nil {
		h.respond(ctx, "TRANSMITTER BUSY", "")
		return
	}
	h.requestFileTransmission(ctx, cmd)
}

func (h *Handler) requestFileTransmission(ctx context.Context, cmd protocol.ClientCommand) {
	args := cmd.Args()
	if len(args) != 2 {
		h.respond(ctx, "SENDFILE FAILED", "")
		return
	}
	name, ok1 := valueAfterEquals(args[0], "NOMBRE")
	dest, ok2 := valueAfterEquals(args[1], "DESTINO")
	if !ok1 || !ok2 {
		h.respond(ctx, "SENDFILE FAILED", "")
		return
	}

	blocks, err := readFileBlocks(filepath.Join(h.FilePath, name), h.BlockSize)
	if err != nil || len(blocks) == 0 {
		log.Printf("filehandler: cannot read %s: %v", name, err)
		h.respond(ctx, "SENDFILE FAILED", "")
		return
	}

	session := &txSession{
		filename:    name,
		receiverDir: dest,
		blocks:      blocks,
		blockCount:  len(blocks),
		md5:         md5Hex(blocks),
		next:        0,
		cur:         0,
	}
	log.Printf("filehandler: requested transmission of %s, md5=%s, blocks=%d", name, session.md5, session.blockCount)

	h.tx = session
	h.sendHeaderBlock(ctx)
	h.txTimer = time.NewTimer(h.TxTimeout)
	h.respond(ctx, "SENDFILE REQUESTED", "")
}

func readFileBlocks(path string, blockSize int) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if blockSize <= 0 {
		blockSize = 1024
	}
	var blocks [][]byte
	for off := 0; off < len(data); off += blockSize {
		end := off + blockSize
		if end > len(data) {
			end = len(data)
		}
		blocks = append(blocks, data[off:end])
	}
	return blocks, nil
}

func (h *Handler) sendHeaderBlock(ctx context.Context) {
	t := h.tx
	blockData := fmt.Sprintf("H|%s|%d|%s", t.filename, t.blockCount, t.md5)
	h.sendData(ctx, blockData+","+crcHex([]byte(blockData)), t.receiverDir)
}

func (h *Handler) sendFileBlock(ctx context.Context) {
	t := h.tx
	block := t.blocks[t.cur]
	h.sendData(ctx, fmt.Sprintf("%d|%s|%s", t.cur, base64Encode(block), crcHex(block)), t.receiverDir)
}

// --- modem frame side ---

func (h *Handler) handleModemFrame(ctx context.Context, msg protocol.ModemMessage) {
	switch {
	case msg.IsTransmissionRequest():
		h.processTransmissionRequest(ctx, msg)
	case msg.IsAck() && h.tx != nil:
		h.sendNextBlock(ctx, msg)
	case msg.IsNack() && h.tx != nil:
		h.replyNack(ctx, msg)
	case msg.IsReceivedData() && !msg.IsAck() && !msg.IsNack() && h.rx != nil:
		h.processNextBlock(ctx, msg)
	}
}

func sequenceFromFrame(msg protocol.ModemMessage) (int, bool) {
	chunks := msg.Chunks()
	if len(chunks) <= 10 {
		return 0, false
	}
	n, err := strconv.Atoi(chunks[10])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (h *Handler) sendNextBlock(ctx context.Context, msg protocol.ModemMessage) {
	t := h.tx
	seq, ok := sequenceFromFrame(msg)
	if !ok {
		return
	}
	t.retries = 0

	if seq == 0 && t.next == 0 {
		h.interrupt(ctx, fmt.Sprintf("FILE %s TRANSMISSION ACCEPTED\n", t.filename))
		h.txTimer = nil
		t.cur = 0
		h.sendFileBlock(ctx)
		h.txTimer = time.NewTimer(h.TxTimeout)
		t.next = 1
		return
	}

	if seq != t.next {
		return // stale ack
	}

	if seq == t.blockCount {
		h.txTimer = nil
		filename := t.filename
		h.tx = &txSession{filename: filename, cooldown: true}
		h.txTimer = time.NewTimer(time.Duration(h.MaxRetries) * (h.AckTimeout + time.Second))
		log.Printf("filehandler: file %s sent successfully", filename)
		metrics.FileTransfersCompleted.WithLabelValues("sender", "ok").Inc()
		h.interrupt(ctx, fmt.Sprintf("FILE %s TRANSMISSION COMPLETE\n", filename))
		return
	}

	h.txTimer = nil
	t.cur = seq
	t.next = seq + 1
	h.sendFileBlock(ctx)
	h.txTimer = time.NewTimer(h.TxTimeout)
}

func (h *Handler) replyNack(ctx context.Context, msg protocol.ModemMessage) {
	t := h.tx
	seq, ok := sequenceFromFrame(msg)
	if !ok {
		return
	}
	h.txTimer = nil
	t.retries = 0
	t.cur = seq - 1
	t.next = seq
	h.sendFileBlock(ctx)
	h.txTimer = time.NewTimer(h.TxTimeout)
}

func (h *Handler) onTxTimerExpired(ctx context.Context) {
	t := h.tx
	if t == nil {
		return
	}
	if t.cooldown {
		h.tx = nil
		return
	}

	t.retries++
	if t.retries >= h.MaxRetries {
		if t.next == 0 {
			log.Printf("filehandler: header for %s rejected, retries exhausted", t.filename)
			metrics.FileTransfersCompleted.WithLabelValues("sender", "rejected").Inc()
			h.interrupt(ctx, fmt.Sprintf("FILE %s TRANSMISSION REJECTED\n", t.filename))
		} else {
			log.Printf("filehandler: transmission of %s failed, retries exhausted", t.filename)
			metrics.FileTransfersCompleted.WithLabelValues("sender", "timeout").Inc()
			h.interrupt(ctx, fmt.Sprintf("FILE %s TRANSMISSION FAILED: TIMEOUT\n", t.filename))
		}
		h.tx = nil
		return
	}

	metrics.FileTransferRetries.WithLabelValues("sender").Inc()
	if t.next == 0 {
		h.sendHeaderBlock(ctx)
	} else {
		h.sendFileBlock(ctx)
	}
	h.txTimer = time.NewTimer(h.TxTimeout)
}

// --- receiver ---

func (h *Handler) processTransmissionRequest(ctx context.Context, msg protocol.ModemMessage) {
	requester := msg.Field(2)
	if h.tx != nil || h.rx != nil {
		h.sendAckStandalone(ctx, false, 0, requester)
		return
	}

	headerData := msg.Field(9)
	checksum := msg.Field(10)
	if crcHex([]byte(headerData)) != checksum {
		h.sendAckStandalone(ctx, false, 0, requester)
		return
	}

	parts := strings.Split(headerData, "|")
	if len(parts) != 4 {
		h.sendAckStandalone(ctx, false, 0, requester)
		return
	}
	numBlocks, err := strconv.Atoi(parts[2])
	if err != nil {
		h.sendAckStandalone(ctx, false, 0, requester)
		return
	}

	h.rx = &rxSession{
		peer:      requester,
		filename:  parts[1],
		numBlocks: numBlocks,
		md5:       parts[3],
		exp:       0,
	}
	h.interrupt(ctx, fmt.Sprintf("FILE %s RECEPTION ACCEPTED\n", h.rx.filename))
	h.sendAck(ctx, true, 0, requester)
}

func (h *Handler) processNextBlock(ctx context.Context, msg protocol.ModemMessage) {
	r := h.rx
	transmitter := msg.Field(2)
	if transmitter != r.peer {
		return
	}
	h.rxTimer = nil
	r.ackRetries = 0

	payload := msg.ReassembledPayload()
	first := strings.Index(payload, "|")
	last := strings.LastIndex(payload, "|")
	if first < 0 || last <= first {
		h.sendAck(ctx, false, r.exp, r.peer)
		return
	}
	seq, err := strconv.Atoi(payload[:first])
	if err != nil {
		h.sendAck(ctx, false, r.exp, r.peer)
		return
	}
	receivedCRC := payload[last+1:]
	blockB64 := payload[first+1 : last]

	if seq != r.exp {
		h.sendAck(ctx, false, r.exp, r.peer)
		return
	}

	raw, err := base64Decode(blockB64)
	if err != nil {
		h.sendAck(ctx, false, r.exp, r.peer)
		return
	}
	if crcHex(raw) != receivedCRC {
		metrics.FileTransferRetries.WithLabelValues("receiver").Inc()
		h.sendAck(ctx, false, r.exp, r.peer)
		return
	}

	r.blocks = append(r.blocks, raw)
	r.exp++

	if r.exp == r.numBlocks {
		calculated := md5Hex(r.blocks)
		if calculated != r.md5 {
			log.Printf("filehandler: md5 mismatch for %s: got %s want %s", r.filename, calculated, r.md5)
			metrics.FileTransfersCompleted.WithLabelValues("receiver", "bad_md5").Inc()
			h.interrupt(ctx, fmt.Sprintf("FILE %s RECEPTION FAILED: WRONG MD5\n", r.filename))
			h.rx = nil
			return
		}
		if err := writeReceivedFile(filepath.Join(h.FilePath, r.filename), r.blocks); err != nil {
			log.Printf("filehandler: writing %s: %v", r.filename, err)
			metrics.FileTransfersCompleted.WithLabelValues("receiver", "file_error").Inc()
			h.interrupt(ctx, fmt.Sprintf("FILE %s RECEPTION FAILED: FILE ERROR\n", r.filename))
			h.rx = nil
			return
		}
		metrics.FileTransfersCompleted.WithLabelValues("receiver", "ok").Inc()
		r.tail = true
		h.sendAck(ctx, true, r.exp, r.peer)
		return
	}

	h.sendAck(ctx, true, r.exp, r.peer)
}

func writeReceivedFile(path string, blocks [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, b := range blocks {
		if _, err := f.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// sendAck sends ack/nack and (re)arms the receiver's retry timer for an
// established session, saving the arguments for retransmission.
func (h *Handler) sendAck(ctx context.Context, valid bool, seq int, dest string) {
	h.sendData(ctx, ackText(valid, seq), dest)
	if h.rx == nil {
		return
	}
	h.rx.lastValid = valid
	h.rx.lastSeq = seq
	h.rx.ackRetries = 0
	h.rxTimer = time.NewTimer(h.AckTimeout)
}

// sendAckStandalone answers a header frame rejected because a session is
// already busy, or malformed before any session exists. There is no
// receiver session to retry for, so no timer is armed.
func (h *Handler) sendAckStandalone(ctx context.Context, valid bool, seq int, dest string) {
	h.sendData(ctx, ackText(valid, seq), dest)
}

func ackText(valid bool, seq int) string {
	if valid {
		return fmt.Sprintf("ack,%d", seq)
	}
	return fmt.Sprintf("nack,%d", seq)
}

func (h *Handler) onRxTimerExpired(ctx context.Context) {
	r := h.rx
	if r == nil {
		return
	}
	r.ackRetries++
	if r.ackRetries >= h.MaxRetries {
		if r.tail {
			log.Printf("filehandler: receiver for %s ready for next transmission", r.filename)
			h.interrupt(ctx, fmt.Sprintf("FILE %s RECEPTION COMPLETE\n", r.filename))
		} else {
			log.Printf("filehandler: reception of %s failed, ack retries exhausted", r.filename)
			metrics.FileTransfersCompleted.WithLabelValues("receiver", "timeout").Inc()
			h.interrupt(ctx, fmt.Sprintf("FILE %s RECEPTION FAILED: TIMEOUT\n", r.filename))
		}
		h.rx = nil
		return
	}
	metrics.FileTransferRetries.WithLabelValues("receiver").Inc()
	h.sendData(ctx, ackText(r.lastValid, r.lastSeq), r.peer)
	h.rxTimer = time.NewTimer(h.AckTimeout)
}

func valueAfterEquals(arg, key string) (string, bool) {
	prefix := key + "="
	if !strings.HasPrefix(arg, prefix) {
		return "", false
	}
	return arg[len(prefix):], true
}
