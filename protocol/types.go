// Package protocol implements the wire-level value types shared by every
// core component: the client command/response grammar, the modem's AT
// command/notification framing, and socket addressing. It has no
// dependency on transport or concurrency — it is pure parsing and
// formatting, analogous to the original's data_types module.
package protocol

import (
	"fmt"
	"net"
	"strings"
)

// ConnectionMode selects how the Dispatcher's AT commands are terminated
// on the wire: TCP commands end in a bare LF, RS-232 commands in a bare CR.
type ConnectionMode string

const (
	ConnectionTCP   ConnectionMode = "tcp"
	ConnectionRS232 ConnectionMode = "rs232"
)

// SocketAddress is an IP/port pair. config.Load does not resolve host
// names; the middleware resolves the modem command-channel host once at
// startup (failing Run if it cannot) and again on every dial.
type SocketAddress struct {
	IPAddress string
	Port      int
}

// ResolveSocketAddress resolves host (an IP literal or DNS name) to a
// SocketAddress. Literals are used as-is; names go through the resolver.
func ResolveSocketAddress(host string, port int) (SocketAddress, error) {
	if ip := net.ParseIP(host); ip != nil {
		return SocketAddress{IPAddress: ip.String(), Port: port}, nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return SocketAddress{}, fmt.Errorf("resolve %q: %w", host, err)
	}
	return SocketAddress{IPAddress: addrs[0], Port: port}, nil
}

func (a SocketAddress) String() string {
	return fmt.Sprintf("%s:%d", a.IPAddress, a.Port)
}

// AtCommand is a single outbound AT command line, terminated according to
// the hardware it will be written to.
type AtCommand struct {
	body string
	mode ConnectionMode
}

// NewAtCommand builds an AtCommand from its unterminated body.
func NewAtCommand(body string, mode ConnectionMode) AtCommand {
	return AtCommand{body: body, mode: mode}
}

// Text returns the line ready to write to the modem link, including the
// mode-appropriate terminator.
func (c AtCommand) Text() string {
	switch c.mode {
	case ConnectionRS232:
		return c.body + "\r"
	default:
		return c.body + "\n"
	}
}

// Body returns the command without its terminator, useful for logging.
func (c AtCommand) Body() string {
	return c.body
}

// ModemMessage is one line received from the modem, either a synchronous
// AT reply or an unsolicited event. Classification is by prefix/suffix.
type ModemMessage struct {
	raw string
}

// NewModemMessage trims the trailing CR/LF from a raw modem line.
func NewModemMessage(raw string) ModemMessage {
	return ModemMessage{raw: strings.TrimRight(raw, "\r\n")}
}

// Message returns the trimmed raw line.
func (m ModemMessage) Message() string { return m.raw }

// Chunks splits the message on commas, the modem's field separator.
func (m ModemMessage) Chunks() []string { return strings.Split(m.raw, ",") }

// Field returns chunk i, or "" if the message is too short.
func (m ModemMessage) Field(i int) string {
	c := m.Chunks()
	if i < 0 || i >= len(c) {
		return ""
	}
	return c[i]
}

// IsPingMsg reports a `RECVIM ... ,mwp` range-ping echo.
func (m ModemMessage) IsPingMsg() bool {
	return strings.HasPrefix(m.raw, "RECVIM") && strings.HasSuffix(m.raw, ",mwp")
}

// IsPowerPingMsg reports a `RECV ... ,pow` power-calibration echo.
func (m ModemMessage) IsPowerPingMsg() bool {
	return strings.HasPrefix(m.raw, "RECV") && strings.HasSuffix(m.raw, ",pow")
}

// IsReceivedIM reports any inbound instant message.
func (m ModemMessage) IsReceivedIM() bool {
	return strings.HasPrefix(m.raw, "RECVIM")
}

// IsReceivedData reports an inbound raw data frame (file channel).
func (m ModemMessage) IsReceivedData() bool {
	return strings.HasPrefix(m.raw, "RECV,")
}

// payload returns field 9 of a RECV frame, the canonical payload slot.
func (m ModemMessage) payload() string {
	return m.Field(9)
}

// ReassembledPayload joins every chunk from field 9 onward with commas.
// File-transfer data frames carry base64 in that slot; base64 itself
// never contains a comma, but the receiver still rejoins defensively in
// case an extra field separator slipped into the frame.
func (m ModemMessage) ReassembledPayload() string {
	c := m.Chunks()
	if len(c) <= 9 {
		return ""
	}
	return strings.Join(c[9:], ",")
}

// IsTransmissionRequest reports a file-transfer header frame (`H|...`).
func (m ModemMessage) IsTransmissionRequest() bool {
	return m.IsReceivedData() && strings.HasPrefix(m.payload(), "H")
}

// IsAck reports a file-transfer `ack,N` frame.
func (m ModemMessage) IsAck() bool {
	return m.IsReceivedData() && strings.HasPrefix(m.payload(), "ack")
}

// IsNack reports a file-transfer `nack,N` frame.
func (m ModemMessage) IsNack() bool {
	return m.IsReceivedData() && strings.HasPrefix(m.payload(), "nack")
}

// IsSleepRequest reports a remote low-power sleep request (`slp`).
func (m ModemMessage) IsSleepRequest() bool {
	return m.IsReceivedData() && strings.HasPrefix(m.payload(), "slp")
}

// IsWakeupRequest reports a remote wakeup request (`wup`).
func (m ModemMessage) IsWakeupRequest() bool {
	return m.IsReceivedData() && strings.HasPrefix(m.payload(), "wup")
}

// IsPositionData reports a USBL position report; unused in the core.
func (m ModemMessage) IsPositionData() bool {
	return strings.HasPrefix(m.raw, "USBL")
}

// IsError reports a modem-rejected AT command.
func (m ModemMessage) IsError() bool {
	return strings.HasPrefix(m.raw, "ERROR")
}

// ClientCommand is one line read from the command-port client, already
// split into verb and arguments.
type ClientCommand struct {
	raw   string
	parts []string
}

// NewClientCommand parses a client line. Trailing CR/LF is stripped
// before splitting on spaces.
func NewClientCommand(raw string) ClientCommand {
	trimmed := strings.TrimRight(raw, "\r\n")
	return ClientCommand{raw: trimmed, parts: strings.Fields(trimmed)}
}

// Verb returns the command name, or "" for an empty line.
func (c ClientCommand) Verb() string {
	if len(c.parts) == 0 {
		return ""
	}
	return c.parts[0]
}

// Args returns the arguments following the verb.
func (c ClientCommand) Args() []string {
	if len(c.parts) < 2 {
		return nil
	}
	return c.parts[1:]
}

// Raw returns the trimmed, unsplit command line.
func (c ClientCommand) Raw() string { return c.raw }

// ClientCommandResponse renders the `TYPE[=VALUE]\n\r` client reply line.
type ClientCommandResponse struct {
	typeID string
	value  string
}

// NewClientCommandResponse builds a response line. value may be empty.
func NewClientCommandResponse(typeID, value string) ClientCommandResponse {
	return ClientCommandResponse{typeID: typeID, value: value}
}

const responseTerminator = "\n\r"

// Text renders the final, uppercased response line.
func (r ClientCommandResponse) Text() string {
	line := strings.ToUpper(r.typeID)
	if r.value != "" {
		line += "=" + strings.ToUpper(r.value)
	}
	return line + responseTerminator
}
