package protocol_test

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/oceanic-systems/s2c-middleware/protocol"
)

func TestClientCommandParsing(t *testing.T) {
	cmd := protocol.NewClientCommand("GETMEAS TEMPERATURA DESTINO=3\r\n")
	if cmd.Verb() != "GETMEAS" {
		t.Errorf("Verb() = %q, want GETMEAS", cmd.Verb())
	}
	if diff := deep.Equal(cmd.Args(), []string{"TEMPERATURA", "DESTINO=3"}); diff != nil {
		t.Error(diff)
	}
}

func TestClientCommandResponseFormatting(t *testing.T) {
	cases := []struct {
		typeID, value, want string
	}{
		{"delay", "0.0432", "DELAY=0.0432\n\r"},
		{"ok", "", "OK\n\r"},
		{"config", "ok", "CONFIG=OK\n\r"},
	}
	for _, c := range cases {
		got := protocol.NewClientCommandResponse(c.typeID, c.value).Text()
		if got != c.want {
			t.Errorf("Text() = %q, want %q", got, c.want)
		}
	}
}

func TestModemMessageClassification(t *testing.T) {
	ping := protocol.NewModemMessage("RECVIM,5,12,3,0,0,0,0,0,mwp")
	if !ping.IsPingMsg() {
		t.Error("expected ping classification")
	}

	powerPing := protocol.NewModemMessage("RECV,5,12,3,0,0,0,0,0,pow")
	if !powerPing.IsPowerPingMsg() {
		t.Error("expected power-ping classification")
	}

	header := protocol.NewModemMessage("RECV,5,12,3,0,0,0,0,0,H|f.bin|3|abc,1a2b3c")
	if !header.IsTransmissionRequest() {
		t.Error("expected transmission-request classification")
	}

	ack := protocol.NewModemMessage("RECV,5,12,3,0,0,0,0,0,ack,1")
	if !ack.IsAck() {
		t.Error("expected ack classification")
	}

	im := protocol.NewModemMessage("RECVIM,5,12,3,0,0,0,0,0,s_ph 7.4")
	if !im.IsReceivedIM() {
		t.Error("expected instant-message classification")
	}
	if im.Field(2) != "12" || im.Field(9) != "s_ph 7.4" {
		t.Errorf("unexpected field extraction: source=%q payload=%q", im.Field(2), im.Field(9))
	}
}

func TestAtCommandTerminators(t *testing.T) {
	tcp := protocol.NewAtCommand("AT?T", protocol.ConnectionTCP)
	if tcp.Text() != "AT?T\n" {
		t.Errorf("tcp Text() = %q", tcp.Text())
	}
	serial := protocol.NewAtCommand("AT?T", protocol.ConnectionRS232)
	if serial.Text() != "AT?T\r" {
		t.Errorf("serial Text() = %q", serial.Text())
	}
}

func TestResolveSocketAddressLiteral(t *testing.T) {
	addr, err := protocol.ResolveSocketAddress("192.168.1.20", 9200)
	if err != nil {
		t.Fatal(err)
	}
	if addr.String() != "192.168.1.20:9200" {
		t.Errorf("String() = %q", addr.String())
	}
}
