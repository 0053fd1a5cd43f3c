package protocol_test

import (
	"testing"

	"github.com/oceanic-systems/s2c-middleware/protocol"
)

func TestMeasureEncodeDecodeRoundTrip(t *testing.T) {
	kinds := []protocol.MeasureKind{
		protocol.Temperatura, protocol.Ph, protocol.Salinidad, protocol.Presion,
	}
	for _, kind := range kinds {
		getPayload, err := protocol.EncodeGetMeas(kind)
		if err != nil {
			t.Fatalf("EncodeGetMeas(%v): %v", kind, err)
		}
		decoded, err := protocol.DecodeMeasureIM(getPayload)
		if err != nil {
			t.Fatalf("DecodeMeasureIM(%q): %v", getPayload, err)
		}
		want := "GETMEAS " + string(kind)
		if decoded != want {
			t.Errorf("round trip: got %q, want %q", decoded, want)
		}

		setPayload, err := protocol.EncodeSetMeas(string(kind) + "=12.5")
		if err != nil {
			t.Fatalf("EncodeSetMeas(%v): %v", kind, err)
		}
		decoded, err = protocol.DecodeMeasureIM(setPayload)
		if err != nil {
			t.Fatalf("DecodeMeasureIM(%q): %v", setPayload, err)
		}
		want = "SENDMEAS " + string(kind) + "=12.5"
		if decoded != want {
			t.Errorf("round trip: got %q, want %q", decoded, want)
		}
	}
}

func TestEncodeGetMeasUnknownKind(t *testing.T) {
	if _, err := protocol.EncodeGetMeas("BOGUS"); err == nil {
		t.Error("expected error for unknown measurement kind")
	}
}

func TestEncodeSendRawPreservesSpacesAndCommas(t *testing.T) {
	payload, err := protocol.EncodeSendRaw("SENDRAW DESTINO=3 DATA=a, b, c with spaces")
	if err != nil {
		t.Fatal(err)
	}
	if payload != "sr a, b, c with spaces" {
		t.Errorf("EncodeSendRaw() = %q", payload)
	}
}

func TestDecodeListDirIM(t *testing.T) {
	if got := protocol.DecodeListDirIM("ls"); got != "GETDIR" {
		t.Errorf("DecodeListDirIM(ls) = %q", got)
	}
	if got := protocol.DecodeListDirIM("lsf"); got != "GETDIR FULL" {
		t.Errorf("DecodeListDirIM(lsf) = %q", got)
	}
}

func TestDecodeGetFileIM(t *testing.T) {
	got, err := protocol.DecodeGetFileIM("gf report.bin")
	if err != nil {
		t.Fatal(err)
	}
	if got != "GETFILE NOMBRE=report.bin" {
		t.Errorf("DecodeGetFileIM() = %q", got)
	}
}
