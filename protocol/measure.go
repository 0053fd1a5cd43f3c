package protocol

import (
	"fmt"
	"strings"
)

// MeasureKind names a supported sensor measurement, the client protocol's
// GETMEAS/SENDMEAS vocabulary.
type MeasureKind string

const (
	Temperatura MeasureKind = "TEMPERATURA"
	Ph          MeasureKind = "PH"
	Salinidad   MeasureKind = "SALINIDAD"
	Presion     MeasureKind = "PRESION"
)

// measureCodes is the static lookup table between client-facing kind
// names and the short codes carried in instant-message payloads
// (`g_temp`, `s_ph`, ...). Kept as an explicit map rather than derived by
// reflection, so the mapping is visible and auditable in one place.
var measureCodes = map[MeasureKind]string{
	Temperatura: "temp",
	Ph:          "ph",
	Salinidad:   "sal",
	Presion:     "pres",
}

func codeForKind(kind MeasureKind) (string, bool) {
	code, ok := measureCodes[kind]
	return code, ok
}

func kindForCode(code string) (MeasureKind, bool) {
	for k, c := range measureCodes {
		if c == code {
			return k, true
		}
	}
	return "", false
}

// IsMeasureIM reports whether an instant-message payload is a measurement
// get (`g_...`) or set (`s_...`).
func IsMeasureIM(payload string) bool {
	return strings.HasPrefix(payload, "g_") || strings.HasPrefix(payload, "s_")
}

// IsRawIM reports a raw-passthrough instant message (`sr ...`).
func IsRawIM(payload string) bool {
	return strings.HasPrefix(payload, "sr")
}

// IsFileRequestIM reports a remote file request (`gf ...`).
func IsFileRequestIM(payload string) bool {
	return strings.HasPrefix(payload, "gf")
}

// IsListDirIM reports a remote directory-listing request (`ls`/`lsf`).
func IsListDirIM(payload string) bool {
	return strings.HasPrefix(payload, "ls")
}

// EncodeGetMeas builds the `g_<code>` IM payload for GETMEAS.
func EncodeGetMeas(kind MeasureKind) (string, error) {
	code, ok := codeForKind(kind)
	if !ok {
		return "", fmt.Errorf("unknown measurement kind %q", kind)
	}
	return "g_" + code, nil
}

// EncodeSetMeas builds the `s_<code> <value>` IM payload for SENDMEAS. arg
// is the raw `KIND=VALUE` client argument.
func EncodeSetMeas(arg string) (string, error) {
	tokens := strings.SplitN(arg, "=", 2)
	if len(tokens) != 2 || tokens[1] == "" {
		return "", fmt.Errorf("malformed SENDMEAS argument %q", arg)
	}
	code, ok := codeForKind(MeasureKind(tokens[0]))
	if !ok {
		return "", fmt.Errorf("unknown measurement kind %q", tokens[0])
	}
	return fmt.Sprintf("s_%s %s", code, tokens[1]), nil
}

// EncodeGetFile builds the `gf <name>` IM payload for GETFILE. arg is the
// raw `NOMBRE=FILE` client argument.
func EncodeGetFile(arg string) (string, error) {
	tokens := strings.SplitN(arg, "=", 2)
	if len(tokens) != 2 || tokens[0] != "NOMBRE" || tokens[1] == "" {
		return "", fmt.Errorf("malformed GETFILE argument %q", arg)
	}
	return "gf " + tokens[1], nil
}

// EncodeSendRaw builds the `sr <payload>` IM payload for SENDRAW. rawLine
// is the full, unsplit client command line so that a DATA= payload
// containing spaces or commas survives intact.
func EncodeSendRaw(rawLine string) (string, error) {
	idx := strings.Index(rawLine, "DATA=")
	if idx == -1 {
		return "", fmt.Errorf("missing DATA= in %q", rawLine)
	}
	return "sr " + rawLine[idx+len("DATA="):], nil
}

// DecodeMeasureIM turns a `g_<code>` / `s_<code> <value>` instant-message
// payload back into a client-facing `GETMEAS <KIND>` / `SENDMEAS
// <KIND>=<value>` command fragment.
func DecodeMeasureIM(payload string) (string, error) {
	switch {
	case strings.HasPrefix(payload, "g_"):
		kind, ok := kindForCode(payload[2:])
		if !ok {
			return "", fmt.Errorf("unknown measurement code in %q", payload)
		}
		return "GETMEAS " + string(kind), nil
	case strings.HasPrefix(payload, "s_"):
		rest := strings.Fields(payload[2:])
		if len(rest) != 2 {
			return "", fmt.Errorf("malformed SENDMEAS payload %q", payload)
		}
		kind, ok := kindForCode(rest[0])
		if !ok {
			return "", fmt.Errorf("unknown measurement code in %q", payload)
		}
		return fmt.Sprintf("SENDMEAS %s=%s", kind, rest[1]), nil
	default:
		return "", fmt.Errorf("not a measurement payload: %q", payload)
	}
}

// DecodeRawIM strips the `sr ` prefix (three bytes, matching the
// original's fixed offset) from a raw instant-message payload.
func DecodeRawIM(payload string) string {
	if len(payload) < 3 {
		return ""
	}
	return "SENDRAW DATA=" + payload[3:]
}

// DecodeGetFileIM turns a `gf <name>` payload into `GETFILE NOMBRE=<name>`.
func DecodeGetFileIM(payload string) (string, error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", fmt.Errorf("malformed file-request payload %q", payload)
	}
	return "GETFILE NOMBRE=" + fields[1], nil
}

// DecodeListDirIM turns `ls`/`lsf` into `GETDIR`/`GETDIR FULL`.
func DecodeListDirIM(payload string) string {
	if payload == "ls" {
		return "GETDIR"
	}
	return "GETDIR FULL"
}
