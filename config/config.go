// Package config holds the modem/middleware configuration record and the
// explicit, ordered list used to push it to the modem via AT commands.
//
// PushOrder is a deliberately explicit (field, mnemonic, accessor) list
// iterated in a fixed order, rather than a reflection-driven walk over
// the struct, so that what gets pushed to the modem and in what sequence
// is deterministic and auditable from the list itself.
package config

import (
	"strconv"

	"github.com/oceanic-systems/s2c-middleware/protocol"
)

// ModemConfig is the flat record of modem behavioural parameters, plus
// the connection parameters needed to actually reach the modem (the
// MODEM section of the INI file).
type ModemConfig struct {
	ConnectionMode protocol.ConnectionMode
	InetAddr       string
	InetPort       int
	FileInetPort   int
	ComPort        string
	Baudrate       int

	ExtendedProtocolMode  int
	ExtendedNotifications int
	PoolSize              int
	EnableUSBL            int
	HoldTimeout           int
	EnableAwakeRemoteMode int
	RemoteActiveTime      int
	TxPower               int
	TxPowerAutoset        int
	RxGain                int
	CarrierWaveformID     int
	ModemAddress          int
	MaxAddress            int
	ClusterSize           int
	PacketTime            int
	RetryCount            int
	RetryTimeout          int
	KeepOnlineCount       int
	IdleTimeout           int
	SoundSpeed            int
	IMRetryCount          int
	PromiscuousMode       int
}

// PushEntry names one modem parameter's AT mnemonic and how to render its
// current value for the `AT<mnemonic><value>` command.
type PushEntry struct {
	Field    string
	Mnemonic string
	Value    func(*ModemConfig) string
}

func intField(get func(*ModemConfig) int) func(*ModemConfig) string {
	return func(c *ModemConfig) string { return strconv.Itoa(get(c)) }
}

// PushOrder is the deterministic, auditable replacement for the original's
// attribute-walking config push: LOADCONFIG iterates this slice in order,
// issuing one `AT<mnemonic><value>` exchange per entry.
var PushOrder = []PushEntry{
	{"ExtendedProtocolMode", "AT@ZF", intField(func(c *ModemConfig) int { return c.ExtendedProtocolMode })},
	{"ExtendedNotifications", "AT@ZX", intField(func(c *ModemConfig) int { return c.ExtendedNotifications })},
	{"PoolSize", "AT@ZL", intField(func(c *ModemConfig) int { return c.PoolSize })},
	{"EnableUSBL", "AT@ZU", intField(func(c *ModemConfig) int { return c.EnableUSBL })},
	{"HoldTimeout", "AT!ZH", intField(func(c *ModemConfig) int { return c.HoldTimeout })},
	{"EnableAwakeRemoteMode", "AT!DW", intField(func(c *ModemConfig) int { return c.EnableAwakeRemoteMode })},
	{"RemoteActiveTime", "AT!DR", intField(func(c *ModemConfig) int { return c.RemoteActiveTime })},
	{"TxPower", "AT!L", intField(func(c *ModemConfig) int { return c.TxPower })},
	{"TxPowerAutoset", "AT!LC", intField(func(c *ModemConfig) int { return c.TxPowerAutoset })},
	{"RxGain", "AT!G", intField(func(c *ModemConfig) int { return c.RxGain })},
	{"CarrierWaveformID", "AT!C", intField(func(c *ModemConfig) int { return c.CarrierWaveformID })},
	{"ModemAddress", "AT!AL", intField(func(c *ModemConfig) int { return c.ModemAddress })},
	{"MaxAddress", "AT!AM", intField(func(c *ModemConfig) int { return c.MaxAddress })},
	{"ClusterSize", "AT!ZC", intField(func(c *ModemConfig) int { return c.ClusterSize })},
	{"PacketTime", "AT!ZP", intField(func(c *ModemConfig) int { return c.PacketTime })},
	{"RetryCount", "AT!RC", intField(func(c *ModemConfig) int { return c.RetryCount })},
	{"RetryTimeout", "AT!RT", intField(func(c *ModemConfig) int { return c.RetryTimeout })},
	{"KeepOnlineCount", "AT!KO", intField(func(c *ModemConfig) int { return c.KeepOnlineCount })},
	{"IdleTimeout", "AT!ZI", intField(func(c *ModemConfig) int { return c.IdleTimeout })},
	{"SoundSpeed", "AT!CA", intField(func(c *ModemConfig) int { return c.SoundSpeed })},
	{"IMRetryCount", "AT!RI", intField(func(c *ModemConfig) int { return c.IMRetryCount })},
	{"PromiscuousMode", "AT!RP", intField(func(c *ModemConfig) int { return c.PromiscuousMode })},
}

// MiddlewareConfig holds the server-facing settings from the INI's
// MIDDLEWARE section.
type MiddlewareConfig struct {
	ServerIP       string
	CommandPort    int
	InterruptPort  int
	FilePath       string
	BlockSize      int
	FileTransfer   bool
}

// LoggerConfig holds the INI's LOGGER section.
type LoggerConfig struct {
	LogLevel string
}

// Config is the fully parsed configuration for one middleware instance.
type Config struct {
	Logger     LoggerConfig
	Middleware MiddlewareConfig
	Modem      ModemConfig
}
