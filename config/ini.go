package config

import (
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/oceanic-systems/s2c-middleware/protocol"
)

// Load parses the middleware's INI configuration file: its LOGGER,
// MIDDLEWARE, and MODEM sections. Every core component consumes only the
// resulting *Config, never the file itself.
func Load(path string) (*Config, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load ini %q: %w", path, err)
	}

	cfg := &Config{}

	logger := file.Section("LOGGER")
	cfg.Logger.LogLevel = logger.Key("log_level").MustString("info")

	mw := file.Section("MIDDLEWARE")
	cfg.Middleware.ServerIP = mw.Key("server_ip").String()
	cfg.Middleware.CommandPort = mw.Key("command_port").MustInt()
	cfg.Middleware.InterruptPort = mw.Key("interrupt_port").MustInt()
	cfg.Middleware.FilePath = mw.Key("file_path").String()
	cfg.Middleware.BlockSize = mw.Key("block_size").MustInt(1024)
	cfg.Middleware.FileTransfer = mw.Key("file_transfer").MustBool(false)

	modem := file.Section("MODEM")
	cfg.Modem = ModemConfig{
		ConnectionMode:        protocol.ConnectionMode(modem.Key("connection_mode").String()),
		InetAddr:              modem.Key("inet_addr").String(),
		InetPort:              modem.Key("inet_port").MustInt(),
		FileInetPort:          modem.Key("file_inet_port").MustInt(),
		ComPort:               modem.Key("com_port").String(),
		Baudrate:              modem.Key("baudrate").MustInt(),
		ExtendedProtocolMode:  modem.Key("extended_protocol_mode").MustInt(),
		ExtendedNotifications: modem.Key("extended_notifications").MustInt(),
		PoolSize:              modem.Key("pool_size").MustInt(),
		EnableUSBL:            modem.Key("enable_usbl").MustInt(),
		HoldTimeout:           modem.Key("hold_timeout").MustInt(),
		EnableAwakeRemoteMode: modem.Key("enable_awake_remote_mode").MustInt(),
		RemoteActiveTime:      modem.Key("remote_active_time").MustInt(),
		TxPower:               modem.Key("tx_power").MustInt(),
		TxPowerAutoset:        modem.Key("tx_power_autoset").MustInt(),
		RxGain:                modem.Key("rx_gain").MustInt(),
		CarrierWaveformID:     modem.Key("carrier_waveform_id").MustInt(),
		ModemAddress:          modem.Key("modem_address").MustInt(),
		MaxAddress:            modem.Key("max_address").MustInt(),
		ClusterSize:           modem.Key("cluster_size").MustInt(),
		PacketTime:            modem.Key("packet_time").MustInt(),
		RetryCount:            modem.Key("retry_count").MustInt(),
		RetryTimeout:          modem.Key("retry_timeout").MustInt(),
		KeepOnlineCount:       modem.Key("keep_online_count").MustInt(),
		IdleTimeout:           modem.Key("idle_timeout").MustInt(),
		SoundSpeed:            modem.Key("sound_speed").MustInt(),
		IMRetryCount:          modem.Key("im_retry_count").MustInt(),
		PromiscuousMode:       modem.Key("promiscuous_mode").MustInt(),
	}

	if cfg.Modem.ConnectionMode != protocol.ConnectionTCP && cfg.Modem.ConnectionMode != protocol.ConnectionRS232 {
		return nil, fmt.Errorf("invalid connection_mode %q, want tcp or rs232", cfg.Modem.ConnectionMode)
	}

	return cfg, nil
}
