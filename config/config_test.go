package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oceanic-systems/s2c-middleware/config"
)

const sampleINI = `
[LOGGER]
log_level = debug

[MIDDLEWARE]
server_ip = 127.0.0.1
command_port = 9200
interrupt_port = 9201
file_path = /var/lib/middleware
block_size = 1024
file_transfer = 1

[MODEM]
connection_mode = tcp
inet_addr = 10.0.0.5
inet_port = 9300
file_inet_port = 9301
com_port =
baudrate = 0
extended_protocol_mode = 1
extended_notifications = 0
pool_size = 4
enable_usbl = 0
hold_timeout = 30
enable_awake_remote_mode = 0
remote_active_time = 0
tx_power = 2
tx_power_autoset = 1
rx_gain = 3
carrier_waveform_id = 5
modem_address = 1
max_address = 30
cluster_size = 10
packet_time = 50
retry_count = 3
retry_timeout = 2000
keep_online_count = 1
idle_timeout = 120
sound_speed = 1500
im_retry_count = 3
promiscuous_mode = 0
`

func writeSampleINI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "middleware.ini")
	if err := os.WriteFile(path, []byte(sampleINI), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	cfg, err := config.Load(writeSampleINI(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logger.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.Logger.LogLevel)
	}
	if cfg.Middleware.CommandPort != 9200 || cfg.Middleware.InterruptPort != 9201 {
		t.Errorf("unexpected middleware ports: %+v", cfg.Middleware)
	}
	if !cfg.Middleware.FileTransfer {
		t.Error("expected FileTransfer to be true")
	}
	if cfg.Modem.ModemAddress != 1 || cfg.Modem.MaxAddress != 30 {
		t.Errorf("unexpected modem addressing: %+v", cfg.Modem)
	}
	if cfg.Modem.SoundSpeed != 1500 {
		t.Errorf("SoundSpeed = %d", cfg.Modem.SoundSpeed)
	}
}

func TestLoadRejectsBadConnectionMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "middleware.ini")
	bad := strings.Replace(sampleINI, "connection_mode = tcp", "connection_mode = usb", 1)
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("expected error for invalid connection_mode")
	}
}

func TestPushOrderCoversEveryModemField(t *testing.T) {
	if len(config.PushOrder) != 22 {
		t.Fatalf("PushOrder has %d entries, want 22", len(config.PushOrder))
	}
	seen := map[string]bool{}
	for _, entry := range config.PushOrder {
		if seen[entry.Mnemonic] {
			t.Errorf("duplicate mnemonic %q in PushOrder", entry.Mnemonic)
		}
		seen[entry.Mnemonic] = true
	}
}
