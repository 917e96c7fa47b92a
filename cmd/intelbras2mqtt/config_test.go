package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/caarlos0/intelbras2mqtt/alarm"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, environ map[string]string) (Config, error) {
	t.Helper()
	return loadConfig(env.Options{Environment: environ})
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{"ALARM_PASS": "123456"})
	require.NoError(t, err)
	require.Equal(t, protocolListener, cfg.Protocol)
	require.Equal(t, "9009", cfg.Port)
	require.Equal(t, 8*time.Second, cfg.CommandTimeout)
	require.Equal(t, 5*time.Minute, cfg.pollInterval())
	require.Equal(t, "intelbras/alarm", cfg.Topic)
	require.False(t, cfg.ClearTriggeredOnDisarm)

	zones, err := cfg.zones()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, zones)

	partitions, err := cfg.partitions()
	require.NoError(t, err)
	require.Equal(t, alarm.AllPartitions, partitions)
}

func TestLoadConfigInvalid(t *testing.T) {
	for name, environ := range map[string]map[string]string{
		"missing password":   {},
		"password with zero": {"ALARM_PASS": "123450"},
		"short password":     {"ALARM_PASS": "12345"},
		"unknown protocol":   {"ALARM_PASS": "123456", "ALARM_PROTOCOL": "isecnet3"},
		"poller without ip":  {"ALARM_PASS": "123456", "ALARM_PROTOCOL": "amt8000"},
		"bad zone range":     {"ALARM_PASS": "123456", "ZONE_RANGE": "1-x"},
		"bad partition":      {"ALARM_PASS": "123456", "PARTITIONS": "A,E"},
		"zero polling":       {"ALARM_PASS": "123456", "POLLING_INTERVAL_MINUTES": "0"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, environ)
			var cerr *alarm.ConfigError
			require.True(t, errors.As(err, &cerr), "got %v", err)
		})
	}

	t.Run("bad duration", func(t *testing.T) {
		_, err := load(t, map[string]string{"ALARM_PASS": "123456", "COMMAND_TIMEOUT": "soon"})
		require.Error(t, err)
	})
}

func TestLoadConfigNoPartitions(t *testing.T) {
	file := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(file, []byte("partitions: []\n"), 0o600))

	_, err := load(t, map[string]string{"CONFIG_FILE": file, "ALARM_PASS": "123456"})
	var cerr *alarm.ConfigError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	require.Equal(t, "PARTITIONS", cerr.Field)

	t.Run("amt8000 does not need partitions", func(t *testing.T) {
		_, err := load(t, map[string]string{
			"CONFIG_FILE":    file,
			"ALARM_PASS":     "123456",
			"ALARM_PROTOCOL": "amt8000",
			"ALARM_IP":       "192.168.1.20",
		})
		require.NoError(t, err)
	})
}

func TestLoadConfigOptionsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "options.json")
	require.NoError(t, os.WriteFile(file, []byte(`{
  "alarm_protocol": "amt8000",
  "alarm_ip": "192.168.1.20",
  "alarm_pass": "654321",
  "zone_range": "1-4,17-18",
  "command_timeout": "3s",
  "clear_triggered_on_disarm": true
}`), 0o600))

	cfg, err := load(t, map[string]string{
		"CONFIG_FILE": file,
		"ALARM_PASS":  "123456",
		"BASE_TOPIC":  "home/alarm",
	})
	require.NoError(t, err)
	require.Equal(t, protocolPoller, cfg.Protocol)
	require.Equal(t, "192.168.1.20", cfg.Host)
	require.Equal(t, "654321", cfg.Password)
	require.Equal(t, 3*time.Second, cfg.CommandTimeout)
	require.True(t, cfg.ClearTriggeredOnDisarm)
	require.Equal(t, "home/alarm", cfg.Topic)

	zones, err := cfg.zones()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 17, 18}, zones)
}

func TestLoadConfigMissingOptionsFile(t *testing.T) {
	_, err := load(t, map[string]string{
		"CONFIG_FILE": filepath.Join(t.TempDir(), "nope.yaml"),
		"ALARM_PASS":  "123456",
	})
	require.ErrorIs(t, err, os.ErrNotExist)
}
