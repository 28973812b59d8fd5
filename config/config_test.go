package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/derktes/pi-ir/gpio"
	"github.com/derktes/pi-ir/pulse"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, DriverSerial, config.GPIO.Driver)
	assert.Equal(t, gpio.DefaultBaud, config.GPIO.Baud)
	assert.Equal(t, 17, config.Record.Pin)
	assert.Equal(t, pulse.DefaultConfirm, config.Record.Options.Confirm)
	assert.Equal(t, pulse.DefaultTolerance, config.Record.Options.Average.Tolerance)
	assert.Equal(t, pulse.DefaultMaxWidth, config.Record.Options.Listen.MaxWidth)
	assert.Equal(t, 18, config.Send.Pin)
	assert.Equal(t, pulse.DefaultInterval, config.Send.Options.Interval)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "info", config.Logging.Level)
	assert.NoError(t, config.Validate())
}

func TestSaveAndLoadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	expected := DefaultConfig()
	expected.GPIO.Driver = DriverLoopback
	expected.Record.Pin = 22
	expected.Record.Options.Confirm = 5
	expected.Record.Options.Listen.MaxWidth = 20 * time.Millisecond
	expected.Send.Options.Concurrent = true
	expected.Server.OriginPatterns = []string{"localhost:*"}
	expected.Logging.Level = "debug"

	require.NoError(t, SaveConfig(expected, configPath))
	assert.True(t, ConfigExists(configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, expected, loaded)
}

func TestLoadConfigPartialFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("record:\n  pin: 4\n  tolerance: 0.25\n  max_width: 10ms\nsend:\n  interval: 200ms\n")
	require.NoError(t, os.WriteFile(configPath, data, 0600))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 4, config.Record.Pin)
	assert.Equal(t, 0.25, config.Record.Options.Average.Tolerance)
	assert.Equal(t, 10*time.Millisecond, config.Record.Options.Listen.MaxWidth)
	assert.Equal(t, pulse.DefaultMinWidth, config.Record.Options.Listen.MinWidth)
	assert.Equal(t, 200*time.Millisecond, config.Send.Options.Interval)
	assert.Equal(t, 18, config.Send.Pin)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "does not exist")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("gpio: [unclosed"), 0600))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "failed to parse")

	pin := filepath.Join(dir, "pin.yaml")
	require.NoError(t, os.WriteFile(pin, []byte("send:\n  pin: 60\n"), 0600))
	_, err = LoadConfig(pin)
	assert.ErrorIs(t, err, gpio.ErrInvalidPin)

	driver := filepath.Join(dir, "driver.yaml")
	require.NoError(t, os.WriteFile(driver, []byte("gpio:\n  driver: spi\n"), 0600))
	_, err = LoadConfig(driver)
	assert.ErrorContains(t, err, "unknown gpio driver")
}

func TestConfigYAMLKeys(t *testing.T) {
	data, err := yaml.Marshal(DefaultConfig())
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &raw))
	assert.Contains(t, raw["record"], "confirm")
	assert.Contains(t, raw["record"], "min_width")
	assert.Contains(t, raw["send"], "frequency")
	assert.NotContains(t, raw["record"], "logger")
	assert.Equal(t, "15ms", raw["record"]["max_width"])
}

func TestNewLogger(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Level = "warn"
	log, err := config.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	config.Logging.Level = "loud"
	_, err = config.NewLogger()
	assert.Error(t, err)
}

func TestOpenLoopbackDriver(t *testing.T) {
	config := DefaultConfig()
	config.GPIO.Driver = DriverLoopback
	config.GPIO.Echo = true

	d, err := config.OpenDriver(logrus.New())
	require.NoError(t, err)
	defer d.Close()
	loop, ok := d.(*gpio.Loopback)
	require.True(t, ok)

	_, err = loop.WatchEdges(config.Record.Pin, 0)
	require.NoError(t, err)
	assert.True(t, loop.Watching(config.Record.Pin))
}

func TestOpenSerialDriverMissingPort(t *testing.T) {
	config := DefaultConfig()
	config.GPIO.Port = filepath.Join(t.TempDir(), "ttyNONE")
	d, err := config.OpenDriver(logrus.New())
	assert.Error(t, err)
	assert.Nil(t, d)
}
