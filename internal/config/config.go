// Package config loads the node configuration used by the lorafhss command.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/headblockhead/lorafhss"
)

// Config holds one node's link, radio and wiring settings.
type Config struct {
	NodeID   uint16        `yaml:"node_id"`
	Retry    int           `yaml:"retry"`
	Timeout  time.Duration `yaml:"timeout"`
	Relisten bool          `yaml:"relisten"`
	Debug    bool          `yaml:"debug"`

	// Frequencies is an explicit hopping table in Hz. When empty the table
	// comes from Generate.
	Frequencies []uint32  `yaml:"frequencies"`
	Generate    Generator `yaml:"generate"`

	Radio    Radio    `yaml:"radio"`
	Hardware Hardware `yaml:"hardware"`
	Relay    Relay    `yaml:"relay"`
}

// Generator derives a table of Count channels from a shared seed.
type Generator struct {
	Seed     uint64 `yaml:"seed"`
	BaseHz   uint32 `yaml:"base_hz"`
	StepHz   uint32 `yaml:"step_hz"`
	Channels int    `yaml:"channels"`
	Count    int    `yaml:"count"`
}

// Radio is the modem setup. Zero values use the driver defaults.
type Radio struct {
	FrequencyHz     uint32 `yaml:"frequency_hz"`
	BandwidthHz     int    `yaml:"bandwidth_hz"`
	SpreadingFactor byte   `yaml:"spreading_factor"`
	CodingRate      byte   `yaml:"coding_rate"`
	PreambleLength  uint16 `yaml:"preamble_length"`
	HopPeriod       byte   `yaml:"hop_period"`
	TxPowerDb       int    `yaml:"tx_power_db"`
	Plus20dBm       bool   `yaml:"plus20dbm"`
}

// Hardware names the periph.io SPI port and pins the module is wired to.
type Hardware struct {
	SPIPort  string `yaml:"spi_port"`
	ResetPin string `yaml:"reset_pin"`
	DIO0Pin  string `yaml:"dio0_pin"`
	DIO1Pin  string `yaml:"dio1_pin"`
}

// Relay publishes received packets to Redis when Addr is set.
type Relay struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// Default returns the configuration used when no file exists: node 0 on a
// 914 to 916MHz table wired to a Raspberry Pi.
func Default() *Config {
	return &Config{
		Retry:   5,
		Timeout: 3 * time.Second,
		Generate: Generator{
			Seed:     11,
			BaseHz:   914000000,
			StepHz:   200000,
			Channels: 11,
			Count:    lorafhss.MaxHopChannels,
		},
		Radio: Radio{FrequencyHz: 915000000},
		Hardware: Hardware{
			SPIPort:  "/dev/spidev0.0",
			ResetPin: "GPIO25",
			DIO0Pin:  "GPIO24",
			DIO1Pin:  "GPIO23",
		},
		Relay: Relay{Channel: "lorafhss"},
	}
}

// DefaultPath returns the default config file path: ~/.lorafhss/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".lorafhss", "config.yaml")
	}
	return filepath.Join(home, ".lorafhss", "config.yaml")
}

// Load reads the configuration from the given YAML file path over Default.
// If the file does not exist, it returns Default with no error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", path)
	}
	return cfg, nil
}

// Validate checks the settings that cannot be caught later by the driver.
func (c *Config) Validate() error {
	if c.Retry < 1 {
		return errors.Errorf("retry must be at least 1, got %d", c.Retry)
	}
	if c.Timeout <= 0 {
		return errors.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Relay.Addr != "" && c.Relay.Channel == "" {
		return errors.New("relay channel is required with a relay address")
	}
	_, err := c.Table()
	return err
}

// Table builds the hopping table.
func (c *Config) Table() (lorafhss.FrequencyTable, error) {
	if len(c.Frequencies) > 0 {
		return lorafhss.NewFrequencyTable(c.Frequencies...)
	}
	g := c.Generate
	return lorafhss.GenerateFrequencyTable(g.Seed, g.BaseHz, g.StepHz, g.Channels, g.Count)
}

// ModemConfig returns the radio settings for lorafhss.Configure.
func (c *Config) ModemConfig() lorafhss.ModemConfig {
	return lorafhss.ModemConfig{
		FrequencyHz:     c.Radio.FrequencyHz,
		BandwidthHz:     c.Radio.BandwidthHz,
		CodingRate:      c.Radio.CodingRate,
		SpreadingFactor: c.Radio.SpreadingFactor,
		PreambleLength:  c.Radio.PreambleLength,
		HopPeriod:       c.Radio.HopPeriod,
		TxPowerDb:       c.Radio.TxPowerDb,
		Plus20dBm:       c.Radio.Plus20dBm,
	}
}

// HardwareConfig returns the wiring for lorafhss.OpenHardware.
func (c *Config) HardwareConfig() lorafhss.HardwareConfig {
	return lorafhss.HardwareConfig{
		SPIPort:  c.Hardware.SPIPort,
		ResetPin: c.Hardware.ResetPin,
		DIO0Pin:  c.Hardware.DIO0Pin,
		DIO1Pin:  c.Hardware.DIO1Pin,
	}
}
