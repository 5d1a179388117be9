package lorafhss

import (
	"github.com/pkg/errors"
)

// ModemConfig is the one-time LoRa modem setup applied by Configure.
// Zero fields take their value from defaultModemConfig.
type ModemConfig struct {
	// FrequencyHz selects the low or high frequency register bank. The carrier
	// itself is programmed from the frequency table on every hop.
	FrequencyHz     uint32
	BandwidthHz     int
	CodingRate      byte
	SpreadingFactor byte
	PreambleLength  uint16
	// HopPeriod is the dwell time on each channel, in symbols. FCC rules cap
	// dwell at 400ms; with SF10 at 125kHz one symbol is 8.192ms.
	HopPeriod byte
	// TxPowerDb is the PA_BOOST output, 2 to 17 dBm.
	TxPowerDb int
	// Plus20dBm enables the +20dBm PA_BOOST option and overrides TxPowerDb.
	Plus20dBm bool

	DisableCRC                 bool
	DisableAGC                 bool
	DisableLowDataRateOptimize bool
}

// defaultModemConfig matches SF10 at 125kHz with a 20 symbol hop period.
var defaultModemConfig = ModemConfig{
	FrequencyHz:     915000000,
	BandwidthHz:     125000,
	CodingRate:      5,
	SpreadingFactor: 10,
	PreambleLength:  8,
	HopPeriod:       20,
	TxPowerDb:       2,
}

var (
	BANDWIDTHS        = []int{7800, 10400, 15600, 20800, 31250, 41700, 62500, 125000, 250000}
	BW_REG_2F_OFFSETS = []byte{0x48, 0x44, 0x44, 0x44, 0x44, 0x44, 0x40, 0x40, 0x40}
)

func (c ModemConfig) withDefaults() ModemConfig {
	out := defaultModemConfig
	if c.FrequencyHz != 0 {
		out.FrequencyHz = c.FrequencyHz
	}
	if c.BandwidthHz != 0 {
		out.BandwidthHz = c.BandwidthHz
	}
	if c.CodingRate != 0 {
		out.CodingRate = c.CodingRate
	}
	if c.SpreadingFactor != 0 {
		out.SpreadingFactor = c.SpreadingFactor
	}
	if c.PreambleLength != 0 {
		out.PreambleLength = c.PreambleLength
	}
	if c.HopPeriod != 0 {
		out.HopPeriod = c.HopPeriod
	}
	if c.TxPowerDb != 0 {
		out.TxPowerDb = c.TxPowerDb
	}
	out.Plus20dBm = c.Plus20dBm
	out.DisableCRC = c.DisableCRC
	out.DisableAGC = c.DisableAGC
	out.DisableLowDataRateOptimize = c.DisableLowDataRateOptimize
	return out
}

// Configure checks the chip identity, puts it in LoRa mode and writes the
// modem settings. It leaves the chip in standby.
func Configure(bus Bus, cfg ModemConfig) error {
	cfg = cfg.withDefaults()
	version, err := bus.ReadRegister(REGISTERS_VERSION)
	if err != nil {
		return err
	}
	if version == 0 {
		return ErrNotDetected
	} else if version != CHIP_VERSION {
		return errors.Wrapf(ErrUnsupportedVersion, "version %#02x", version)
	}
	// LoRa mode can only be selected in sleep mode.
	if err := bus.WriteRegister(REGISTERS_OP_MODE, OP_MODES_SLEEP|1<<7); err != nil {
		return err
	}
	mode, err := readBits(bus, REGISTERS_OP_MODE, 3, 0)
	if err != nil {
		return err
	}
	longRange, err := readBits(bus, REGISTERS_OP_MODE, 1, 7)
	if err != nil {
		return err
	}
	if mode != OP_MODES_SLEEP || longRange != 1 {
		return errors.Wrapf(ErrReadback, "op mode %03b, long range %d", mode, longRange)
	}
	if err := writeBits(bus, REGISTERS_OP_MODE, 1, 3, boolToByte(cfg.FrequencyHz <= 525000000)); err != nil {
		return err
	}
	// Tx and Rx share the whole 256 byte FIFO.
	if err := bus.WriteRegister(REGISTERS_FIFO_TX_BASE_ADDR, 0); err != nil {
		return err
	}
	if err := bus.WriteRegister(REGISTERS_FIFO_RX_BASE_ADDR, 0); err != nil {
		return err
	}
	if err := writeBits(bus, REGISTERS_OP_MODE, 3, 0, OP_MODES_STANDBY); err != nil {
		return err
	}
	steps := []func() error{
		func() error { return setPreambleLength(bus, cfg.PreambleLength) },
		func() error { return setBandwidth(bus, cfg.BandwidthHz, cfg.FrequencyHz) },
		func() error { return setCodingRate(bus, cfg.CodingRate) },
		func() error { return setSpreadingFactor(bus, cfg.SpreadingFactor) },
		func() error { return writeBits(bus, REGISTERS_MODEM_CONFIG_1, 1, 0, 0) }, // explicit header
		func() error { return writeBits(bus, REGISTERS_MODEM_CONFIG_2, 1, 2, boolToByte(!cfg.DisableCRC)) },
		func() error {
			return writeBits(bus, REGISTERS_MODEM_CONFIG_3, 1, 3, boolToByte(!cfg.DisableLowDataRateOptimize))
		},
		func() error { return writeBits(bus, REGISTERS_MODEM_CONFIG_3, 1, 2, boolToByte(!cfg.DisableAGC)) },
		func() error { return bus.WriteRegister(REGISTERS_HOP_PERIOD, cfg.HopPeriod) },
		func() error { return setTxPower(bus, cfg.TxPowerDb, cfg.Plus20dBm) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func setPreambleLength(bus Bus, preambleLength uint16) error {
	if err := bus.WriteRegister(REGISTERS_PREAMBLE_MSB, byte(preambleLength>>8)); err != nil {
		return err
	}
	return bus.WriteRegister(REGISTERS_PREAMBLE_LSB, byte(preambleLength))
}

// setBandwidth picks the lowest bandwidth setting at or above bandwidthHz and
// applies the SX1276 errata 2.1 and 2.3 register fixes.
func setBandwidth(bus Bus, bandwidthHz int, frequencyHz uint32) error {
	// bandwidthID is len(BANDWIDTHS), i.e. 500kHz, if none is found.
	var bandwidthID int
	for bandwidthID = 0; bandwidthID < len(BANDWIDTHS); bandwidthID++ {
		if bandwidthHz <= BANDWIDTHS[bandwidthID] {
			break
		}
	}
	if err := writeBits(bus, REGISTERS_MODEM_CONFIG_1, 4, 4, byte(bandwidthID)); err != nil {
		return err
	}
	if bandwidthID < len(BANDWIDTHS) {
		if err := writeBits(bus, 0x31, 1, 7, 0); err != nil {
			return err
		}
		if err := bus.WriteRegister(0x2F, BW_REG_2F_OFFSETS[bandwidthID]); err != nil {
			return err
		}
		if err := bus.WriteRegister(0x30, 0); err != nil {
			return err
		}
		return bus.WriteRegister(0x36, 0x03)
	}
	if err := writeBits(bus, 0x31, 1, 7, 1); err != nil {
		return err
	}
	if err := bus.WriteRegister(0x36, 0x02); err != nil {
		return err
	}
	if frequencyHz <= 525000000 {
		return bus.WriteRegister(0x3A, 0x7F)
	}
	return bus.WriteRegister(0x3A, 0x64)
}

func setSpreadingFactor(bus Bus, sf byte) error {
	// Spreading factor 6 needs implicit header mode, which the framing does not use.
	if sf < 7 || sf > 12 {
		return errors.Errorf("invalid spreading factor %d", sf)
	}
	if err := writeBits(bus, 0x31, 3, 0, 0b011); err != nil {
		return err
	}
	if err := bus.WriteRegister(0x37, 0x0A); err != nil {
		return err
	}
	return writeBits(bus, REGISTERS_MODEM_CONFIG_2, 4, 4, sf)
}

func setCodingRate(bus Bus, codingRate byte) error {
	if codingRate < 5 || codingRate > 8 {
		return errors.Errorf("invalid coding rate 4/%d", codingRate)
	}
	return writeBits(bus, REGISTERS_MODEM_CONFIG_1, 3, 1, codingRate-4)
}

// setTxPower always uses PA_BOOST, where Pout = 2 + OutputPower, or
// 5 + OutputPower with the +20dBm DAC enabled.
func setTxPower(bus Bus, txPowerDb int, plus20dBm bool) error {
	var outputPower byte
	if plus20dBm {
		if err := bus.WriteRegister(REGISTERS_PA_DAC, 0x87); err != nil {
			return err
		}
		outputPower = 0x0F
	} else {
		if txPowerDb < 2 || txPowerDb > 17 {
			return errors.Errorf("invalid TX power %d dBm", txPowerDb)
		}
		if err := bus.WriteRegister(REGISTERS_PA_DAC, 0x84); err != nil {
			return err
		}
		outputPower = byte(txPowerDb - 2)
	}
	// PaSelect PA_BOOST, MaxPower 7.
	return bus.WriteRegister(REGISTERS_PA_CONFIG, 1<<7|0x7<<4|outputPower)
}
