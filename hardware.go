package lorafhss

import (
	"bytes"
	"sync"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// DefaultSPISpeed is within the SX1276 limit of 10MHz.
const DefaultSPISpeed = 1 * physic.MegaHertz

// Line is an interrupt input from one of the chip's DIO pins.
// gpio.PinIn satisfies it.
type Line interface {
	// WaitForEdge blocks until a rising edge or the timeout, reporting which happened.
	WaitForEdge(timeout time.Duration) bool
}

// SPIBus is a Bus over a periph.io SPI connection.
type SPIBus struct {
	mu   sync.Mutex
	conn spi.Conn
}

// NewSPIBus wraps an already connected SPI device in mode 0, 8 bits.
func NewSPIBus(conn spi.Conn) *SPIBus {
	return &SPIBus{conn: conn}
}

// ReadRegister reads a single byte from the device at the address provided.
func (b *SPIBus) ReadRegister(address byte) (byte, error) {
	rxbuf, err := b.ReadBurst(address, 1)
	if err != nil {
		return 0, err
	}
	return rxbuf[0], nil
}

// ReadBurst reads multiple bytes from the device using the address and length provided.
func (b *SPIBus) ReadBurst(address byte, length int) ([]byte, error) {
	txbuf := make([]byte, length+1)
	txbuf[0] = address & 0x7F
	rxbuf := make([]byte, len(txbuf))
	b.mu.Lock()
	err := b.conn.Tx(txbuf, rxbuf)
	b.mu.Unlock()
	if err != nil {
		return nil, errors.Wrapf(err, "spi read %#02x", address)
	}
	return rxbuf[1:], nil
}

// WriteRegister writes a single byte to the device at the address provided.
func (b *SPIBus) WriteRegister(address byte, value byte) error {
	return b.WriteBurst(address, []byte{value})
}

// WriteBurst writes multiple bytes to the device using the address and buffer provided.
func (b *SPIBus) WriteBurst(address byte, data []byte) error {
	txbuf := bytes.Join([][]byte{
		{(address & 0x7F) | 0x80},
		data,
	}, nil)
	b.mu.Lock()
	err := b.conn.Tx(txbuf, nil)
	b.mu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "spi write %#02x", address)
	}
	return nil
}

// Reset pulses the reset pin low, then waits for the chip to come back.
func Reset(pin gpio.PinOut) error {
	if err := pin.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "reset low")
	}
	time.Sleep(100 * time.Microsecond)
	if err := pin.Out(gpio.High); err != nil {
		return errors.Wrap(err, "reset high")
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// Hardware is an opened SPI port with the reset and DIO pins of one module.
// host.Init must have been called first.
type Hardware struct {
	Port  spi.PortCloser
	Bus   *SPIBus
	Reset gpio.PinIO
	DIO0  gpio.PinIO
	DIO1  gpio.PinIO
}

// HardwareConfig names the periph.io devices a module is wired to.
type HardwareConfig struct {
	SPIPort  string
	SPISpeed physic.Frequency
	ResetPin string
	DIO0Pin  string
	DIO1Pin  string
}

// OpenHardware opens the SPI port, resolves the pins and resets the module.
func OpenHardware(cfg HardwareConfig) (*Hardware, error) {
	if cfg.SPISpeed == 0 {
		cfg.SPISpeed = DefaultSPISpeed
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, errors.Wrapf(err, "open spi port %q", cfg.SPIPort)
	}
	conn, err := port.Connect(cfg.SPISpeed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, "connect spi")
	}
	hw := &Hardware{Port: port, Bus: NewSPIBus(conn)}
	pins := []struct {
		name string
		dst  *gpio.PinIO
	}{
		{cfg.ResetPin, &hw.Reset},
		{cfg.DIO0Pin, &hw.DIO0},
		{cfg.DIO1Pin, &hw.DIO1},
	}
	for _, p := range pins {
		pin := gpioreg.ByName(p.name)
		if pin == nil {
			port.Close()
			return nil, errors.Errorf("gpio %q not found", p.name)
		}
		*p.dst = pin
	}
	if err := hw.Reset.Out(gpio.High); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "reset pin")
	}
	for _, dio := range []gpio.PinIO{hw.DIO0, hw.DIO1} {
		if err := dio.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			port.Close()
			return nil, errors.Wrapf(err, "configure %s", dio)
		}
	}
	if err := Reset(hw.Reset); err != nil {
		port.Close()
		return nil, err
	}
	return hw, nil
}

// Close releases the DIO edge detection and the SPI port.
func (hw *Hardware) Close() error {
	for _, dio := range []gpio.PinIO{hw.DIO0, hw.DIO1} {
		dio.In(gpio.PullNoChange, gpio.NoEdge)
	}
	return hw.Port.Close()
}
