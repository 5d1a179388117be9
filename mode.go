package lorafhss

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Mode is a LoRa operating mode, valued as the RegOpMode mode bits.
type Mode byte

const (
	Sleep                 Mode = OP_MODES_SLEEP
	Standby               Mode = OP_MODES_STANDBY
	Transmit              Mode = OP_MODES_TRANSMIT
	ReceiveContinuous     Mode = OP_MODES_RXCONT
	ReceiveSingle         Mode = OP_MODES_RXSINGLE
	ChannelActivityDetect Mode = OP_MODES_CAD
)

func (m Mode) String() string {
	switch m {
	case Sleep:
		return "sleep"
	case Standby:
		return "standby"
	case Transmit:
		return "transmit"
	case ReceiveContinuous:
		return "rx-continuous"
	case ReceiveSingle:
		return "rx-single"
	case ChannelActivityDetect:
		return "cad"
	}
	return fmt.Sprintf("mode(%d)", byte(m))
}

// hopping reports whether the chip follows the hop sequence in this mode.
func (m Mode) hopping() bool {
	return m == Transmit || m == ReceiveContinuous
}

// Event is a chip condition that can be routed to a DIO line.
type Event uint8

const (
	EventNone Event = iota
	EventRxDone
	EventTxDone
	EventCadDone
	EventRxTimeout
	EventHopChanged
	EventCadDetected
)

var eventNames = [...]string{"none", "rx-done", "tx-done", "cad-done", "rx-timeout", "hop-changed", "cad-detected"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

// dioMappings holds the RegDioMapping1 bits for each event on DIO0 to DIO2.
// DIO2 can only signal FhssChangeChannel in LoRa mode.
var dioMappings = [3]map[Event]byte{
	{EventRxDone: 0b00 << 6, EventTxDone: 0b01 << 6, EventCadDone: 0b10 << 6},
	{EventRxTimeout: 0b00 << 4, EventHopChanged: 0b01 << 4, EventCadDetected: 0b10 << 4},
	{EventHopChanged: 0b00 << 2},
}

// dioMapping builds a RegDioMapping1 value routing events[i] to DIO line i.
func dioMapping(events ...Event) (byte, error) {
	var mapping byte
	for line, event := range events {
		if event == EventNone {
			continue
		}
		if line >= len(dioMappings) {
			return 0, fmt.Errorf("DIO%d cannot be routed", line)
		}
		bits, ok := dioMappings[line][event]
		if !ok {
			return 0, fmt.Errorf("DIO%d cannot signal %s", line, event)
		}
		mapping |= bits
	}
	return mapping, nil
}

var (
	transmitRouting, _ = dioMapping(EventTxDone, EventHopChanged)
	receiveRouting, _  = dioMapping(EventRxDone, EventHopChanged)
)

// modeController owns the transceiver's operating state. Everything else
// changes modes through it so the half-duplex rule lives in one place.
type modeController struct {
	bus   Bus
	hop   *hopSynchronizer
	avail *availability
	log   logrus.FieldLogger

	mu    sync.Mutex
	mode  Mode
	known bool
}

// Set moves the chip into mode m. Setting the current mode does nothing.
func (c *modeController) Set(m Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known && c.mode == m {
		return nil
	}
	var routing byte
	switch m {
	case Transmit:
		routing = transmitRouting
	case ReceiveContinuous:
		routing = receiveRouting
	}
	if m.hopping() {
		if _, err := c.hop.Resync(); err != nil {
			return err
		}
	}
	if err := c.bus.WriteRegister(REGISTERS_DIO_MAPPING_1, routing); err != nil {
		return err
	}
	if m.hopping() {
		c.avail.set(false)
	}
	// The mode write goes last: it starts the operation and may raise an interrupt at once.
	if err := writeBits(c.bus, REGISTERS_OP_MODE, 3, 0, byte(m)); err != nil {
		return err
	}
	c.log.WithField("mode", m).Debug("mode changed")
	c.mode = m
	c.known = true
	return nil
}

// observe records a transition the chip made on its own, such as the
// return to standby after TxDone.
func (c *modeController) observe(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.known = true
	c.mu.Unlock()
}

// Current returns the last mode set or observed.
func (c *modeController) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}
