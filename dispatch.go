package lorafhss

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// edgePollInterval bounds how long a line watcher blocks before checking for shutdown.
const edgePollInterval = 100 * time.Millisecond

// interruptQueueSize is how many serviced interrupts may wait for the event goroutine.
const interruptQueueSize = 8

// interrupt is a serviced TxDone or RxDone with the registers captured
// while the chip still held them.
type interrupt struct {
	flags   byte
	frame   []byte
	rawSNR  byte
	rawRSSI byte
}

func (i interrupt) txDone() bool   { return i.flags&IRQ_FLAGS_TX_DONE != 0 }
func (i interrupt) crcError() bool { return i.flags&IRQ_FLAGS_PAYLOAD_CRC != 0 }

// dispatcher is the single interrupt entry point for both DIO lines.
// Hop changes are handled in place; transmit and receive completions are
// queued so the protocol engine and application callbacks never run here.
type dispatcher struct {
	bus   Bus
	modes *modeController
	hop   *hopSynchronizer
	log   logrus.FieldLogger
	queue chan interrupt

	mu sync.Mutex
}

func newDispatcher(bus Bus, modes *modeController, hop *hopSynchronizer, log logrus.FieldLogger) *dispatcher {
	return &dispatcher{
		bus:   bus,
		modes: modes,
		hop:   hop,
		log:   log,
		queue: make(chan interrupt, interruptQueueSize),
	}
}

// Handle services one interrupt. It reads the flags once and clears them
// all before acting, so the line can rise again for the next event.
func (d *dispatcher) Handle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	flags, err := d.bus.ReadRegister(REGISTERS_IRQ_FLAGS)
	if err != nil {
		d.log.WithError(err).Error("read irq flags")
		return
	}
	if err := d.bus.WriteRegister(REGISTERS_IRQ_FLAGS, 0xFF); err != nil {
		d.log.WithError(err).Error("clear irq flags")
		return
	}
	switch {
	case flags&IRQ_FLAGS_TX_DONE != 0:
		d.enqueue(interrupt{flags: flags})
	case flags&IRQ_FLAGS_RX_DONE != 0:
		irq, err := d.snapshot(flags)
		if err != nil {
			d.log.WithError(err).Error("read received packet")
			return
		}
		d.enqueue(irq)
	case flags&IRQ_FLAGS_FHSS_CHANGE_CH != 0:
		if mode := d.modes.Current(); !mode.hopping() {
			d.log.WithField("mode", mode).Debug("hop interrupt outside tx/rx")
			return
		}
		channel, err := d.hop.Resync()
		if err != nil {
			d.log.WithError(err).Error("hop resync")
			return
		}
		d.log.WithField("channel", channel).Debug("hopped")
	case flags == 0:
		d.log.Debug("interrupt with no flags pending")
	default:
		d.log.WithField("irq_flags", fmt.Sprintf("%#08b", flags)).Warn("unrecognized interrupt")
	}
}

// snapshot copies the received frame and its signal report out of the chip.
// A packet that failed its CRC is not read.
func (d *dispatcher) snapshot(flags byte) (interrupt, error) {
	irq := interrupt{flags: flags}
	if irq.crcError() {
		return irq, nil
	}
	current, err := d.bus.ReadRegister(REGISTERS_FIFO_RX_CURRENT_ADDR)
	if err != nil {
		return irq, err
	}
	if err := d.bus.WriteRegister(REGISTERS_FIFO_ADDR_PTR, current); err != nil {
		return irq, err
	}
	length, err := d.bus.ReadRegister(REGISTERS_RX_NB_BYTES)
	if err != nil {
		return irq, err
	}
	if irq.frame, err = d.bus.ReadBurst(REGISTERS_FIFO, int(length)); err != nil {
		return irq, err
	}
	if irq.rawSNR, err = d.bus.ReadRegister(REGISTERS_PKT_SNR_VALUE); err != nil {
		return irq, err
	}
	if irq.rawRSSI, err = d.bus.ReadRegister(REGISTERS_PKT_RSSI_VALUE); err != nil {
		return irq, err
	}
	return irq, nil
}

func (d *dispatcher) enqueue(irq interrupt) {
	select {
	case d.queue <- irq:
	default:
		d.log.WithField("irq_flags", fmt.Sprintf("%#08b", irq.flags)).Warn("interrupt queue full, event dropped")
	}
}

// watch calls Handle on every rising edge of line until stop is closed.
func (d *dispatcher) watch(line Line, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if line.WaitForEdge(edgePollInterval) {
			d.Handle()
		}
	}
}
