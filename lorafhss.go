// Package lorafhss drives an SX1276 LoRa transceiver as a frequency-hopping
// packet link with acknowledged requests and broadcasts.
//
// Every node on a link is configured with the same FrequencyTable. The chip
// hops channel every HopPeriod symbols and interrupts on DIO1; the node
// reprograms the carrier from the table before the next hop. TxDone and
// RxDone arrive on DIO0 and drive the request/acknowledge state machine.
//
// Datasheet: https://www.semtech.com/products/wireless-rf/lora-connect/sx1276
package lorafhss

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options are the options for a Node.
type Options struct {
	// ID is this node's identity on the shared channel.
	ID uint16
	// Table is the hopping sequence. It is required.
	Table FrequencyTable
	// Retry is the number of transmit attempts for a request. WithRetry
	// overrides it for one call.
	Retry int
	// Timeout is how long each attempt waits for its acknowledgement.
	// WithTimeout overrides it for one call.
	Timeout time.Duration
	// Relisten returns the node to continuous receive after it finishes
	// sending an acknowledgement or broadcast.
	Relisten bool
	// Handler receives inbound packets and transmit completions.
	Handler Handler
	Logger  logrus.FieldLogger
}

// defaultOptions are the defaults used for fields not set in Options.
var defaultOptions = Options{
	Retry:   5,
	Timeout: 3 * time.Second,
	Handler: HandlerFuncs{},
}

// State is the protocol engine's progress through its current operation.
type State uint8

const (
	Idle State = iota
	AwaitingTransmitDone
	AwaitingAcknowledge
	Done
)

var stateNames = [...]string{"idle", "awaiting-tx-done", "awaiting-ack", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Node is one transceiver running the link protocol.
type Node struct {
	options Options
	bus     Bus
	lines   []Line
	log     logrus.FieldLogger

	avail *availability
	hop   *hopSynchronizer
	modes *modeController
	irq   *dispatcher

	// sendMu serializes application sends.
	sendMu sync.Mutex

	// mu guards the protocol state below.
	mu          sync.Mutex
	state       State
	requesting  bool
	outstanding uint16
	acked       chan struct{}
	txKind      Kind
	txDone      chan struct{}
	// pendingAcks are acknowledgements owed while the chip was transmitting.
	pendingAcks []Header

	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a node on a configured chip. Interrupts are serviced when
// any of lines, normally DIO0 and DIO1, sees a rising edge.
func New(bus Bus, opts Options, lines ...Line) (*Node, error) {
	if opts.Table.Len() == 0 {
		return nil, ErrEmptyFrequencyTable
	}
	options := defaultOptions
	options.ID = opts.ID
	options.Table = opts.Table
	options.Relisten = opts.Relisten
	if opts.Retry > 0 {
		options.Retry = opts.Retry
	}
	if opts.Timeout > 0 {
		options.Timeout = opts.Timeout
	}
	if opts.Handler != nil {
		options.Handler = opts.Handler
	}
	if opts.Logger != nil {
		options.Logger = opts.Logger
	} else {
		discard := logrus.New()
		discard.Out = io.Discard
		options.Logger = discard
	}

	n := &Node{
		options: options,
		bus:     bus,
		lines:   lines,
		log:     options.Logger.WithField("node", options.ID),
		avail:   newAvailability(),
		stop:    make(chan struct{}),
	}
	n.hop = &hopSynchronizer{bus: bus, table: options.Table}
	n.modes = &modeController{bus: bus, hop: n.hop, avail: n.avail, log: n.log}
	n.irq = newDispatcher(bus, n.modes, n.hop, n.log)
	return n, nil
}

// ID returns the node identity.
func (n *Node) ID() uint16 {
	return n.options.ID
}

// Start puts the chip in standby and begins servicing interrupts.
func (n *Node) Start() error {
	var err error
	n.startOnce.Do(func() {
		select {
		case <-n.stop:
			err = ErrClosed
			return
		default:
		}
		if err = n.modes.Set(Standby); err != nil {
			err = errors.Wrap(err, "enter standby")
			return
		}
		for _, line := range n.lines {
			n.wg.Add(1)
			go func(line Line) {
				defer n.wg.Done()
				n.irq.watch(line, n.stop)
			}(line)
		}
		n.wg.Add(1)
		go n.drain()
		n.log.WithField("channels", n.options.Table.Len()).Info("node started")
	})
	return err
}

// Close stops interrupt servicing and leaves the chip in standby.
func (n *Node) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.stop)
		n.wg.Wait()
		err = n.modes.Set(Standby)
		n.avail.set(true)
	})
	return err
}

// Handle services a pending interrupt. Line watchers call it on every
// edge; hosts that deliver interrupts some other way may call it directly.
func (n *Node) Handle() {
	n.irq.Handle()
}

// drain feeds queued interrupts to the protocol engine.
func (n *Node) drain() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stop:
			return
		case irq := <-n.irq.queue:
			if irq.txDone() {
				n.onTransmitDone()
			} else {
				n.onReceive(irq)
			}
		}
	}
}

// Available reports whether the transceiver is free: no transmission or
// continuous receive is in progress.
func (n *Node) Available() bool {
	return n.avail.get()
}

// Mode returns the transceiver's operating mode.
func (n *Node) Mode() Mode {
	return n.modes.Current()
}

// State returns the protocol engine state.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Outstanding returns the packet ID of the pending request, or 0.
func (n *Node) Outstanding() uint16 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.outstanding
}
