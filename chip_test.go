package lorafhss

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// fakeLine is a DIO pin whose edges are raised by fakeChip.
type fakeLine struct {
	edges chan struct{}
}

func newFakeLine() *fakeLine {
	return &fakeLine{edges: make(chan struct{}, 16)}
}

func (l *fakeLine) WaitForEdge(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.edges:
		return true
	case <-timer.C:
		return false
	}
}

func (l *fakeLine) rise() {
	select {
	case l.edges <- struct{}{}:
	default:
	}
}

// fakeChip is an SX1276 register file with enough behaviour for the
// protocol: FIFO pointer, write-one-to-clear IRQ flags, DIO routing, and
// transmissions delivered through an ether after an airtime.
type fakeChip struct {
	mu    sync.Mutex
	regs  [0x80]byte
	fifo  [256]byte
	dio   [2]*fakeLine
	ether *ether
	gen   int

	// stuckOpMode ignores writes to RegOpMode, failing the LoRa readback.
	stuckOpMode bool
	// failFIFO fails burst writes to the FIFO.
	failFIFO bool

	transmissions [][]byte
	heard         [][]byte
	opModeWrites  int
}

func newFakeChip() *fakeChip {
	c := &fakeChip{dio: [2]*fakeLine{newFakeLine(), newFakeLine()}}
	c.regs[REGISTERS_VERSION] = CHIP_VERSION
	c.regs[REGISTERS_OP_MODE] = 1<<7 | OP_MODES_STANDBY
	return c
}

func (c *fakeChip) ReadRegister(address byte) (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(address), nil
}

func (c *fakeChip) readLocked(address byte) byte {
	if address == REGISTERS_FIFO {
		v := c.fifo[c.regs[REGISTERS_FIFO_ADDR_PTR]]
		c.regs[REGISTERS_FIFO_ADDR_PTR]++
		return v
	}
	return c.regs[address&0x7F]
}

func (c *fakeChip) ReadBurst(address byte, length int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, length)
	for i := range out {
		out[i] = c.readLocked(address)
		if address != REGISTERS_FIFO {
			address++
		}
	}
	return out, nil
}

func (c *fakeChip) WriteRegister(address byte, value byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLocked(address, value)
	return nil
}

var errFIFOWrite = errors.New("fifo write failed")

func (c *fakeChip) WriteBurst(address byte, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFIFO && address == REGISTERS_FIFO {
		return errFIFOWrite
	}
	for _, v := range data {
		c.writeLocked(address, v)
		if address != REGISTERS_FIFO {
			address++
		}
	}
	return nil
}

func (c *fakeChip) writeLocked(address byte, value byte) {
	switch address {
	case REGISTERS_FIFO:
		c.fifo[c.regs[REGISTERS_FIFO_ADDR_PTR]] = value
		c.regs[REGISTERS_FIFO_ADDR_PTR]++
	case REGISTERS_IRQ_FLAGS:
		c.regs[REGISTERS_IRQ_FLAGS] &^= value
	case REGISTERS_OP_MODE:
		if c.stuckOpMode {
			return
		}
		c.opModeWrites++
		old := Mode(c.regs[REGISTERS_OP_MODE] & 0b111)
		c.regs[REGISTERS_OP_MODE] = value
		mode := Mode(value & 0b111)
		if mode == old {
			return
		}
		c.gen++
		if mode == Transmit {
			base := int(c.regs[REGISTERS_FIFO_TX_BASE_ADDR])
			frame := make([]byte, c.regs[REGISTERS_PAYLOAD_LENGTH])
			copy(frame, c.fifo[base:])
			c.transmissions = append(c.transmissions, frame)
			gen := c.gen
			time.AfterFunc(c.airtime(), func() { c.finishTransmit(gen, frame) })
		}
	case REGISTERS_VERSION:
	default:
		c.regs[address&0x7F] = value
	}
}

func (c *fakeChip) airtime() time.Duration {
	if c.ether != nil {
		return c.ether.airtime
	}
	return 50 * time.Millisecond
}

func (c *fakeChip) finishTransmit(gen int, frame []byte) {
	c.mu.Lock()
	if c.gen != gen {
		// Left transmit mode before the packet went out.
		c.mu.Unlock()
		return
	}
	c.regs[REGISTERS_OP_MODE] = c.regs[REGISTERS_OP_MODE]&^0b111 | OP_MODES_STANDBY
	c.gen++
	c.regs[REGISTERS_IRQ_FLAGS] |= IRQ_FLAGS_TX_DONE
	if c.regs[REGISTERS_DIO_MAPPING_1]>>6 == 0b01 {
		c.dio[0].rise()
	}
	c.mu.Unlock()
	if c.ether != nil {
		c.ether.deliver(c, frame)
	}
}

// receive puts frame in the FIFO as if it had just arrived, if the chip is listening.
func (c *fakeChip) receive(frame []byte, crcError bool, rawSNR, rawRSSI byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if Mode(c.regs[REGISTERS_OP_MODE]&0b111) != ReceiveContinuous {
		return false
	}
	c.heard = append(c.heard, frame)
	base := c.regs[REGISTERS_FIFO_RX_BASE_ADDR]
	copy(c.fifo[base:], frame)
	c.regs[REGISTERS_FIFO_RX_CURRENT_ADDR] = base
	c.regs[REGISTERS_RX_NB_BYTES] = byte(len(frame))
	c.regs[REGISTERS_PKT_SNR_VALUE] = rawSNR
	c.regs[REGISTERS_PKT_RSSI_VALUE] = rawRSSI
	c.regs[REGISTERS_IRQ_FLAGS] |= IRQ_FLAGS_RX_DONE | IRQ_FLAGS_VALID_HEADER
	if crcError {
		c.regs[REGISTERS_IRQ_FLAGS] |= IRQ_FLAGS_PAYLOAD_CRC
	}
	if c.regs[REGISTERS_DIO_MAPPING_1]>>6 == 0b00 {
		c.dio[0].rise()
	}
	return true
}

// hopTo moves FhssPresentChannel and raises FhssChangeChannel.
func (c *fakeChip) hopTo(channel byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[REGISTERS_HOP_CHANNEL] = c.regs[REGISTERS_HOP_CHANNEL]&^HOP_CHANNEL_MASK | channel&HOP_CHANNEL_MASK
	c.regs[REGISTERS_IRQ_FLAGS] |= IRQ_FLAGS_FHSS_CHANGE_CH
	if (c.regs[REGISTERS_DIO_MAPPING_1]>>4)&0b11 == 0b01 {
		c.dio[1].rise()
	}
}

func (c *fakeChip) setFlags(flags byte) {
	c.mu.Lock()
	c.regs[REGISTERS_IRQ_FLAGS] |= flags
	c.mu.Unlock()
}

func (c *fakeChip) reg(address byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[address]
}

func (c *fakeChip) frf() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(c.regs[REGISTERS_FRF_MSB])<<16 | uint32(c.regs[REGISTERS_FRF_MID])<<8 | uint32(c.regs[REGISTERS_FRF_LSB])
}

func (c *fakeChip) setFailFIFO(fail bool) {
	c.mu.Lock()
	c.failFIFO = fail
	c.mu.Unlock()
}

func (c *fakeChip) mode() Mode {
	return Mode(c.reg(REGISTERS_OP_MODE) & 0b111)
}

func (c *fakeChip) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.transmissions...)
}

// received returns every frame the chip was listening for.
func (c *fakeChip) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.heard...)
}

// ether connects fake chips. Every listening chip other than the sender hears a transmission.
type ether struct {
	mu      sync.Mutex
	chips   []*fakeChip
	airtime time.Duration
	// corrupt marks the next n deliveries with a payload CRC error.
	corrupt int
}

func newEther(chips ...*fakeChip) *ether {
	e := &ether{airtime: 5 * time.Millisecond}
	for _, c := range chips {
		e.chips = append(e.chips, c)
		c.ether = e
	}
	return e
}

func (e *ether) deliver(from *fakeChip, frame []byte) {
	e.mu.Lock()
	crcError := e.corrupt > 0
	if crcError {
		e.corrupt--
	}
	chips := append([]*fakeChip(nil), e.chips...)
	e.mu.Unlock()
	for _, c := range chips {
		if c != from {
			c.receive(frame, crcError, 20, 100)
		}
	}
}

var testFrequencies = []uint32{914000000, 914200000, 914400000, 914600000, 914800000, 915000000, 915200000, 915400000}

func testTable(t *testing.T) FrequencyTable {
	t.Helper()
	table, err := NewFrequencyTable(testFrequencies...)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func testLogger() (*logrus.Logger, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

// newTestNode builds a node on chip without starting it.
func newTestNode(t *testing.T, chip *fakeChip, opts Options) *Node {
	t.Helper()
	if opts.Table.Len() == 0 {
		opts.Table = testTable(t)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if opts.Retry == 0 {
		opts.Retry = 3
	}
	n, err := New(chip, opts, chip.dio[0], chip.dio[1])
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

// startTestNode builds and starts a node, closing it when the test ends.
func startTestNode(t *testing.T, chip *fakeChip, opts Options) *Node {
	t.Helper()
	n := newTestNode(t, chip, opts)
	if err := n.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

// eventually polls cond until it holds or the timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf(format, args...)
		}
		time.Sleep(time.Millisecond)
	}
}

func hasEntry(hook *logtest.Hook, level logrus.Level, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}
