package lorafhss

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/chebyrash/promise"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errAttemptTimedOut = errors.New("no acknowledgement")

// newPacketID returns a random request ID. Zero is reserved.
func newPacketID() uint16 {
	return uint16(rand.IntN(math.MaxUint16)) + 1
}

// SendOption overrides a node option for a single Send.
type SendOption func(*sendOptions)

type sendOptions struct {
	retry   int
	timeout time.Duration
}

// WithRetry sets the number of transmit attempts for one request.
func WithRetry(attempts int) SendOption {
	return func(o *sendOptions) {
		if attempts > 0 {
			o.retry = attempts
		}
	}
}

// WithTimeout sets how long each attempt of one request waits for its
// acknowledgement.
func WithTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// Send transmits payload to destination.
//
// A Request blocks until the addressed node acknowledges it, making up to
// Options.Retry attempts of Options.Timeout each, or the values given by
// WithRetry and WithTimeout. When every attempt goes unanswered the request
// is abandoned, the node is left available and ErrRequestTimedOut is
// returned. A Broadcast returns once transmission has started. Either waits
// for a transmission already on air to finish first. Acknowledge packets are
// only sent by the node itself.
//
// Send must not be called from a Handler callback.
func (n *Node) Send(ctx context.Context, destination uint16, kind Kind, payload []byte, opts ...SendOption) error {
	if len(payload) > MaxPayloadSize {
		return errors.Wrapf(ErrPayloadTooLarge, "%d bytes, limit is %d", len(payload), MaxPayloadSize)
	}
	if !kind.Valid() {
		return errors.Wrapf(ErrUnsupportedKind, "%s", kind)
	}
	if kind == Acknowledge {
		return ErrInvalidKind
	}
	select {
	case <-n.stop:
		return ErrClosed
	default:
	}
	so := sendOptions{retry: n.options.Retry, timeout: n.options.Timeout}
	for _, opt := range opts {
		opt(&so)
	}

	n.mu.Lock()
	if n.requesting {
		n.mu.Unlock()
		return ErrRequestInFlight
	}
	if kind == Request {
		n.requesting = true
	}
	n.mu.Unlock()

	n.sendMu.Lock()
	defer n.sendMu.Unlock()
	if kind == Broadcast {
		return n.transmitWhenIdle(ctx, Header{Source: n.options.ID, Destination: destination, Kind: Broadcast}, payload, so.timeout)
	}
	defer func() {
		n.mu.Lock()
		n.requesting = false
		n.mu.Unlock()
	}()
	return n.request(ctx, destination, payload, so)
}

// Request sends payload to destination and waits for its acknowledgement.
func (n *Node) Request(ctx context.Context, destination uint16, payload []byte, opts ...SendOption) error {
	return n.Send(ctx, destination, Request, payload, opts...)
}

// Broadcast sends payload to every listening node without waiting for a reply.
func (n *Node) Broadcast(ctx context.Context, destination uint16, payload []byte, opts ...SendOption) error {
	return n.Send(ctx, destination, Broadcast, payload, opts...)
}

func (n *Node) request(ctx context.Context, destination uint16, payload []byte, so sendOptions) error {
	id := newPacketID()
	acked := make(chan struct{}, 1)
	n.mu.Lock()
	n.outstanding = id
	n.acked = acked
	n.mu.Unlock()
	log := n.log.WithFields(logrus.Fields{"packet_id": id, "destination": destination})

	header := Header{Source: n.options.ID, Destination: destination, PacketID: id, Kind: Request}
	for attempt := 1; attempt <= so.retry; attempt++ {
		select {
		case <-acked:
			return nil
		default:
		}
		if err := n.transmitWhenIdle(ctx, header, payload, so.timeout); err != nil {
			if !n.abandon(id) {
				return nil
			}
			if errors.Is(err, ctx.Err()) || errors.Is(err, ErrClosed) {
				return err
			}
			return errors.Wrapf(err, "send request %d", id)
		}
		log.WithField("attempt", attempt).Debug("request sent")

		err := n.awaitAcknowledge(ctx, acked, so.timeout)
		if err == nil {
			log.WithField("attempt", attempt).Debug("request acknowledged")
			return nil
		}
		if !errors.Is(err, errAttemptTimedOut) {
			if !n.abandon(id) {
				return nil
			}
			return err
		}
	}
	if !n.abandon(id) {
		// Acknowledged between the last deadline and now.
		return nil
	}
	log.WithField("attempts", so.retry).Warn("request timed out")
	return errors.Wrapf(ErrRequestTimedOut, "packet %d to node %d after %d attempts", id, destination, so.retry)
}

// awaitAcknowledge waits one attempt's timeout for the event goroutine to
// report the matching acknowledgement.
func (n *Node) awaitAcknowledge(ctx context.Context, acked <-chan struct{}, timeout time.Duration) error {
	wait := promise.New(func(resolve func(struct{}), reject func(error)) {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-acked:
			resolve(struct{}{})
		case <-timer.C:
			reject(errAttemptTimedOut)
		case <-ctx.Done():
			reject(ctx.Err())
		case <-n.stop:
			reject(ErrClosed)
		}
	})
	_, err := wait.Await()
	return err
}

// transmitWhenIdle starts a transmission once the one on air, such as an
// automatic acknowledgement, has finished. A TxDone that never arrives is
// given up on after timeout and the stale transmission is aborted.
func (n *Node) transmitWhenIdle(ctx context.Context, h Header, payload []byte, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		n.mu.Lock()
		done := n.txDone
		if done == nil {
			err := n.transmitLocked(h, payload)
			n.mu.Unlock()
			return err
		}
		n.mu.Unlock()
		select {
		case <-done:
		case <-deadline.C:
			n.log.Warn("transmit done not seen, aborting transmission")
			n.mu.Lock()
			err := n.transmitLocked(h, payload)
			n.mu.Unlock()
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-n.stop:
			return ErrClosed
		}
	}
}

// abandon drops request id if it is still outstanding, reporting whether it was.
func (n *Node) abandon(id uint16) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.outstanding != id {
		return false
	}
	n.outstanding = 0
	n.acked = nil
	if n.txDone != nil {
		// onTransmitDone makes the node available.
		return true
	}
	n.state = Done
	if err := n.modes.Set(Standby); err != nil {
		n.log.WithError(err).Error("enter standby")
	}
	n.avail.set(true)
	return true
}

// transmitLocked frames a packet, loads it into the FIFO from standby and
// starts transmission. n.mu must be held.
func (n *Node) transmitLocked(h Header, payload []byte) error {
	frame, err := Encode(h, payload)
	if err != nil {
		return err
	}
	// The FIFO can only be written outside of tx and rx.
	if err := n.modes.Set(Standby); err != nil {
		return err
	}
	if err := n.bus.WriteRegister(REGISTERS_FIFO_ADDR_PTR, 0); err != nil {
		return err
	}
	if err := n.bus.WriteBurst(REGISTERS_FIFO, frame); err != nil {
		return err
	}
	if err := n.bus.WriteRegister(REGISTERS_PAYLOAD_LENGTH, byte(len(frame))); err != nil {
		return err
	}
	n.finishTransmitLocked()
	n.txKind = h.Kind
	n.txDone = make(chan struct{})
	n.state = AwaitingTransmitDone
	if err := n.modes.Set(Transmit); err != nil {
		n.finishTransmitLocked()
		return err
	}
	return nil
}

// finishTransmitLocked releases anyone waiting on the current transmission.
func (n *Node) finishTransmitLocked() {
	if n.txDone != nil {
		close(n.txDone)
		n.txDone = nil
	}
}

// sendPendingAckLocked starts the oldest acknowledgement that was held back
// while the node was transmitting, reporting whether one went out.
func (n *Node) sendPendingAckLocked() bool {
	for len(n.pendingAcks) > 0 {
		ack := n.pendingAcks[0]
		n.pendingAcks = n.pendingAcks[1:]
		if err := n.transmitLocked(ack, nil); err != nil {
			n.log.WithError(err).WithField("packet_id", ack.PacketID).Error("send acknowledgement")
			continue
		}
		return true
	}
	return false
}

// resumeListening returns to continuous receive unless one of our own
// transmissions is under way.
func (n *Node) resumeListening() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.txDone != nil {
		return
	}
	if err := n.modes.Set(ReceiveContinuous); err != nil {
		n.log.WithError(err).Error("resume listening")
	}
}

func (n *Node) onTransmitDone() {
	n.mu.Lock()
	// The chip falls back to standby by itself after TxDone.
	n.modes.observe(Standby)
	n.finishTransmitLocked()
	kind := n.txKind
	switch {
	case n.sendPendingAckLocked():
	case n.outstanding != 0:
		// Our request, or an acknowledgement sent while it is pending:
		// either way listen for its acknowledgement.
		n.state = AwaitingAcknowledge
		if err := n.modes.Set(ReceiveContinuous); err != nil {
			n.log.WithError(err).Error("listen for acknowledgement")
		}
	default:
		n.state = Done
		n.avail.set(true)
		if n.options.Relisten {
			if err := n.modes.Set(ReceiveContinuous); err != nil {
				n.log.WithError(err).Error("resume listening")
			}
		}
	}
	n.mu.Unlock()
	n.log.WithField("kind", kind).Debug("transmit done")
	n.options.Handler.OnTransmitComplete()
}

func (n *Node) onReceive(irq interrupt) {
	if irq.crcError() {
		n.log.Warn("payload crc error, packet dropped")
		n.resumeListening()
		return
	}
	h, payload, err := Decode(irq.frame)
	if err != nil {
		n.log.WithError(err).WithField("frame", irq.frame).Warn("packet dropped")
		n.resumeListening()
		return
	}
	msg := Message{Header: h, Payload: payload, Quality: linkQuality(irq.rawSNR, irq.rawRSSI)}
	log := n.log.WithFields(logrus.Fields{
		"source":    h.Source,
		"packet_id": h.PacketID,
		"kind":      h.Kind,
		"snr":       msg.Quality.SNR,
		"rssi":      msg.Quality.RSSI,
	})
	if !h.Kind.Valid() {
		log.WithError(ErrUnsupportedKind).Warn("packet dropped")
		n.resumeListening()
		return
	}

	switch h.Kind {
	case Request:
		if h.Destination != n.options.ID {
			log.WithField("destination", h.Destination).Debug("request for another node")
			n.resumeListening()
			return
		}
		ack := Header{Source: n.options.ID, Destination: h.Source, PacketID: h.PacketID, Kind: Acknowledge}
		n.mu.Lock()
		var err error
		deferred := n.txDone != nil
		if deferred {
			// Sent from onTransmitDone once the chip is free.
			n.pendingAcks = append(n.pendingAcks, ack)
		} else {
			err = n.transmitLocked(ack, nil)
		}
		n.mu.Unlock()
		if err != nil {
			log.WithError(err).Error("send acknowledgement")
			n.resumeListening()
			return
		}
		if deferred {
			log.Debug("acknowledgement deferred until transmit done")
		}
		log.Debug("request received")
		n.options.Handler.OnRequestReceived(msg)

	case Acknowledge:
		n.mu.Lock()
		if h.PacketID == 0 || h.PacketID != n.outstanding {
			n.mu.Unlock()
			log.Debug("unmatched acknowledgement")
			n.resumeListening()
			return
		}
		acked := n.acked
		n.outstanding = 0
		n.acked = nil
		if n.txDone == nil {
			n.state = Done
			if err := n.modes.Set(Standby); err != nil {
				log.WithError(err).Error("enter standby")
			}
			n.avail.set(true)
		}
		n.mu.Unlock()
		select {
		case acked <- struct{}{}:
		default:
		}
		log.Debug("acknowledgement received")

	case Broadcast:
		log.Debug("broadcast received")
		n.options.Handler.OnBroadcastReceived(msg)
		n.resumeListening()
	}
}

// Listen puts the node in continuous receive.
func (n *Node) Listen() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = Idle
	return n.modes.Set(ReceiveContinuous)
}

// Standby stops listening and aborts any transmission on air. An
// outstanding request keeps waiting but can no longer hear its
// acknowledgement until the next attempt.
func (n *Node) Standby() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.modes.Set(Standby); err != nil {
		return err
	}
	n.finishTransmitLocked()
	n.pendingAcks = nil
	n.avail.set(true)
	return nil
}

// WaitAvailable blocks until the transceiver is available or ctx is done.
func (n *Node) WaitAvailable(ctx context.Context) error {
	return n.avail.wait(ctx)
}
