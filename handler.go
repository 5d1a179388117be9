package lorafhss

import "math"

// LinkQuality is the signal report for one received packet.
type LinkQuality struct {
	// SNR is the signal-to-noise ratio in dB.
	SNR float64
	// RSSI is the received signal strength in dBm, rounded to two decimals.
	RSSI float64
}

// linkQuality converts the RegPktSnrValue and RegPktRssiValue readings.
func linkQuality(rawSNR, rawRSSI byte) LinkQuality {
	snr := float64(int8(rawSNR)) / 4
	var rssi float64
	if snr < 0 {
		rssi = -157 + float64(rawRSSI) + snr
	} else {
		rssi = -157 + 16.0/15.0*float64(rawRSSI)
	}
	return LinkQuality{SNR: snr, RSSI: math.Round(rssi*100) / 100}
}

// Message is a packet delivered to the application.
type Message struct {
	Header  Header
	Payload []byte
	Quality LinkQuality
}

// Handler receives protocol events from a Node. Methods run on the node's
// event goroutine, one at a time, and interrupts queue up behind a slow
// callback. Acknowledgements are processed on the same goroutine, so a
// Request made from inside a callback cannot complete and blocks until it
// times out.
type Handler interface {
	// OnRequestReceived is called once the acknowledgement is on air, or
	// queued behind the transmission in progress. It is not called when the
	// acknowledgement could not be sent.
	OnRequestReceived(Message)
	OnBroadcastReceived(Message)
	// OnTransmitComplete is called on every TxDone, including acknowledgements.
	OnTransmitComplete()
}

// HandlerFuncs adapts plain functions to a Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Request          func(Message)
	Broadcast        func(Message)
	TransmitComplete func()
}

func (h HandlerFuncs) OnRequestReceived(m Message) {
	if h.Request != nil {
		h.Request(m)
	}
}

func (h HandlerFuncs) OnBroadcastReceived(m Message) {
	if h.Broadcast != nil {
		h.Broadcast(m)
	}
}

func (h HandlerFuncs) OnTransmitComplete() {
	if h.TransmitComplete != nil {
		h.TransmitComplete()
	}
}
