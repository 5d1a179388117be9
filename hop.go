package lorafhss

import (
	"sync"
)

// hopSynchronizer keeps the carrier frequency on the channel the chip's
// hopping sequencer is currently at.
type hopSynchronizer struct {
	bus   Bus
	table FrequencyTable

	mu sync.Mutex
}

// Resync reads FhssPresentChannel and programs the matching table frequency.
// It must finish inside one hop period.
func (h *hopSynchronizer) Resync() (channel int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	value, err := h.bus.ReadRegister(REGISTERS_HOP_CHANNEL)
	if err != nil {
		return 0, err
	}
	channel = int(value & HOP_CHANNEL_MASK)
	frf := FrequencyToFrf(h.table.At(channel))
	for i, address := range []byte{REGISTERS_FRF_MSB, REGISTERS_FRF_MID, REGISTERS_FRF_LSB} {
		if err := h.bus.WriteRegister(address, byte(frf>>(16-8*i))); err != nil {
			return channel, err
		}
	}
	return channel, nil
}

// FrequencyToFrf converts Hz into the RegFrf value, in synthesizer steps of FXOSC / 2^19.
func FrequencyToFrf(frequencyHz uint32) uint32 {
	return uint32((uint64(frequencyHz)<<19)/RF95_FXOSC) & 0xFFFFFF
}
