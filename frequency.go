package lorafhss

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// MaxHopChannels is the number of distinct values FhssPresentChannel can report.
const MaxHopChannels = HOP_CHANNEL_MASK + 1

// FrequencyTable is the hopping sequence, in Hz, shared by every node on a link.
// Both ends must hold byte-identical tables; a mismatch is not detectable on air.
type FrequencyTable struct {
	freqs []uint32
}

// NewFrequencyTable copies freqs into an immutable table.
func NewFrequencyTable(freqs ...uint32) (FrequencyTable, error) {
	if len(freqs) == 0 {
		return FrequencyTable{}, ErrEmptyFrequencyTable
	}
	if len(freqs) > MaxHopChannels {
		return FrequencyTable{}, errors.Wrapf(ErrFrequencyTableTooLarge, "%d entries, limit is %d", len(freqs), MaxHopChannels)
	}
	t := FrequencyTable{freqs: make([]uint32, len(freqs))}
	copy(t.freqs, freqs)
	return t, nil
}

// GenerateFrequencyTable derives count channels of the form base + step*k,
// with k drawn from [0, channels) by a PRNG seeded with seed. Nodes that use
// the same arguments get the same table.
func GenerateFrequencyTable(seed uint64, base, step uint32, channels, count int) (FrequencyTable, error) {
	if count <= 0 || channels <= 0 {
		return FrequencyTable{}, ErrEmptyFrequencyTable
	}
	if count > MaxHopChannels {
		return FrequencyTable{}, errors.Wrapf(ErrFrequencyTableTooLarge, "%d entries, limit is %d", count, MaxHopChannels)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
	freqs := make([]uint32, count)
	for i := range freqs {
		freqs[i] = base + step*uint32(rng.IntN(channels))
	}
	return FrequencyTable{freqs: freqs}, nil
}

// Len returns the number of channels in the table.
func (t FrequencyTable) Len() int {
	return len(t.freqs)
}

// At returns the frequency for a hop channel index as reported by the chip.
// Indexes beyond the table wrap around.
func (t FrequencyTable) At(channel int) uint32 {
	return t.freqs[channel%len(t.freqs)]
}

// Frequencies returns a copy of the table.
func (t FrequencyTable) Frequencies() []uint32 {
	out := make([]uint32, len(t.freqs))
	copy(out, t.freqs)
	return out
}
