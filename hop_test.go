package lorafhss

import "testing"

func TestFrequencyToFrf(t *testing.T) {
	tests := []struct {
		hz   uint32
		want uint32
	}{
		{915000000, 0xE4C000},
		{902300000, 0xE19333},
		{914200000, 0xE48CCC},
		{433000000, 0x6C4000},
	}
	for _, tt := range tests {
		if got := FrequencyToFrf(tt.hz); got != tt.want {
			t.Errorf("FrequencyToFrf(%d) = %#06x, want %#06x", tt.hz, got, tt.want)
		}
	}
}

func TestResync(t *testing.T) {
	tests := []struct {
		name       string
		hopChannel byte
		channel    int
		hz         uint32
	}{
		{"first", 0x00, 0, testFrequencies[0]},
		{"pll and crc bits masked", 0xC5, 5, testFrequencies[5]},
		{"beyond table wraps", 0x09, 9, testFrequencies[1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chip := newFakeChip()
			chip.WriteRegister(REGISTERS_HOP_CHANNEL, tt.hopChannel)
			h := &hopSynchronizer{bus: chip, table: testTable(t)}
			channel, err := h.Resync()
			if err != nil {
				t.Fatalf("Resync() error = %v", err)
			}
			if channel != tt.channel {
				t.Errorf("Resync() channel = %d, want %d", channel, tt.channel)
			}
			if got, want := chip.frf(), FrequencyToFrf(tt.hz); got != want {
				t.Errorf("frf = %#06x, want %#06x", got, want)
			}
		})
	}
}
