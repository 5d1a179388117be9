package lorafhss

import "testing"

func TestLinkQuality(t *testing.T) {
	tests := []struct {
		name    string
		rawSNR  byte
		rawRSSI byte
		want    LinkQuality
	}{
		{"negative snr", 0xF8, 100, LinkQuality{SNR: -2, RSSI: -59}},
		{"positive snr", 20, 100, LinkQuality{SNR: 5, RSSI: -50.33}},
		{"zero", 0, 0, LinkQuality{SNR: 0, RSSI: -157}},
		{"quarter db", 0xFF, 60, LinkQuality{SNR: -0.25, RSSI: -97.25}},
		{"most negative snr", 0x80, 50, LinkQuality{SNR: -32, RSSI: -139}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := linkQuality(tt.rawSNR, tt.rawRSSI); got != tt.want {
				t.Errorf("linkQuality(%#02x, %d) = %+v, want %+v", tt.rawSNR, tt.rawRSSI, got, tt.want)
			}
		})
	}
}

func TestHandlerFuncs(t *testing.T) {
	var empty HandlerFuncs
	empty.OnRequestReceived(Message{})
	empty.OnBroadcastReceived(Message{})
	empty.OnTransmitComplete()

	var requests, broadcasts, completions int
	h := HandlerFuncs{
		Request:          func(Message) { requests++ },
		Broadcast:        func(Message) { broadcasts++ },
		TransmitComplete: func() { completions++ },
	}
	h.OnRequestReceived(Message{})
	h.OnBroadcastReceived(Message{})
	h.OnBroadcastReceived(Message{})
	h.OnTransmitComplete()
	if requests != 1 || broadcasts != 2 || completions != 1 {
		t.Errorf("calls = %d, %d, %d, want 1, 2, 1", requests, broadcasts, completions)
	}
}
