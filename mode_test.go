package lorafhss

import "testing"

func TestRouting(t *testing.T) {
	if transmitRouting != 0x50 {
		t.Errorf("transmitRouting = %#02x, want 0x50", transmitRouting)
	}
	if receiveRouting != 0x10 {
		t.Errorf("receiveRouting = %#02x, want 0x10", receiveRouting)
	}
}

func TestDioMapping(t *testing.T) {
	tests := []struct {
		name    string
		events  []Event
		want    byte
		wantErr bool
	}{
		{"none", nil, 0x00, false},
		{"cad", []Event{EventCadDone, EventCadDetected}, 0xA0, false},
		{"hop on dio2", []Event{EventNone, EventNone, EventHopChanged}, 0x00, false},
		{"rx timeout on dio1", []Event{EventRxDone, EventRxTimeout}, 0x00, false},
		{"hop on dio0", []Event{EventHopChanged}, 0, true},
		{"tx done on dio2", []Event{EventNone, EventNone, EventTxDone}, 0, true},
		{"dio3", []Event{EventNone, EventNone, EventNone, EventRxDone}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dioMapping(tt.events...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("dioMapping() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("dioMapping() = %#02x, want %#02x", got, tt.want)
			}
		})
	}
}

func newTestModes(t *testing.T, chip *fakeChip) *modeController {
	t.Helper()
	log, _ := testLogger()
	return &modeController{
		bus:   chip,
		hop:   &hopSynchronizer{bus: chip, table: testTable(t)},
		avail: newAvailability(),
		log:   log,
	}
}

func TestModeSet(t *testing.T) {
	tests := []struct {
		mode      Mode
		routing   byte
		available bool
	}{
		{Transmit, 0x50, false},
		{ReceiveContinuous, 0x10, false},
		{Standby, 0x00, true},
		{Sleep, 0x00, true},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			chip := newFakeChip()
			chip.WriteRegister(REGISTERS_HOP_CHANNEL, 2)
			modes := newTestModes(t, chip)
			if err := modes.Set(tt.mode); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if got := chip.reg(REGISTERS_DIO_MAPPING_1); got != tt.routing {
				t.Errorf("dio mapping = %#02x, want %#02x", got, tt.routing)
			}
			if got := chip.reg(REGISTERS_OP_MODE); got != 1<<7|byte(tt.mode) {
				t.Errorf("op mode = %#02x, want LoRa bit and %s", got, tt.mode)
			}
			if got := modes.avail.get(); got != tt.available {
				t.Errorf("available = %v, want %v", got, tt.available)
			}
			wantFrf := uint32(0)
			if tt.mode.hopping() {
				wantFrf = FrequencyToFrf(testFrequencies[2])
			}
			if got := chip.frf(); got != wantFrf {
				t.Errorf("frf = %#06x, want %#06x", got, wantFrf)
			}
			if got := modes.Current(); got != tt.mode {
				t.Errorf("Current() = %s, want %s", got, tt.mode)
			}
		})
	}
}

func TestModeSetIdempotent(t *testing.T) {
	chip := newFakeChip()
	modes := newTestModes(t, chip)
	if err := modes.Set(ReceiveContinuous); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	writes := chip.opModeWrites
	if err := modes.Set(ReceiveContinuous); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if chip.opModeWrites != writes {
		t.Errorf("second Set() wrote RegOpMode %d more times", chip.opModeWrites-writes)
	}

	// A mode the chip entered by itself is not rewritten.
	modes.observe(Standby)
	if err := modes.Set(Standby); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if chip.opModeWrites != writes {
		t.Error("Set() rewrote an observed mode")
	}
}

func TestModeString(t *testing.T) {
	if got := Mode(0b010).String(); got != "mode(2)" {
		t.Errorf("String() = %q", got)
	}
	if got := ReceiveContinuous.String(); got != "rx-continuous" {
		t.Errorf("String() = %q", got)
	}
}

func TestEventString(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{EventNone, "none"},
		{EventHopChanged, "hop-changed"},
		{EventCadDetected, "cad-detected"},
		{Event(200), "event(200)"},
	}
	for _, tt := range tests {
		if got := tt.event.String(); got != tt.want {
			t.Errorf("Event(%d).String() = %q, want %q", uint8(tt.event), got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{AwaitingAcknowledge, "awaiting-ack"},
		{Done, "done"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", uint8(tt.state), got, tt.want)
		}
	}
}
