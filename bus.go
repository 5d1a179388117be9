package lorafhss

// Bus is register-level access to the transceiver.
// Implementations must be safe for concurrent use; each call is one transaction.
type Bus interface {
	ReadRegister(address byte) (byte, error)
	WriteRegister(address byte, value byte) error
	// ReadBurst reads length bytes starting at address. Reading REGISTERS_FIFO
	// drains the FIFO from the current FIFO address pointer.
	ReadBurst(address byte, length int) ([]byte, error)
	WriteBurst(address byte, data []byte) error
}

// readBits reads a bit field from a register using an offset.
func readBits(bus Bus, address, bits, offset byte) (value byte, err error) {
	mask := BITMASKS[bits-1] << offset
	registerValue, err := bus.ReadRegister(address)
	return (registerValue & mask) >> offset, err
}

// writeBits writes a bit field into a register using an offset, leaving other bits untouched.
func writeBits(bus Bus, address, bits, offset, val byte) (err error) {
	mask := BITMASKS[bits-1]
	val &= mask
	oldRegisterValue, err := bus.ReadRegister(address)
	if err != nil {
		return err
	}
	registerValue := oldRegisterValue
	registerValue &= ^(mask << offset)
	registerValue |= val << offset
	return bus.WriteRegister(address, registerValue)
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
