package lorafhss

// SX1276 LoRa mode register map and bit values.
const (
	REGISTERS_FIFO                 = 0x00
	REGISTERS_OP_MODE              = 0x01
	REGISTERS_FRF_MSB              = 0x06
	REGISTERS_FRF_MID              = 0x07
	REGISTERS_FRF_LSB              = 0x08
	REGISTERS_PA_CONFIG            = 0x09
	REGISTERS_FIFO_ADDR_PTR        = 0x0D
	REGISTERS_FIFO_TX_BASE_ADDR    = 0x0E
	REGISTERS_FIFO_RX_BASE_ADDR    = 0x0F
	REGISTERS_FIFO_RX_CURRENT_ADDR = 0x10
	REGISTERS_IRQ_FLAGS            = 0x12
	REGISTERS_RX_NB_BYTES          = 0x13
	REGISTERS_PKT_SNR_VALUE        = 0x19
	REGISTERS_PKT_RSSI_VALUE       = 0x1A
	REGISTERS_HOP_CHANNEL          = 0x1C
	REGISTERS_MODEM_CONFIG_1       = 0x1D
	REGISTERS_MODEM_CONFIG_2       = 0x1E
	REGISTERS_PREAMBLE_MSB         = 0x20
	REGISTERS_PREAMBLE_LSB         = 0x21
	REGISTERS_PAYLOAD_LENGTH       = 0x22
	REGISTERS_HOP_PERIOD           = 0x24
	REGISTERS_MODEM_CONFIG_3       = 0x26
	REGISTERS_DIO_MAPPING_1        = 0x40
	REGISTERS_VERSION              = 0x42
	REGISTERS_PA_DAC               = 0x4D

	OP_MODES_SLEEP    = 0b000
	OP_MODES_STANDBY  = 0b001
	OP_MODES_TRANSMIT = 0b011
	OP_MODES_RXCONT   = 0b101
	OP_MODES_RXSINGLE = 0b110
	OP_MODES_CAD      = 0b111

	IRQ_FLAGS_RX_TIMEOUT     = 1 << 7
	IRQ_FLAGS_RX_DONE        = 1 << 6
	IRQ_FLAGS_PAYLOAD_CRC    = 1 << 5
	IRQ_FLAGS_VALID_HEADER   = 1 << 4
	IRQ_FLAGS_TX_DONE        = 1 << 3
	IRQ_FLAGS_CAD_DONE       = 1 << 2
	IRQ_FLAGS_FHSS_CHANGE_CH = 1 << 1
	IRQ_FLAGS_CAD_DETECTED   = 1 << 0

	// Low 6 bits of RegHopChannel hold FhssPresentChannel.
	HOP_CHANNEL_MASK = 0x3F

	CHIP_VERSION = 0x12

	RF95_FXOSC = 32000000
)

var BITMASKS = []byte{0b00000001, 0b00000011, 0b00000111, 0b00001111, 0b00011111, 0b00111111, 0b01111111}
