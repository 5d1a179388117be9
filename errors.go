package lorafhss

import "github.com/pkg/errors"

var (
	ErrPayloadTooLarge        = errors.New("payload too large")
	ErrMalformedPacket        = errors.New("malformed packet")
	ErrUnsupportedKind        = errors.New("unsupported packet kind")
	ErrInvalidKind            = errors.New("packet kind cannot be sent by the application")
	ErrRequestInFlight        = errors.New("a request is already outstanding")
	ErrRequestTimedOut        = errors.New("request timed out")
	ErrNotDetected            = errors.New("SX1276 module not detected")
	ErrUnsupportedVersion     = errors.New("SX1276 version not supported")
	ErrReadback               = errors.New("readback of module configuration failed")
	ErrEmptyFrequencyTable    = errors.New("frequency table is empty")
	ErrFrequencyTableTooLarge = errors.New("frequency table exceeds hop channel range")
	ErrClosed                 = errors.New("node closed")
)
