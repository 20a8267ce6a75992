package transport

import "fmt"

// RoutingCode is the delivery status carried by a routing control
// packet. Zero is success (an acknowledgment); anything else is the
// reason the mesh gave up on the message.
type RoutingCode uint8

const (
	RoutingNone          RoutingCode = 0
	RoutingNoRoute       RoutingCode = 1
	RoutingGotNak        RoutingCode = 2
	RoutingTimeout       RoutingCode = 3
	RoutingNoInterface   RoutingCode = 4
	RoutingMaxRetransmit RoutingCode = 5
	RoutingNoChannel     RoutingCode = 6
	RoutingTooLarge      RoutingCode = 7
	RoutingNoResponse    RoutingCode = 8
	RoutingDutyCycle     RoutingCode = 9
	RoutingBadRequest    RoutingCode = 32
	RoutingNotAuthorized RoutingCode = 33
	RoutingPKIFailed     RoutingCode = 34
	RoutingPKIUnknownKey RoutingCode = 35
)

// IsFailure reports whether the code is a delivery failure.
func (c RoutingCode) IsFailure() bool {
	return c != RoutingNone
}

// String returns the firmware name for the code.
func (c RoutingCode) String() string {
	switch c {
	case RoutingNone:
		return "NONE"
	case RoutingNoRoute:
		return "NO_ROUTE"
	case RoutingGotNak:
		return "GOT_NAK"
	case RoutingTimeout:
		return "TIMEOUT"
	case RoutingNoInterface:
		return "NO_INTERFACE"
	case RoutingMaxRetransmit:
		return "MAX_RETRANSMIT"
	case RoutingNoChannel:
		return "NO_CHANNEL"
	case RoutingTooLarge:
		return "TOO_LARGE"
	case RoutingNoResponse:
		return "NO_RESPONSE"
	case RoutingDutyCycle:
		return "DUTY_CYCLE_LIMIT"
	case RoutingBadRequest:
		return "BAD_REQUEST"
	case RoutingNotAuthorized:
		return "NOT_AUTHORIZED"
	case RoutingPKIFailed:
		return "PKI_FAILED"
	case RoutingPKIUnknownKey:
		return "PKI_UNKNOWN_PUBKEY"
	default:
		return fmt.Sprintf("ROUTING_ERROR_%d", uint8(c))
	}
}
