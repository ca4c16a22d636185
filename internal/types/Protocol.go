package types

import (
	"errors"
	"fmt"
)

// ProtocolKind is the closed set of lending protocols the strategy layer can
// build plans for. Dispatch over protocols is always an explicit switch on
// this type, never structural sniffing of provider payloads.
type ProtocolKind string

const (
	ProtocolAaveV2     ProtocolKind = "aave_v2"
	ProtocolAaveV3     ProtocolKind = "aave_v3"
	ProtocolSpark      ProtocolKind = "spark"
	ProtocolAjna       ProtocolKind = "ajna"
	ProtocolMorphoBlue ProtocolKind = "morpho_blue"
)

var ErrUnknownProtocol = errors.New("unknown lending protocol")

// ParseProtocolKind validates a protocol identifier from external input.
func ParseProtocolKind(s string) (ProtocolKind, error) {
	switch ProtocolKind(s) {
	case ProtocolAaveV2, ProtocolAaveV3, ProtocolSpark, ProtocolAjna, ProtocolMorphoBlue:
		return ProtocolKind(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
	}
}

func (p ProtocolKind) String() string { return string(p) }
