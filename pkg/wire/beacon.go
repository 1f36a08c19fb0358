// Package wire implements the two on-the-wire formats of the chat protocol:
// the UDP discovery beacon and the typed message envelope.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
)

// Beacon announces a node's presence and the port its router accepts on.
//
// Layout (big-endian): "LCBcMsg;" | tcpPort uint16 | version uint16 | peerIdRaw [4]byte
type Beacon struct {
	TCPPort uint16
	Version uint16
	PeerRaw [constants.PeerIDRawSize]byte
}

// NewBeacon builds the beacon for the local identity
func NewBeacon(id *identity.Identity, tcpPort uint16) Beacon {
	return Beacon{
		TCPPort: tcpPort,
		Version: constants.ProtocolVersion,
		PeerRaw: id.Raw(),
	}
}

// PeerID renders the embedded raw id
func (b Beacon) PeerID() identity.PeerID {
	return identity.PeerIDFromRaw(b.PeerRaw)
}

// Marshal encodes the beacon into its fixed 16-byte form
func (b Beacon) Marshal() []byte {
	buf := make([]byte, 0, constants.BeaconSize)
	buf = append(buf, constants.BeaconHeader...)
	buf = binary.BigEndian.AppendUint16(buf, b.TCPPort)
	buf = binary.BigEndian.AppendUint16(buf, b.Version)
	buf = append(buf, b.PeerRaw[:]...)
	return buf
}

// ParseBeacon decodes a discovery datagram. It returns ErrNotBeacon when the
// header is absent and a *DecodeError when the header is present but the
// record is malformed.
func ParseBeacon(data []byte) (Beacon, error) {
	var b Beacon

	if !bytes.HasPrefix(data, []byte(constants.BeaconHeader)) {
		return b, ErrNotBeacon
	}

	if len(data) != constants.BeaconSize {
		return b, beaconError(fmt.Sprintf("expected %d bytes, got %d", constants.BeaconSize, len(data)))
	}

	record := data[len(constants.BeaconHeader):]
	b.TCPPort = binary.BigEndian.Uint16(record[0:2])
	b.Version = binary.BigEndian.Uint16(record[2:4])
	copy(b.PeerRaw[:], record[4:8])

	if b.TCPPort == 0 {
		return b, beaconError("zero tcp port")
	}

	return b, nil
}
