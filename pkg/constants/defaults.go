// Package constants defines the well-known values shared by the discovery
// beacon, the message envelope and the node defaults.
package constants

import "time"

// Protocol Configuration
const (
	// ProtocolVersion is announced in every beacon
	ProtocolVersion = 1

	// BeaconHeader prefixes every discovery datagram
	BeaconHeader = "LCBcMsg;"

	// BeaconSize is the header plus tcpPort(2) + version(2) + peerIdRaw(4)
	BeaconSize = len(BeaconHeader) + 8

	// PeerIDRawSize is the number of random bytes carried in a beacon
	PeerIDRawSize = 4

	// MaxDatagramSize bounds a single UDP read on the discovery port
	MaxDatagramSize = 1024
)

// Default ports and addresses
const (
	DefaultUDPPort       = 23456
	DefaultBroadcastAddr = "255.255.255.255"
	DefaultListenHost    = "0.0.0.0"
	DefaultControlAddr   = "127.0.0.1:27490"
	DefaultHTTPAddr      = "127.0.0.1:27491"
)

// Timing Configuration
const (
	// BeaconInterval between two presence broadcasts
	BeaconInterval = 10 * time.Second

	// PeerTimeout after which a silent peer leaves the live view
	PeerTimeout = 20 * time.Second

	// DialTimeout bounds the creation of one outbound channel
	DialTimeout = 5 * time.Second
)

// Router Configuration
const (
	DefaultQueueSize = 256

	// MaxMessageSize bounds one transport unit
	MaxMessageSize = 1 << 20
)

// Message Kinds
const (
	KindQuery    = 1
	KindResponse = 2
	KindText     = 3
	KindFile     = 4
	KindReceipt  = 5
)

// Query fields and receipt statuses
const (
	QueryName = "name"

	ReceiptSuccessful  = "successful"
	ReceiptUnknownType = "unknown type"
)
