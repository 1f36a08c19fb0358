package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
	"github.com/WebFirstLanguage/lanchat/pkg/identity"
)

func TestBeacon_Marshal(t *testing.T) {
	b := Beacon{
		TCPPort: 0x1234,
		Version: 1,
		PeerRaw: [4]byte{0xde, 0xad, 0xbe, 0xef},
	}

	data := b.Marshal()
	expected := append([]byte("LCBcMsg;"), 0x12, 0x34, 0x00, 0x01, 0xde, 0xad, 0xbe, 0xef)

	if !bytes.Equal(data, expected) {
		t.Errorf("Expected %x, got %x", expected, data)
	}
	if len(data) != constants.BeaconSize {
		t.Errorf("Expected %d bytes, got %d", constants.BeaconSize, len(data))
	}
}

func TestBeacon_RoundTrip(t *testing.T) {
	id := identity.FromSeed(uuid.MustParse("00000000-0000-4000-8000-000000000001"))
	original := NewBeacon(id, 40000)

	parsed, err := ParseBeacon(original.Marshal())
	if err != nil {
		t.Fatalf("Failed to parse beacon: %v", err)
	}

	if parsed != original {
		t.Errorf("Expected %+v, got %+v", original, parsed)
	}
	if parsed.PeerID() != id.ID() {
		t.Errorf("Expected peer id %s, got %s", id.ID(), parsed.PeerID())
	}
	if parsed.Version != constants.ProtocolVersion {
		t.Errorf("Expected version %d, got %d", constants.ProtocolVersion, parsed.Version)
	}
}

func TestParseBeacon_NotBeacon(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("hello world"),
		[]byte("LocalChatBcMsg;\x00\x01\x00\x01"),
	}

	for _, data := range inputs {
		if _, err := ParseBeacon(data); !errors.Is(err, ErrNotBeacon) {
			t.Errorf("Expected ErrNotBeacon for %q, got %v", data, err)
		}
	}
}

func TestParseBeacon_Malformed(t *testing.T) {
	valid := Beacon{TCPPort: 5000, Version: 1, PeerRaw: [4]byte{1, 2, 3, 4}}.Marshal()

	tests := []struct {
		name string
		data []byte
	}{
		{"header_only", []byte(constants.BeaconHeader)},
		{"truncated", valid[:len(valid)-1]},
		{"trailing", append(append([]byte{}, valid...), 0x00)},
		{"zero_port", Beacon{TCPPort: 0, Version: 1}.Marshal()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBeacon(tt.data)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !IsDecodeError(err) {
				t.Errorf("Expected DecodeError, got %T: %v", err, err)
			}
		})
	}
}
