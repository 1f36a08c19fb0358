package identity

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
)

func TestPeerIDFromRaw(t *testing.T) {
	tests := []struct {
		name     string
		raw      [constants.PeerIDRawSize]byte
		expected PeerID
	}{
		{"zeros", [4]byte{0, 0, 0, 0}, "aaaaaaa"},
		{"ones", [4]byte{0xff, 0xff, 0xff, 0xff}, "777777y"},
		{"mixed", [4]byte{0xde, 0xad, 0xbe, 0xef}, "32w353y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PeerIDFromRaw(tt.raw)
			if got != tt.expected {
				t.Errorf("Expected peer id %s, got %s", tt.expected, got)
			}
			if strings.Contains(string(got), "=") {
				t.Errorf("Expected padding to be stripped, got %s", got)
			}
			if strings.ToLower(string(got)) != string(got) {
				t.Errorf("Expected lowercase peer id, got %s", got)
			}
		})
	}
}

func TestPeerID_RawRoundTrip(t *testing.T) {
	raw := [4]byte{0x01, 0x23, 0x45, 0x67}
	id := PeerIDFromRaw(raw)

	decoded, err := id.Raw()
	if err != nil {
		t.Fatalf("Failed to decode peer id: %v", err)
	}
	if decoded != raw {
		t.Errorf("Expected raw %x, got %x", raw, decoded)
	}
}

func TestPeerID_RawInvalid(t *testing.T) {
	for _, id := range []PeerID{"", "!!!", "aaaaaaaaaaaaaaaa"} {
		if _, err := id.Raw(); err == nil {
			t.Errorf("Expected error decoding %q", id)
		}
	}
}

func TestFromSeed(t *testing.T) {
	seed := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	id := FromSeed(seed)

	hasher := blake3.New(32, nil)
	hasher.Write(seed[:])
	hash := hasher.Sum(nil)

	raw := id.Raw()
	if hex.EncodeToString(raw[:]) != hex.EncodeToString(hash[:4]) {
		t.Errorf("Expected raw id %x, got %x", hash[:4], raw)
	}

	if id.ID() != PeerIDFromRaw(raw) {
		t.Errorf("Expected id %s, got %s", PeerIDFromRaw(raw), id.ID())
	}

	// Derivation is deterministic
	if again := FromSeed(seed); again.ID() != id.ID() {
		t.Errorf("Expected deterministic id %s, got %s", id.ID(), again.ID())
	}
}

func TestGenerateIdentity(t *testing.T) {
	a, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate identity: %v", err)
	}
	b, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("Failed to generate identity: %v", err)
	}

	if len(a.ID()) != 7 {
		t.Errorf("Expected 7 character id, got %q", a.ID())
	}
	if a.Seed() == b.Seed() {
		t.Error("Expected distinct seeds for two identities")
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "alice", "alice", false},
		{"trimmed", "  bob \t", "bob", false},
		{"nfkc", "ｃａｒｏｌ", "carol", false},
		{"empty", "   ", "", true},
		{"control", "eve\x00", "", true},
		{"too_long", strings.Repeat("x", MaxNameLength+1), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeName(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
