package cborcanon

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestCanonicalEncoding(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string // hex-encoded canonical CBOR
	}{
		{"array", []interface{}{3, 1, 2}, "83030102"},
		{"empty_map", map[string]interface{}{}, "a0"},
		{"sorted_map", map[string]interface{}{"b": 2, "a": 1}, "a2616101616202"},
		{"length_first", map[string]interface{}{"uuid": 1, "type": 2, "field": 3}, "a3647479706502647575696401656669656c6403"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Marshal(tt.input)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			if got := hex.EncodeToString(encoded); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}

			var decoded interface{}
			if err := Unmarshal(encoded, &decoded); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			reencoded, err := Marshal(decoded)
			if err != nil {
				t.Fatalf("Re-marshal failed: %v", err)
			}
			if !bytes.Equal(encoded, reencoded) {
				t.Errorf("Encoding not deterministic: %x != %x", encoded, reencoded)
			}
		})
	}
}

// isCanonical reports whether data re-encodes to itself
func isCanonical(data []byte) bool {
	var v interface{}
	if err := Unmarshal(data, &v); err != nil {
		return false
	}
	canonical, err := Marshal(v)
	if err != nil {
		return false
	}
	return bytes.Equal(data, canonical)
}

func TestIsCanonical(t *testing.T) {
	tests := []struct {
		name      string
		data      string // hex-encoded CBOR
		canonical bool
	}{
		{"canonical_map", "a2616101616202", true},
		{"non_canonical_map", "a2616202616101", false},
		{"canonical_array", "83010203", true},
		{"garbage", "ff", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := hex.DecodeString(tt.data)
			if err != nil {
				t.Fatalf("Invalid hex: %v", err)
			}

			if got := isCanonical(data); got != tt.canonical {
				t.Errorf("Expected canonical=%v, got %v", tt.canonical, got)
			}
		})
	}
}

func TestUnmarshal_RejectsDuplicateKeys(t *testing.T) {
	// {"a": 1, "a": 2}
	data, _ := hex.DecodeString("a2616101616102")

	var v map[string]interface{}
	if err := Unmarshal(data, &v); err == nil {
		t.Error("Expected duplicate map keys to be rejected")
	}
}
