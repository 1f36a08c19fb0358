// Package cborcanon provides deterministic CBOR encoding helpers used by the
// binary form of the message envelope.
package cborcanon

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CanonicalMode encodes with deterministic key order and smallest integers
var CanonicalMode cbor.EncMode

// StrictDecMode rejects duplicate map keys and indefinite-length items
var StrictDecMode cbor.DecMode

func init() {
	var err error
	CanonicalMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create canonical CBOR mode: %v", err))
	}

	StrictDecMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create strict CBOR decode mode: %v", err))
	}
}

// Marshal encodes v into canonical CBOR format
func Marshal(v interface{}) ([]byte, error) {
	return CanonicalMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v, rejecting ambiguous input
func Unmarshal(data []byte, v interface{}) error {
	return StrictDecMode.Unmarshal(data, v)
}
