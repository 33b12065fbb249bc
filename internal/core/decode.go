package core

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Projection is the set of human-readable views of a notification payload.
// Hex is always present and lossless; Text and JSON are best-effort and
// degrade without error.
type Projection struct {
	// Hex is the lowercase byte-per-group rendering, e.g. "7b, 22, 61".
	Hex string `json:"hex"`
	// Compact is the contiguous hex string, e.g. "7b2261".
	Compact string `json:"compact"`
	// Text is the UTF-8 decode of the payload; empty when the payload is not
	// valid UTF-8 (TextValid distinguishes that from an empty payload).
	Text      string `json:"text"`
	TextValid bool   `json:"text_valid"`
	// JSON is the parsed object form of Text. Parse failure is not an error;
	// it yields an empty, non-nil map.
	JSON map[string]interface{} `json:"json"`
}

// DecodeSample projects raw payload bytes into display form. The hex view
// never fails; UTF-8 and JSON decoding degrade to their zero projections.
func DecodeSample(data []byte) Projection {
	p := Projection{
		Compact: hex.EncodeToString(data),
		JSON:    map[string]interface{}{},
	}

	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	p.Hex = strings.Join(parts, ", ")

	if utf8.Valid(data) {
		p.Text = string(data)
		p.TextValid = true

		var obj map[string]interface{}
		if err := json.Unmarshal(data, &obj); err == nil && obj != nil {
			p.JSON = obj
		}
	}

	return p
}
