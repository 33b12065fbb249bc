package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHexValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{"plain", "01020a", []byte{0x01, 0x02, 0x0a}},
		{"spaced", "01 02 0a", []byte{0x01, 0x02, 0x0a}},
		{"comma separated", "01,02,0a", []byte{0x01, 0x02, 0x0a}},
		{"0x prefixed", "0x01 0x02", []byte{0x01, 0x02}},
		{"uppercase", "DEADBEEF", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"empty", "", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHexValue(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("rejects odd length", func(t *testing.T) {
		_, err := parseHexValue("abc")
		assert.Error(t, err)
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := parseHexValue("zz")
		assert.Error(t, err)
	})
}
