package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blescope/blescope/internal/core"
)

func TestDecodeSampleJSONPayload(t *testing.T) {
	p := core.DecodeSample([]byte(`{"a":1}`))

	assert.Equal(t, "7b, 22, 61, 22, 3a, 31, 7d", p.Hex)
	assert.Equal(t, "7b2261223a317d", p.Compact)
	assert.True(t, p.TextValid)
	assert.Equal(t, `{"a":1}`, p.Text)
	require.Contains(t, p.JSON, "a")
	assert.Equal(t, float64(1), p.JSON["a"])
}

func TestDecodeSampleBinaryPayload(t *testing.T) {
	p := core.DecodeSample([]byte{0xFF, 0xFE})

	assert.Equal(t, "ff, fe", p.Hex)
	assert.Equal(t, "fffe", p.Compact)
	assert.False(t, p.TextValid)
	assert.Empty(t, p.Text)
	require.NotNil(t, p.JSON, "JSON view degrades to an empty map, never nil")
	assert.Empty(t, p.JSON)
}

func TestDecodeSampleTextThatIsNotJSON(t *testing.T) {
	p := core.DecodeSample([]byte("hello"))

	assert.Equal(t, "68, 65, 6c, 6c, 6f", p.Hex)
	assert.True(t, p.TextValid)
	assert.Equal(t, "hello", p.Text)
	require.NotNil(t, p.JSON)
	assert.Empty(t, p.JSON)
}

func TestDecodeSampleJSONArrayIsNotAnObject(t *testing.T) {
	p := core.DecodeSample([]byte(`[1,2]`))

	assert.True(t, p.TextValid)
	require.NotNil(t, p.JSON)
	assert.Empty(t, p.JSON, "non-object JSON degrades to an empty map")
}

func TestDecodeSampleEmptyPayload(t *testing.T) {
	p := core.DecodeSample(nil)

	assert.Empty(t, p.Hex)
	assert.Empty(t, p.Compact)
	assert.True(t, p.TextValid)
	assert.Empty(t, p.Text)
	require.NotNil(t, p.JSON)
	assert.Empty(t, p.JSON)
}

func TestNewSampleCopiesData(t *testing.T) {
	buf := []byte{1, 2, 3}
	sample := core.NewSample("180d", "2a37", buf)

	buf[0] = 99

	assert.Equal(t, []byte{1, 2, 3}, sample.Data, "sample must not alias the stack's buffer")
	assert.Equal(t, "180d", sample.ServiceUUID)
	assert.Equal(t, "2a37", sample.CharacteristicUUID)
	assert.False(t, sample.CapturedAt.IsZero())
}
