package fec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog2Ceil(t *testing.T) {
	cases := map[int]int{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 16: 4, 256: 8}
	for n, want := range cases {
		assert.Equal(t, want, log2Ceil(n), "log2Ceil(%d)", n)
	}
}

func TestHeaderLen(t *testing.T) {
	// 8 + 2 + 2 + 2 = 14 bits -> 2 bytes.
	h, err := NewHeader(3, 3, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())

	// 8 + 4 + 4 + 4 = 20 bits -> 3 bytes.
	h, err = NewHeader(16, 16, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, h.Len())

	// 8 + 8 + 8 + 8 = 32 bits -> 4 bytes.
	h, err = NewHeader(255, 255, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, h.Len())
}

// The published zfec vector: 3 required of 5 total, sharenum 2, padlen 1
// packs to 0x04 0x4a. Bit layout: 00000100 010 01 010.
func TestHeaderZfecVector(t *testing.T) {
	h, err := NewHeader(3, 5, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x04, 0x4a}, h.Encode())

	parsed, err := ParseHeader([]byte{0x04, 0x4a})
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Required: 3, Total: 5, ShareNum: 2, PadLen: 2},
		{Required: 10, Total: 15, ShareNum: 7, PadLen: 9},
		{Required: 10, Total: 15, ShareNum: 0, PadLen: 0},
		{Required: 10, Total: 15, ShareNum: 14, PadLen: 9},
		{Required: 200, Total: 255, ShareNum: 199, PadLen: 199},
		{Required: 1, Total: 2, ShareNum: 1, PadLen: 0},
		{Required: 6, Total: 9, ShareNum: 8, PadLen: 5},
	}
	for _, want := range cases {
		h, err := NewHeader(want.Required, want.Total, want.ShareNum, want.PadLen)
		require.NoError(t, err)

		enc := h.Encode()
		require.Equal(t, h.Len(), len(enc))

		got, err := ParseHeader(enc)
		require.NoError(t, err, "parse %v", want)
		assert.Equal(t, want, got)
	}
}

func TestHeaderRoundTripExhaustiveSmall(t *testing.T) {
	for total := 2; total <= 17; total++ {
		for required := 1; required <= total; required++ {
			maxPad := (1 << log2Ceil(required)) - 1
			for share := 0; share < total; share++ {
				h, err := NewHeader(required, total, share, maxPad)
				require.NoError(t, err)
				got, err := ParseHeader(h.Encode())
				require.NoError(t, err)
				require.Equal(t, h, got)
			}
		}
	}
}

func TestNewHeaderInvalid(t *testing.T) {
	_, err := NewHeader(0, 5, 0, 0)
	assert.Error(t, err)
	_, err = NewHeader(5, 1, 0, 0)
	assert.Error(t, err)
	_, err = NewHeader(10, 5, 0, 0)
	assert.Error(t, err)
	_, err = NewHeader(5, 10, 10, 0)
	assert.Error(t, err)
	// k=3 allocates 2 padlen bits; 7 does not fit.
	_, err = NewHeader(3, 5, 0, 7)
	assert.Error(t, err)
	_, err = NewHeader(5, 300, 0, 0)
	assert.Error(t, err)
}

func TestParseHeaderInvalid(t *testing.T) {
	_, err := ParseHeader([]byte{0x00})
	assert.Error(t, err)
	_, err = ParseHeader([]byte{0, 0, 0, 0, 0})
	assert.Error(t, err)
	// Valid-looking first byte but wrong length for implied parameters.
	_, err = ParseHeader([]byte{0x04, 0x4a, 0x00})
	assert.Error(t, err)
}

func TestReadHeader(t *testing.T) {
	h, err := NewHeader(10, 15, 7, 9)
	require.NoError(t, err)

	payload := []byte("shard payload follows the header")
	stream := append(h.Encode(), payload...)

	r := bytes.NewReader(stream)
	got, n, err := ReadHeader(r)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, h.Len(), n)

	rest := make([]byte, len(payload))
	_, err = r.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, payload, rest)
}

func TestReadHeaderShort(t *testing.T) {
	_, _, err := ReadHeader(bytes.NewReader([]byte{0x04}))
	assert.Error(t, err)
}
