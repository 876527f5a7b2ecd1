package codec

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUintRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteUint(123456))

	r := NewReader(bufio.NewReader(&buf))
	v, err := r.ReadUint()
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), v)
}

func TestIntRoundTripNegative(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteInt(-42))

	r := NewReader(bufio.NewReader(&buf))
	v, err := r.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v)
}

func TestReadUintRejectsNegative(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteInt(-1))

	r := NewReader(bufio.NewReader(&buf))
	_, err := r.ReadUint()
	assert.Equal(t, BadSign, err)
}

func TestFloatRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFloat(3.14159, 6))

	r := NewReader(bufio.NewReader(&buf))
	v, err := r.ReadFloat()
	require.NoError(t, err)
	assert.InDelta(t, 3.14159, v, 1e-4)
}

func TestCountedStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteCountedString("hello scheduler"))

	r := NewReader(bufio.NewReader(&buf))
	s, err := r.ReadCountedString()
	require.NoError(t, err)
	assert.Equal(t, "hello scheduler", s)
}

func TestFixedStringPadsAndTrims(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteFixedString("abc", 8))
	assert.Equal(t, 8, buf.Len())

	r := NewReader(bufio.NewReader(&buf))
	s, err := r.ReadFixedString(8)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}

func TestReadEODOnTruncatedStream(t *testing.T) {
	buf := bytes.NewBufferString("5:hi")
	r := NewReader(bufio.NewReader(buf))
	_, err := r.ReadCountedString()
	assert.Equal(t, EOD, err)
}

func TestMultipleValuesSequential(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteUint(7))
	require.NoError(t, w.WriteCountedString("job123"))
	require.NoError(t, w.WriteInt(-99))

	r := NewReader(bufio.NewReader(&buf))
	u, err := r.ReadUint()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u)

	s, err := r.ReadCountedString()
	require.NoError(t, err)
	assert.Equal(t, "job123", s)

	i, err := r.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int64(-99), i)
}
