package bin

import (
	"bufio"
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUint32Frame(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	assert.NoError(t, WriteUint32(w, 0xdeadbeef))
	assert.NoError(t, w.Flush())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, buf.Bytes())

	v, err := ReadUint32(bufio.NewReader(&buf))
	assert.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), v)
}

func TestInt32(t *testing.T) {
	for _, v := range []int32{0, 1, -1, math.MaxInt32, math.MinInt32} {
		var buf bytes.Buffer
		assert.NoError(t, WriteInt32(&buf, v))
		assert.Equal(t, 4, buf.Len())

		got, err := ReadInt32(&buf)
		assert.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestUint64BigEndian(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, WriteUint64(&buf, 0x0102030405060708))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf.Bytes())

	got, err := ReadUint64(&buf)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), got)
}

func TestShortReads(t *testing.T) {
	_, err := ReadInt32(bytes.NewReader([]byte{1, 2}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadUint64(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}
