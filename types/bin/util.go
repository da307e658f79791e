package bin

import (
	"bufio"
	"encoding/binary"
	"io"
)

// WriteUint32 writes an uint32 in big-endian order to the writer
func WriteUint32(writer *bufio.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	// Writing a byte at a time is a bit silly,
	// but it causes b not to escape,
	// which more than pays for the silliness.
	for _, c := range &b {
		err := writer.WriteByte(c)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadUint32 reads an uint32 in big-endian order to the reader
func ReadUint32(reader *bufio.Reader) (uint32, error) {
	var b [4]byte
	// Reading a byte at a time is a bit silly,
	// but it causes b not to escape,
	// which more than pays for the silliness.
	for i := range &b {
		c, err := reader.ReadByte()
		if err != nil {
			return 0, err
		}
		b[i] = c
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// WriteInt32 writes a fixed-width int32 in big-endian order to w.
func WriteInt32(w io.Writer, v int32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

// ReadInt32 reads a fixed-width int32 in big-endian order from r.
//
// A stream that ends before all 4 bytes are read returns io.ErrUnexpectedEOF (or io.EOF if nothing was read).
func ReadInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// WriteUint64 writes a fixed-width uint64 in big-endian order to w.
func WriteUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadUint64 reads a fixed-width uint64 in big-endian order from r.
func ReadUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
