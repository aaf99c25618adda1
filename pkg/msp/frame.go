package msp

import (
	"encoding/binary"
	"io"
)

// Direction indicates who originated a frame.
type Direction byte

const (
	// DirRequest marks a frame sent to the flight controller.
	DirRequest Direction = '<'
	// DirResponse marks a frame sent by the flight controller.
	DirResponse Direction = '>'
	// DirError marks an error reply from the flight controller.
	DirError Direction = '!'
)

// IsValid checks if it's a known direction byte.
func (d Direction) IsValid() bool {
	return d == DirRequest || d == DirResponse || d == DirError
}

const (
	headerLen  = 8 // '$' 'X' dir flag function(2) size(2)
	trailerLen = 1 // crc

	// MaxPayload is the largest payload a v2 frame can carry.
	MaxPayload = 0xffff
)

// Frame contains the information of one decoded MSP v2 message.
type Frame struct {
	Dir     Direction
	Flag    byte
	Code    uint16
	Payload []byte
}

// WireSize returns the encoded length of the frame.
func (f *Frame) WireSize() int {
	return headerLen + len(f.Payload) + trailerLen
}

// Bytes returns encoded bytes for sending.
func (f *Frame) Bytes() []byte {
	b := make([]byte, f.WireSize())
	b[0], b[1], b[2], b[3] = '$', 'X', byte(f.Dir), f.Flag
	binary.LittleEndian.PutUint16(b[4:], f.Code)
	binary.LittleEndian.PutUint16(b[6:], uint16(len(f.Payload)))
	copy(b[8:], f.Payload)
	b[len(b)-1] = crc8Sum(b[3 : len(b)-1])
	return b
}

// WriteTo writes encoded bytes.
func (f *Frame) WriteTo(w io.Writer) (n int, err error) {
	return w.Write(f.Bytes())
}

// Decode parses a buffer holding exactly one encoded frame.
func Decode(b []byte) (*Frame, error) {
	var p Parser
	for i, c := range b {
		f, err := p.Parse(c)
		if err != nil {
			return nil, err
		}
		if f != nil {
			if i != len(b)-1 {
				return nil, ErrTrailingBytes
			}
			return f, nil
		}
	}
	return nil, ErrTruncated
}
