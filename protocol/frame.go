package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ErrMalformedMessage is returned when a frame's length prefix disagrees
// with the supplied bytes, or a decode would read past the end of the body.
var ErrMalformedMessage = fmt.Errorf("malformed message")

// EncodeMessage produces a length-prefixed frame: u32 length || code || body.
// code must already have been written as the leading field of body by the
// caller's message Encode method; EncodeMessage only adds the length
// prefix, matching connection.Conn.WriteMessage's framing.
func EncodeMessage(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out, uint32(len(body))) //nolint:gosec // messages are always < 4GB
	copy(out[4:], body)
	return out
}

// DecodeMessage parses a length-prefixed frame and returns the leading
// four-byte little-endian code plus a Reader positioned after it, ready to
// decode the remaining body fields. b must be exactly one frame: the
// 4-byte length prefix followed by that many body bytes.
func DecodeMessage(b []byte) (code uint32, body *Reader, err error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("%w: frame too short (%d bytes)", ErrMalformedMessage, len(b))
	}
	length := binary.LittleEndian.Uint32(b[:4])
	//nolint:gosec // length is bounded by len(b), which fits in an int
	if int(length) != len(b)-4 {
		return 0, nil, fmt.Errorf("%w: length prefix %d disagrees with payload %d", ErrMalformedMessage, length, len(b)-4)
	}
	payload := b[4:]
	code = binary.LittleEndian.Uint32(payload[:4])
	return code, NewReader(bytes.NewReader(payload)), nil
}
