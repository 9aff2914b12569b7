package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeFrame builds a single interprocess publication message: identifier
// bytes, a NUL separator, then the serialized payload (spec §6).
func EncodeFrame(id Identifier, payload []byte) []byte {
	header := id.String()
	buf := make([]byte, 0, len(header)+1+len(payload))
	buf = append(buf, header...)
	buf = append(buf, 0x00)
	buf = append(buf, payload...)
	return buf
}

// DecodeFrame splits a publication message back into its identifier and
// payload.
func DecodeFrame(frame []byte) (Identifier, []byte, error) {
	i := bytes.IndexByte(frame, 0x00)
	if i < 0 {
		return Identifier{}, nil, fmt.Errorf("wire: frame missing NUL separator")
	}
	id, err := ParseIdentifier(string(frame[:i]))
	if err != nil {
		return Identifier{}, nil, err
	}
	return id, frame[i+1:], nil
}

// managerSchemeSentinel is the fixed 4-byte marshalling-scheme sentinel
// that opens every Manager request/reply frame (spec §4.6, §6). It is not
// one of the pkg/scheme tags: it identifies the Manager's own envelope
// encoding, independent of any payload scheme the application-level
// registry understands.
var managerSchemeSentinel = [4]byte{'M', 'G', 'R', 1}

// EncodeManagerFrame builds a Manager request/reply message: the 4-byte
// sentinel, a NUL byte, then the serialized body.
func EncodeManagerFrame(body []byte) []byte {
	buf := make([]byte, 0, 5+len(body))
	buf = append(buf, managerSchemeSentinel[:]...)
	buf = append(buf, 0x00)
	buf = append(buf, body...)
	return buf
}

// DecodeManagerFrame validates the 5-byte header and returns the body.
func DecodeManagerFrame(frame []byte) ([]byte, error) {
	if len(frame) < 5 {
		return nil, fmt.Errorf("wire: manager frame too short (%d bytes)", len(frame))
	}
	var got [4]byte
	copy(got[:], frame[:4])
	if got != managerSchemeSentinel {
		return nil, fmt.Errorf("wire: manager frame has unrecognized sentinel %v", got)
	}
	if frame[4] != 0x00 {
		return nil, fmt.Errorf("wire: manager frame fifth byte must be NUL")
	}
	return frame[5:], nil
}

// PutUint32BE is a small helper used by length-prefixed transports
// (pkg/router, pkg/manager) to frame messages over a raw net.Conn stream.
func PutUint32BE(n int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}
