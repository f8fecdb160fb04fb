package fileop

import (
	"encoding/binary"

	"github.com/smbgo/smb3/wire"
)

const (
	readRequestFixedSize      = 48
	readRequestStructureSize  = 49
	readResponseMinSize       = 16
	readResponseStructureSize = 17
)

// READ flags, per MS-SMB2 2.2.19.
const (
	ReadFlagUnbuffered        = 0x01
	ReadFlagRequestCompressed = 0x02
)

// ReadParams describes an outbound SMB2 READ request.
type ReadParams struct {
	Flags        uint8
	Length       uint32
	Offset       uint64
	FileID       []byte
	MinimumCount uint32
}

// BuildReadRequest builds an SMB2 READ request body for p. Channel,
// RemainingBytes and the read-channel-info fields are left zero: the
// core runtime doesn't use RDMA channels.
func BuildReadRequest(p ReadParams) []byte {
	data := wire.NewRequestHeader(wire.SMB2_READ)
	body := make([]byte, readRequestFixedSize)
	binary.LittleEndian.PutUint16(body[0:2], readRequestStructureSize)
	body[3] = p.Flags
	binary.LittleEndian.PutUint32(body[4:8], p.Length)
	binary.LittleEndian.PutUint64(body[8:16], p.Offset)
	copy(body[16:32], p.FileID)
	binary.LittleEndian.PutUint32(body[32:36], p.MinimumCount)
	data = append(data, body...)
	return append(data, 0) // minimum 1-byte buffer, per MS-SMB2
}

// ParseReadResponse parses an SMB2 READ response body and returns the
// data the server returned.
func ParseReadResponse(data []byte) ([]byte, error) {
	if len(data) < wire.SMB2HeaderSize+readResponseMinSize {
		return nil, ErrShortResponse
	}

	b := data[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != readResponseStructureSize {
		return nil, ErrWrongStructureSize
	}

	off := b[2]
	length := binary.LittleEndian.Uint32(b[4:8])
	start := int(off)
	if start < wire.SMB2HeaderSize || start+int(length) > len(data) {
		return nil, ErrShortResponse
	}
	return data[start : start+int(length)], nil
}
