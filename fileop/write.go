package fileop

import (
	"encoding/binary"

	"github.com/smbgo/smb3/wire"
)

const (
	writeRequestFixedSize      = 48
	writeRequestStructureSize  = 49
	writeResponseMinSize       = 16
	writeResponseStructureSize = 17
)

// WriteParams describes an outbound SMB2 WRITE request.
type WriteParams struct {
	Offset uint64
	FileID []byte
	Flags  uint32
	Data   []byte
}

// BuildWriteRequest builds an SMB2 WRITE request body for p. Channel,
// RemainingBytes and the write-channel-info fields are left zero: the
// core runtime doesn't use RDMA channels.
func BuildWriteRequest(p WriteParams) []byte {
	data := wire.NewRequestHeader(wire.SMB2_WRITE)
	body := make([]byte, writeRequestFixedSize)
	binary.LittleEndian.PutUint16(body[0:2], writeRequestStructureSize)
	dataOff := wire.SMB2HeaderSize + len(body)
	binary.LittleEndian.PutUint16(body[2:4], uint16(dataOff))
	binary.LittleEndian.PutUint32(body[4:8], uint32(len(p.Data)))
	binary.LittleEndian.PutUint64(body[8:16], p.Offset)
	copy(body[16:32], p.FileID)
	binary.LittleEndian.PutUint32(body[44:48], p.Flags)

	data = append(data, body...)
	return append(data, p.Data...)
}

// ParseWriteResponse parses an SMB2 WRITE response body and returns the
// number of bytes the server reports as written.
func ParseWriteResponse(data []byte) (uint32, error) {
	if len(data) < wire.SMB2HeaderSize+writeResponseMinSize {
		return 0, ErrShortResponse
	}

	b := data[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != writeResponseStructureSize {
		return 0, ErrWrongStructureSize
	}
	return binary.LittleEndian.Uint32(b[4:8]), nil
}
