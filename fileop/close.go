package fileop

import (
	"encoding/binary"
	"time"

	"github.com/smbgo/smb3/utils"
	"github.com/smbgo/smb3/wire"
)

const (
	closeRequestFixedSize      = 24
	closeRequestStructureSize  = 24
	closeResponseMinSize       = 60
	closeResponseStructureSize = 60
)

// CLOSE flags, per MS-SMB2 2.2.15.
const (
	CloseFlagPostQueryAttrib = 0x0001
)

// BuildCloseRequest builds an SMB2 CLOSE request body for fileID.
// postQueryAttrib asks the server to return the file's final attributes
// in the response instead of zeroes.
func BuildCloseRequest(fileID []byte, postQueryAttrib bool) []byte {
	data := wire.NewRequestHeader(wire.SMB2_CLOSE)
	body := make([]byte, closeRequestFixedSize)
	binary.LittleEndian.PutUint16(body[0:2], closeRequestStructureSize)
	if postQueryAttrib {
		binary.LittleEndian.PutUint16(body[2:4], CloseFlagPostQueryAttrib)
	}
	copy(body[8:24], fileID)
	return append(data, body...)
}

// CloseResult is the caller-relevant subset of an SMB2 CLOSE response,
// populated only when the request set CloseFlagPostQueryAttrib.
type CloseResult struct {
	Flags          uint16
	LastWriteTime  time.Time
	EndOfFile      uint64
	FileAttributes uint32
}

// ParseCloseResponse parses an SMB2 CLOSE response body.
func ParseCloseResponse(data []byte) (CloseResult, error) {
	var res CloseResult
	if len(data) < wire.SMB2HeaderSize+closeResponseMinSize {
		return res, ErrShortResponse
	}

	b := data[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != closeResponseStructureSize {
		return res, ErrWrongStructureSize
	}

	res.Flags = binary.LittleEndian.Uint16(b[2:4])
	res.LastWriteTime = utils.FiletimeToUnix(binary.LittleEndian.Uint64(b[24:32]))
	res.EndOfFile = binary.LittleEndian.Uint64(b[40:48])
	res.FileAttributes = binary.LittleEndian.Uint32(b[56:60])
	return res, nil
}
