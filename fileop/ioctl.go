package fileop

import (
	"encoding/binary"

	"github.com/smbgo/smb3/wire"
)

const (
	ioctlRequestFixedSize      = 56
	ioctlRequestStructureSize  = 57
	ioctlResponseMinSize       = 48
	ioctlResponseStructureSize = 49
)

// FSCTL control codes, per MS-SMB2 2.2.31.1 / MS-FSCC.
const (
	FsctlPipeTranceive = 0x0011c017
	FsctlPipePeek      = 0x0011400c
	FsctlPipeWait      = 0x00110018
)

// IOCTL flags, per MS-SMB2 2.2.31.
const (
	IoctlIsFsctl = 0x00000001
)

// DummyFileID is the all-0xff file id some FSCTLs (those not scoped to a
// particular open) use in place of a real one.
var DummyFileID = []byte{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// BuildIoctlRequest builds an SMB2 IOCTL request, carrying input as the
// request's input buffer and asking for up to maxOutput bytes back -
// the transport FSCTL_PIPE_TRANSCEIVE rides on to move a DCERPC PDU over
// an already-open named pipe handle.
func BuildIoctlRequest(ctlCode uint32, fileID []byte, input []byte, maxOutput uint32) []byte {
	data := wire.NewRequestHeader(wire.SMB2_IOCTL)
	body := make([]byte, ioctlRequestFixedSize)
	binary.LittleEndian.PutUint16(body[0:2], ioctlRequestStructureSize)
	binary.LittleEndian.PutUint32(body[4:8], ctlCode)
	copy(body[8:24], fileID)

	inOff := wire.SMB2HeaderSize + len(body)
	binary.LittleEndian.PutUint32(body[24:28], uint32(inOff))
	binary.LittleEndian.PutUint32(body[28:32], uint32(len(input)))
	binary.LittleEndian.PutUint32(body[44:48], maxOutput)
	binary.LittleEndian.PutUint32(body[48:52], IoctlIsFsctl)

	data = append(data, body...)
	return append(data, input...)
}

// ParseIoctlResponse parses an SMB2 IOCTL response body and returns the
// output buffer the server returned.
func ParseIoctlResponse(data []byte) ([]byte, error) {
	if len(data) < wire.SMB2HeaderSize+ioctlResponseMinSize {
		return nil, ErrShortResponse
	}

	b := data[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != ioctlResponseStructureSize {
		return nil, ErrWrongStructureSize
	}

	off := binary.LittleEndian.Uint32(b[32:36])
	length := binary.LittleEndian.Uint32(b[36:40])
	if length == 0 {
		return nil, nil
	}
	if int(off) < wire.SMB2HeaderSize || int(off)+int(length) > len(data) {
		return nil, ErrShortResponse
	}
	return data[off : int(off)+int(length)], nil
}
