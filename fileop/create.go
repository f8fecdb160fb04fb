// Package fileop builds client-direction CREATE/READ/WRITE/CLOSE/
// QUERY_DIRECTORY/CHANGE_NOTIFY request bodies and parses their
// responses, on top of connection.Connection.Send/SendMany. It is not
// part of the connection runtime itself - a thin consumer of wire
// message bodies.
package fileop

import (
	"encoding/binary"
	"errors"

	"github.com/smbgo/smb3/utils"
	"github.com/smbgo/smb3/wire"
)

var (
	// ErrShortResponse is returned when a response body is too small to
	// contain its fixed-size fields.
	ErrShortResponse = errors.New("fileop: response too short")
	// ErrWrongStructureSize is returned when a response's StructureSize
	// field doesn't match the command's fixed value.
	ErrWrongStructureSize = errors.New("fileop: unexpected structure size")
)

const (
	createRequestStructureSize  = 57
	createResponseMinSize       = 88
	createResponseStructureSize = 89
)

// Oplock levels, impersonation levels, share access, create disposition/
// options and file attributes, per MS-SMB2 2.2.13.
const (
	OplockLevelNone      = 0x00
	OplockLevelII        = 0x01
	OplockLevelExclusive = 0x08
	OplockLevelBatch     = 0x09
	OplockLevelLease     = 0xff
)

const (
	ImpersonationAnonymous      = 0x00000000
	ImpersonationIdentification = 0x00000001
	ImpersonationImpersonation  = 0x00000002
	ImpersonationDelegate       = 0x00000003
)

const (
	FileShareRead   = 0x00000001
	FileShareWrite  = 0x00000002
	FileShareDelete = 0x00000004
)

const (
	FileSupersede   = 0x00000000
	FileOpen        = 0x00000001
	FileCreate      = 0x00000002
	FileOpenIf      = 0x00000003
	FileOverwrite   = 0x00000004
	FileOverwriteIf = 0x00000005
)

const (
	FileDirectoryFile    = 0x00000001
	FileWriteThrough     = 0x00000002
	FileNonDirectoryFile = 0x00000040
	FileDeleteOnClose    = 0x00001000
)

const (
	FileAttributeNormal    = 0x00000080
	FileAttributeDirectory = 0x00000010
)

// CreateParams describes the fields of an outbound SMB2 CREATE request
// that a caller chooses per-call; every other field of the fixed part is
// left zeroed.
type CreateParams struct {
	RequestedOplockLevel uint8
	ImpersonationLevel   uint32
	DesiredAccess        uint32
	FileAttributes       uint32
	ShareAccess          uint32
	CreateDisposition    uint32
	CreateOptions        uint32
	Name                 string
}

// BuildCreateRequest builds an SMB2 CREATE request body for p. The fixed
// part is 56 bytes (StructureSize, reserved SecurityFlags, oplock level,
// impersonation level, 8 reserved SmbCreateFlags bytes, 8 reserved bytes,
// access/attributes/share/disposition/options, name offset+length,
// create-contexts offset+length) followed by the name buffer;
// StructureSize is fixed at 57 per MS-SMB2 regardless of buffer length.
func BuildCreateRequest(p CreateParams) []byte {
	data := wire.NewRequestHeader(wire.SMB2_CREATE)
	body := make([]byte, 56)
	binary.LittleEndian.PutUint16(body[0:2], createRequestStructureSize)
	body[3] = p.RequestedOplockLevel
	binary.LittleEndian.PutUint32(body[4:8], p.ImpersonationLevel)
	binary.LittleEndian.PutUint32(body[24:28], p.DesiredAccess)
	binary.LittleEndian.PutUint32(body[28:32], p.FileAttributes)
	binary.LittleEndian.PutUint32(body[32:36], p.ShareAccess)
	binary.LittleEndian.PutUint32(body[36:40], p.CreateDisposition)
	binary.LittleEndian.PutUint32(body[40:44], p.CreateOptions)

	name := utils.EncodeStringToBytes(p.Name)
	nameOff := wire.SMB2HeaderSize + len(body)
	binary.LittleEndian.PutUint16(body[44:46], uint16(nameOff))
	binary.LittleEndian.PutUint16(body[46:48], uint16(len(name)))

	data = append(data, body...)
	data = append(data, name...)
	return data
}

// CreateResult is the caller-relevant subset of an SMB2 CREATE response.
type CreateResult struct {
	OplockLevel  uint8
	CreateAction uint32
	FileID       []byte
	EndOfFile    uint64
	Attributes   uint32
}

// ParseCreateResponse parses an SMB2 CREATE response body.
func ParseCreateResponse(data []byte) (CreateResult, error) {
	var res CreateResult
	if len(data) < wire.SMB2HeaderSize+createResponseMinSize {
		return res, ErrShortResponse
	}

	b := data[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != createResponseStructureSize {
		return res, ErrWrongStructureSize
	}

	res.OplockLevel = b[2]
	res.CreateAction = binary.LittleEndian.Uint32(b[4:8])
	res.EndOfFile = binary.LittleEndian.Uint64(b[40:48])
	res.Attributes = binary.LittleEndian.Uint32(b[56:60])
	res.FileID = make([]byte, 16)
	copy(res.FileID, b[64:80])
	return res, nil
}
