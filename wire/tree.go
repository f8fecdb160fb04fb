package wire

import (
	"encoding/binary"

	"github.com/smbgo/smb3/utils"
)

const (
	SMB2TreeConnectRequestMinSize       = 8
	SMB2TreeConnectRequestStructureSize = 9

	SMB2TreeConnectResponseMinSize       = 16
	SMB2TreeConnectResponseStructureSize = 16

	SMB2TreeDisconnectRequestMinSize       = 4
	SMB2TreeDisconnectRequestStructureSize = 4
)

const (
	// Share types.
	SHARE_TYPE_DISK  = 0x01
	SHARE_TYPE_PIPE  = 0x02
	SHARE_TYPE_PRINT = 0x03
)

const (
	// Share flags.
	SHAREFLAG_DFS               = 0x00000001
	SHAREFLAG_DFS_ROOT          = 0x00000002
	SHAREFLAG_ENCRYPT_DATA      = 0x00008000
	SHAREFLAG_COMPRESS_DATA     = 0x00100000
	SHAREFLAG_ISOLATED_TRANSPORT = 0x00200000
)

const (
	// Share capabilities.
	SHARE_CAP_DFS                     = 0x00000008
	SHARE_CAP_CONTINUOUS_AVAILABILITY = 0x00000010
	SHARE_CAP_SCALEOUT                = 0x00000020
	SHARE_CAP_CLUSTER                 = 0x00000040
	SHARE_CAP_ASYMMETRIC              = 0x00000080
	SHARE_CAP_REDIRECT_TO_OWNER       = 0x00000100
)

const (
	// File/directory access flags (MS-DTYP ACCESS_MASK + SMB2 generic bits).
	FILE_READ_DATA         = 0x00000001
	FILE_WRITE_DATA        = 0x00000002
	FILE_APPEND_DATA       = 0x00000004
	FILE_READ_EA           = 0x00000008
	FILE_WRITE_EA          = 0x00000010
	FILE_EXECUTE           = 0x00000020
	FILE_DELETE_CHILD      = 0x00000040
	FILE_READ_ATTRIBUTES   = 0x00000080
	FILE_WRITE_ATTRIBUTES  = 0x00000100
	DELETE                 = 0x00010000
	READ_CONTROL           = 0x00020000
	WRITE_DAC              = 0x00040000
	WRITE_OWNER            = 0x00080000
	SYNCHRONIZE            = 0x00100000
	ACCESS_SYSTEM_SECURITY = 0x01000000
	MAXIMUM_ALLOWED        = 0x02000000
	GENERIC_ALL            = 0x10000000
	GENERIC_EXECUTE        = 0x20000000
	GENERIC_WRITE          = 0x40000000
	GENERIC_READ           = 0x80000000
)

// BuildTreeConnectRequest marshals an SMB2_TREE_CONNECT request for the
// given UNC share path (e.g. "\\\\server\\share").
func BuildTreeConnectRequest(path string) []byte {
	header := NewRequestHeader(SMB2_TREE_CONNECT)
	pathBytes := utils.EncodeStringToBytes(path)

	body := make([]byte, SMB2TreeConnectRequestMinSize)
	binary.LittleEndian.PutUint16(body[:2], SMB2TreeConnectRequestStructureSize)
	binary.LittleEndian.PutUint16(body[4:6], SMB2HeaderSize+SMB2TreeConnectRequestMinSize)
	binary.LittleEndian.PutUint16(body[6:8], uint16(len(pathBytes)))

	return append(append(header, body...), pathBytes...)
}

// BuildTreeDisconnectRequest marshals an SMB2_TREE_DISCONNECT request.
func BuildTreeDisconnectRequest() []byte {
	header := NewRequestHeader(SMB2_TREE_DISCONNECT)
	body := make([]byte, SMB2TreeDisconnectRequestMinSize)
	binary.LittleEndian.PutUint16(body[:2], SMB2TreeDisconnectRequestStructureSize)
	return append(header, body...)
}

// TreeConnectResponse wraps a parsed SMB2_TREE_CONNECT response body.
type TreeConnectResponse struct {
	data []byte
}

func ParseTreeConnectResponse(pkt []byte) (*TreeConnectResponse, error) {
	if len(pkt) < SMB2HeaderSize+SMB2TreeConnectResponseMinSize {
		return nil, ErrWrongLength
	}
	return &TreeConnectResponse{data: pkt}, nil
}

func (tcr *TreeConnectResponse) ShareType() uint8 {
	return tcr.data[SMB2HeaderSize+2]
}

func (tcr *TreeConnectResponse) ShareFlags() uint32 {
	return binary.LittleEndian.Uint32(tcr.data[SMB2HeaderSize+4 : SMB2HeaderSize+8])
}

func (tcr *TreeConnectResponse) Capabilities() uint32 {
	return binary.LittleEndian.Uint32(tcr.data[SMB2HeaderSize+8 : SMB2HeaderSize+12])
}

func (tcr *TreeConnectResponse) MaximalAccess() uint32 {
	return binary.LittleEndian.Uint32(tcr.data[SMB2HeaderSize+12 : SMB2HeaderSize+16])
}
