package fileop

import (
	"encoding/binary"

	"github.com/smbgo/smb3/utils"
	"github.com/smbgo/smb3/wire"
)

const (
	treeConnectRequestFixedSize      = 8
	treeConnectRequestStructureSize  = 9
	treeConnectResponseMinSize       = 16
	treeConnectResponseStructureSize = 16
	treeDisconnectRequestFixedSize   = 4
	treeDisconnectStructureSize      = 4
)

// Share types, per MS-SMB2 2.2.10.
const (
	ShareTypeDisk  = 0x01
	ShareTypePipe  = 0x02
	ShareTypePrint = 0x03
)

// BuildTreeConnectRequest builds an SMB2 TREE_CONNECT request for the
// UNC path "\\server\share" (or "\\server\IPC$" for the named-pipe
// endpoint).
func BuildTreeConnectRequest(path string) []byte {
	data := wire.NewRequestHeader(wire.SMB2_TREE_CONNECT)
	body := make([]byte, treeConnectRequestFixedSize)
	binary.LittleEndian.PutUint16(body[0:2], treeConnectRequestStructureSize)

	name := utils.EncodeStringToBytes(path)
	pathOff := wire.SMB2HeaderSize + len(body)
	binary.LittleEndian.PutUint16(body[4:6], uint16(pathOff))
	binary.LittleEndian.PutUint16(body[6:8], uint16(len(name)))

	data = append(data, body...)
	return append(data, name...)
}

// TreeConnectResult is the caller-relevant subset of an SMB2
// TREE_CONNECT response.
type TreeConnectResult struct {
	TreeID        uint32
	ShareType     uint8
	ShareFlags    uint32
	Capabilities  uint32
	MaximalAccess uint32
}

// ParseTreeConnectResponse parses an SMB2 TREE_CONNECT response body.
// The tree id comes from the SMB2 header, not the command body, so the
// caller must pass the full message (header included).
func ParseTreeConnectResponse(data []byte) (TreeConnectResult, error) {
	var res TreeConnectResult
	if len(data) < wire.SMB2HeaderSize+treeConnectResponseMinSize {
		return res, ErrShortResponse
	}

	b := data[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != treeConnectResponseStructureSize {
		return res, ErrWrongStructureSize
	}

	res.TreeID = wire.Header(data).TreeID()
	res.ShareType = b[2]
	res.ShareFlags = binary.LittleEndian.Uint32(b[4:8])
	res.Capabilities = binary.LittleEndian.Uint32(b[8:12])
	res.MaximalAccess = binary.LittleEndian.Uint32(b[12:16])
	return res, nil
}

// BuildTreeDisconnectRequest builds an SMB2 TREE_DISCONNECT request.
func BuildTreeDisconnectRequest() []byte {
	data := wire.NewRequestHeader(wire.SMB2_TREE_DISCONNECT)
	body := make([]byte, treeDisconnectRequestFixedSize)
	binary.LittleEndian.PutUint16(body[0:2], treeDisconnectStructureSize)
	return append(data, body...)
}
