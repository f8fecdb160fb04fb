package fileop

import (
	"encoding/binary"

	"github.com/smbgo/smb3/wire"
)

const (
	changeNotifyRequestFixedSize      = 32
	changeNotifyRequestStructureSize  = 32
	changeNotifyResponseMinSize       = 8
	changeNotifyResponseStructureSize = 9
)

// WatchTree.
const (
	WatchTree = 0x0001
)

// Completion filter bits, per MS-SMB2 2.2.35 / MS-FSCC 2.6.
const (
	FileNotifyChangeFileName    = 0x00000001
	FileNotifyChangeDirName     = 0x00000002
	FileNotifyChangeAttributes  = 0x00000004
	FileNotifyChangeSize        = 0x00000008
	FileNotifyChangeLastWrite   = 0x00000010
	FileNotifyChangeLastAccess  = 0x00000020
	FileNotifyChangeCreation    = 0x00000040
	FileNotifyChangeEA          = 0x00000080
	FileNotifyChangeSecurity    = 0x00000100
	FileNotifyChangeStreamName  = 0x00000200
	FileNotifyChangeStreamSize  = 0x00000400
	FileNotifyChangeStreamWrite = 0x00000800
)

// ChangeNotifyParams describes an outbound SMB2 CHANGE_NOTIFY request.
type ChangeNotifyParams struct {
	WatchTree          bool
	OutputBufferLength uint32
	FileID             []byte
	CompletionFilter   uint32
}

// BuildChangeNotifyRequest builds an SMB2 CHANGE_NOTIFY request body,
// a long-lived request that sits pending at the server until a matching
// change occurs or the request is cancelled.
func BuildChangeNotifyRequest(p ChangeNotifyParams) []byte {
	data := wire.NewRequestHeader(wire.SMB2_CHANGE_NOTIFY)
	body := make([]byte, changeNotifyRequestFixedSize)
	binary.LittleEndian.PutUint16(body[0:2], changeNotifyRequestStructureSize)
	if p.WatchTree {
		binary.LittleEndian.PutUint16(body[2:4], WatchTree)
	}
	binary.LittleEndian.PutUint32(body[4:8], p.OutputBufferLength)
	copy(body[8:24], p.FileID)
	binary.LittleEndian.PutUint32(body[24:28], p.CompletionFilter)
	return append(data, body...)
}

// ParseChangeNotifyResponse parses an SMB2 CHANGE_NOTIFY response body
// and returns the raw FILE_NOTIFY_INFORMATION buffer the server
// returned; decoding individual change records is left to the caller.
func ParseChangeNotifyResponse(data []byte) ([]byte, error) {
	if len(data) < wire.SMB2HeaderSize+changeNotifyResponseMinSize {
		return nil, ErrShortResponse
	}

	b := data[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != changeNotifyResponseStructureSize {
		return nil, ErrWrongStructureSize
	}

	off := binary.LittleEndian.Uint16(b[2:4])
	length := binary.LittleEndian.Uint32(b[4:8])
	start := int(off)
	if length == 0 {
		return nil, nil
	}
	if start < wire.SMB2HeaderSize || start+int(length) > len(data) {
		return nil, ErrShortResponse
	}
	return data[start : start+int(length)], nil
}
