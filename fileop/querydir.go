package fileop

import (
	"encoding/binary"
	"time"

	"github.com/smbgo/smb3/utils"
	"github.com/smbgo/smb3/wire"
)

const (
	queryDirectoryRequestStructureSize  = 33
	queryDirectoryResponseMinSize       = 8
	queryDirectoryResponseStructureSize = 9
)

// File information classes accepted by QUERY_DIRECTORY, per MS-FSCC
// 2.4.
const (
	FileDirectoryInformation       = 0x01
	FileFullDirectoryInformation   = 0x02
	FileIDFullDirectoryInformation = 0x26
	FileBothDirectoryInformation   = 0x03
	FileIDBothDirectoryInformation = 0x25
	FileNamesInformation           = 0x0c
)

// QUERY_DIRECTORY flags, per MS-SMB2 2.2.33.
const (
	RestartScans      = 0x01
	ReturnSingleEntry = 0x02
	IndexSpecified    = 0x04
	Reopen            = 0x10
)

// QueryDirectoryParams describes an outbound SMB2 QUERY_DIRECTORY
// request.
type QueryDirectoryParams struct {
	FileInformationClass uint8
	Flags                uint8
	FileIndex            uint32
	FileID               []byte
	FileName             string
	OutputBufferLength   uint32
}

// BuildQueryDirectoryRequest builds an SMB2 QUERY_DIRECTORY request
// body for p.
func BuildQueryDirectoryRequest(p QueryDirectoryParams) []byte {
	data := wire.NewRequestHeader(wire.SMB2_QUERY_DIRECTORY)
	body := make([]byte, 32)
	binary.LittleEndian.PutUint16(body[0:2], queryDirectoryRequestStructureSize)
	body[2] = p.FileInformationClass
	body[3] = p.Flags
	binary.LittleEndian.PutUint32(body[4:8], p.FileIndex)
	copy(body[8:24], p.FileID)
	binary.LittleEndian.PutUint32(body[28:32], p.OutputBufferLength)

	name := utils.EncodeStringToBytes(p.FileName)
	nameOff := wire.SMB2HeaderSize + len(body)
	binary.LittleEndian.PutUint16(body[24:26], uint16(nameOff))
	binary.LittleEndian.PutUint16(body[26:28], uint16(len(name)))

	data = append(data, body...)
	return append(data, name...)
}

// DirectoryEntry is a decoded FILE_ID_BOTH_DIR_INFORMATION record.
type DirectoryEntry struct {
	FileIndex      uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	EndOfFile      uint64
	AllocationSize uint64
	FileAttributes uint32
	FileID         uint64
	FileName       string
}

// ParseQueryDirectoryResponse parses an SMB2 QUERY_DIRECTORY response
// body and returns the raw information buffer the server returned.
// Decoding it into entries requires knowing the FileInformationClass the
// request asked for; use DecodeFileIDBothDirectoryInformation for
// FileIDBothDirectoryInformation, the class go-smb2-family clients
// default to.
func ParseQueryDirectoryResponse(data []byte) ([]byte, error) {
	if len(data) < wire.SMB2HeaderSize+queryDirectoryResponseMinSize {
		return nil, ErrShortResponse
	}

	b := data[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != queryDirectoryResponseStructureSize {
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

// DecodeFileIDBothDirectoryInformation decodes a FILE_ID_BOTH_DIR_INFORMATION
// buffer: the fixed 104-byte-plus-name record MS-FSCC 2.4.17 defines.
func DecodeFileIDBothDirectoryInformation(buf []byte) ([]DirectoryEntry, error) {
	var entries []DirectoryEntry
	for len(buf) > 0 {
		if len(buf) < 104 {
			return nil, ErrShortResponse
		}

		nextOffset := binary.LittleEndian.Uint32(buf[0:4])
		nameLen := binary.LittleEndian.Uint32(buf[60:64])
		if int(104+nameLen) > len(buf) {
			return nil, ErrShortResponse
		}

		entries = append(entries, DirectoryEntry{
			FileIndex:      binary.LittleEndian.Uint32(buf[4:8]),
			CreationTime:   utils.FiletimeToUnix(binary.LittleEndian.Uint64(buf[8:16])),
			LastAccessTime: utils.FiletimeToUnix(binary.LittleEndian.Uint64(buf[16:24])),
			LastWriteTime:  utils.FiletimeToUnix(binary.LittleEndian.Uint64(buf[24:32])),
			ChangeTime:     utils.FiletimeToUnix(binary.LittleEndian.Uint64(buf[32:40])),
			EndOfFile:      binary.LittleEndian.Uint64(buf[40:48]),
			AllocationSize: binary.LittleEndian.Uint64(buf[48:56]),
			FileAttributes: binary.LittleEndian.Uint32(buf[56:60]),
			FileID:         binary.LittleEndian.Uint64(buf[96:104]),
			FileName:       utils.DecodeToString(buf[104 : 104+nameLen]),
		})

		if nextOffset == 0 {
			break
		}
		if int(nextOffset) > len(buf) {
			return nil, ErrShortResponse
		}
		buf = buf[nextOffset:]
	}
	return entries, nil
}
