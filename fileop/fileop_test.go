package fileop

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/smbgo/smb3/utils"
	"github.com/smbgo/smb3/wire"
)

func TestBuildCreateRequest(t *testing.T) {
	req := BuildCreateRequest(CreateParams{
		RequestedOplockLevel: OplockLevelNone,
		ImpersonationLevel:   ImpersonationImpersonation,
		DesiredAccess:        0x00120089,
		FileAttributes:       FileAttributeNormal,
		ShareAccess:          FileShareRead | FileShareWrite,
		CreateDisposition:    FileOpen,
		CreateOptions:        FileNonDirectoryFile,
		Name:                 "dir\\file.txt",
	})

	if wire.Header(req).Command() != wire.SMB2_CREATE {
		t.Fatalf("command = %d, want SMB2_CREATE", wire.Header(req).Command())
	}

	b := req[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != 57 {
		t.Errorf("structure size = %d, want 57", binary.LittleEndian.Uint16(b[0:2]))
	}
	if b[3] != OplockLevelNone {
		t.Errorf("oplock level = %d, want %d", b[3], OplockLevelNone)
	}
	if got := binary.LittleEndian.Uint32(b[4:8]); got != ImpersonationImpersonation {
		t.Errorf("impersonation level = %d, want %d", got, ImpersonationImpersonation)
	}
	if got := binary.LittleEndian.Uint32(b[24:28]); got != 0x00120089 {
		t.Errorf("desired access = %#x, want %#x", got, 0x00120089)
	}
	if got := binary.LittleEndian.Uint32(b[36:40]); got != FileOpen {
		t.Errorf("create disposition = %d, want %d", got, FileOpen)
	}

	nameOff := binary.LittleEndian.Uint16(b[44:46])
	nameLen := binary.LittleEndian.Uint16(b[46:48])
	if int(nameOff) != wire.SMB2HeaderSize+56 {
		t.Errorf("name offset = %d, want %d", nameOff, wire.SMB2HeaderSize+56)
	}
	name := utils.DecodeToString(req[nameOff : int(nameOff)+int(nameLen)])
	if name != "dir\\file.txt" {
		t.Errorf("name = %q, want %q", name, "dir\\file.txt")
	}
}

func TestParseCreateResponse(t *testing.T) {
	data := make([]byte, wire.SMB2HeaderSize+88)
	b := data[wire.SMB2HeaderSize:]
	binary.LittleEndian.PutUint16(b[0:2], 89)
	b[2] = OplockLevelII
	binary.LittleEndian.PutUint32(b[4:8], 1) // FILE_OPENED
	binary.LittleEndian.PutUint64(b[40:48], 1234)
	binary.LittleEndian.PutUint32(b[56:60], FileAttributeNormal)
	fileID := bytes.Repeat([]byte{0xab}, 16)
	copy(b[64:80], fileID)

	res, err := ParseCreateResponse(data)
	if err != nil {
		t.Fatalf("ParseCreateResponse: %v", err)
	}
	if res.OplockLevel != OplockLevelII {
		t.Errorf("oplock level = %d, want %d", res.OplockLevel, OplockLevelII)
	}
	if res.EndOfFile != 1234 {
		t.Errorf("end of file = %d, want 1234", res.EndOfFile)
	}
	if !bytes.Equal(res.FileID, fileID) {
		t.Errorf("file id = %x, want %x", res.FileID, fileID)
	}
}

func TestParseCreateResponseTooShort(t *testing.T) {
	if _, err := ParseCreateResponse(make([]byte, wire.SMB2HeaderSize+10)); err != ErrShortResponse {
		t.Errorf("err = %v, want ErrShortResponse", err)
	}
}

func TestBuildAndParseClose(t *testing.T) {
	fileID := bytes.Repeat([]byte{0x11}, 16)
	req := BuildCloseRequest(fileID, true)
	if wire.Header(req).Command() != wire.SMB2_CLOSE {
		t.Fatalf("command = %d, want SMB2_CLOSE", wire.Header(req).Command())
	}
	b := req[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[2:4]) != CloseFlagPostQueryAttrib {
		t.Errorf("flags not set on request")
	}
	if !bytes.Equal(b[8:24], fileID) {
		t.Errorf("file id mismatch in request")
	}

	resp := make([]byte, wire.SMB2HeaderSize+60)
	rb := resp[wire.SMB2HeaderSize:]
	binary.LittleEndian.PutUint16(rb[0:2], 60)
	binary.LittleEndian.PutUint16(rb[2:4], CloseFlagPostQueryAttrib)
	binary.LittleEndian.PutUint64(rb[40:48], 42)
	binary.LittleEndian.PutUint32(rb[56:60], FileAttributeNormal)

	res, err := ParseCloseResponse(resp)
	if err != nil {
		t.Fatalf("ParseCloseResponse: %v", err)
	}
	if res.EndOfFile != 42 {
		t.Errorf("end of file = %d, want 42", res.EndOfFile)
	}
	if res.FileAttributes != FileAttributeNormal {
		t.Errorf("file attributes = %#x, want %#x", res.FileAttributes, FileAttributeNormal)
	}
}

func TestBuildReadRequest(t *testing.T) {
	fileID := bytes.Repeat([]byte{0x22}, 16)
	req := BuildReadRequest(ReadParams{
		Length:       4096,
		Offset:       8192,
		FileID:       fileID,
		MinimumCount: 1,
	})
	b := req[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != 49 {
		t.Errorf("structure size = %d, want 49", binary.LittleEndian.Uint16(b[0:2]))
	}
	if got := binary.LittleEndian.Uint32(b[4:8]); got != 4096 {
		t.Errorf("length = %d, want 4096", got)
	}
	if got := binary.LittleEndian.Uint64(b[8:16]); got != 8192 {
		t.Errorf("offset = %d, want 8192", got)
	}
	if !bytes.Equal(b[16:32], fileID) {
		t.Errorf("file id mismatch in request")
	}
}

func TestParseReadResponse(t *testing.T) {
	payload := []byte("hello, world")
	dataOff := wire.SMB2HeaderSize + readResponseMinSize
	resp := make([]byte, dataOff+len(payload))
	rb := resp[wire.SMB2HeaderSize:]
	binary.LittleEndian.PutUint16(rb[0:2], readResponseStructureSize)
	rb[2] = byte(dataOff)
	binary.LittleEndian.PutUint32(rb[4:8], uint32(len(payload)))
	copy(resp[dataOff:], payload)

	got, err := ParseReadResponse(resp)
	if err != nil {
		t.Fatalf("ParseReadResponse: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("data = %q, want %q", got, payload)
	}
}

func TestBuildAndParseWrite(t *testing.T) {
	fileID := bytes.Repeat([]byte{0x33}, 16)
	payload := []byte("write me")
	req := BuildWriteRequest(WriteParams{Offset: 16, FileID: fileID, Data: payload})

	b := req[wire.SMB2HeaderSize:]
	dataOff := binary.LittleEndian.Uint16(b[2:4])
	length := binary.LittleEndian.Uint32(b[4:8])
	if int(length) != len(payload) {
		t.Fatalf("length = %d, want %d", length, len(payload))
	}
	if got := req[dataOff : int(dataOff)+int(length)]; !bytes.Equal(got, payload) {
		t.Errorf("data = %q, want %q", got, payload)
	}

	resp := make([]byte, wire.SMB2HeaderSize+16)
	rb := resp[wire.SMB2HeaderSize:]
	binary.LittleEndian.PutUint16(rb[0:2], writeResponseStructureSize)
	binary.LittleEndian.PutUint32(rb[4:8], uint32(len(payload)))

	n, err := ParseWriteResponse(resp)
	if err != nil {
		t.Fatalf("ParseWriteResponse: %v", err)
	}
	if int(n) != len(payload) {
		t.Errorf("count = %d, want %d", n, len(payload))
	}
}

func TestBuildChangeNotifyRequest(t *testing.T) {
	fileID := bytes.Repeat([]byte{0x44}, 16)
	req := BuildChangeNotifyRequest(ChangeNotifyParams{
		WatchTree:          true,
		OutputBufferLength: 1024,
		FileID:             fileID,
		CompletionFilter:   FileNotifyChangeFileName | FileNotifyChangeDirName,
	})

	b := req[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[2:4]) != WatchTree {
		t.Errorf("watch tree flag not set")
	}
	if got := binary.LittleEndian.Uint32(b[24:28]); got != FileNotifyChangeFileName|FileNotifyChangeDirName {
		t.Errorf("completion filter = %#x, want name|dirname", got)
	}
}

func TestParseChangeNotifyResponseEmpty(t *testing.T) {
	resp := make([]byte, wire.SMB2HeaderSize+8)
	rb := resp[wire.SMB2HeaderSize:]
	binary.LittleEndian.PutUint16(rb[0:2], changeNotifyResponseStructureSize)

	got, err := ParseChangeNotifyResponse(resp)
	if err != nil {
		t.Fatalf("ParseChangeNotifyResponse: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil buffer for a zero-length response, got %v", got)
	}
}

func TestBuildQueryDirectoryRequest(t *testing.T) {
	fileID := bytes.Repeat([]byte{0x55}, 16)
	req := BuildQueryDirectoryRequest(QueryDirectoryParams{
		FileInformationClass: FileIDBothDirectoryInformation,
		Flags:                RestartScans,
		FileID:               fileID,
		FileName:             "*",
		OutputBufferLength:   65536,
	})

	b := req[wire.SMB2HeaderSize:]
	if b[2] != FileIDBothDirectoryInformation {
		t.Errorf("info class = %d, want %d", b[2], FileIDBothDirectoryInformation)
	}
	if b[3] != RestartScans {
		t.Errorf("flags = %d, want RestartScans", b[3])
	}
	nameOff := binary.LittleEndian.Uint16(b[24:26])
	nameLen := binary.LittleEndian.Uint16(b[26:28])
	name := utils.DecodeToString(req[nameOff : int(nameOff)+int(nameLen)])
	if name != "*" {
		t.Errorf("name = %q, want %q", name, "*")
	}
}

// buildFileIDBothEntry constructs one raw FILE_ID_BOTH_DIR_INFORMATION
// record.
func buildFileIDBothEntry(next uint32, name string, fileID uint64, last bool) []byte {
	nameBytes := utils.EncodeStringToBytes(name)
	length := 104 + len(nameBytes)
	if !last {
		length = (length + 7) &^ 7
	}
	buf := make([]byte, length)
	if !last {
		binary.LittleEndian.PutUint32(buf[0:4], next)
	}
	binary.LittleEndian.PutUint64(buf[8:16], utils.UnixToFiletime(time.Unix(1700000000, 0)))
	binary.LittleEndian.PutUint64(buf[40:48], 555)
	binary.LittleEndian.PutUint32(buf[56:60], FileAttributeNormal)
	binary.LittleEndian.PutUint32(buf[60:64], uint32(len(nameBytes)))
	binary.LittleEndian.PutUint64(buf[96:104], fileID)
	copy(buf[104:104+len(nameBytes)], nameBytes)
	return buf
}

func TestDecodeFileIDBothDirectoryInformation(t *testing.T) {
	first := buildFileIDBothEntry(0, "a.txt", 1, false)
	second := buildFileIDBothEntry(0, "b.txt", 2, true)
	binary.LittleEndian.PutUint32(first[0:4], uint32(len(first)))

	buf := append(append([]byte{}, first...), second...)
	entries, err := DecodeFileIDBothDirectoryInformation(buf)
	if err != nil {
		t.Fatalf("DecodeFileIDBothDirectoryInformation: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].FileName != "a.txt" || entries[0].FileID != 1 {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].FileName != "b.txt" || entries[1].FileID != 2 {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[0].EndOfFile != 555 {
		t.Errorf("end of file = %d, want 555", entries[0].EndOfFile)
	}
}

func TestBuildAndParseTreeConnect(t *testing.T) {
	req := BuildTreeConnectRequest(`\\server\share`)
	if wire.Header(req).Command() != wire.SMB2_TREE_CONNECT {
		t.Fatalf("command = %d, want SMB2_TREE_CONNECT", wire.Header(req).Command())
	}
	b := req[wire.SMB2HeaderSize:]
	pathOff := binary.LittleEndian.Uint16(b[4:6])
	pathLen := binary.LittleEndian.Uint16(b[6:8])
	path := utils.DecodeToString(req[pathOff : int(pathOff)+int(pathLen)])
	if path != `\\server\share` {
		t.Errorf("path = %q, want %q", path, `\\server\share`)
	}

	resp := make([]byte, wire.SMB2HeaderSize+16)
	wire.Header(resp).SetTreeID(7)
	rb := resp[wire.SMB2HeaderSize:]
	binary.LittleEndian.PutUint16(rb[0:2], treeConnectResponseStructureSize)
	rb[2] = ShareTypeDisk
	binary.LittleEndian.PutUint32(rb[4:8], 0x30)
	binary.LittleEndian.PutUint32(rb[8:12], 0x1)
	binary.LittleEndian.PutUint32(rb[12:16], 0x001f01ff)

	res, err := ParseTreeConnectResponse(resp)
	if err != nil {
		t.Fatalf("ParseTreeConnectResponse: %v", err)
	}
	if res.TreeID != 7 {
		t.Errorf("tree id = %d, want 7", res.TreeID)
	}
	if res.ShareType != ShareTypeDisk {
		t.Errorf("share type = %d, want ShareTypeDisk", res.ShareType)
	}
	if res.MaximalAccess != 0x001f01ff {
		t.Errorf("maximal access = %#x, want %#x", res.MaximalAccess, 0x001f01ff)
	}
}

func TestBuildTreeDisconnectRequest(t *testing.T) {
	req := BuildTreeDisconnectRequest()
	if wire.Header(req).Command() != wire.SMB2_TREE_DISCONNECT {
		t.Fatalf("command = %d, want SMB2_TREE_DISCONNECT", wire.Header(req).Command())
	}
	b := req[wire.SMB2HeaderSize:]
	if binary.LittleEndian.Uint16(b[0:2]) != treeDisconnectStructureSize {
		t.Errorf("structure size = %d, want %d", binary.LittleEndian.Uint16(b[0:2]), treeDisconnectStructureSize)
	}
}

func TestBuildAndParseIoctl(t *testing.T) {
	fileID := bytes.Repeat([]byte{0x66}, 16)
	input := []byte("bind-pdu")
	req := BuildIoctlRequest(FsctlPipeTranceive, fileID, input, 1<<16)
	if wire.Header(req).Command() != wire.SMB2_IOCTL {
		t.Fatalf("command = %d, want SMB2_IOCTL", wire.Header(req).Command())
	}
	b := req[wire.SMB2HeaderSize:]
	if got := binary.LittleEndian.Uint32(b[4:8]); got != FsctlPipeTranceive {
		t.Errorf("ctl code = %#x, want %#x", got, FsctlPipeTranceive)
	}
	if !bytes.Equal(b[8:24], fileID) {
		t.Errorf("file id mismatch in request")
	}
	inOff := binary.LittleEndian.Uint32(b[24:28])
	inLen := binary.LittleEndian.Uint32(b[28:32])
	if got := req[inOff : int(inOff)+int(inLen)]; !bytes.Equal(got, input) {
		t.Errorf("input = %q, want %q", got, input)
	}

	output := []byte("bind-ack-pdu")
	outOff := wire.SMB2HeaderSize + ioctlResponseMinSize
	resp := make([]byte, outOff+len(output))
	rb := resp[wire.SMB2HeaderSize:]
	binary.LittleEndian.PutUint16(rb[0:2], ioctlResponseStructureSize)
	binary.LittleEndian.PutUint32(rb[32:36], uint32(outOff))
	binary.LittleEndian.PutUint32(rb[36:40], uint32(len(output)))
	copy(resp[outOff:], output)

	got, err := ParseIoctlResponse(resp)
	if err != nil {
		t.Fatalf("ParseIoctlResponse: %v", err)
	}
	if !bytes.Equal(got, output) {
		t.Errorf("output = %q, want %q", got, output)
	}
}

// NamedPipe.Call has no test of its own here: pipe.go's only job is
// repackaging an IOCTL request/response, and a test double for *connection.Connection's
// send path would require faking the whole transport/backend stack.
// That round trip is instead covered indirectly by
// TestBuildAndParseIoctl above, which exercises the same
// Build/ParseIoctlResponse pair NamedPipe.Call calls.
