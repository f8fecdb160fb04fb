package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	SMB2ErrorResponseMinSize       = 8
	SMB2ErrorResponseStructureSize = 9
)

// NTSTATUS values the client needs to recognize explicitly; the full
// table is much larger, but these are the ones the connection runtime
// and session setup exchange branch on.
const (
	STATUS_OK                       = 0x00000000
	STATUS_PENDING                  = 0x00000103
	STATUS_NOTIFY_CLEANUP           = 0x0000010b
	STATUS_NOTIFY_ENUM_DIR          = 0x0000010c
	STATUS_NO_MORE_FILES            = 0x80000006
	STATUS_INVALID_PARAMETER        = 0xc000000d
	STATUS_MORE_PROCESSING_REQUIRED = 0xc0000016
	STATUS_ACCESS_DENIED            = 0xc0000022
	STATUS_OBJECT_NAME_NOT_FOUND    = 0xc0000034
	STATUS_END_OF_FILE              = 0xc0000011
	STATUS_EAS_NOT_SUPPORTED        = 0xc000004f
	STATUS_NO_SUCH_USER              = 0xc0000064
	STATUS_NONE_MAPPED              = 0xc0000073
	STATUS_CANCELLED                = 0xc0000120
	STATUS_IO_TIMEOUT               = 0xc00000b5
	STATUS_NOT_SUPPORTED            = 0xc00000bb
	STATUS_NETWORK_NAME_DELETED     = 0xc00000c9
	STATUS_NETWORK_ACCESS_DENIED    = 0xc00000ca
	STATUS_BAD_NETWORK_NAME         = 0xc00000cc
	STATUS_FILE_CLOSED              = 0xc0000128
	STATUS_USER_SESSION_DELETED     = 0xc0000203
	STATUS_NOT_FOUND                = 0xc0000225
	STATUS_DUPLICATE_OBJECTID       = 0xc000022a
)

// StatusError wraps an NTSTATUS code returned by the server in a response
// that is not STATUS_OK/STATUS_PENDING/STATUS_MORE_PROCESSING_REQUIRED.
type StatusError uint32

func (e StatusError) Error() string {
	return fmt.Sprintf("smb2: server returned NTSTATUS 0x%08x", uint32(e))
}

// ErrorResponse wraps a parsed SMB2_ERROR response body.
type ErrorResponse struct {
	data []byte
}

// ParseErrorResponse parses an SMB2_ERROR response, pkt being the full
// frame including the SMB2 header.
func ParseErrorResponse(pkt []byte) (*ErrorResponse, error) {
	if len(pkt) < SMB2HeaderSize+SMB2ErrorResponseMinSize {
		return nil, ErrWrongLength
	}
	return &ErrorResponse{data: pkt}, nil
}

// ErrorData returns the ErrorData field, which for most NTSTATUS values
// is empty but carries a buffer for some (e.g. STATUS_STOPPED_ON_SYMLINK).
func (er *ErrorResponse) ErrorData() []byte {
	n := binary.LittleEndian.Uint32(er.data[SMB2HeaderSize+4 : SMB2HeaderSize+8])
	if n == 0 || int(SMB2HeaderSize+SMB2ErrorResponseMinSize+int(n)) > len(er.data) {
		return nil
	}
	return er.data[SMB2HeaderSize+SMB2ErrorResponseMinSize : SMB2HeaderSize+SMB2ErrorResponseMinSize+int(n)]
}
