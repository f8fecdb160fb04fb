package wire

import (
	"encoding/binary"
)

const (
	SMB2SessionSetupRequestMinSize       = 24
	SMB2SessionSetupRequestStructureSize = 25

	SMB2SessionSetupResponseMinSize       = 8
	SMB2SessionSetupResponseStructureSize = 9
)

const (
	SESSION_FLAG_IS_GUEST = 0x0001
	SESSION_FLAG_IS_NULL  = 0x0002
)

// SessionSetupRequestParams carries the client's side of an outbound
// SESSION_SETUP request.
type SessionSetupRequestParams struct {
	SecurityMode      uint16
	Capabilities      uint32
	Channel           uint32
	PreviousSessionID uint64
	SecurityBuffer    []byte
}

// BuildSessionSetupRequest marshals an SMB2_SESSION_SETUP request.
func BuildSessionSetupRequest(p SessionSetupRequestParams) []byte {
	header := NewRequestHeader(SMB2_SESSION_SETUP)
	body := make([]byte, SMB2SessionSetupRequestMinSize)

	binary.LittleEndian.PutUint16(body[:2], SMB2SessionSetupRequestStructureSize)
	body[3] = byte(p.SecurityMode)
	binary.LittleEndian.PutUint32(body[4:8], p.Capabilities)
	binary.LittleEndian.PutUint32(body[8:12], p.Channel)
	binary.LittleEndian.PutUint16(body[12:14], SMB2HeaderSize+SMB2SessionSetupRequestMinSize)
	binary.LittleEndian.PutUint16(body[14:16], uint16(len(p.SecurityBuffer)))
	binary.LittleEndian.PutUint64(body[16:24], p.PreviousSessionID)

	return append(append(header, body...), p.SecurityBuffer...)
}

// SessionSetupResponse wraps a parsed SMB2_SESSION_SETUP response body.
type SessionSetupResponse struct {
	data []byte
}

// ParseSessionSetupResponse parses an SMB2_SESSION_SETUP response, pkt
// being the full frame including the SMB2 header. The caller is expected
// to have already checked Header(pkt).Status() for
// STATUS_MORE_PROCESSING_REQUIRED vs STATUS_OK.
func ParseSessionSetupResponse(pkt []byte) (*SessionSetupResponse, error) {
	if len(pkt) < SMB2HeaderSize+SMB2SessionSetupResponseMinSize {
		return nil, ErrWrongLength
	}
	if binary.LittleEndian.Uint16(pkt[SMB2HeaderSize:SMB2HeaderSize+2]) != SMB2SessionSetupResponseStructureSize {
		return nil, ErrWrongFormat
	}
	return &SessionSetupResponse{data: pkt}, nil
}

func (ssr *SessionSetupResponse) SessionFlags() uint16 {
	return binary.LittleEndian.Uint16(ssr.data[SMB2HeaderSize+2 : SMB2HeaderSize+4])
}

func (ssr *SessionSetupResponse) SecurityBuffer() []byte {
	off := binary.LittleEndian.Uint16(ssr.data[SMB2HeaderSize+4 : SMB2HeaderSize+6])
	length := binary.LittleEndian.Uint16(ssr.data[SMB2HeaderSize+6 : SMB2HeaderSize+8])
	if int(off)+int(length) > len(ssr.data) {
		return nil
	}
	return ssr.data[off : int(off)+int(length)]
}
