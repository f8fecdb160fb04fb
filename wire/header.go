// Package wire implements the MS-SMB2 wire format: the plain SMB2 header,
// the TRANSFORM_HEADER and COMPRESSION_TRANSFORM_HEADER envelopes, the
// NEGOTIATE/SESSION_SETUP/TREE_CONNECT message bodies, and the NTSTATUS
// constants, all from the client's point of view (this package builds
// outbound requests and parses inbound responses, the mirror image of a
// server implementation).
package wire

import (
	"encoding/binary"
	"errors"
)

const (
	ProtocolSMB             = 0x424d53ff
	ProtocolSMB2            = 0x424d53fe
	ProtocolSMB2Encrypted   = 0x424d53fd
	ProtocolSMB2Compressed  = 0x424d53fc
)

const (
	// SMB2 command codes.
	SMB2_NEGOTIATE                     = 0x0000
	SMB2_SESSION_SETUP                 = 0x0001
	SMB2_LOGOFF                        = 0x0002
	SMB2_TREE_CONNECT                  = 0x0003
	SMB2_TREE_DISCONNECT               = 0x0004
	SMB2_CREATE                        = 0x0005
	SMB2_CLOSE                         = 0x0006
	SMB2_FLUSH                         = 0x0007
	SMB2_READ                          = 0x0008
	SMB2_WRITE                         = 0x0009
	SMB2_LOCK                          = 0x000a
	SMB2_IOCTL                         = 0x000b
	SMB2_CANCEL                        = 0x000c
	SMB2_ECHO                          = 0x000d
	SMB2_QUERY_DIRECTORY               = 0x000e
	SMB2_CHANGE_NOTIFY                 = 0x000f
	SMB2_QUERY_INFO                    = 0x0010
	SMB2_SET_INFO                      = 0x0011
	SMB2_OPLOCK_BREAK                  = 0x0012
	SMB2_SERVER_TO_CLIENT_NOTIFICATION = 0x0013
)

const (
	// SMB2 header flags.
	FLAGS_SERVER_TO_REDIR    = 0x00000001
	FLAGS_ASYNC_COMMAND      = 0x00000002
	FLAGS_RELATED_OPERATIONS = 0x00000004
	FLAGS_SIGNED             = 0x00000008
	FLAGS_PRIORITY_MASK      = 0x00000070
	FLAGS_DFS_OPERATIONS     = 0x10000000
	FLAGS_REPLAY_OPERATION   = 0x20000000
)

var (
	ErrEncryptedMessage  = errors.New("wire: message is still encrypted")
	ErrCompressedMessage = errors.New("wire: message is still compressed")
	ErrWrongLength       = errors.New("wire: wrong data length")
	ErrWrongFormat       = errors.New("wire: wrong data format")
	ErrWrongProtocol     = errors.New("wire: unsupported protocol")
)

const (
	SMB2HeaderSize = 64

	SMB2TransformHeaderSize            = 52
	SMB2CompressionTransformHeaderSize = 16

	SMB2HeaderStructureSize = 64
)

// Header extends a raw byte slice with SMB2 header field accessors. It is
// used for the plain header, the TRANSFORM_HEADER and the
// COMPRESSION_TRANSFORM_HEADER: the three share the first four bytes
// (ProtocolID) and diverge after that, so one accessor set covers all
// three as long as callers only call the methods relevant to the variant
// in hand.
type Header []byte

// NewHeader initializes a fresh outbound SMB2 header buffer.
func NewHeader(data []byte) Header {
	binary.LittleEndian.PutUint32(data[:4], ProtocolSMB2)
	binary.LittleEndian.PutUint16(data[4:6], SMB2HeaderStructureSize)
	return Header(data)
}

// CopyFrom copies another header's fixed fields, typically used to seed a
// compounded follow-up request from the header of the one before it.
func (h Header) CopyFrom(src Header) {
	copy(h[:SMB2HeaderSize], src[:SMB2HeaderSize])
}

// IsSmb2 reports whether the header carries one of the SMB2 protocol ids
// (plain, encrypted or compressed).
func (h Header) IsSmb2() bool {
	id := h.ProtocolID()
	return id == ProtocolSMB2 || id == ProtocolSMB2Encrypted || id == ProtocolSMB2Compressed
}

// Validate reports whether h is a well-formed SMB2 frame header, and
// whether it still needs unwrapping before the plain header fields can
// be read.
func (h Header) Validate() error {
	if len(h) < 4 {
		return ErrWrongLength
	}

	if !h.IsSmb2() {
		return ErrWrongProtocol
	}

	if len(h) < SMB2HeaderSize {
		return ErrWrongLength
	}

	switch h.ProtocolID() {
	case ProtocolSMB2Encrypted:
		return ErrEncryptedMessage
	case ProtocolSMB2Compressed:
		return ErrCompressedMessage
	}

	if binary.LittleEndian.Uint16(h[4:6]) != SMB2HeaderStructureSize {
		return ErrWrongFormat
	}

	return nil
}

func (h Header) CreditCharge() uint16 {
	return binary.LittleEndian.Uint16(h[6:8])
}

func (h Header) SetCreditCharge(cc uint16) {
	binary.LittleEndian.PutUint16(h[6:8], cc)
}

func (h Header) Status() uint32 {
	return binary.LittleEndian.Uint32(h[8:12])
}

func (h Header) SetStatus(status uint32) {
	binary.LittleEndian.PutUint32(h[8:12], status)
}

func (h Header) Command() uint16 {
	return binary.LittleEndian.Uint16(h[12:14])
}

func (h Header) SetCommand(command uint16) {
	binary.LittleEndian.PutUint16(h[12:14], command)
}

// CreditRequest returns the CreditRequest/CreditResponse field's value when
// the header carries an outbound request.
func (h Header) CreditRequest() uint16 {
	return binary.LittleEndian.Uint16(h[14:16])
}

func (h Header) SetCreditRequest(cr uint16) {
	binary.LittleEndian.PutUint16(h[14:16], cr)
}

// CreditResponse returns the same field read back off an inbound response.
func (h Header) CreditResponse() uint16 {
	return binary.LittleEndian.Uint16(h[14:16])
}

func (h Header) Flags() uint32 {
	return binary.LittleEndian.Uint32(h[16:20])
}

func (h Header) SetFlags(flags uint32) {
	binary.LittleEndian.PutUint32(h[16:20], flags)
}

func (h Header) IsFlagSet(flag uint32) bool {
	return h.Flags()&flag > 0
}

func (h Header) SetFlag(flag uint32) {
	h.SetFlags(h.Flags() | flag)
}

func (h Header) ClearFlag(flag uint32) {
	h.SetFlags(h.Flags() &^ flag)
}

func (h Header) NextCommand() uint32 {
	return binary.LittleEndian.Uint32(h[20:24])
}

func (h Header) SetNextCommand(nc uint32) {
	binary.LittleEndian.PutUint32(h[20:24], nc)
}

func (h Header) MessageID() uint64 {
	return binary.LittleEndian.Uint64(h[24:32])
}

func (h Header) SetMessageID(mid uint64) {
	binary.LittleEndian.PutUint64(h[24:32], mid)
}

func (h Header) AsyncID() uint64 {
	return binary.LittleEndian.Uint64(h[32:40])
}

func (h Header) SetAsyncID(aid uint64) {
	binary.LittleEndian.PutUint64(h[32:40], aid)
}

func (h Header) TreeID() uint32 {
	return binary.LittleEndian.Uint32(h[36:40])
}

func (h Header) SetTreeID(tid uint32) {
	binary.LittleEndian.PutUint32(h[36:40], tid)
}

func (h Header) SessionID() uint64 {
	return binary.LittleEndian.Uint64(h[40:48])
}

func (h Header) SetSessionID(sid uint64) {
	binary.LittleEndian.PutUint64(h[40:48], sid)
}

func (h Header) Signature() []byte {
	signature := make([]byte, 16)
	copy(signature, h[48:64])
	return signature
}

func (h Header) SetSignature(signature []byte) {
	copy(h[48:64], signature)
}

func (h Header) WipeSignature() {
	var zero [16]byte
	h.SetSignature(zero[:])
}

// EncryptionSignature returns the Signature field of a TRANSFORM_HEADER.
func (h Header) EncryptionSignature() []byte {
	signature := make([]byte, 16)
	copy(signature, h[4:20])
	return signature
}

func (h Header) SetEncryptionSignature(signature []byte) {
	copy(h[4:20], signature)
}

// Nonce returns the Nonce field of a TRANSFORM_HEADER.
func (h Header) Nonce() []byte {
	nonce := make([]byte, 16)
	copy(nonce, h[20:36])
	return nonce
}

func (h Header) SetNonce(nonce []byte) {
	copy(h[20:36], nonce)
}

// OriginalMessageSize returns the OriginalMessageSize field of a
// TRANSFORM_HEADER.
func (h Header) OriginalMessageSize() uint32 {
	return binary.LittleEndian.Uint32(h[36:40])
}

func (h Header) SetOriginalMessageSize(size uint32) {
	binary.LittleEndian.PutUint32(h[36:40], size)
}

// EncryptionFlags returns the Flags field of a TRANSFORM_HEADER.
func (h Header) EncryptionFlags() uint16 {
	return binary.LittleEndian.Uint16(h[42:44])
}

func (h Header) SetEncryptionFlags(flags uint16) {
	binary.LittleEndian.PutUint16(h[42:44], flags)
}

// TransformSessionID returns the SessionID field of a TRANSFORM_HEADER.
func (h Header) TransformSessionID() uint64 {
	return binary.LittleEndian.Uint64(h[44:52])
}

func (h Header) SetTransformSessionID(sid uint64) {
	binary.LittleEndian.PutUint64(h[44:52], sid)
}

// AssociatedData returns the portion of a TRANSFORM_HEADER that is
// authenticated but not encrypted (everything after the signature field).
func (h Header) AssociatedData() []byte {
	return h[20:52]
}

func (h Header) ProtocolID() uint32 {
	return binary.LittleEndian.Uint32(h[:4])
}

func (h Header) SetProtocolID(id uint32) {
	binary.LittleEndian.PutUint32(h[:4], id)
}

// OriginalCompressedSegmentSize returns the field of the same name from a
// COMPRESSION_TRANSFORM_HEADER.
func (h Header) OriginalCompressedSegmentSize() uint32 {
	return binary.LittleEndian.Uint32(h[4:8])
}

func (h Header) SetOriginalCompressedSegmentSize(size uint32) {
	binary.LittleEndian.PutUint32(h[4:8], size)
}

// PayloadHeader is the COMPRESSION_CHAINED_PAYLOAD_HEADER that precedes
// every chained compression segment.
type PayloadHeader []byte

func (ph PayloadHeader) CompressionAlgorithm() uint16 {
	return binary.LittleEndian.Uint16(ph[:2])
}

func (ph PayloadHeader) SetCompressionAlgorithm(algo uint16) {
	binary.LittleEndian.PutUint16(ph[:2], algo)
}

func (ph PayloadHeader) Flags() uint16 {
	return binary.LittleEndian.Uint16(ph[2:4])
}

func (ph PayloadHeader) SetFlags(flags uint16) {
	binary.LittleEndian.PutUint16(ph[2:4], flags)
}

func (ph PayloadHeader) Length() uint32 {
	return binary.LittleEndian.Uint32(ph[4:8])
}

func (ph PayloadHeader) SetLength(length uint32) {
	binary.LittleEndian.PutUint32(ph[4:8], length)
}

// PatternV1 is the COMPRESSION_PATTERN_PAYLOAD_V1 structure used by the
// Pattern_V1 (run-length) compression algorithm.
type PatternV1 struct {
	Pattern     uint8
	Repetitions uint32
}

func (p PatternV1) Marshal() []byte {
	b := make([]byte, 8)
	b[0] = p.Pattern
	binary.LittleEndian.PutUint32(b[4:8], p.Repetitions)
	return b
}

func (p *PatternV1) Unmarshal(b []byte) error {
	if len(b) != 8 {
		return ErrWrongLength
	}
	p.Pattern = b[0]
	p.Repetitions = binary.LittleEndian.Uint32(b[4:8])
	return nil
}
