package wire

import (
	"encoding/binary"
	"errors"

	"github.com/smbgo/smb3/utils"
)

const (
	SMB2NegotiateRequestMinSize       = 36
	SMB2NegotiateRequestStructureSize = 36

	SMB2NegotiateResponseMinSize       = 64
	SMB2NegotiateResponseStructureSize = 65
)

const (
	MaxTransactSize = 1048576 * 8 // 8MiB
	MaxReadSize     = 1048576 * 8 // 8MiB
	MaxWriteSize    = 1048576 * 8 // 8MiB
)

const (
	// SMB2 dialects.
	DialectSMB202       = 0x0202
	DialectSMB210       = 0x0210
	DialectSMB300       = 0x0300
	DialectSMB302       = 0x0302
	DialectSMB311       = 0x0311
	DialectMultiCredit  = 0x02ff
	DialectUnknown      = 0xffff
)

const (
	// Security modes.
	NEGOTIATE_SIGNING_ENABLED  = 0x0001
	NEGOTIATE_SIGNING_REQUIRED = 0x0002
)

const (
	// Capabilities.
	GLOBAL_CAP_DFS                = 0x00000001
	GLOBAL_CAP_LEASING            = 0x00000002
	GLOBAL_CAP_LARGE_MTU          = 0x00000004
	GLOBAL_CAP_MULTI_CHANNEL      = 0x00000008
	GLOBAL_CAP_PERSISTENT_HANDLES = 0x00000010
	GLOBAL_CAP_DIRECTORY_LEASING  = 0x00000020
	GLOBAL_CAP_ENCRYPTION         = 0x00000040
	GLOBAL_CAP_NOTIFICATIONS      = 0x00000080
)

const (
	// Negotiate context types.
	PREAUTH_INTEGRITY_CAPABILITIES = 0x0001
	ENCRYPTION_CAPABILITIES        = 0x0002
	COMPRESSION_CAPABILITIES       = 0x0003
	NETNAME_NEGOTIATE_CONTEXT_ID   = 0x0005
	TRANSPORT_CAPABILITIES         = 0x0006
	RDMA_TRANSFORM_CAPABILITIES    = 0x0007
	SIGNING_CAPABILITIES           = 0x0008
)

const (
	// Hash algorithms.
	SHA_512 = 0x0001
)

const (
	// Encryption ciphers.
	AES_128_CCM = 0x0001
	AES_128_GCM = 0x0002
	AES_256_CCM = 0x0003
	AES_256_GCM = 0x0004
)

const (
	// Compression capability flags.
	COMPRESSION_CAPABILITIES_FLAG_NONE    = 0x00000000
	COMPRESSION_CAPABILITIES_FLAG_CHAINED = 0x00000001
)

const (
	// Compression algorithms.
	COMPRESSION_NONE         = 0x0000
	COMPRESSION_LZNT1        = 0x0001
	COMPRESSION_LZ77         = 0x0002
	COMPRESSION_LZ77_HUFFMAN = 0x0003
	COMPRESSION_PATTERN_V1   = 0x0004
	COMPRESSION_LZ4          = 0x0005
)

const (
	// Transport capabilities.
	ACCEPT_TRANSPORT_LEVEL_SECURITY = 0x00000001
)

const (
	// Signing capabilities.
	HMAC_SHA256 = 0x0000
	AES_CMAC    = 0x0001
	AES_GMAC    = 0x0002
)

var (
	ErrDialectNotSupported = errors.New("wire: server did not offer a dialect in our supported range")
	ErrInvalidParameter    = errors.New("wire: invalid parameter")
)

// Is3X reports whether dialect belongs to the 3.x family this client
// targets.
func Is3X(dialect uint16) bool {
	return dialect != DialectUnknown && dialect >= DialectSMB300
}

// NegotiateRequestParams carries the client's side of the values baked
// into an outbound NEGOTIATE request.
type NegotiateRequestParams struct {
	Dialects            []uint16
	SecurityMode         uint16
	Capabilities         uint32
	ClientGuid           []byte
	NegotiateContexts    [][]byte // pre-marshalled, 8-byte padded except the last
}

// BuildNegotiateRequest marshals an SMB2_NEGOTIATE request. The header's
// fixed fields (MessageID, CreditCharge, ...) are filled in by the
// connection layer after this call.
func BuildNegotiateRequest(p NegotiateRequestParams) []byte {
	size := SMB2HeaderSize + SMB2NegotiateRequestMinSize + 2*len(p.Dialects)
	hasContexts := false
	for _, d := range p.Dialects {
		if d == DialectSMB311 {
			hasContexts = len(p.NegotiateContexts) > 0
		}
	}

	data := make([]byte, utils.Roundup(size, 8))
	h := NewHeader(data)
	h.SetCommand(SMB2_NEGOTIATE)

	binary.LittleEndian.PutUint16(data[SMB2HeaderSize:SMB2HeaderSize+2], SMB2NegotiateRequestStructureSize)
	binary.LittleEndian.PutUint16(data[SMB2HeaderSize+2:SMB2HeaderSize+4], uint16(len(p.Dialects)))
	binary.LittleEndian.PutUint16(data[SMB2HeaderSize+4:SMB2HeaderSize+6], p.SecurityMode)
	binary.LittleEndian.PutUint32(data[SMB2HeaderSize+8:SMB2HeaderSize+12], p.Capabilities)
	copy(data[SMB2HeaderSize+12:SMB2HeaderSize+28], p.ClientGuid)

	for i, d := range p.Dialects {
		off := SMB2HeaderSize + SMB2NegotiateRequestMinSize + i*2
		binary.LittleEndian.PutUint16(data[off:off+2], d)
	}

	if !hasContexts {
		return data
	}

	ncOffset := utils.Roundup(len(data), 8)
	padding := make([]byte, ncOffset-len(data))
	data = append(data, padding...)

	binary.LittleEndian.PutUint32(data[SMB2HeaderSize+28:SMB2HeaderSize+32], uint32(ncOffset))
	binary.LittleEndian.PutUint16(data[SMB2HeaderSize+32:SMB2HeaderSize+34], uint16(len(p.NegotiateContexts)))

	for _, ctx := range p.NegotiateContexts {
		data = append(data, ctx...)
	}
	return data
}

// NegotiateContext represents a NEGOTIATE_CONTEXT value (client reads
// these back off the NEGOTIATE response for 3.1.1).
type NegotiateContext struct {
	ContextType uint16
	Data        []byte
}

// MarshalNegotiateContext formats a single negotiate context (type, its
// payload) with the 8-byte header MS-SMB2 prescribes.
func MarshalNegotiateContext(contextType uint16, data []byte) []byte {
	ctx := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint16(ctx[:2], contextType)
	binary.LittleEndian.PutUint16(ctx[2:4], uint16(len(data)))
	copy(ctx[8:], data)
	return ctx
}

// PreauthIntegrityCapabilitiesContext builds the client's
// SMB2_PREAUTH_INTEGRITY_CAPABILITIES negotiate context body (SHA-512 is
// the only hash algorithm MS-SMB2 currently defines).
func PreauthIntegrityCapabilitiesContext(salt []byte) []byte {
	data := make([]byte, 6+len(salt))
	binary.LittleEndian.PutUint16(data[:2], 1)
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(salt)))
	binary.LittleEndian.PutUint16(data[4:6], SHA_512)
	copy(data[6:], salt)
	return MarshalNegotiateContext(PREAUTH_INTEGRITY_CAPABILITIES, data)
}

// EncryptionCapabilitiesContext builds the client's
// SMB2_ENCRYPTION_CAPABILITIES negotiate context body listing the
// ciphers the client is willing to use, most preferred first.
func EncryptionCapabilitiesContext(ciphers []uint16) []byte {
	data := make([]byte, 2+2*len(ciphers))
	binary.LittleEndian.PutUint16(data[:2], uint16(len(ciphers)))
	for i, c := range ciphers {
		binary.LittleEndian.PutUint16(data[2+i*2:4+i*2], c)
	}
	return MarshalNegotiateContext(ENCRYPTION_CAPABILITIES, data)
}

// CompressionCapabilitiesContext builds the client's
// SMB2_COMPRESSION_CAPABILITIES negotiate context body.
func CompressionCapabilitiesContext(flags uint32, algos []uint16) []byte {
	data := make([]byte, 8+2*len(algos))
	binary.LittleEndian.PutUint16(data[:2], uint16(len(algos)))
	binary.LittleEndian.PutUint32(data[4:8], flags)
	for i, a := range algos {
		binary.LittleEndian.PutUint16(data[8+i*2:10+i*2], a)
	}
	return MarshalNegotiateContext(COMPRESSION_CAPABILITIES, data)
}

// SigningCapabilitiesContext builds the client's SMB2_SIGNING_CAPABILITIES
// negotiate context body.
func SigningCapabilitiesContext(algos []uint16) []byte {
	data := make([]byte, 2+2*len(algos))
	binary.LittleEndian.PutUint16(data[:2], uint16(len(algos)))
	for i, a := range algos {
		binary.LittleEndian.PutUint16(data[2+i*2:4+i*2], a)
	}
	return MarshalNegotiateContext(SIGNING_CAPABILITIES, data)
}

// NegotiateResponse wraps a parsed SMB2_NEGOTIATE response body.
type NegotiateResponse struct {
	data []byte
}

// ParseNegotiateResponse parses an SMB2_NEGOTIATE response, pkt being the
// full frame including the SMB2 header.
func ParseNegotiateResponse(pkt []byte) (*NegotiateResponse, error) {
	if len(pkt) < SMB2HeaderSize+SMB2NegotiateResponseMinSize {
		return nil, ErrWrongLength
	}
	if binary.LittleEndian.Uint16(pkt[SMB2HeaderSize:SMB2HeaderSize+2]) != SMB2NegotiateResponseStructureSize {
		return nil, ErrWrongFormat
	}
	return &NegotiateResponse{data: pkt}, nil
}

func (nr *NegotiateResponse) SecurityMode() uint16 {
	return binary.LittleEndian.Uint16(nr.data[SMB2HeaderSize+2 : SMB2HeaderSize+4])
}

func (nr *NegotiateResponse) DialectRevision() uint16 {
	return binary.LittleEndian.Uint16(nr.data[SMB2HeaderSize+4 : SMB2HeaderSize+6])
}

func (nr *NegotiateResponse) negotiateContextCount() uint16 {
	return binary.LittleEndian.Uint16(nr.data[SMB2HeaderSize+6 : SMB2HeaderSize+8])
}

func (nr *NegotiateResponse) ServerGuid() []byte {
	guid := make([]byte, 16)
	copy(guid, nr.data[SMB2HeaderSize+8:SMB2HeaderSize+24])
	return guid
}

func (nr *NegotiateResponse) Capabilities() uint32 {
	return binary.LittleEndian.Uint32(nr.data[SMB2HeaderSize+24 : SMB2HeaderSize+28])
}

func (nr *NegotiateResponse) MaxTransactSize() uint32 {
	return binary.LittleEndian.Uint32(nr.data[SMB2HeaderSize+28 : SMB2HeaderSize+32])
}

func (nr *NegotiateResponse) MaxReadSize() uint32 {
	return binary.LittleEndian.Uint32(nr.data[SMB2HeaderSize+32 : SMB2HeaderSize+36])
}

func (nr *NegotiateResponse) MaxWriteSize() uint32 {
	return binary.LittleEndian.Uint32(nr.data[SMB2HeaderSize+36 : SMB2HeaderSize+40])
}

func (nr *NegotiateResponse) SystemTime() uint64 {
	return binary.LittleEndian.Uint64(nr.data[SMB2HeaderSize+40 : SMB2HeaderSize+48])
}

// SecurityBuffer returns the initial SPNEGO token the server supplied.
func (nr *NegotiateResponse) SecurityBuffer() []byte {
	off := binary.LittleEndian.Uint16(nr.data[SMB2HeaderSize+56 : SMB2HeaderSize+58])
	length := binary.LittleEndian.Uint16(nr.data[SMB2HeaderSize+58 : SMB2HeaderSize+60])
	if int(off)+int(length) > len(nr.data) {
		return nil
	}
	return nr.data[off : int(off)+int(length)]
}

// NegotiateContexts returns the negotiate contexts attached to a 3.1.1
// response (empty for 3.0/3.0.2, which carry none).
func (nr *NegotiateResponse) NegotiateContexts() []NegotiateContext {
	count := nr.negotiateContextCount()
	if count == 0 {
		return nil
	}
	offset := binary.LittleEndian.Uint32(nr.data[SMB2HeaderSize+60 : SMB2HeaderSize+64])

	var ncs []NegotiateContext
	for i := uint16(0); i < count; i++ {
		if len(nr.data) < int(offset)+4 {
			return ncs
		}
		t := binary.LittleEndian.Uint16(nr.data[offset : offset+2])
		l := binary.LittleEndian.Uint16(nr.data[offset+2 : offset+4])
		if len(nr.data) < int(offset)+int(l)+8 {
			return ncs
		}
		data := make([]byte, l)
		copy(data, nr.data[offset+8:offset+uint32(l)+8])
		ncs = append(ncs, NegotiateContext{t, data})
		offset += uint32(utils.Roundup(int(l), 8)) + 8
	}
	return ncs
}

// SelectedEncryptionCipher returns the single cipher id the server chose,
// from the SMB2_ENCRYPTION_CAPABILITIES context, or 0 if absent.
func SelectedEncryptionCipher(ncs []NegotiateContext) uint16 {
	for _, nc := range ncs {
		if nc.ContextType == ENCRYPTION_CAPABILITIES && len(nc.Data) >= 4 {
			return binary.LittleEndian.Uint16(nc.Data[2:4])
		}
	}
	return 0
}

// SelectedCompressionAlgorithms returns the compression algorithms and
// chaining flags the server is willing to use, from the
// SMB2_COMPRESSION_CAPABILITIES context.
func SelectedCompressionAlgorithms(ncs []NegotiateContext) (flags uint32, algos []uint16) {
	for _, nc := range ncs {
		if nc.ContextType == COMPRESSION_CAPABILITIES && len(nc.Data) >= 8 {
			count := binary.LittleEndian.Uint16(nc.Data[:2])
			flags = binary.LittleEndian.Uint32(nc.Data[4:8])
			for i := uint16(0); i < count; i++ {
				algos = append(algos, binary.LittleEndian.Uint16(nc.Data[8+i*2:10+i*2]))
			}
			return flags, algos
		}
	}
	return 0, nil
}

// SelectedSigningAlgorithm returns the signing algorithm id the server
// chose, from the SMB2_SIGNING_CAPABILITIES context, or HMAC_SHA256 (the
// pre-3.1.1 default) if absent.
func SelectedSigningAlgorithm(ncs []NegotiateContext) uint16 {
	for _, nc := range ncs {
		if nc.ContextType == SIGNING_CAPABILITIES && len(nc.Data) >= 4 {
			return binary.LittleEndian.Uint16(nc.Data[2:4])
		}
	}
	return HMAC_SHA256
}

// PreauthHashAlgorithm returns the hash algorithm selected by the
// SMB2_PREAUTH_INTEGRITY_CAPABILITIES context, or 0 if absent.
func PreauthHashAlgorithm(ncs []NegotiateContext) uint16 {
	for _, nc := range ncs {
		if nc.ContextType == PREAUTH_INTEGRITY_CAPABILITIES && len(nc.Data) >= 6 {
			return binary.LittleEndian.Uint16(nc.Data[4:6])
		}
	}
	return 0
}
