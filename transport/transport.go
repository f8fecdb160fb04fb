// Package transport dials the three wire transports an SMB3 client can
// run over: direct TCP (port 445), NetBIOS session service (port 139),
// and SMB-over-QUIC. All three carry the same message framing - a
// 4-byte big-endian length prefix whose top byte must be zero - so a
// single Framer serves every transport once the connection is
// established; only the dial/handshake step differs per Kind.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/quic-go/quic-go"
)

// Kind selects which wire transport to dial.
type Kind int

const (
	// DirectTCP dials port 445 with no out-of-band session setup; the
	// default transport for dialects 2.1 and later.
	DirectTCP Kind = iota
	// NetBIOS dials port 139 and performs the RFC 1002 session service
	// handshake before any SMB2 traffic flows.
	NetBIOS
	// QUIC dials an SMB-over-QUIC endpoint and opens a single
	// bidirectional stream to carry SMB2 traffic, per MS-SMB2 3.1.1's
	// "SMB over QUIC" transport binding (TLS 1.3 required).
	QUIC
)

func (k Kind) String() string {
	switch k {
	case DirectTCP:
		return "tcp"
	case NetBIOS:
		return "netbios"
	case QUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// maxMessageSize is the largest value the 4-byte, top-byte-zero length
// prefix can encode (2^24 - 1).
const maxMessageSize = 1<<24 - 1

// Conn is an established SMB3 transport connection: something that can
// read and write whole, length-delimited SMB2 messages. It satisfies
// the backend package's framer interface directly.
type Conn struct {
	rwc io.ReadWriteCloser
}

// Dial connects to addr using the given transport kind. For QUIC, tlsConfig
// must not be nil; it is ignored for DirectTCP and NetBIOS.
func Dial(ctx context.Context, kind Kind, addr string, tlsConfig *tls.Config) (*Conn, error) {
	switch kind {
	case DirectTCP:
		return dialTCP(ctx, addr)
	case NetBIOS:
		return dialNetBIOS(ctx, addr)
	case QUIC:
		return dialQUIC(ctx, addr, tlsConfig)
	default:
		return nil, fmt.Errorf("transport: unknown kind %d", kind)
	}
}

func dialTCP(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &Conn{rwc: c}, nil
}

// netbiosSessionRequestType and netbiosPositiveResponseType are the
// RFC 1002 4.3 session service PACKET_TYPE values this client needs;
// SMB-over-NetBIOS never uses the other session service messages.
const (
	netbiosSessionRequestType    byte = 0x81
	netbiosPositiveResponseType  byte = 0x82
	netbiosNegativeResponseType  byte = 0x83
	netbiosMaxCalledNameEncLen        = 34
)

func dialNetBIOS(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	if err := sendNetBIOSSessionRequest(c); err != nil {
		c.Close()
		return nil, err
	}

	return &Conn{rwc: c}, nil
}

// sendNetBIOSSessionRequest performs the RFC 1002 4.3.2 session request
// handshake using the generic "*SMBSERVER" called name recommended by
// MS-SMB2 2.2.1 Note 2, since the client rarely knows the NetBIOS name
// of the share's server ahead of time.
func sendNetBIOSSessionRequest(c net.Conn) error {
	const genericCalledName = "*SMBSERVER"

	var pkt [4 + 2*netbiosMaxCalledNameEncLen]byte
	pkt[0] = netbiosSessionRequestType

	calling := encodeNetBIOSName("CLIENT")
	called := encodeNetBIOSName(genericCalledName)
	body := append(append([]byte{}, called...), calling...)

	binary.BigEndian.PutUint32(pkt[:4], uint32(len(body)))
	full := append(pkt[:4], body...)

	if _, err := c.Write(full); err != nil {
		return fmt.Errorf("transport: netbios session request: %w", err)
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(c, header); err != nil {
		return fmt.Errorf("transport: netbios session response: %w", err)
	}
	length := binary.BigEndian.Uint32(header) & 0x0001ffff
	if length > 0 {
		if _, err := io.CopyN(io.Discard, c, int64(length)); err != nil {
			return fmt.Errorf("transport: netbios session response body: %w", err)
		}
	}

	switch header[0] {
	case netbiosPositiveResponseType:
		return nil
	case netbiosNegativeResponseType:
		return errors.New("transport: netbios session request rejected")
	default:
		return fmt.Errorf("transport: unexpected netbios response type 0x%x", header[0])
	}
}

// encodeNetBIOSName implements the RFC 1001 first-level name encoding:
// pad to 16 bytes, then split every nibble into a byte in 'A'..'P'.
func encodeNetBIOSName(name string) []byte {
	var padded [16]byte
	for i := range padded {
		padded[i] = ' '
	}
	copy(padded[:], name)
	if len(name) > 16 {
		copy(padded[:], name[:16])
	}

	out := make([]byte, 1+32+1)
	out[0] = 32
	for i, b := range padded {
		out[1+2*i] = 'A' + (b >> 4)
		out[1+2*i+1] = 'A' + (b & 0x0f)
	}
	return out
}

func dialQUIC(ctx context.Context, addr string, tlsConfig *tls.Config) (*Conn, error) {
	if tlsConfig == nil {
		return nil, errors.New("transport: QUIC dial requires a TLS config")
	}
	qconn, err := quic.DialAddr(ctx, addr, tlsConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: quic dial %s: %w", addr, err)
	}
	stream, err := qconn.OpenStreamSync(ctx)
	if err != nil {
		qconn.CloseWithError(0, "stream open failed")
		return nil, fmt.Errorf("transport: quic open stream: %w", err)
	}
	return &Conn{rwc: quicStreamConn{stream: stream, conn: qconn}}, nil
}

// quicStreamConn adapts a quic.Stream plus its parent quic.Connection
// into an io.ReadWriteCloser that also tears down the connection on
// Close, so callers of Conn don't need to know QUIC exists.
type quicStreamConn struct {
	stream quic.Stream
	conn   quic.Connection
}

func (q quicStreamConn) Read(p []byte) (int, error)  { return q.stream.Read(p) }
func (q quicStreamConn) Write(p []byte) (int, error) { return q.stream.Write(p) }
func (q quicStreamConn) Close() error {
	q.stream.Close()
	return q.conn.CloseWithError(0, "")
}

// ReadFrame reads one length-delimited SMB2 message.
func (c *Conn) ReadFrame() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.rwc, header); err != nil {
		return nil, fmt.Errorf("transport: read header: %w", err)
	}
	if header[0] != 0 {
		return nil, errors.New("transport: first length byte must be zero")
	}

	length := binary.BigEndian.Uint32(header)
	msg := make([]byte, length)
	if _, err := io.ReadFull(c.rwc, msg); err != nil {
		return nil, fmt.Errorf("transport: read message: %w", err)
	}
	return msg, nil
}

// WriteFrame writes one length-delimited SMB2 message.
func (c *Conn) WriteFrame(msg []byte) error {
	if len(msg) > maxMessageSize {
		return fmt.Errorf("transport: message too long (%d > %d)", len(msg), maxMessageSize)
	}

	out := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(out[:4], uint32(len(msg)))
	copy(out[4:], msg)

	n, err := c.rwc.Write(out)
	if err != nil {
		return fmt.Errorf("transport: write message: %w", err)
	}
	if n != len(out) {
		return fmt.Errorf("transport: short write: wrote %d of %d bytes", n, len(out))
	}
	return nil
}

// Close tears down the underlying transport.
func (c *Conn) Close() error {
	return c.rwc.Close()
}
