// Client-direction MS-RPC over the LSA endpoint: bind, call GetUserName,
// close. It issues Bind/Request packets and decodes the server's
// Bind_ack/Response replies using the NDR unmarshaller from
// github.com/oiweiwei/go-msrpc/ndr.
package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/oiweiwei/go-msrpc/msrpc/lsat/lsarpc/v0"
	"github.com/oiweiwei/go-msrpc/ndr"
)

// LSARPC is the interface UUID for the LSA RPC endpoint,
// {12345778-1234-abcd-ef00-0123456789ab}.
var LSARPC = [16]byte{
	0x78, 0x57, 0x34, 0x12, 0x34, 0x12, 0xcd, 0xab,
	0xef, 0x00, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab,
}

// LSARPC operation numbers.
const (
	LSA_CLOSE         = 0x0000
	LSA_LOOKUP_NAMES  = 0x000e
	LSA_OPEN_POLICY_2 = 0x002c
	LSA_GET_USER_NAME = 0x002d
)

// Pipe is the minimal transport a Client needs: one request/response
// round trip over the IPC$ named pipe, as provided by an IOCTL against
// an open file handle once fileop exists. Kept as an interface so this
// package stays testable without a real connection.
type Pipe interface {
	Call(ctx context.Context, req []byte) (resp []byte, err error)
}

// Client drives a GetUserName call over an LSA RPC association: Bind,
// OpenPolicy2, GetUserName, Close - mirroring go-smb2's ListSharenames
// IOCTL/DCERPC-bind pattern, but against the LSA endpoint instead of
// SRVSVC.
type Client struct {
	pipe   Pipe
	callID uint32
	bound  bool
	ctxID  uint16
}

// NewClient returns a Client that issues LSA RPC calls over pipe.
func NewClient(pipe Pipe) *Client {
	return &Client{pipe: pipe}
}

func (c *Client) nextCallID() uint32 {
	c.callID++
	return c.callID
}

// Bind establishes the presentation context for the LSA interface if it
// has not already been established on this pipe.
func (c *Client) Bind(ctx context.Context) error {
	if c.bound {
		return nil
	}

	packet := &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_BIND, PFC_FIRST_FRAG|PFC_LAST_FRAG, c.nextCallID()),
		Body: &Bind{
			MaxXmitFrag:  0xffff,
			MaxRecvFrag:  0xffff,
			AssocGroupID: 0,
			ContextList: []*Context{
				{
					ContextID:      0,
					AbstractSyntax: &SyntaxID{IfUUID: LSARPC, IfVersionMajor: 0, IfVersionMinor: 0},
					TransferSyntaxes: []*SyntaxID{
						{IfUUID: [16]byte(NDR32), IfVersionMajor: 2, IfVersionMinor: 0},
					},
				},
			},
		},
	}

	var buf bytes.Buffer
	packet.Write(&buf)
	resp, err := c.pipe.Call(ctx, buf.Bytes())
	if err != nil {
		return fmt.Errorf("rpc: bind: %w", err)
	}

	var in InboundPacket
	in.Read(bytes.NewReader(resp))
	if in.Header == nil || in.Header.PacketType != PACKET_TYPE_BIND_ACK {
		return fmt.Errorf("rpc: bind: unexpected response packet type %v", in.Header)
	}

	ack, ok := in.Body.(*BindAck)
	if !ok || len(ack.ResultList) == 0 || ack.ResultList[0].DefResult != 0 {
		return fmt.Errorf("rpc: bind: server rejected the LSA presentation context")
	}

	c.bound = true
	return nil
}

// call sends an NDR-encoded request body under the given opnum and
// returns the NDR payload of the matching response.
func (c *Client) call(ctx context.Context, opnum uint16, body []byte) ([]byte, error) {
	if err := c.Bind(ctx); err != nil {
		return nil, err
	}

	packet := &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_REQUEST, PFC_FIRST_FRAG|PFC_LAST_FRAG, c.nextCallID()),
		Body: &requestBody{
			header: Request{ContextID: c.ctxID, OpNum: opnum},
			body:   body,
		},
	}

	var buf bytes.Buffer
	packet.Write(&buf)
	resp, err := c.pipe.Call(ctx, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("rpc: call opnum %d: %w", opnum, err)
	}

	var in InboundPacket
	in.Read(bytes.NewReader(resp))
	if in.Header == nil || in.Header.PacketType == PACKET_TYPE_FAULT {
		return nil, fmt.Errorf("rpc: call opnum %d: server fault", opnum)
	}
	if in.Header.PacketType != PACKET_TYPE_RESPONSE {
		return nil, fmt.Errorf("rpc: call opnum %d: unexpected packet type %d", opnum, in.Header.PacketType)
	}

	return in.Payload, nil
}

// requestBody wraps a pre-encoded NDR argument block in a Request
// envelope; the server's reply comes back in a Response envelope.
type requestBody struct {
	header Request
	body   []byte
}

func (rb *requestBody) Encode(w io.Writer) {
	rb.header.AllocHint = uint32(len(rb.body))
	var hdr bytes.Buffer
	rb.header.Encode(&hdr)
	w.Write(hdr.Bytes())
	w.Write(rb.body)
}

// marshal NDR-encodes v, an outbound request argument block.
func marshal(ctx context.Context, v ndr.Marshaler) ([]byte, error) {
	return ndr.Marshal(v)
}

// OpenPolicy opens an LSA policy handle against systemName (typically
// the server's UNC or address, e.g. "\\\\server"). The handle must
// eventually be released with Close.
func (c *Client) OpenPolicy(ctx context.Context, systemName string) (lsarpc.Handle, error) {
	var handle lsarpc.Handle

	args, err := marshal(ctx, &lsarpc.OpenPolicy2Request{
		SystemName:    systemName,
		DesiredAccess: 0x02000000, // MAXIMUM_ALLOWED
	})
	if err != nil {
		return handle, fmt.Errorf("rpc: encode OpenPolicy2Request: %w", err)
	}

	payload, err := c.call(ctx, LSA_OPEN_POLICY_2, args)
	if err != nil {
		return handle, err
	}

	var out lsarpc.OpenPolicy2Response
	if err := ndr.Unmarshal(payload, &out); err != nil {
		return handle, fmt.Errorf("rpc: decode OpenPolicy2Response: %w", err)
	}
	if out.Return != 0 {
		return handle, fmt.Errorf("rpc: OpenPolicy2 failed with status 0x%08x", uint32(out.Return))
	}
	if out.Policy != nil {
		handle = *out.Policy
	}
	return handle, nil
}

// GetUserName returns the account and authority (domain) name the
// server associates with the caller's security context.
func (c *Client) GetUserName(ctx context.Context, systemName string) (account, authority string, err error) {
	args, encErr := marshal(ctx, &lsarpc.GetUserNameRequest{
		SystemName: systemName,
	})
	if encErr != nil {
		return "", "", fmt.Errorf("rpc: encode GetUserNameRequest: %w", encErr)
	}

	payload, callErr := c.call(ctx, LSA_GET_USER_NAME, args)
	if callErr != nil {
		return "", "", callErr
	}

	var out lsarpc.GetUserNameResponse
	if err := ndr.Unmarshal(payload, &out); err != nil {
		return "", "", fmt.Errorf("rpc: decode GetUserNameResponse: %w", err)
	}
	if out.Return != 0 {
		return "", "", fmt.Errorf("rpc: GetUserName failed with status 0x%08x", uint32(out.Return))
	}
	if out.UserName != nil {
		account = out.UserName.Buffer
	}
	if out.DomainName != nil {
		authority = out.DomainName.Buffer
	}
	return account, authority, nil
}

// Close releases an LSA policy handle previously returned by OpenPolicy.
func (c *Client) Close(ctx context.Context, handle lsarpc.Handle) error {
	args, err := marshal(ctx, &lsarpc.CloseRequest{Object: &handle})
	if err != nil {
		return fmt.Errorf("rpc: encode CloseRequest: %w", err)
	}

	payload, err := c.call(ctx, LSA_CLOSE, args)
	if err != nil {
		return err
	}

	var out lsarpc.CloseResponse
	if err := ndr.Unmarshal(payload, &out); err != nil {
		return fmt.Errorf("rpc: decode CloseResponse: %w", err)
	}
	if out.Return != 0 {
		return fmt.Errorf("rpc: Close failed with status 0x%08x", uint32(out.Return))
	}
	return nil
}
