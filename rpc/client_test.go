package rpc

import (
	"bytes"
	"context"
	"io"
	"testing"
)

// fakePipe is an in-memory Pipe that replays a queued response for each
// call and records every request it was handed.
type fakePipe struct {
	responses [][]byte
	requests  [][]byte
	next      int
}

func (f *fakePipe) Call(ctx context.Context, req []byte) ([]byte, error) {
	f.requests = append(f.requests, req)
	if f.next >= len(f.responses) {
		return nil, bytes.ErrTooLarge
	}
	resp := f.responses[f.next]
	f.next++
	return resp, nil
}

// respBody wraps a Response envelope around a raw payload, the test
// stand-in for a server's reply to a Request.
type respBody struct {
	header Response
	body   []byte
}

func (rb *respBody) Encode(w io.Writer) {
	rb.header.AllocHint = uint32(len(rb.body))
	var hdr bytes.Buffer
	rb.header.Encode(&hdr)
	w.Write(hdr.Bytes())
	w.Write(rb.body)
}

func bindAckBytes(t *testing.T) []byte {
	t.Helper()
	packet := &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_BIND_ACK, PFC_FIRST_FRAG|PFC_LAST_FRAG, 1),
		Body: &BindAck{
			MaxXmitFrag: 0xffff,
			MaxRecvFrag: 0xffff,
			PortSpec:    "",
			ResultList: []*Result{
				{
					TransferSyntax: &SyntaxID{IfUUID: [16]byte(NDR32), IfVersionMajor: 2, IfVersionMinor: 0},
				},
			},
		},
	}
	var buf bytes.Buffer
	packet.Write(&buf)
	return buf.Bytes()
}

func responsePacketBytes(t *testing.T, callID uint32, payload []byte) []byte {
	t.Helper()
	packet := &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_RESPONSE, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
		Body:   &respBody{body: payload},
	}
	var buf bytes.Buffer
	packet.Write(&buf)
	return buf.Bytes()
}

func TestBindEstablishesContextAndIsIdempotent(t *testing.T) {
	pipe := &fakePipe{responses: [][]byte{bindAckBytes(t)}}
	c := NewClient(pipe)

	if err := c.Bind(context.Background()); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if !c.bound {
		t.Fatalf("expected bound=true after successful Bind")
	}

	if err := c.Bind(context.Background()); err != nil {
		t.Fatalf("second Bind: %v", err)
	}
	if len(pipe.requests) != 1 {
		t.Errorf("expected Bind to be idempotent, pipe saw %d requests", len(pipe.requests))
	}
}

func TestBindRejectsFailedResult(t *testing.T) {
	packet := &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_BIND_ACK, PFC_FIRST_FRAG|PFC_LAST_FRAG, 1),
		Body: &BindAck{
			ResultList: []*Result{
				{DefResult: 2, TransferSyntax: &SyntaxID{}},
			},
		},
	}
	var buf bytes.Buffer
	packet.Write(&buf)

	pipe := &fakePipe{responses: [][]byte{buf.Bytes()}}
	c := NewClient(pipe)

	if err := c.Bind(context.Background()); err == nil {
		t.Fatal("expected Bind to reject a non-zero DefResult")
	}
	if c.bound {
		t.Error("bound should remain false after a rejected Bind")
	}
}

func TestCallRejectsFault(t *testing.T) {
	faultPacket := &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_FAULT, PFC_FIRST_FRAG|PFC_LAST_FRAG, 2),
		Body:   &respBody{body: nil},
	}
	var faultBuf bytes.Buffer
	faultPacket.Write(&faultBuf)

	pipe := &fakePipe{responses: [][]byte{bindAckBytes(t), faultBuf.Bytes()}}
	c := NewClient(pipe)

	if _, err := c.call(context.Background(), LSA_CLOSE, []byte{}); err == nil {
		t.Fatal("expected an error from a FAULT response")
	}
}

func TestCallReturnsPayloadOnSuccess(t *testing.T) {
	want := []byte{1, 2, 3, 4}
	pipe := &fakePipe{responses: [][]byte{bindAckBytes(t), responsePacketBytes(t, 2, want)}}
	c := NewClient(pipe)

	got, err := c.call(context.Background(), LSA_CLOSE, []byte{9, 9})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("payload = %v, want %v", got, want)
	}
	if len(pipe.requests) != 2 {
		t.Fatalf("expected bind + call requests, got %d", len(pipe.requests))
	}
}
