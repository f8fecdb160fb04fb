package connection

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/smbgo/smb3/pending"
	"github.com/smbgo/smb3/session"
	"github.com/smbgo/smb3/transport"
	"github.com/smbgo/smb3/wire"
)

func TestCreditsFor(t *testing.T) {
	cases := []struct {
		name        string
		in, out     int
		wantCredits uint16
	}{
		{"empty", 0, 0, 1},
		{"small", 100, 0, 1},
		{"exactly one block", 65536, 0, 1},
		{"one block plus one byte", 65537, 0, 2},
		{"larger response dominates", 100, 200000, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := creditsFor(tc.in, tc.out); got != tc.wantCredits {
				t.Errorf("creditsFor(%d, %d) = %d, want %d", tc.in, tc.out, got, tc.wantCredits)
			}
		})
	}
}

// testReadFrame/testWriteFrame mirror transport.Conn's 4-byte big-endian
// length-prefixed framing so a fake server can speak it directly over the
// raw net.Conn it accepted.
func testReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func testWriteFrame(w io.Writer, msg []byte) error {
	out := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(out[:4], uint32(len(msg)))
	copy(out[4:], msg)
	_, err := w.Write(out)
	return err
}

// dialTestConnection opens a Connection against a local listener and
// returns it alongside the raw net.Conn a fake server can drive.
func dialTestConnection(t *testing.T, opts Options) (*Connection, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverCh := make(chan net.Conn, 1)
	go func() {
		sc, err := ln.Accept()
		if err != nil {
			return
		}
		serverCh <- sc
	}()

	opts.BackendKind = BackendSingle
	c, err := Dial(context.Background(), transport.DirectTCP, ln.Addr().String(), opts)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	var server net.Conn
	select {
	case server = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server accept")
	}

	t.Cleanup(func() {
		c.Close()
		server.Close()
	})
	return c, server
}

func TestDialReachesTCPOpen(t *testing.T) {
	c, _ := dialTestConnection(t, Options{})
	if c.State() != StateTCPOpen {
		t.Errorf("state after Dial = %v, want StateTCPOpen", c.State())
	}
	if c.Dialect() != 0 {
		t.Errorf("Dialect() before Negotiate = 0x%04x, want 0", c.Dialect())
	}
}

// replyTo builds a minimal response header matching req's message id and
// session id, carrying status and granting grantedCredits credits.
func replyTo(req []byte, status uint32, grantedCredits uint16) []byte {
	reqH := wire.Header(req)
	buf := wire.NewRequestHeader(reqH.Command())
	h := wire.Header(buf)
	h.SetMessageID(reqH.MessageID())
	h.SetSessionID(reqH.SessionID())
	h.SetTreeID(reqH.TreeID())
	h.SetStatus(status)
	h.SetCreditRequest(grantedCredits)
	return buf
}

func TestSendRoundTrip(t *testing.T) {
	c, server := dialTestConnection(t, Options{})

	serverErrCh := make(chan error, 1)
	go func() {
		req, err := testReadFrame(server)
		if err != nil {
			serverErrCh <- err
			return
		}
		serverErrCh <- testWriteFrame(server, replyTo(req, wire.STATUS_OK, 1))
	}()

	req := wire.NewRequestHeader(wire.SMB2_ECHO)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.Send(ctx, req, SendOptions{})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := wire.Header(resp).Status(); got != wire.STATUS_OK {
		t.Errorf("response status = 0x%08x, want STATUS_OK", got)
	}
	if err := <-serverErrCh; err != nil {
		t.Fatalf("server side: %v", err)
	}
}

func TestSendManyCompound(t *testing.T) {
	c, server := dialTestConnection(t, Options{})
	// A fresh allocator only starts with 1 credit granted; compounding
	// two requests needs at least 2 before either is sent.
	c.alloc.Grant(4)

	serverErrCh := make(chan error, 1)
	go func() {
		chain, err := testReadFrame(server)
		if err != nil {
			serverErrCh <- err
			return
		}
		reqs := wire.SplitCompound(chain)
		if len(reqs) != 2 {
			serverErrCh <- io.ErrUnexpectedEOF
			return
		}
		r0 := replyTo(reqs[0], wire.STATUS_OK, 1)
		r1 := replyTo(reqs[1], wire.STATUS_OK, 1)
		chainOut := wire.AppendCompound(r0, r1)
		serverErrCh <- testWriteFrame(server, chainOut)
	}()

	bodies := [][]byte{
		wire.NewRequestHeader(wire.SMB2_ECHO),
		wire.NewRequestHeader(wire.SMB2_ECHO),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	replies, err := c.SendMany(ctx, bodies, SendOptions{}, true)
	if err != nil {
		t.Fatalf("SendMany: %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	for i, r := range replies {
		if got := wire.Header(r).Status(); got != wire.STATUS_OK {
			t.Errorf("reply %d status = 0x%08x, want STATUS_OK", i, got)
		}
	}
	if err := <-serverErrCh; err != nil {
		t.Fatalf("server side: %v", err)
	}
}

func TestCancelCompletesWaiterWithErrCancelled(t *testing.T) {
	c, server := dialTestConnection(t, Options{})

	// The single-threaded backend can only notice a local Cancel between
	// RecvNext calls, so the fake server must still send something after
	// the CANCEL request to unblock the blocked read; by the time it
	// arrives the entry is already gone from the pending table and this
	// late reply is simply dropped.
	go func() {
		req, err := testReadFrame(server)
		if err != nil {
			return
		}
		if _, err := testReadFrame(server); err != nil { // the CANCEL request
			return
		}
		testWriteFrame(server, replyTo(req, wire.STATUS_CANCELLED, 1))
	}()

	req := wire.NewRequestHeader(wire.SMB2_READ)

	sendDone := make(chan struct{})
	var sendErr error
	go func() {
		defer close(sendDone)
		_, sendErr = c.Send(context.Background(), req, SendOptions{})
	}()

	// Poll until the request is registered in the pending table so Cancel
	// has something to find; message ids start at 0 for a fresh allocator.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && c.pend.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	if c.pend.Len() == 0 {
		t.Fatal("request never registered in the pending table")
	}

	if err := c.Cancel(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	select {
	case <-sendDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Send never returned after Cancel")
	}
	if sendErr != ErrCancelled {
		t.Errorf("Send error after Cancel = %v, want ErrCancelled", sendErr)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _ := dialTestConnection(t, Options{})
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if c.State() != StateClosed {
		t.Errorf("state after Close = %v, want StateClosed", c.State())
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close returned %v, want nil", err)
	}
}

func TestCloseFailsPendingRequests(t *testing.T) {
	c, server := dialTestConnection(t, Options{})
	go func() {
		for {
			if _, err := testReadFrame(server); err != nil {
				return
			}
		}
	}()

	req := wire.NewRequestHeader(wire.SMB2_READ)
	sendDone := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), req, SendOptions{})
		sendDone <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && c.pend.Len() == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-sendDone:
		if err != ErrDisconnected {
			t.Errorf("Send error after Close = %v, want ErrDisconnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send never returned after Close")
	}
}

func newBareConnection() *Connection {
	return &Connection{
		pend:      pending.NewTable(),
		alloc:     pending.NewAllocator(8),
		sess:      session.NewTable(),
		lastNonce: make(map[uint64]uint64),
	}
}

func TestCheckReplayRejectsNonIncreasingNonce(t *testing.T) {
	c := newBareConnection()

	nonce := func(seq uint64) []byte {
		b := make([]byte, 16)
		binary.LittleEndian.PutUint64(b[:8], seq)
		return b
	}

	if err := c.checkReplay(1, nonce(1)); err != nil {
		t.Fatalf("first nonce rejected: %v", err)
	}
	if err := c.checkReplay(1, nonce(2)); err != nil {
		t.Fatalf("increasing nonce rejected: %v", err)
	}
	if err := c.checkReplay(1, nonce(2)); err == nil {
		t.Error("repeated nonce was accepted, want SecurityViolation")
	}
	if err := c.checkReplay(1, nonce(1)); err == nil {
		t.Error("lower nonce was accepted, want SecurityViolation")
	}
	// A different session tracks its own high-water mark.
	if err := c.checkReplay(2, nonce(1)); err != nil {
		t.Errorf("first nonce on a new session rejected: %v", err)
	}
}

func TestDispatchOneAsyncPendingThenFinalReply(t *testing.T) {
	c := newBareConnection()

	entry, err := c.pend.Register(5)
	if err != nil {
		t.Fatal(err)
	}

	interim := wire.NewRequestHeader(wire.SMB2_CREATE)
	h := wire.Header(interim)
	h.SetMessageID(5)
	h.SetStatus(wire.STATUS_PENDING)
	h.SetFlag(wire.FLAGS_ASYNC_COMMAND)
	h.SetAsyncID(99)
	h.SetCreditRequest(1)

	c.dispatchOne(interim)
	if _, _, done := entry.TryResult(); done {
		t.Fatal("entry completed on an async-pending interim reply")
	}
	if async, asyncID := entry.IsAsync(); !async || asyncID != 99 {
		t.Errorf("IsAsync() = (%v, %d), want (true, 99)", async, asyncID)
	}

	final := wire.NewRequestHeader(wire.SMB2_CREATE)
	hf := wire.Header(final)
	hf.SetAsyncID(99)
	hf.SetStatus(wire.STATUS_OK)
	hf.SetFlag(wire.FLAGS_ASYNC_COMMAND)
	hf.SetCreditRequest(1)

	c.dispatchOne(final)
	resp, respErr, done := entry.TryResult()
	if !done {
		t.Fatal("entry not completed after final async reply")
	}
	if respErr != nil {
		t.Errorf("final reply error = %v, want nil", respErr)
	}
	if wire.Header(resp).Status() != wire.STATUS_OK {
		t.Error("completed response does not carry the final reply bytes")
	}
}

func TestDispatchOneServerErrorStatus(t *testing.T) {
	c := newBareConnection()
	entry, err := c.pend.Register(7)
	if err != nil {
		t.Fatal(err)
	}

	resp := wire.NewRequestHeader(wire.SMB2_CREATE)
	h := wire.Header(resp)
	h.SetMessageID(7)
	h.SetStatus(wire.STATUS_ACCESS_DENIED)
	h.SetCreditRequest(1)

	c.dispatchOne(resp)

	_, respErr, done := entry.TryResult()
	if !done {
		t.Fatal("entry not completed")
	}
	ce, ok := respErr.(*ConnError)
	if !ok || ce.Kind != KindServerStatus || ce.Status != wire.STATUS_ACCESS_DENIED {
		t.Errorf("error = %#v, want ConnError{Kind: KindServerStatus, Status: STATUS_ACCESS_DENIED}", respErr)
	}
}
