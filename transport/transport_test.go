package transport

import (
	"bytes"
	"net"
	"testing"
)

func TestConnReadWriteFrameRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	clientConn := &Conn{rwc: client}
	serverConn := &Conn{rwc: server}

	msg := []byte("a negotiate request")
	errCh := make(chan error, 1)
	go func() {
		errCh <- clientConn.WriteFrame(msg)
	}()

	got, err := serverConn.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("ReadFrame = %q, want %q", got, msg)
	}
}

func TestEncodeNetBIOSNamePadsAndEncodesNibbles(t *testing.T) {
	encoded := encodeNetBIOSName("A")
	if len(encoded) != 1+32+1 {
		t.Fatalf("len(encoded) = %d, want %d", len(encoded), 1+32+1)
	}
	if encoded[0] != 32 {
		t.Errorf("length prefix byte = %d, want 32", encoded[0])
	}
	// 'A' = 0x41 -> high nibble 4, low nibble 1 -> 'E', 'B'
	if encoded[1] != 'E' || encoded[2] != 'B' {
		t.Errorf("first encoded pair = %q %q, want 'E' 'B'", encoded[1], encoded[2])
	}
	// padding byte ' ' = 0x20 -> high nibble 2, low nibble 0 -> 'C', 'A'
	if encoded[3] != 'C' || encoded[4] != 'A' {
		t.Errorf("second encoded pair = %q %q, want 'C' 'A'", encoded[3], encoded[4])
	}
}

func TestDialUnknownKind(t *testing.T) {
	if _, err := Dial(nil, Kind(99), "", nil); err == nil {
		t.Error("expected error for unknown transport kind")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		DirectTCP: "tcp",
		NetBIOS:   "netbios",
		QUIC:      "quic",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", k, got, want)
		}
	}
}
