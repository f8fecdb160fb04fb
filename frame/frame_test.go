package frame

import (
	"bytes"
	"testing"

	"github.com/smbgo/smb3/crypto"
	"github.com/smbgo/smb3/wire"
)

func plainMessage(body string) []byte {
	data := wire.NewRequestHeader(wire.SMB2_ECHO)
	return append(data, []byte(body)...)
}

func TestWrapUnwrapSignedRoundTrip(t *testing.T) {
	ctx, _, err := crypto.Derive(make([]byte, 16), crypto.Dialect300, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	msg := plainMessage("an echo request body")
	wrapped, err := Wrap(append([]byte{}, msg...), ctx, Options{Sign: true})
	if err != nil {
		t.Fatal(err)
	}

	got, err := Unwrap(wrapped, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !wire.Header(got).IsFlagSet(wire.FLAGS_SIGNED) {
		t.Error("unwrapped message lost the SIGNED flag")
	}
}

func TestWrapUnwrapEncryptedRoundTrip(t *testing.T) {
	ctx, _, err := crypto.Derive(make([]byte, 16), crypto.Dialect300, 0, nil, true)
	if err != nil {
		t.Fatal(err)
	}

	msg := plainMessage("a sealed create request body")
	wrapped, err := Wrap(append([]byte{}, msg...), ctx, Options{Encrypt: true, SessionID: 42})
	if err != nil {
		t.Fatal(err)
	}
	if wire.Header(wrapped).ProtocolID() != wire.ProtocolSMB2Encrypted {
		t.Fatalf("ProtocolID = 0x%x, want encrypted", wire.Header(wrapped).ProtocolID())
	}

	got, err := Unwrap(wrapped, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("Unwrap = %q, want %q", got, msg)
	}
}

func TestWrapCompressesLargeCompressiblePayload(t *testing.T) {
	body := bytes.Repeat([]byte("A"), 4096)
	msg := plainMessage(string(body))

	wrapped, err := Wrap(msg, nil, Options{Compression: CompressionConfig{
		Enabled:    true,
		Algorithms: []uint16{wire.COMPRESSION_LZNT1},
		MinSize:    256,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if wire.Header(wrapped).ProtocolID() != wire.ProtocolSMB2Compressed {
		t.Fatalf("ProtocolID = 0x%x, want compressed", wire.Header(wrapped).ProtocolID())
	}
	if len(wrapped) >= len(msg) {
		t.Errorf("compressed size %d not smaller than original %d", len(wrapped), len(msg))
	}

	got, err := Unwrap(wrapped, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, msg) {
		t.Error("decompressed payload does not match original")
	}
}

func TestWrapSignsBeforeCompressing(t *testing.T) {
	ctx, _, err := crypto.Derive(make([]byte, 16), crypto.Dialect300, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	body := bytes.Repeat([]byte("B"), 4096)
	msg := plainMessage(string(body))

	wrapped, err := Wrap(append([]byte{}, msg...), ctx, Options{
		Sign: true,
		Compression: CompressionConfig{
			Enabled:    true,
			Algorithms: []uint16{wire.COMPRESSION_LZNT1},
			MinSize:    256,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if wire.Header(wrapped).ProtocolID() != wire.ProtocolSMB2Compressed {
		t.Fatalf("ProtocolID = 0x%x, want compressed", wire.Header(wrapped).ProtocolID())
	}

	got, err := Unwrap(wrapped, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !wire.Header(got).IsFlagSet(wire.FLAGS_SIGNED) {
		t.Error("unwrapped message lost the SIGNED flag")
	}
	if !bytes.Equal(got, msg) {
		t.Error("decompressed, verified payload does not match the original signed message")
	}
}

func TestWrapSkipsCompressionBelowThreshold(t *testing.T) {
	msg := plainMessage("tiny")
	wrapped, err := Wrap(msg, nil, Options{Compression: CompressionConfig{
		Enabled:    true,
		Algorithms: []uint16{wire.COMPRESSION_LZNT1},
		MinSize:    1024,
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(wrapped, msg) {
		t.Error("small payload was compressed despite being below MinSize")
	}
}
