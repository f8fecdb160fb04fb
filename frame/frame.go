// Package frame implements the SMB2/SMB3 frame preprocessor: the ordered
// envelope logic that turns a plaintext message into what actually
// crosses the wire (sign unless sealing, then compress, then seal) and
// back again.
package frame

import (
	"errors"
	"fmt"

	"github.com/smbgo/smb3/compress"
	"github.com/smbgo/smb3/crypto"
	"github.com/smbgo/smb3/wire"
)

// CompressionConfig describes how outbound messages should be compressed,
// negotiated once at NEGOTIATE time.
type CompressionConfig struct {
	Enabled    bool
	Algorithms []uint16 // preference order; first is tried first
	Chained    bool
	// MinSize is the smallest plaintext size worth compressing; MS-SMB2
	// and real servers skip compression below a threshold since the
	// envelope overhead dominates for tiny messages.
	MinSize int
}

// Options bundles the per-send parameters the frame preprocessor needs
// beyond the crypto Context: whether to encrypt this message, whether to
// attempt compression, and the session/tree ids needed to build the
// TRANSFORM_HEADER.
type Options struct {
	Compression CompressionConfig
	Encrypt     bool
	Sign        bool
	SessionID   uint64
}

var ErrNotCompressed = errors.New("frame: message not compressed (below threshold or no compressor negotiated)")

// Wrap turns a plaintext SMB2 message (header + body, possibly already a
// compounded chain) into the bytes that should be written to the
// transport, applying signing (only when not sealing), then compression,
// then sealing per the negotiated options. ctx may be nil before a session key exists (plain
// NEGOTIATE exchange); in that case Encrypt/Sign in opts must be false.
func Wrap(plaintext []byte, ctx *crypto.Context, opts Options) ([]byte, error) {
	payload := plaintext

	// Sign first, while payload is still a plain 64-byte-header SMB2
	// message: signing an encrypted message is redundant (the AEAD tag
	// already authenticates it), so encryption takes priority here.
	if opts.Sign && !opts.Encrypt {
		if ctx == nil {
			return nil, fmt.Errorf("frame: Sign requested without a cryptographic context")
		}
		payload = signInPlace(payload, ctx)
	}

	if opts.Compression.Enabled && len(payload) >= opts.Compression.MinSize {
		if compressed, ok := tryCompress(payload, opts.Compression); ok {
			payload = compressed
		}
	}

	if opts.Encrypt {
		if ctx == nil {
			return nil, fmt.Errorf("frame: Encrypt requested without a cryptographic context")
		}
		return seal(payload, ctx, opts.SessionID)
	}
	return payload, nil
}

// Unwrap reverses Wrap: it undoes encryption (if the frame is an
// ENCRYPTED transform), then decompression (if COMPRESSED), and verifies
// the signature if present and ctx is non-nil, returning the plaintext
// SMB2 message.
func Unwrap(wireBytes []byte, ctx *crypto.Context) ([]byte, error) {
	h := wire.Header(wireBytes)
	if len(wireBytes) < 4 {
		return nil, wire.ErrWrongLength
	}

	switch h.ProtocolID() {
	case wire.ProtocolSMB2Encrypted:
		if ctx == nil {
			return nil, fmt.Errorf("frame: received encrypted frame without a cryptographic context")
		}
		plain, err := open(wireBytes, ctx)
		if err != nil {
			return nil, err
		}
		return Unwrap(plain, ctx)

	case wire.ProtocolSMB2Compressed:
		plain, err := decompress(wireBytes)
		if err != nil {
			return nil, err
		}
		return Unwrap(plain, ctx)

	case wire.ProtocolSMB2:
		if ctx != nil && h.IsFlagSet(wire.FLAGS_SIGNED) {
			if err := verify(wireBytes, ctx); err != nil {
				return nil, err
			}
		}
		return wireBytes, nil

	default:
		return nil, wire.ErrWrongProtocol
	}
}

func tryCompress(plaintext []byte, cfg CompressionConfig) ([]byte, bool) {
	if cfg.Chained {
		return compressChained(plaintext, cfg.Algorithms)
	}
	return compressSingle(plaintext, cfg.Algorithms)
}

// compressSingle applies the first algorithm in algos that yields a
// strictly smaller payload, wrapping it in a non-chained
// COMPRESSION_TRANSFORM_HEADER.
func compressSingle(plaintext []byte, algos []uint16) ([]byte, bool) {
	for _, algo := range algos {
		if algo == wire.COMPRESSION_NONE {
			continue
		}
		c := compress.New(algo)
		out, err := c.Compress(plaintext)
		if err != nil || len(out) == 0 || len(out) >= len(plaintext) {
			continue
		}

		buf := make([]byte, wire.SMB2CompressionTransformHeaderSize+len(out))
		h := wire.Header(buf)
		h.SetProtocolID(wire.ProtocolSMB2Compressed)
		h.SetOriginalCompressedSegmentSize(uint32(len(plaintext)))
		setCompressionAlgo(buf, algo)
		// Offset field records where the compressed payload starts
		// relative to the header end; this implementation never pads.
		setCompressionOffset(buf, 0)
		copy(buf[wire.SMB2CompressionTransformHeaderSize:], out)
		return buf, true
	}
	return nil, false
}

// compressChained wraps each algorithm's output in its own
// COMPRESSION_CHAINED_PAYLOAD_HEADER, in preference order, behind one
// leading COMPRESSION_TRANSFORM_HEADER with the chained flag set. A
// final uncompressed segment carries any remainder so the receiver can
// always reconstruct the original length.
func compressChained(plaintext []byte, algos []uint16) ([]byte, bool) {
	var segments []byte
	remaining := plaintext
	compressedAny := false

	for _, algo := range algos {
		if algo == wire.COMPRESSION_NONE || len(remaining) == 0 {
			continue
		}
		c := compress.New(algo)
		out, err := c.Compress(remaining)
		if err != nil || len(out) == 0 || len(out) >= len(remaining) {
			continue
		}
		ph := make([]byte, 8+len(out))
		wire.PayloadHeader(ph).SetCompressionAlgorithm(algo)
		wire.PayloadHeader(ph).SetLength(uint32(len(out)))
		copy(ph[8:], out)
		segments = append(segments, ph...)
		compressedAny = true
		remaining = nil // each pass compresses whatever is left; stop after first success
		break
	}

	if !compressedAny {
		return nil, false
	}

	if len(remaining) > 0 {
		ph := make([]byte, 8+len(remaining))
		wire.PayloadHeader(ph).SetCompressionAlgorithm(wire.COMPRESSION_NONE)
		wire.PayloadHeader(ph).SetLength(uint32(len(remaining)))
		copy(ph[8:], remaining)
		segments = append(segments, ph...)
	}

	buf := make([]byte, wire.SMB2CompressionTransformHeaderSize)
	h := wire.Header(buf)
	h.SetProtocolID(wire.ProtocolSMB2Compressed)
	h.SetOriginalCompressedSegmentSize(uint32(len(plaintext)))
	setChainedFlag(buf)
	buf = append(buf, segments...)
	return buf, true
}

// decompress reverses compressSingle/compressChained given a full
// COMPRESSED frame (transform header + payload).
func decompress(wireBytes []byte) ([]byte, error) {
	if len(wireBytes) < wire.SMB2CompressionTransformHeaderSize {
		return nil, wire.ErrWrongLength
	}
	h := wire.Header(wireBytes)
	originalSize := h.OriginalCompressedSegmentSize()

	if isChained(wireBytes) {
		return decompressChained(wireBytes[wire.SMB2CompressionTransformHeaderSize:], int(originalSize))
	}

	algo := compressionAlgo(wireBytes)
	offset := compressionOffset(wireBytes)
	payload := wireBytes[wire.SMB2CompressionTransformHeaderSize+int(offset):]

	if algo == wire.COMPRESSION_NONE {
		return payload, nil
	}
	c := compress.New(algo)
	return c.Decompress(payload, int(originalSize))
}

func decompressChained(segments []byte, originalSize int) ([]byte, error) {
	var out []byte
	for len(segments) >= 8 {
		ph := wire.PayloadHeader(segments)
		algo := ph.CompressionAlgorithm()
		length := ph.Length()
		if len(segments) < 8+int(length) {
			return nil, wire.ErrWrongLength
		}
		payload := segments[8 : 8+length]

		if algo == wire.COMPRESSION_NONE {
			out = append(out, payload...)
		} else {
			c := compress.New(algo)
			decoded, err := c.Decompress(payload, originalSize-len(out))
			if err != nil {
				return nil, err
			}
			out = append(out, decoded...)
		}
		segments = segments[8+length:]
	}
	return out, nil
}

// seal builds a TRANSFORM_HEADER around payload, encrypting it under
// ctx. The session id travels in both the transform header (used as the
// AEAD associated data) and is implicitly the same session the caller
// selected ctx for.
func seal(payload []byte, ctx *crypto.Context, sessionID uint64) ([]byte, error) {
	buf := make([]byte, wire.SMB2TransformHeaderSize)
	h := wire.Header(buf)
	h.SetProtocolID(wire.ProtocolSMB2Encrypted)
	h.SetOriginalMessageSize(uint32(len(payload)))
	h.SetTransformSessionID(sessionID)

	ciphertext, nonce, err := ctx.Seal(payload, h.AssociatedData())
	if err != nil {
		return nil, fmt.Errorf("frame: seal: %w", err)
	}
	h.SetNonce(nonce)

	// Seal appends the AEAD tag after the ciphertext (stdlib convention);
	// MS-SMB2 wants it split out into the transform header's Signature
	// field and the ciphertext alone following the header.
	tagSize := len(ciphertext) - len(payload)
	if tagSize < 0 {
		return nil, fmt.Errorf("frame: seal: ciphertext shorter than plaintext")
	}
	h.SetEncryptionSignature(ciphertext[len(ciphertext)-tagSize:])
	return append(buf, ciphertext[:len(ciphertext)-tagSize]...), nil
}

// open reverses seal.
func open(wireBytes []byte, ctx *crypto.Context) ([]byte, error) {
	if len(wireBytes) < wire.SMB2TransformHeaderSize {
		return nil, wire.ErrWrongLength
	}
	h := wire.Header(wireBytes)
	ciphertext := wireBytes[wire.SMB2TransformHeaderSize:]
	tag := h.EncryptionSignature()

	plaintext, err := ctx.Open(append(append([]byte{}, ciphertext...), tag...), h.Nonce(), h.AssociatedData())
	if err != nil {
		return nil, fmt.Errorf("frame: open: %w", err)
	}
	return plaintext, nil
}

// signInPlace signs plaintext (a plain SMB2 header + body, or a
// compounded chain) and sets each header's SIGNED flag and Signature
// field. A chain's sub-messages are signed one by one, each signature
// covering its own sub-message up to the next header.
func signInPlace(plaintext []byte, ctx *crypto.Context) []byte {
	for _, msg := range wire.SplitCompound(plaintext) {
		h := wire.Header(msg)
		h.SetFlag(wire.FLAGS_SIGNED)
		h.WipeSignature()
		sig := ctx.Sign(msg)
		h.SetSignature(sig)
	}
	return plaintext
}

// verify checks a signed plain SMB2 message's signature.
func verify(plaintext []byte, ctx *crypto.Context) error {
	h := wire.Header(plaintext)
	want := h.Signature()
	scratch := append([]byte{}, plaintext...)
	wire.Header(scratch).WipeSignature()
	if !ctx.Verify(scratch, want) {
		return fmt.Errorf("frame: signature verification failed")
	}
	return nil
}

// the non-chained COMPRESSION_TRANSFORM_HEADER places a 2-byte
// CompressionAlgorithm, 2-byte Flags and 4-byte Offset/Length field
// directly after the fixed 16-byte header (MS-SMB2 2.2.42.1).
func setCompressionAlgo(buf []byte, algo uint16) {
	wire.PayloadHeader(buf[wire.SMB2CompressionTransformHeaderSize-8:]).SetCompressionAlgorithm(algo)
}

func compressionAlgo(buf []byte) uint16 {
	return wire.PayloadHeader(buf[wire.SMB2CompressionTransformHeaderSize-8:]).CompressionAlgorithm()
}

func setCompressionOffset(buf []byte, offset uint32) {
	wire.PayloadHeader(buf[wire.SMB2CompressionTransformHeaderSize-8:]).SetLength(offset)
}

func compressionOffset(buf []byte) uint32 {
	return wire.PayloadHeader(buf[wire.SMB2CompressionTransformHeaderSize-8:]).Length()
}

func setChainedFlag(buf []byte) {
	wire.PayloadHeader(buf[wire.SMB2CompressionTransformHeaderSize-8:]).SetFlags(wire.COMPRESSION_CAPABILITIES_FLAG_CHAINED)
}

func isChained(buf []byte) bool {
	return wire.PayloadHeader(buf[wire.SMB2CompressionTransformHeaderSize-8:]).Flags()&wire.COMPRESSION_CAPABILITIES_FLAG_CHAINED != 0
}
