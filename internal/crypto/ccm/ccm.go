// CCM Mode, defined in NIST Special Publication SP 800-38C.
//
// SMB 3.0/3.0.2 pin AES-128-CCM for sealing; 3.1.1 negotiates CCM or GCM via
// the encryption capability context and this package backs the CCM half.
package ccm

import (
	"bytes"
	"crypto/cipher"
	"errors"
)

type ccm struct {
	c         cipher.Block
	mac       *mac
	nonceSize int
	tagSize   int
}

// NewCCMWithNonceAndTagSizes wraps the given 128-bit block cipher in
// Counter with CBC-MAC Mode, accepting nonces of the given length.
// The formatting of this function is defined in SP800-38C, Appendix A.
//
//	nonceSize must be one of {7, 8, 9, 10, 11, 12, 13}.
//	tagSize must be one of {4, 6, 8, 10, 12, 14, 16}.
//
// The maximum payload size is 1<<((15-nonceSize)*8)-1 bytes; Seal returns
// nil if the plaintext exceeds it.
func NewCCMWithNonceAndTagSizes(c cipher.Block, nonceSize, tagSize int) (cipher.AEAD, error) {
	if c.BlockSize() != 16 {
		return nil, errors.New("ccm: cipher must have 128-bit blocks")
	}
	if !(7 <= nonceSize && nonceSize <= 13) {
		return nil, errors.New("ccm: invalid nonce size")
	}
	if !(4 <= tagSize && tagSize <= 16 && tagSize&1 == 0) {
		return nil, errors.New("ccm: invalid tag size")
	}

	return &ccm{
		c:         c,
		mac:       newMAC(c),
		nonceSize: nonceSize,
		tagSize:   tagSize,
	}, nil
}

func (c *ccm) NonceSize() int { return c.nonceSize }

func (c *ccm) Overhead() int { return c.tagSize }

func (c *ccm) Seal(dst, nonce, plaintext, data []byte) []byte {
	if len(nonce) != c.nonceSize {
		panic("ccm: incorrect nonce length")
	}

	// cipher.AEAD has no error return; mirror the stdlib GCM convention of
	// returning nil when the payload exceeds the counter's range.
	if maxUvarint(15-c.nonceSize) < uint64(len(plaintext)) {
		return nil
	}

	ret, ciphertext := sliceForAppend(dst, len(plaintext)+c.mac.Size())

	// Formatting of the Counter Blocks is defined in A.3.
	ctr0 := make([]byte, 16)
	ctr0[0] = byte(15 - c.nonceSize - 1) // [q-1]3
	copy(ctr0[1:], nonce)                // N

	s0 := ciphertext[len(plaintext):]
	c.c.Encrypt(s0, ctr0)

	ctr0[15] = 1 // Ctr1
	ctr := cipher.NewCTR(c.c, ctr0)
	ctr.XORKeyStream(ciphertext, plaintext)

	tag := c.getTag(ctr0, data, plaintext)
	xorBytes(s0, s0, tag) // T^S0

	return ret[:len(plaintext)+c.tagSize]
}

func (c *ccm) Open(dst, nonce, ciphertext, data []byte) ([]byte, error) {
	if len(nonce) != c.nonceSize {
		panic("ccm: incorrect nonce length")
	}
	if len(ciphertext) <= c.tagSize {
		panic("ccm: incorrect ciphertext length")
	}
	if maxUvarint(15-c.nonceSize) < uint64(len(ciphertext)-c.tagSize) {
		return nil, errors.New("ccm: ciphertext exceeds maximum payload size")
	}

	ret, plaintext := sliceForAppend(dst, len(ciphertext)-c.tagSize)

	ctr0 := make([]byte, 16)
	ctr0[0] = byte(15 - c.nonceSize - 1)
	copy(ctr0[1:], nonce)

	s0 := make([]byte, 16)
	c.c.Encrypt(s0, ctr0)

	ctr0[15] = 1
	ctr := cipher.NewCTR(c.c, ctr0)
	ctr.XORKeyStream(plaintext, ciphertext[:len(plaintext)])

	tag := c.getTag(ctr0, data, plaintext)
	xorBytes(tag, tag, s0)

	if !bytes.Equal(tag[:c.tagSize], ciphertext[len(plaintext):]) {
		return nil, errors.New("ccm: message authentication failed")
	}

	return ret, nil
}

// getTag reuses the Ctr block for the B0 block since large parts overlap.
// See SP800-38C Appendix A.2 and A.3.
func (c *ccm) getTag(ctr, data, plaintext []byte) []byte {
	c.mac.Reset()

	b := ctr // B0
	b[0] |= byte(((c.tagSize - 2) / 2) << 3) // [(t-2)/2]3
	putUvarint(b[1+c.nonceSize:], uint64(len(plaintext)))

	if len(data) > 0 {
		b[0] |= 1 << 6 // Adata

		c.mac.Write(b)

		switch {
		case len(data) < (1<<15 - 1<<7):
			putUvarint(b[:2], uint64(len(data)))
			c.mac.Write(b[:2])
		case len(data) <= 1<<31-1:
			b[0], b[1] = 0xff, 0xfe
			putUvarint(b[2:6], uint64(len(data)))
			c.mac.Write(b[:6])
		default:
			b[0], b[1] = 0xff, 0xff
			putUvarint(b[2:10], uint64(len(data)))
			c.mac.Write(b[:10])
		}
		c.mac.Write(data)
		c.mac.PadZero()
	} else {
		c.mac.Write(b)
	}

	c.mac.Write(plaintext)
	c.mac.PadZero()

	return c.mac.Sum(nil)
}

func maxUvarint(n int) uint64 {
	return 1<<uint(n*8) - 1
}

func putUvarint(bs []byte, u uint64) {
	for i := 0; i < len(bs); i++ {
		bs[i] = byte(u >> uint(8*(len(bs)-1-i)))
	}
}

// sliceForAppend extends dst to hold n more bytes, reusing its capacity
// when possible, and returns the extended slice plus the suffix window.
func sliceForAppend(dst []byte, n int) (head, tail []byte) {
	total := len(dst) + n
	if cap(dst) >= total {
		head = dst[:total]
	} else {
		head = make([]byte, total)
		copy(head, dst)
	}
	tail = head[len(dst):]
	return
}

func xorBytes(dst, a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dst[i] = a[i] ^ b[i]
	}
	return n
}
