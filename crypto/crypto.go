// Package crypto implements the SMB2/SMB3 cryptographic context: the
// signing and sealing keys derived once per session and reused for every
// frame crossing the wire, plus the KDF, signer and sealer constructors
// the session setup exchange needs to build a Context.
//
// Dialects below 3.0 (HMAC-SHA256 signing, no sealing) are kept for
// completeness of the negotiation/derivation table even though the
// surrounding connection runtime only targets 3.0, 3.0.2 and 3.1.1.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"hash"
	"sync/atomic"

	"github.com/smbgo/smb3/internal/crypto/ccm"
	"github.com/smbgo/smb3/internal/crypto/cmac"
	"github.com/smbgo/smb3/internal/crypto/gmac"
	"github.com/smbgo/smb3/kdf"
)

// Dialect identifies the negotiated SMB2/SMB3 dialect for key derivation
// purposes. Values match the wire dialect revision numbers.
type Dialect uint16

const (
	Dialect202  Dialect = 0x0202
	Dialect210  Dialect = 0x0210
	Dialect300  Dialect = 0x0300
	Dialect302  Dialect = 0x0302
	Dialect311  Dialect = 0x0311
)

// Cipher identifies the negotiated encryption algorithm, per the
// SMB2_ENCRYPTION_CAPABILITIES negotiate context (3.1.1 only; 3.0/3.0.2
// always use AES-128-CCM).
type Cipher uint16

const (
	CipherAES128CCM Cipher = 0x0001
	CipherAES128GCM Cipher = 0x0002
	CipherAES256CCM Cipher = 0x0003
	CipherAES256GCM Cipher = 0x0004
)

// SigningAlgo identifies the negotiated signing algorithm, per the
// SMB2_SIGNING_CAPABILITIES negotiate context (3.1.1 only; earlier
// dialects are pinned to HMAC-SHA256 or AES-128-CMAC by dialect alone).
type SigningAlgo uint16

const (
	SigningHMACSHA256 SigningAlgo = 0x0000
	SigningAES128CMAC SigningAlgo = 0x0001
	SigningAES128GMAC SigningAlgo = 0x0002
)

// Context is the per-session cryptographic state: one signer/verifier
// pair and, once a cipher is negotiated, one encrypter/decrypter pair.
// A Context is safe for concurrent use by multiple goroutines signing or
// sealing distinct frames; the nonce counter is the only shared mutable
// state and is updated atomically.
type Context struct {
	dialect Dialect
	cipher  Cipher

	signer   hash.Hash
	verifier hash.Hash

	encrypter cipher.AEAD
	decrypter cipher.AEAD

	nonceSeq atomic.Uint64
}

// Keys holds the raw derived key material produced by Derive. Callers that
// need to persist or log key provenance can inspect it; normal usage only
// needs the resulting Context.
type Keys struct {
	SigningKey    []byte
	EncryptionKey []byte
	DecryptionKey []byte
}

// Derive builds a Context from a session key, the negotiated dialect and
// (for 3.1.1) cipher, and the preauth integrity hash value accumulated
// over the NEGOTIATE and SESSION_SETUP exchanges. encrypt controls
// whether sealing keys are derived at all: guest/anonymous sessions and
// sessions that did not negotiate encryption skip it.
func Derive(sessionKey []byte, dialect Dialect, negotiatedCipher Cipher, preauthHash []byte, encrypt bool) (*Context, Keys, error) {
	c := &Context{dialect: dialect, cipher: negotiatedCipher}
	var keys Keys

	switch dialect {
	case Dialect202, Dialect210:
		c.signer = hmac.New(sha256.New, sessionKey)
		c.verifier = hmac.New(sha256.New, sessionKey)
		keys.SigningKey = sessionKey
		return c, keys, nil

	case Dialect300, Dialect302:
		signingKey := kdf.Kdf(sessionKey, []byte("SMB2AESCMAC\x00"), []byte("SmbSign\x00"))
		keys.SigningKey = signingKey

		block, err := aes.NewCipher(signingKey)
		if err != nil {
			return nil, Keys{}, fmt.Errorf("crypto: signing cipher: %w", err)
		}
		c.signer = cmac.New(block)
		c.verifier = cmac.New(block)

		if !encrypt {
			return c, keys, nil
		}

		encKey := kdf.Kdf(sessionKey, []byte("SMB2AESCCM\x00"), []byte("ServerIn \x00"))
		decKey := kdf.Kdf(sessionKey, []byte("SMB2AESCCM\x00"), []byte("ServerOut\x00"))
		keys.EncryptionKey, keys.DecryptionKey = encKey, decKey

		if c.encrypter, err = newCCM(encKey); err != nil {
			return nil, Keys{}, err
		}
		if c.decrypter, err = newCCM(decKey); err != nil {
			return nil, Keys{}, err
		}
		return c, keys, nil

	case Dialect311:
		signingKey := kdf.Kdf(sessionKey, []byte("SMBSigningKey\x00"), preauthHash)
		keys.SigningKey = signingKey

		block, err := aes.NewCipher(signingKey)
		if err != nil {
			return nil, Keys{}, fmt.Errorf("crypto: signing cipher: %w", err)
		}
		c.signer = cmac.New(block)
		c.verifier = cmac.New(block)

		if !encrypt {
			return c, keys, nil
		}

		encKey := kdf.Kdf(sessionKey, []byte("SMBC2SCipherKey\x00"), preauthHash)
		decKey := kdf.Kdf(sessionKey, []byte("SMBS2CCipherKey\x00"), preauthHash)
		keys.EncryptionKey, keys.DecryptionKey = encKey, decKey

		switch negotiatedCipher {
		case CipherAES128CCM, CipherAES256CCM:
			if c.encrypter, err = newCCM(encKey); err != nil {
				return nil, Keys{}, err
			}
			if c.decrypter, err = newCCM(decKey); err != nil {
				return nil, Keys{}, err
			}
		case CipherAES128GCM, CipherAES256GCM:
			if c.encrypter, err = newGCM(encKey); err != nil {
				return nil, Keys{}, err
			}
			if c.decrypter, err = newGCM(decKey); err != nil {
				return nil, Keys{}, err
			}
		default:
			return nil, Keys{}, fmt.Errorf("crypto: unsupported cipher 0x%04x", negotiatedCipher)
		}
		return c, keys, nil

	default:
		return nil, Keys{}, fmt.Errorf("crypto: unsupported dialect 0x%04x", dialect)
	}
}

func newCCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: ccm cipher: %w", err)
	}
	return ccm.NewCCMWithNonceAndTagSizes(block, 11, 16)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm cipher: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, 12)
}

// NewGMACSigner replaces the Context's CMAC signer with AES-GMAC keyed by
// signingKey under nonce, for when the 3.1.1 signing capability
// negotiate context selects SigningAES128GMAC instead of the dialect
// default of CMAC. Only the signer is replaced; the verifier keeps its
// CMAC hash. GMAC needs a fresh nonce per message, so unlike CMAC the
// signer has to be rebuilt with a new nonce for every frame.
func (c *Context) NewGMACSigner(signingKey, nonce []byte) error {
	h, err := gmac.New(signingKey, nonce)
	if err != nil {
		return fmt.Errorf("crypto: gmac signer: %w", err)
	}
	c.signer = h
	return nil
}

// Sign computes the signature over msg with the current signer and
// resets the signer afterward so the Context can sign the next message.
func (c *Context) Sign(msg []byte) []byte {
	c.signer.Reset()
	c.signer.Write(msg)
	return c.signer.Sum(nil)
}

// Verify recomputes the signature over msg (which must have its signature
// field already zeroed by the caller) and reports whether it matches want.
func (c *Context) Verify(msg, want []byte) bool {
	c.verifier.Reset()
	c.verifier.Write(msg)
	got := c.verifier.Sum(nil)
	return hmac.Equal(got, want)
}

// CanSeal reports whether encryption keys were derived for this Context.
func (c *Context) CanSeal() bool {
	return c.encrypter != nil && c.decrypter != nil
}

// Seal encrypts plaintext under the encrypter, returning the ciphertext
// (with the authentication tag appended, stdlib AEAD convention) and the
// nonce used. Nonces are issued from a monotonically increasing counter
// padded to the cipher's nonce size, per MS-SMB2's requirement that a
// session never reuse a nonce.
func (c *Context) Seal(plaintext, associatedData []byte) (ciphertext, nonce []byte, err error) {
	if !c.CanSeal() {
		return nil, nil, fmt.Errorf("crypto: no sealing keys derived")
	}
	nonce = c.NextNonce()
	return c.encrypter.Seal(nil, nonce[:c.encrypter.NonceSize()], plaintext, associatedData), nonce, nil
}

// Open decrypts ciphertext (tag included) sealed under nonce.
func (c *Context) Open(ciphertext, nonce, associatedData []byte) ([]byte, error) {
	if !c.CanSeal() {
		return nil, fmt.Errorf("crypto: no sealing keys derived")
	}
	return c.decrypter.Open(nil, nonce[:c.decrypter.NonceSize()], ciphertext, associatedData)
}

// NextNonce returns the next 16-byte nonce value for this Context's
// encrypter, derived from an atomically incremented 64-bit sequence
// counter placed in the low-order bytes (CCM/GCM both consume only the
// low NonceSize() bytes of the returned slice).
func (c *Context) NextNonce() []byte {
	seq := c.nonceSeq.Add(1)
	nonce := make([]byte, 16)
	for i := 0; i < 8; i++ {
		nonce[i] = byte(seq >> (8 * i))
	}
	return nonce
}
