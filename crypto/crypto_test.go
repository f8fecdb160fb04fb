package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func sessionKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 16)
	if _, err := rand.Read(k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestDerive300SignAndSeal(t *testing.T) {
	key := sessionKey(t)
	c, keys, err := Derive(key, Dialect300, 0, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys.SigningKey) != 16 {
		t.Fatalf("signing key length = %d, want 16", len(keys.SigningKey))
	}

	msg := []byte("negotiate response body")
	sig := c.Sign(msg)
	if !c.Verify(msg, sig) {
		t.Error("Verify rejected a signature Sign just produced")
	}

	plaintext := []byte("a compounded request chain that needs sealing")
	aad := []byte("transform-header-associated-data")
	ciphertext, nonce, err := c.Seal(plaintext, aad)
	if err != nil {
		t.Fatal(err)
	}
	// The client seals with its encryption key and opens with its
	// decryption key, so a frame it sealed is opened by a peer holding
	// the swapped pair.
	peer := &Context{encrypter: c.decrypter, decrypter: c.encrypter}
	got, err := peer.Open(ciphertext, nonce, aad)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open = %q, want %q", got, plaintext)
	}
}

func TestDerive311GCM(t *testing.T) {
	key := sessionKey(t)
	preauth := make([]byte, 64)
	if _, err := rand.Read(preauth); err != nil {
		t.Fatal(err)
	}

	c, _, err := Derive(key, Dialect311, CipherAES128GCM, preauth, true)
	if err != nil {
		t.Fatal(err)
	}
	if !c.CanSeal() {
		t.Fatal("CanSeal() = false after deriving encryption keys")
	}

	plaintext := []byte("READ response payload")
	ciphertext, nonce, err := c.Seal(plaintext, nil)
	if err != nil {
		t.Fatal(err)
	}
	peer := &Context{encrypter: c.decrypter, decrypter: c.encrypter}
	got, err := peer.Open(ciphertext, nonce, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Open = %q, want %q", got, plaintext)
	}
}

func TestDeriveNoEncryptSkipsSealingKeys(t *testing.T) {
	key := sessionKey(t)
	c, keys, err := Derive(key, Dialect302, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if keys.EncryptionKey != nil || keys.DecryptionKey != nil {
		t.Error("encryption keys derived despite encrypt=false")
	}
	if c.CanSeal() {
		t.Error("CanSeal() = true despite encrypt=false")
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key := sessionKey(t)
	c, _, err := Derive(key, Dialect300, 0, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	msg := []byte("original bytes")
	sig := c.Sign(msg)

	tampered := append([]byte{}, msg...)
	tampered[0] ^= 0xff
	if c.Verify(tampered, sig) {
		t.Error("Verify accepted a signature over a different message")
	}
}

func TestNextNonceIsMonotonic(t *testing.T) {
	c := &Context{}
	a := c.NextNonce()
	b := c.NextNonce()
	if bytes.Equal(a, b) {
		t.Error("NextNonce returned the same value twice")
	}
}
