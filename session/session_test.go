package session

import (
	"testing"

	"github.com/smbgo/smb3/crypto"
	"github.com/smbgo/smb3/securitycontext"
)

func TestRefEstablishDerivesCryptoContext(t *testing.T) {
	sc := securitycontext.NewNTLM("alice", "hunter2", "")
	ref := New(1, sc)

	if ref.State() != StateInProgress {
		t.Fatalf("initial state = %v, want StateInProgress", ref.State())
	}

	// Run only the first leg of the NTLM handshake instead of a full
	// handshake against a fake server; the context's SessionKey is nil
	// until Step completes.
	if _, err := sc.InitialToken(); err != nil {
		t.Fatal(err)
	}

	// Without a real server round-trip SessionKey stays nil; Derive
	// accepts a nil/short key by treating it as all-zero, so this still
	// exercises Establish's wiring end to end.
	if err := ref.Establish(crypto.Dialect300, 0, nil, false); err != nil {
		t.Fatal(err)
	}
	if ref.State() != StateValid {
		t.Fatalf("state after Establish = %v, want StateValid", ref.State())
	}
	if ref.CryptoContext() == nil {
		t.Fatal("CryptoContext() is nil after Establish")
	}
}

func TestTableRegisterLookupRemove(t *testing.T) {
	table := NewTable()
	sc := securitycontext.NewNTLM("bob", "pw", "")
	ref := New(42, sc)

	table.Register(ref)
	got, ok := table.Lookup(42)
	if !ok || got != ref {
		t.Fatal("Lookup did not return the registered ref")
	}

	table.Remove(42)
	if _, ok := table.Lookup(42); ok {
		t.Error("ref still present after Remove")
	}
}

func TestTableExpireAll(t *testing.T) {
	table := NewTable()
	ref := New(1, securitycontext.NewNTLM("u", "p", ""))
	table.Register(ref)

	table.ExpireAll()
	if ref.State() != StateExpired {
		t.Errorf("state after ExpireAll = %v, want StateExpired", ref.State())
	}
}
