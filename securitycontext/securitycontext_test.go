package securitycontext

import (
	"encoding/asn1"
	"testing"

	"github.com/smbgo/smb3/spnego"
)

func TestNTLMInitialTokenIsWellFormedSPNEGO(t *testing.T) {
	ctx := NewNTLM("alice", "hunter2", "WORKGROUP")

	token, err := ctx.InitialToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(token) == 0 {
		t.Fatal("InitialToken returned no bytes")
	}

	init, err := spnego.DecodeNegTokenInit(token)
	if err != nil {
		t.Fatalf("DecodeNegTokenInit: %v", err)
	}
	if len(init.MechTypes) != 1 || !init.MechTypes[0].Equal(spnego.NlmpOid) {
		t.Errorf("MechTypes = %v, want [%v]", init.MechTypes, spnego.NlmpOid)
	}
	if len(init.MechToken) < 32 {
		t.Errorf("MechToken too short to be an NTLM NEGOTIATE_MESSAGE: %d bytes", len(init.MechToken))
	}
}

func TestNTLMStepRejectsResponseWithoutChallenge(t *testing.T) {
	ctx := NewNTLM("alice", "hunter2", "")
	if _, err := ctx.InitialToken(); err != nil {
		t.Fatal(err)
	}

	rejected, err := spnego.EncodeNegTokenResp(asn1.Enumerated(1), spnego.NlmpOid, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	// step 1 expects a ResponseToken carrying the CHALLENGE_MESSAGE;
	// with none present, Authenticate must fail rather than panic.
	if _, _, err := ctx.Step(rejected); err == nil {
		t.Error("expected Step to fail on a response with no challenge token")
	}
}

func TestNTLMSessionKeyEmptyBeforeHandshake(t *testing.T) {
	ctx := NewNTLM("alice", "hunter2", "")
	if key := ctx.SessionKey(); key != nil {
		t.Errorf("SessionKey() = %v before handshake, want nil", key)
	}
}

func TestNTLMSignOnlyRejectsBeforeHandshake(t *testing.T) {
	ctx := NewNTLM("alice", "hunter2", "")
	if _, err := ctx.InitialToken(); err != nil {
		t.Fatal(err)
	}
	if _, err := ctx.SignOnly([]byte("mechTypeList")); err == nil {
		t.Error("SignOnly before Step completes the handshake should fail, not sign with a zero key")
	}
}
