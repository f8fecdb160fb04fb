// Package securitycontext defines the opaque security-context
// abstraction SESSION_SETUP drives, plus a default NTLMv2-over-SPNEGO
// implementation.
package securitycontext

import (
	"encoding/asn1"
	"errors"

	"github.com/smbgo/smb3/ntlm"
	"github.com/smbgo/smb3/spnego"
)

// SecurityContext drives one SESSION_SETUP exchange. A caller repeats
// Step, sending each returned token to the server as the security
// buffer of the next SESSION_SETUP request, until done is true.
type SecurityContext interface {
	// InitialToken returns the first SPNEGO-wrapped token, sent in the
	// first SESSION_SETUP request's security buffer.
	InitialToken() ([]byte, error)

	// Step consumes the server's security buffer from the previous
	// SESSION_SETUP response and returns the next token to send, or
	// done=true once the context is fully established.
	Step(serverToken []byte) (clientToken []byte, done bool, err error)

	// SessionKey returns the negotiated session key, valid once Step
	// has returned done=true. It seeds crypto.Derive.
	SessionKey() []byte

	// SignOnly signs data with the mechanism's signing key without
	// consuming any sealing-key or nonce state, so it is safe to call
	// from the SESSION_SETUP driver (e.g. to compute a mechListMIC)
	// independently of whatever sealing the mechanism later performs.
	// It requires Step to have produced a session key.
	SignOnly(data []byte) ([]byte, error)
}

// NTLM implements SecurityContext using NTLMv2 wrapped in SPNEGO, the
// mechanism every Windows and Samba server accepts.
type NTLM struct {
	client *ntlm.Client
	step   int
}

// NewNTLM returns an NTLM security context for the given credentials.
// domain may be empty for a local account.
func NewNTLM(user, password, domain string) *NTLM {
	return &NTLM{client: ntlm.NewClient(user, password, domain)}
}

func (n *NTLM) InitialToken() ([]byte, error) {
	nmsg, err := n.client.Negotiate()
	if err != nil {
		return nil, err
	}
	n.step = 1
	return spnego.EncodeNegTokenInit([]asn1.ObjectIdentifier{spnego.NlmpOid}, nmsg)
}

func (n *NTLM) Step(serverToken []byte) ([]byte, bool, error) {
	switch n.step {
	case 1:
		resp, err := spnego.DecodeNegTokenResp(serverToken)
		if err != nil {
			return nil, false, err
		}
		amsg, err := n.client.Authenticate(resp.ResponseToken)
		if err != nil {
			return nil, false, err
		}
		n.step = 2
		mechTypeList, err := asn1.Marshal([]asn1.ObjectIdentifier{spnego.NlmpOid})
		if err != nil {
			return nil, false, err
		}
		mic, err := n.SignOnly(mechTypeList)
		if err != nil {
			return nil, false, err
		}
		token, err := spnego.EncodeNegTokenResp(0, spnego.NlmpOid, amsg, mic)
		if err != nil {
			return nil, false, err
		}
		return token, false, nil

	case 2:
		resp, err := spnego.DecodeNegTokenResp(serverToken)
		if err != nil {
			return nil, false, err
		}
		// NegState 0 = accept-completed; anything else is a rejection.
		if resp.NegState != 0 {
			return nil, false, errors.New("securitycontext: server rejected authentication")
		}
		n.step = 3
		return nil, true, nil

	default:
		return nil, false, errors.New("securitycontext: Step called after completion")
	}
}

func (n *NTLM) SessionKey() []byte {
	if n.client.Session() == nil {
		return nil
	}
	return n.client.Session().SessionKey()
}

func (n *NTLM) SignOnly(data []byte) ([]byte, error) {
	if n.client.Session() == nil {
		return nil, errors.New("securitycontext: SignOnly called before the session key is established")
	}
	return n.client.Session().SignOnly(data), nil
}
