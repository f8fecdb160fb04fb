// Client-direction NTLMSSP message construction: build NEGOTIATE,
// consume CHALLENGE, build AUTHENTICATE, deriving the Session used for
// later signing and sealing.
package ntlm

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"github.com/smbgo/smb3/utils"
)

// Client drives the three-message NTLMv2 handshake as the initiator.
type Client struct {
	user     string
	password string
	domain   string

	nmsg []byte
	cmsg []byte
	amsg []byte

	session *Session
}

// NewClient returns a Client that will authenticate as user/domain
// using password.
func NewClient(user, password, domain string) *Client {
	return &Client{user: user, password: password, domain: domain}
}

// Negotiate builds the NEGOTIATE_MESSAGE to send to the server.
func (c *Client) Negotiate() ([]byte, error) {
	//        NegotiateMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-16: NegotiateFlags
	// 16-24: DomainNameFields
	// 24-32: WorkstationFields
	// 32-40: Version

	nmsg := make([]byte, 40)
	copy(nmsg[:8], signature)
	binary.LittleEndian.PutUint32(nmsg[8:12], NtLmNegotiate)
	binary.LittleEndian.PutUint32(nmsg[12:16], defaultFlags)
	copy(nmsg[32:40], version)

	c.nmsg = nmsg
	return nmsg, nil
}

// Authenticate consumes the server's CHALLENGE_MESSAGE and returns the
// AUTHENTICATE_MESSAGE to send back. On success the Client's Session is
// ready for Sum/CheckSum/Seal/Unseal once the caller wires them into
// the cryptographic context.
func (c *Client) Authenticate(cmsg []byte) (amsg []byte, err error) {
	//        ChallengeMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-20: TargetNameFields
	// 20-24: NegotiateFlags
	// 24-32: ServerChallenge
	// 32-40: _
	// 40-48: TargetInfoFields
	// 48-56: Version

	if len(cmsg) < 32 {
		return nil, errors.New("ntlm: challenge message too short")
	}
	if string(cmsg[:8]) != string(signature) {
		return nil, errors.New("ntlm: invalid challenge signature")
	}
	if binary.LittleEndian.Uint32(cmsg[8:12]) != NtLmChallenge {
		return nil, errors.New("ntlm: invalid challenge message type")
	}

	c.cmsg = cmsg
	flags := binary.LittleEndian.Uint32(cmsg[20:24])
	serverChallenge := cmsg[24:32]

	var targetInfo []byte
	if flags&NTLMSSP_NEGOTIATE_TARGET_INFO != 0 {
		targetInfoLen := binary.LittleEndian.Uint16(cmsg[40:42])
		targetInfoOffset := binary.LittleEndian.Uint32(cmsg[44:48])
		if len(cmsg) < int(targetInfoOffset)+int(targetInfoLen) {
			return nil, errors.New("ntlm: invalid target info")
		}
		targetInfo = cmsg[targetInfoOffset : targetInfoOffset+uint32(targetInfoLen)]
	}

	USER := utils.EncodeStringToBytes(strings.ToUpper(c.user))
	domainBytes := utils.EncodeStringToBytes(c.domain)
	passwordBytes := utils.EncodeStringToBytes(c.password)
	responseKeyNT := ntowfv2(USER, passwordBytes, domainBytes)

	var clientChallenge [8]byte
	if _, err := rand.Read(clientChallenge[:]); err != nil {
		return nil, err
	}
	timeStamp := utils.UnixToFiletime(time.Now())
	var timeStampBytes [8]byte
	binary.LittleEndian.PutUint64(timeStampBytes[:], timeStamp)

	ntChallengeResponseLen := 16 + 28 + len(targetInfo) + 4
	ntChallengeResponse := make([]byte, ntChallengeResponseLen)
	h := hmac.New(md5.New, responseKeyNT)
	encodeNtlmv2Response(ntChallengeResponse, h, serverChallenge, clientChallenge[:], timeStampBytes[:], bytesEncoder(targetInfo))

	h.Reset()
	h.Write(ntChallengeResponse[:16])
	sessionBaseKey := h.Sum(nil)
	keyExchangeKey := sessionBaseKey

	exportedSessionKey := make([]byte, 16)
	if _, err := rand.Read(exportedSessionKey); err != nil {
		return nil, err
	}
	var encryptedRandomSessionKey []byte
	if flags&NTLMSSP_NEGOTIATE_KEY_EXCH != 0 {
		cipher, err := rc4.NewCipher(keyExchangeKey)
		if err != nil {
			return nil, err
		}
		encryptedRandomSessionKey = make([]byte, 16)
		cipher.XORKeyStream(encryptedRandomSessionKey, exportedSessionKey)
	} else {
		exportedSessionKey = keyExchangeKey
		encryptedRandomSessionKey = nil
	}

	userNameBytes := utils.EncodeStringToBytes(c.user)

	//        AuthenticateMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-20: LmChallengeResponseFields
	// 20-28: NtChallengeResponseFields
	// 28-36: DomainNameFields
	// 36-44: UserNameFields
	// 44-52: WorkstationFields
	// 52-60: EncryptedRandomSessionKeyFields
	// 60-64: NegotiateFlags
	// 64-72: Version
	//   72-: Payload

	off := 72
	amsg = make([]byte, off+len(domainBytes)+len(userNameBytes)+len(ntChallengeResponse)+len(encryptedRandomSessionKey))

	copy(amsg[:8], signature)
	binary.LittleEndian.PutUint32(amsg[8:12], NtLmAuthenticate)
	binary.LittleEndian.PutUint32(amsg[60:64], flags)
	copy(amsg[64:72], version)

	cursor := off
	binary.LittleEndian.PutUint16(amsg[28:30], uint16(len(domainBytes)))
	binary.LittleEndian.PutUint16(amsg[30:32], uint16(len(domainBytes)))
	binary.LittleEndian.PutUint32(amsg[32:36], uint32(cursor))
	copy(amsg[cursor:], domainBytes)
	cursor += len(domainBytes)

	binary.LittleEndian.PutUint16(amsg[36:38], uint16(len(userNameBytes)))
	binary.LittleEndian.PutUint16(amsg[38:40], uint16(len(userNameBytes)))
	binary.LittleEndian.PutUint32(amsg[40:44], uint32(cursor))
	copy(amsg[cursor:], userNameBytes)
	cursor += len(userNameBytes)

	binary.LittleEndian.PutUint16(amsg[20:22], uint16(len(ntChallengeResponse)))
	binary.LittleEndian.PutUint16(amsg[22:24], uint16(len(ntChallengeResponse)))
	binary.LittleEndian.PutUint32(amsg[24:28], uint32(cursor))
	copy(amsg[cursor:], ntChallengeResponse)
	cursor += len(ntChallengeResponse)

	if encryptedRandomSessionKey != nil {
		binary.LittleEndian.PutUint16(amsg[52:54], uint16(len(encryptedRandomSessionKey)))
		binary.LittleEndian.PutUint16(amsg[54:56], uint16(len(encryptedRandomSessionKey)))
		binary.LittleEndian.PutUint32(amsg[56:60], uint32(cursor))
		copy(amsg[cursor:], encryptedRandomSessionKey)
	}

	session := &Session{
		isClientSide:       true,
		user:               c.user,
		domain:             c.domain,
		negotiateFlags:     flags,
		exportedSessionKey: exportedSessionKey,
	}
	session.clientSigningKey = signKey(flags, exportedSessionKey, true)
	session.serverSigningKey = signKey(flags, exportedSessionKey, false)
	session.clientHandle, err = rc4.NewCipher(sealKey(flags, exportedSessionKey, true))
	if err != nil {
		return nil, err
	}
	session.serverHandle, err = rc4.NewCipher(sealKey(flags, exportedSessionKey, false))
	if err != nil {
		return nil, err
	}
	if infoMap, ok := parseAvPairs(targetInfo); ok {
		session.infoMap = infoMap
	}

	c.session = session
	c.amsg = amsg
	return amsg, nil
}

// Session returns the negotiated NTLM session, valid after a
// successful Authenticate.
func (c *Client) Session() *Session {
	return c.session
}
