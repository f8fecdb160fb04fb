// Package connection implements the connection handler: the stateful
// façade that ties the transport, frame preprocessor, cryptographic
// context, pending-request table, allocator and worker backend together
// behind Send/SendMany/RegisterSession/Close.
package connection

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/tls"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smbgo/smb3/backend"
	"github.com/smbgo/smb3/crypto"
	"github.com/smbgo/smb3/frame"
	"github.com/smbgo/smb3/pending"
	"github.com/smbgo/smb3/securitycontext"
	"github.com/smbgo/smb3/session"
	"github.com/smbgo/smb3/transport"
	"github.com/smbgo/smb3/wire"
)

// State is the connection lifecycle:
//
//	NEW --connect()--> TCP_OPEN --negotiate_sent--> NEGOTIATING
//	    --neg_response--> NEGOTIATED --session_setup_complete--> READY
//	READY --any-I/O-error--> FAILED --stop()--> CLOSED
//	READY --close()--> CLOSING --drain--> CLOSED
type State int

const (
	StateNew State = iota
	StateTCPOpen
	StateNegotiating
	StateNegotiated
	StateReady
	StateFailed
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateTCPOpen:
		return "TCP_OPEN"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateNegotiated:
		return "NEGOTIATED"
	case StateReady:
		return "READY"
	case StateFailed:
		return "FAILED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// BackendKind selects which of the three worker-backend concurrency
// regimes a Connection drives its transport with.
type BackendKind int

const (
	BackendSingle BackendKind = iota
	BackendThreaded
	BackendCooperative
)

// Options configures a Connection before NEGOTIATE. Zero-value fields
// fall back to the defaults a conservative client should offer.
type Options struct {
	Dialects              []uint16
	SecurityMode          uint16
	Capabilities          uint32
	Ciphers               []uint16
	CompressionAlgorithms []uint16
	CompressionChained    bool
	CompressionMinSize    int
	RequireSigning        bool

	BackendKind        BackendKind
	SendQueueDepth     int
	MaxConcurrentSends int64

	TLSConfig *tls.Config
}

func (o Options) withDefaults() Options {
	if len(o.Dialects) == 0 {
		o.Dialects = []uint16{wire.DialectSMB300, wire.DialectSMB302, wire.DialectSMB311}
	}
	if o.SecurityMode == 0 {
		o.SecurityMode = wire.NEGOTIATE_SIGNING_ENABLED
	}
	if o.CompressionMinSize == 0 {
		o.CompressionMinSize = 1024
	}
	return o
}

// SendOptions parameterizes a single Send/SendMany call.
type SendOptions struct {
	SessionID uint64
	TreeID    uint32
	Related   bool
	Encrypt   bool
	Sign      bool
	Timeout   time.Duration
}

// Connection is the client-side connection handler. One Connection owns
// exactly one transport socket and one worker backend.
type Connection struct {
	mu    sync.Mutex
	state State
	opts  Options

	conn *transport.Conn
	be   backend.Backend

	pend  *pending.Table
	alloc *pending.Allocator
	sess  *session.Table

	clientGUID []byte
	serverGUID []byte

	dialect      uint16
	cipher       uint16
	signingAlgo  uint16
	compression  frame.CompressionConfig
	maxTransact  uint32
	maxRead      uint32
	maxWrite     uint32
	preauthHash  []byte

	replayMu  sync.Mutex
	lastNonce map[uint64]uint64 // sessionID -> highest accepted nonce seen

	recvDone chan struct{}
}

// Dial opens the transport, constructs the worker backend selected by
// opts.BackendKind, and starts the receive dispatch loop, leaving the
// connection in StateTCPOpen ready for Negotiate.
func Dial(ctx context.Context, kind transport.Kind, addr string, opts Options) (*Connection, error) {
	opts = opts.withDefaults()

	c, err := transport.Dial(ctx, kind, addr, opts.TLSConfig)
	if err != nil {
		return nil, newErr(KindTransportIO, err)
	}

	var be backend.Backend
	switch opts.BackendKind {
	case BackendThreaded:
		be = backend.NewThreadedBackend(opts.SendQueueDepth)
	case BackendCooperative:
		be = backend.NewCooperativeBackend(opts.MaxConcurrentSends)
	default:
		be = backend.NewSingleBackend()
	}
	be.Start(c)

	guid, err := uuid.New().MarshalBinary()
	if err != nil {
		c.Close()
		return nil, newErr(KindProtocolViolation, err)
	}

	conn := &Connection{
		state:      StateTCPOpen,
		opts:       opts,
		conn:       c,
		be:         be,
		pend:       pending.NewTable(),
		alloc:      pending.NewAllocator(1),
		sess:       session.NewTable(),
		clientGUID: guid,
		lastNonce:  make(map[uint64]uint64),
		recvDone:   make(chan struct{}),
	}

	if opts.BackendKind != BackendSingle {
		go conn.recvLoop()
	}
	return conn, nil
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dialect returns the dialect negotiated by Negotiate, 0 before it runs.
func (c *Connection) Dialect() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialect
}

// Snapshot is a point-in-time, read-only view of a connection's health,
// exposed by the metrics package.
type Snapshot struct {
	State           string `json:"state"`
	GrantedCredits  uint64 `json:"granted_credits"`
	ReservedCredits uint64 `json:"reserved_credits"`
	PendingCount    int    `json:"pending_count"`
	Dialect         uint16 `json:"dialect"`
}

// Snapshot reports the connection's current state, credit window and
// in-flight request count without touching any in-flight call.
func (c *Connection) Snapshot() Snapshot {
	return Snapshot{
		State:           c.State().String(),
		GrantedCredits:  c.alloc.Granted(),
		ReservedCredits: c.alloc.Charged(),
		PendingCount:    c.pend.Len(),
		Dialect:         c.Dialect(),
	}
}

// Negotiate drives the SMB2_NEGOTIATE exchange: offers opts.Dialects and
// the 3.1.1 negotiate contexts, selects the cipher/compression/signing
// algorithm the server agreed to, and seeds the preauth integrity hash.
func (c *Connection) Negotiate(ctx context.Context) error {
	c.setState(StateNegotiating)

	salt := make([]byte, 32)
	if _, err := randRead(salt); err != nil {
		return c.fail(newErr(KindTransportIO, err))
	}

	var negotiateContexts [][]byte
	offers311 := false
	for _, d := range c.opts.Dialects {
		if d == wire.DialectSMB311 {
			offers311 = true
		}
	}
	if offers311 {
		negotiateContexts = append(negotiateContexts,
			wire.PreauthIntegrityCapabilitiesContext(salt),
			wire.EncryptionCapabilitiesContext(preferredCiphers(c.opts.Ciphers)),
			wire.CompressionCapabilitiesContext(compressionFlags(c.opts.CompressionChained), c.opts.CompressionAlgorithms),
		)
	}

	req := wire.BuildNegotiateRequest(wire.NegotiateRequestParams{
		Dialects:          c.opts.Dialects,
		SecurityMode:      c.opts.SecurityMode,
		Capabilities:      c.opts.Capabilities,
		ClientGuid:        c.clientGUID,
		NegotiateContexts: negotiateContexts,
	})

	respBytes, err := c.roundTrip(ctx, req, SendOptions{})
	if err != nil {
		return c.fail(err)
	}

	resp, err := wire.ParseNegotiateResponse(respBytes)
	if err != nil {
		return c.fail(newErr(KindProtocolViolation, err))
	}

	c.mu.Lock()
	c.dialect = resp.DialectRevision()
	c.serverGUID = resp.ServerGuid()
	c.maxTransact = resp.MaxTransactSize()
	c.maxRead = resp.MaxReadSize()
	c.maxWrite = resp.MaxWriteSize()
	ncs := resp.NegotiateContexts()
	c.cipher = wire.SelectedEncryptionCipher(ncs)
	c.signingAlgo = wire.SelectedSigningAlgorithm(ncs)
	flags, algos := wire.SelectedCompressionAlgorithms(ncs)
	c.compression = frame.CompressionConfig{
		Enabled:    len(algos) > 0,
		Algorithms: algos,
		Chained:    flags&wire.COMPRESSION_CAPABILITIES_FLAG_CHAINED != 0,
		MinSize:    c.opts.CompressionMinSize,
	}
	c.mu.Unlock()

	if !wire.Is3X(c.dialect) && c.dialect != wire.DialectSMB202 && c.dialect != wire.DialectSMB210 {
		return c.fail(newErr(KindUnsupported, fmt.Errorf("connection: server offered unsupported dialect 0x%04x", c.dialect)))
	}

	c.extendPreauth(req)
	c.extendPreauth(respBytes)

	c.setState(StateNegotiated)
	return nil
}

// EstablishSession drives SESSION_SETUP to completion using sc, derives
// the session's cryptographic context from the accumulated preauth hash,
// registers the session, and transitions the connection to StateReady.
func (c *Connection) EstablishSession(ctx context.Context, sc securitycontext.SecurityContext) (*session.Ref, error) {
	token, err := sc.InitialToken()
	if err != nil {
		return nil, newErr(KindSecurityViolation, err)
	}

	var sessionID uint64
	for {
		req := wire.BuildSessionSetupRequest(wire.SessionSetupRequestParams{
			SecurityMode:   c.opts.SecurityMode,
			Capabilities:   c.opts.Capabilities,
			SecurityBuffer: token,
		})
		wire.Header(req).SetSessionID(sessionID)

		respBytes, err := c.roundTrip(ctx, req, SendOptions{SessionID: sessionID})
		if err != nil {
			return nil, c.fail(err)
		}
		h := wire.Header(respBytes)
		sessionID = h.SessionID()

		c.extendPreauth(req)
		c.extendPreauth(respBytes)

		if h.Status() == wire.STATUS_MORE_PROCESSING_REQUIRED {
			resp, err := wire.ParseSessionSetupResponse(respBytes)
			if err != nil {
				return nil, c.fail(newErr(KindProtocolViolation, err))
			}
			next, done, err := sc.Step(resp.SecurityBuffer())
			if err != nil {
				return nil, newErr(KindSecurityViolation, err)
			}
			if done {
				break
			}
			token = next
			continue
		}
		if h.Status() != wire.STATUS_OK {
			return nil, newStatusErr(h.Status())
		}
		break
	}

	dialect := crypto.Dialect(c.Dialect())
	cipher := crypto.Cipher(c.cipher)
	ref := session.New(sessionID, sc)
	if err := ref.Establish(dialect, cipher, c.preauthHash, c.cipherNegotiated()); err != nil {
		return nil, newErr(KindSecurityViolation, err)
	}
	c.sess.Register(ref)

	c.setState(StateReady)
	return ref, nil
}

func (c *Connection) cipherNegotiated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cipher != 0
}

// RegisterSession adds an already-established session (e.g. one revived
// via SESSION_SETUP's PreviousSessionId reauth path) to the connection's
// session table without driving the handshake itself.
func (c *Connection) RegisterSession(ref *session.Ref) {
	c.sess.Register(ref)
}

// Session looks up a previously registered session by id.
func (c *Connection) Session(id uint64) (*session.Ref, bool) {
	return c.sess.Lookup(id)
}

// Send serializes one request, assigns it a message id, applies the
// frame preprocessor, registers a pending entry, enqueues it to the
// backend, and blocks until the matching reply arrives (or opts.Timeout/
// ctx expires).
func (c *Connection) Send(ctx context.Context, body []byte, opts SendOptions) ([]byte, error) {
	if c.State() == StateFailed || c.State() == StateClosed || c.State() == StateClosing {
		return nil, ErrDisconnected
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	creditCharge := creditsFor(len(body), 0)
	firstID, ok := c.alloc.Reserve(uint64(creditCharge))
	if !ok {
		return nil, ErrInsufficientCredits
	}

	h := wire.Header(body)
	h.SetMessageID(firstID)
	h.SetCreditCharge(creditCharge)
	if h.CreditRequest() == 0 {
		h.SetCreditRequest(creditCharge)
	}
	h.SetSessionID(opts.SessionID)
	h.SetTreeID(opts.TreeID)
	if opts.Related {
		h.SetFlag(wire.FLAGS_RELATED_OPERATIONS)
	}

	entry, err := c.pend.Register(firstID)
	if err != nil {
		c.alloc.Release(uint64(creditCharge))
		return nil, newErr(KindProtocolViolation, err)
	}

	wireBytes, err := c.wrapOutbound(body, opts)
	if err != nil {
		c.pend.Remove(firstID)
		c.alloc.Release(uint64(creditCharge))
		return nil, err
	}

	if err := c.be.EnqueueSend(ctx, wireBytes); err != nil {
		c.pend.Remove(firstID)
		c.alloc.Release(uint64(creditCharge))
		return nil, c.classifyIOErr(err)
	}

	return c.awaitReply(ctx, firstID, entry, creditCharge)
}

// SendMany compounds requests into a single wire frame linked by 8-byte
// aligned NextCommand fields, registering one pending entry per message.
// related marks every message after the first
// as sharing the first's file-id/session/tree per MS-SMB2 compounding
// rules.
func (c *Connection) SendMany(ctx context.Context, bodies [][]byte, opts SendOptions, related bool) ([][]byte, error) {
	if len(bodies) == 0 {
		return nil, nil
	}
	if c.State() == StateFailed || c.State() == StateClosed || c.State() == StateClosing {
		return nil, ErrDisconnected
	}

	ids := make([]uint64, len(bodies))
	entries := make([]*pending.Entry, len(bodies))
	charges := make([]uint16, len(bodies))

	for i, body := range bodies {
		charge := creditsFor(len(body), 0)
		id, ok := c.alloc.Reserve(uint64(charge))
		if !ok {
			for j := 0; j < i; j++ {
				c.pend.Remove(ids[j])
				c.alloc.Release(uint64(charges[j]))
			}
			return nil, ErrInsufficientCredits
		}
		ids[i] = id
		charges[i] = charge

		h := wire.Header(body)
		h.SetMessageID(id)
		h.SetCreditCharge(charge)
		if h.CreditRequest() == 0 {
			h.SetCreditRequest(charge)
		}
		h.SetSessionID(opts.SessionID)
		h.SetTreeID(opts.TreeID)
		if related && i > 0 {
			h.SetFlag(wire.FLAGS_RELATED_OPERATIONS)
		}

		entry, err := c.pend.Register(id)
		if err != nil {
			for j := 0; j <= i; j++ {
				c.pend.Remove(ids[j])
			}
			for j := 0; j <= i; j++ {
				c.alloc.Release(uint64(charges[j]))
			}
			return nil, newErr(KindProtocolViolation, err)
		}
		entries[i] = entry
	}

	chain := bodies[0]
	for i := 1; i < len(bodies); i++ {
		chain = wire.AppendCompound(chain, bodies[i])
	}

	wireBytes, err := c.wrapOutbound(chain, opts)
	if err != nil {
		for _, id := range ids {
			c.pend.Remove(id)
		}
		return nil, err
	}

	if err := c.be.EnqueueSend(ctx, wireBytes); err != nil {
		for _, id := range ids {
			c.pend.Remove(id)
		}
		return nil, c.classifyIOErr(err)
	}

	replies := make([][]byte, len(bodies))
	for i, id := range ids {
		reply, err := c.awaitReply(ctx, id, entries[i], charges[i])
		if err != nil {
			return nil, err
		}
		replies[i] = reply
	}
	return replies, nil
}

// Cancel emits SMB2_CANCEL for messageID's request and marks its pending
// entry so a late reply is discarded rather than delivered.
func (c *Connection) Cancel(ctx context.Context, messageID uint64, sessionID uint64, treeID uint32) error {
	entry, ok := c.pend.Lookup(messageID)
	if !ok {
		return nil
	}
	entry.MarkCancelled()

	req := wire.NewRequestHeader(wire.SMB2_CANCEL)
	h := wire.Header(req)
	h.SetMessageID(messageID)
	h.SetSessionID(sessionID)
	h.SetTreeID(treeID)
	if async, asyncID := entry.IsAsync(); async {
		h.SetFlag(wire.FLAGS_ASYNC_COMMAND)
		h.SetAsyncID(asyncID)
	}

	wireBytes, err := c.wrapOutbound(req, SendOptions{SessionID: sessionID, TreeID: treeID})
	if err != nil {
		return err
	}
	if err := c.be.EnqueueSend(ctx, wireBytes); err != nil {
		return c.classifyIOErr(err)
	}

	entry.Complete(nil, ErrCancelled)
	c.pend.Remove(messageID)
	return nil
}

// Close idempotently drains the pending table with Disconnected, stops
// the backend, and closes the transport. Calling Close more than once
// is a no-op after the first call.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.mu.Unlock()

	c.pend.FailAll(ErrDisconnected)
	c.sess.ExpireAll()
	c.be.Stop()
	err := c.conn.Close()

	c.setState(StateClosed)
	return err
}

// fail drains the pending table and moves the connection to StateFailed,
// unless a concurrent Close has already moved it past READY - a transport
// error racing against an intentional Close should never resurrect the
// connection into FAILED after Close already settled it into CLOSED.
func (c *Connection) fail(err error) error {
	c.pend.FailAll(ErrDisconnected)
	c.mu.Lock()
	if c.state != StateClosing && c.state != StateClosed {
		c.state = StateFailed
	}
	c.mu.Unlock()
	return err
}

// roundTrip sends a single unencrypted/unsigned message (used for the
// bootstrap NEGOTIATE and every SESSION_SETUP leg, before a
// cryptographic context exists) and waits for its reply inline. Like
// any other send it reserves one credit from the allocator and registers
// a pending entry for the reply.
func (c *Connection) roundTrip(ctx context.Context, body []byte, opts SendOptions) ([]byte, error) {
	id, ok := c.alloc.Reserve(1)
	if !ok {
		return nil, ErrInsufficientCredits
	}
	h := wire.Header(body)
	h.SetMessageID(id)
	h.SetCreditCharge(1)
	if h.CreditRequest() == 0 {
		h.SetCreditRequest(1)
	}
	h.SetSessionID(opts.SessionID)

	entry, err := c.pend.Register(id)
	if err != nil {
		c.alloc.Release(1)
		return nil, newErr(KindProtocolViolation, err)
	}

	wireBytes, err := c.wrapOutbound(body, opts)
	if err != nil {
		c.pend.Remove(id)
		c.alloc.Release(1)
		return nil, err
	}

	if err := c.be.EnqueueSend(ctx, wireBytes); err != nil {
		c.pend.Remove(id)
		c.alloc.Release(1)
		return nil, c.classifyIOErr(err)
	}

	return c.awaitReply(ctx, id, entry, 1)
}

// awaitReply waits for entry's completion. In single-threaded mode no
// background receive loop runs, so this goroutine pumps RecvNext itself,
// resolving whichever pending entries match along the way until its own
// reply arrives.
func (c *Connection) awaitReply(ctx context.Context, id uint64, entry *pending.Entry, credits uint16) ([]byte, error) {
	if c.opts.BackendKind == BackendSingle {
		for {
			if resp, err, done := entry.TryResult(); done {
				c.alloc.Release(uint64(credits))
				return resp, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			frameBytes, err := c.be.RecvNext(ctx)
			if err != nil {
				c.fail(c.classifyIOErr(err))
				// fail drains the pending table, completing this entry
				// (with ErrDisconnected) if nothing beat it to it - e.g.
				// Close() may have already resolved it before the
				// blocked read even returned.
				if resp, entryErr, done := entry.TryResult(); done {
					c.alloc.Release(uint64(credits))
					return resp, entryErr
				}
				return nil, c.classifyIOErr(err)
			}
			c.dispatch(frameBytes)
		}
	}

	resp, err := entry.Wait(ctx)
	c.alloc.Release(uint64(credits))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// recvLoop is the threaded/cooperative backends' dispatch goroutine: it
// pulls frames off the backend and resolves pending entries as they
// arrive, independent of any caller's Send/SendMany call.
func (c *Connection) recvLoop() {
	defer close(c.recvDone)
	ctx := context.Background()
	for {
		frameBytes, err := c.be.RecvNext(ctx)
		if err != nil {
			if err == backend.ErrClosed {
				return
			}
			c.fail(c.classifyIOErr(err))
			return
		}
		c.dispatch(frameBytes)
	}
}

// dispatch unwraps one inbound wire frame, splits it if compounded, and
// resolves the matching pending entry for each piece.
func (c *Connection) dispatch(wireBytes []byte) {
	plain, err := c.unwrapInbound(wireBytes)
	if err != nil {
		if ce, ok := err.(*ConnError); ok && isFatal(ce.Kind) {
			c.fail(err)
		}
		log.Printf("DEBUG: connection: dropping unparseable inbound frame: %v", err)
		return
	}

	for _, msg := range wire.SplitCompound(plain) {
		c.dispatchOne(msg)
	}
}

func (c *Connection) dispatchOne(msg []byte) {
	h := wire.Header(msg)
	id := h.MessageID()

	if h.IsFlagSet(wire.FLAGS_ASYNC_COMMAND) && h.Status() == wire.STATUS_PENDING {
		asyncID := h.AsyncID()
		c.alloc.Grant(uint64(h.CreditResponse()))
		if _, ok := c.pend.Lookup(id); ok {
			c.pend.NoteAsync(id, asyncID)
			return
		}
		if _, ok := c.pend.LookupAsync(asyncID); ok {
			return
		}
		log.Printf("DEBUG: connection: unmatched async-pending reply for message id %d", id)
		return
	}

	entry, ok := c.pend.Lookup(id)
	if !ok {
		if asyncID := h.AsyncID(); asyncID != 0 {
			entry, ok = c.pend.LookupAsync(asyncID)
		}
	}
	if !ok {
		log.Printf("DEBUG: connection: unmatched inbound reply for message id %d, status 0x%08x", id, h.Status())
		return
	}

	if entry.Cancelled() {
		c.pend.Remove(id)
		return
	}

	c.alloc.Grant(uint64(h.CreditResponse()))

	if status := h.Status(); status != wire.STATUS_OK && status != wire.STATUS_PENDING {
		entry.Complete(nil, newStatusErr(status))
	} else {
		entry.Complete(msg, nil)
	}
	c.pend.Remove(id)
}

func (c *Connection) wrapOutbound(plaintext []byte, opts SendOptions) ([]byte, error) {
	ctx := c.cryptoContextFor(opts.SessionID)
	wrapped, err := frame.Wrap(plaintext, ctx, frame.Options{
		Compression: c.compression,
		Encrypt:     opts.Encrypt && ctx != nil && ctx.CanSeal(),
		Sign:        (opts.Sign || c.opts.RequireSigning) && ctx != nil,
		SessionID:   opts.SessionID,
	})
	if err != nil {
		return nil, newErr(KindProtocolViolation, err)
	}
	return wrapped, nil
}

func (c *Connection) unwrapInbound(wireBytes []byte) ([]byte, error) {
	h := wire.Header(wireBytes)
	var sessionID uint64
	if h.ProtocolID() == wire.ProtocolSMB2Encrypted {
		sessionID = h.TransformSessionID()
		if err := c.checkReplay(sessionID, h.Nonce()); err != nil {
			return nil, err
		}
	}

	ctx := c.cryptoContextFor(sessionID)
	plain, err := frame.Unwrap(wireBytes, ctx)
	if err != nil {
		return nil, newErr(KindSecurityViolation, err)
	}
	return plain, nil
}

// checkReplay rejects a TRANSFORM frame whose nonce is not strictly
// greater than the highest one previously accepted for sessionID.
func (c *Connection) checkReplay(sessionID uint64, nonce []byte) error {
	var seq uint64
	for i := 0; i < 8 && i < len(nonce); i++ {
		seq |= uint64(nonce[i]) << (8 * i)
	}

	c.replayMu.Lock()
	defer c.replayMu.Unlock()
	if last, ok := c.lastNonce[sessionID]; ok && seq <= last {
		return newErr(KindSecurityViolation, fmt.Errorf("connection: replayed nonce on session %d", sessionID))
	}
	c.lastNonce[sessionID] = seq
	return nil
}

func (c *Connection) cryptoContextFor(sessionID uint64) *crypto.Context {
	ref, ok := c.sess.Lookup(sessionID)
	if !ok {
		return nil
	}
	return ref.CryptoContext()
}

func (c *Connection) classifyIOErr(err error) error {
	if err == backend.ErrClosed {
		return ErrDisconnected
	}
	return newErr(KindTransportIO, err)
}

// extendPreauth folds msg into the running SHA-512 preauth integrity
// hash per MS-SMB2 3.1.1: hash' = SHA-512(hash || msg), seeded with 64
// zero bytes before the first NEGOTIATE request.
func (c *Connection) extendPreauth(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preauthHash == nil {
		c.preauthHash = make([]byte, 64)
	}
	h := sha512.Sum512(append(append([]byte{}, c.preauthHash...), msg...))
	c.preauthHash = h[:]
}

// creditsFor computes CreditCharge as 1 credit per 64KiB of
// max(payload_in, payload_out), minimum 1.
func creditsFor(payloadIn, payloadOut int) uint16 {
	maxLen := payloadIn
	if payloadOut > maxLen {
		maxLen = payloadOut
	}
	charge := (maxLen + 65535) / 65536
	if charge < 1 {
		charge = 1
	}
	return uint16(charge)
}

func preferredCiphers(cs []uint16) []uint16 {
	if len(cs) > 0 {
		return cs
	}
	return []uint16{wire.AES_128_GCM, wire.AES_128_CCM, wire.AES_256_GCM, wire.AES_256_CCM}
}

func compressionFlags(chained bool) uint32 {
	if chained {
		return wire.COMPRESSION_CAPABILITIES_FLAG_CHAINED
	}
	return wire.COMPRESSION_CAPABILITIES_FLAG_NONE
}

var randRead = rand.Read
