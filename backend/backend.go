// Package backend provides the worker backend that drives a
// connection's wire I/O under one of three concurrency regimes:
// single-threaded (everything on the caller's goroutine), threaded (a
// dedicated send and a dedicated receive goroutine, communicating over
// channels), and cooperative (sends on the callers' own goroutines, a
// bounded number admitted at once by a semaphore and written one at a
// time, plus one receive goroutine).
package backend

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by EnqueueSend/RecvNext once the backend has
// been stopped.
var ErrClosed = errors.New("backend: closed")

// Backend drives the wire-level send/receive loop for a connection. The
// connection package is the only intended caller; a Backend owns no
// SMB2 semantics, only the concurrency regime used to move frames
// across the transport.
type Backend interface {
	// Start begins driving I/O against rw. It must be called exactly
	// once, before any EnqueueSend/RecvNext call. rw is typed any
	// rather than io.ReadWriter because transport.Conn (the real
	// caller) speaks whole-frame ReadFrame/WriteFrame directly rather
	// than io.Reader/io.Writer, while tests pass a plain net.Conn that
	// needs the length-prefix wrapper; asFramer sorts out which.
	Start(rw any)

	// EnqueueSend writes frame to the transport (or queues it to be
	// written), returning once it is safe to reuse frame's backing
	// array.
	EnqueueSend(ctx context.Context, frame []byte) error

	// RecvNext returns the next frame read off the transport. Frames
	// are delivered in the order they are read; demultiplexing by
	// message id is the connection package's job.
	RecvNext(ctx context.Context) ([]byte, error)

	// Stop halts I/O and releases resources. Pending EnqueueSend/
	// RecvNext calls return ErrClosed.
	Stop()
}

// frameReader is the minimal shape the backends need to read one
// length-delimited frame at a time; the transport package's
// connections and streams all satisfy it via their Read method plus a
// framing adapter, so backends stay transport-agnostic.
type frameReader interface {
	ReadFrame() ([]byte, error)
}

// frameWriter mirrors frameReader for the write direction.
type frameWriter interface {
	WriteFrame([]byte) error
}

// framer is what Start actually requires: a read/write pair able to
// move whole SMB2 messages. The transport package's Conn implements
// this directly; a plain io.ReadWriter is wrapped in the same 4-byte
// length-prefixed framing transport.Conn uses, so callers can pass
// either.
type framer interface {
	frameReader
	frameWriter
}

// asFramer returns rw as a framer, wrapping it if it doesn't already
// implement one (e.g. transport.Conn, which does).
func asFramer(rw any) framer {
	if f, ok := rw.(framer); ok {
		return f
	}
	if prw, ok := rw.(io.ReadWriter); ok {
		return lengthPrefixFramer{prw}
	}
	panic(fmt.Sprintf("backend: Start called with %T, which implements neither ReadFrame/WriteFrame nor io.ReadWriter", rw))
}

// lengthPrefixFramer mirrors transport.Conn's wire framing for
// io.ReadWriter values that don't already speak it natively (tests
// using an in-memory pipe, primarily).
type lengthPrefixFramer struct {
	rw io.ReadWriter
}

func (f lengthPrefixFramer) ReadFrame() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(f.rw, header); err != nil {
		return nil, fmt.Errorf("backend: read header: %w", err)
	}
	if header[0] != 0 {
		return nil, errors.New("backend: first length byte must be zero")
	}
	length := binary.BigEndian.Uint32(header)
	msg := make([]byte, length)
	if _, err := io.ReadFull(f.rw, msg); err != nil {
		return nil, fmt.Errorf("backend: read message: %w", err)
	}
	return msg, nil
}

func (f lengthPrefixFramer) WriteFrame(msg []byte) error {
	out := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(out[:4], uint32(len(msg)))
	copy(out[4:], msg)
	_, err := f.rw.Write(out)
	if err != nil {
		return fmt.Errorf("backend: write message: %w", err)
	}
	return nil
}

// SingleBackend runs sends and receives synchronously on whichever
// goroutine calls EnqueueSend/RecvNext. It is the right choice for a
// CLI issuing one request at a time, and the cheapest to reason about.
type SingleBackend struct {
	mu     sync.Mutex
	recvMu sync.Mutex // serializes RecvNext without holding mu across the blocking read
	f      framer
	closed bool
}

// NewSingleBackend returns an unstarted single-threaded backend.
func NewSingleBackend() *SingleBackend {
	return &SingleBackend{}
}

func (b *SingleBackend) Start(rw any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.f = asFramer(rw)
}

func (b *SingleBackend) EnqueueSend(ctx context.Context, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.f.WriteFrame(frame)
}

func (b *SingleBackend) RecvNext(ctx context.Context) ([]byte, error) {
	b.recvMu.Lock()
	defer b.recvMu.Unlock()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	f := b.f
	b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.ReadFrame()
}

func (b *SingleBackend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// ThreadedBackend runs one dedicated send goroutine and one dedicated
// receive goroutine, communicating with callers over channels. This is
// the concurrency regime a connection with multiple outstanding
// requests (credits > 1, async operations, oplock/lease breaks arriving
// mid-flight) needs: the receive goroutine must keep draining the
// transport even while several callers are blocked waiting on replies.
type ThreadedBackend struct {
	sendCh  chan sendJob
	recvCh  chan recvResult
	closeCh chan struct{}
	once    sync.Once
}

type sendJob struct {
	frame []byte
	errCh chan error
}

type recvResult struct {
	frame []byte
	err   error
}

// NewThreadedBackend returns an unstarted threaded backend. sendQueue
// sets how many outbound frames may be buffered before EnqueueSend
// blocks; 0 means unbuffered (every send synchronizes with the writer
// goroutine).
func NewThreadedBackend(sendQueue int) *ThreadedBackend {
	return &ThreadedBackend{
		sendCh:  make(chan sendJob, sendQueue),
		recvCh:  make(chan recvResult),
		closeCh: make(chan struct{}),
	}
}

func (b *ThreadedBackend) Start(rw any) {
	f := asFramer(rw)
	go b.sendLoop(f)
	go b.recvLoop(f)
}

func (b *ThreadedBackend) sendLoop(f framer) {
	for {
		select {
		case job := <-b.sendCh:
			job.errCh <- f.WriteFrame(job.frame)
		case <-b.closeCh:
			return
		}
	}
}

func (b *ThreadedBackend) recvLoop(f framer) {
	for {
		frame, err := f.ReadFrame()
		select {
		case b.recvCh <- recvResult{frame: frame, err: err}:
			if err != nil {
				return
			}
		case <-b.closeCh:
			return
		}
	}
}

func (b *ThreadedBackend) EnqueueSend(ctx context.Context, frame []byte) error {
	job := sendJob{frame: frame, errCh: make(chan error, 1)}
	select {
	case b.sendCh <- job:
	case <-b.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.errCh:
		return err
	case <-b.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ThreadedBackend) RecvNext(ctx context.Context) ([]byte, error) {
	select {
	case r := <-b.recvCh:
		return r.frame, r.err
	case <-b.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *ThreadedBackend) Stop() {
	b.once.Do(func() { close(b.closeCh) })
}

// CooperativeBackend bounds the number of concurrently in-flight sends
// with a weighted semaphore, suited to a connection that wants bounded
// parallelism (e.g. a copy tool pipelining many READ/WRITE requests)
// without the unbounded goroutine-per-call growth a naive fan-out would
// produce. Receives are still serialized through a single goroutine,
// matching MS-SMB2's single ordered byte stream per connection.
type CooperativeBackend struct {
	sem     *semaphore.Weighted
	f       framer
	writeMu sync.Mutex
	recvCh  chan recvResult
	closeCh chan struct{}
	once    sync.Once
}

// NewCooperativeBackend returns an unstarted backend that admits at
// most maxConcurrentSends writers at a time.
func NewCooperativeBackend(maxConcurrentSends int64) *CooperativeBackend {
	if maxConcurrentSends <= 0 {
		maxConcurrentSends = 1
	}
	return &CooperativeBackend{
		sem:     semaphore.NewWeighted(maxConcurrentSends),
		recvCh:  make(chan recvResult),
		closeCh: make(chan struct{}),
	}
}

func (b *CooperativeBackend) Start(rw any) {
	b.f = asFramer(rw)
	go b.recvLoop()
}

func (b *CooperativeBackend) recvLoop() {
	for {
		frame, err := b.f.ReadFrame()
		select {
		case b.recvCh <- recvResult{frame: frame, err: err}:
			if err != nil {
				return
			}
		case <-b.closeCh:
			return
		}
	}
}

func (b *CooperativeBackend) EnqueueSend(ctx context.Context, frame []byte) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	select {
	case <-b.closeCh:
		return ErrClosed
	default:
	}

	// The semaphore only bounds how many callers are admitted at once;
	// the transport itself still takes one frame at a time, so the
	// actual write is serialized behind writeMu regardless of
	// maxConcurrentSends.
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.f.WriteFrame(frame)
}

func (b *CooperativeBackend) RecvNext(ctx context.Context) ([]byte, error) {
	select {
	case r := <-b.recvCh:
		return r.frame, r.err
	case <-b.closeCh:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *CooperativeBackend) Stop() {
	b.once.Do(func() { close(b.closeCh) })
}
