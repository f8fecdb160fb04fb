package backend

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestSingleBackendRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	b := NewSingleBackend()
	b.Start(client)
	defer b.Stop()

	go func() {
		f := lengthPrefixFramer{server}
		msg, err := f.ReadFrame()
		if err != nil {
			return
		}
		f.WriteFrame(append([]byte("echo:"), msg...))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := b.EnqueueSend(ctx, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := b.RecvNext(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("echo:hello")) {
		t.Errorf("RecvNext = %q, want %q", got, "echo:hello")
	}
}

func TestSingleBackendStopRejectsFurtherCalls(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	b := NewSingleBackend()
	b.Start(client)
	b.Stop()

	ctx := context.Background()
	if err := b.EnqueueSend(ctx, []byte("x")); err != ErrClosed {
		t.Errorf("EnqueueSend after Stop = %v, want ErrClosed", err)
	}
	if _, err := b.RecvNext(ctx); err != ErrClosed {
		t.Errorf("RecvNext after Stop = %v, want ErrClosed", err)
	}
}

func TestThreadedBackendConcurrentSendsAndReceives(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	b := NewThreadedBackend(4)
	b.Start(client)
	defer b.Stop()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		f := lengthPrefixFramer{server}
		for i := 0; i < 3; i++ {
			msg, err := f.ReadFrame()
			if err != nil {
				return
			}
			if err := f.WriteFrame(msg); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := b.EnqueueSend(ctx, []byte("msg")); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		got, err := b.RecvNext(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte("msg")) {
			t.Errorf("RecvNext = %q, want %q", got, "msg")
		}
	}

	<-serverDone
}

func TestCooperativeBackendBoundsConcurrency(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	b := NewCooperativeBackend(2)
	b.Start(client)
	defer b.Stop()

	go func() {
		f := lengthPrefixFramer{server}
		for i := 0; i < 2; i++ {
			if _, err := f.ReadFrame(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errCh <- b.EnqueueSend(ctx, []byte("load"))
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Error(err)
		}
	}
}

// TestCooperativeBackendDoesNotInterleaveWrites drives more concurrent
// senders than maxConcurrentSends admits, each with a distinct,
// repeated-byte payload. If EnqueueSend ever let two WriteFrame calls
// race on the wire, the length-prefix framing on the read side would
// desync and either fail to parse or hand back a frame whose bytes
// are a mix of two payloads; this test checks every received frame is
// byte-for-byte one of the payloads sent.
func TestCooperativeBackendDoesNotInterleaveWrites(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	const senders = 8
	b := NewCooperativeBackend(4)
	b.Start(client)
	defer b.Stop()

	payloads := make([][]byte, senders)
	want := make(map[string]int, senders)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('A' + i)}, 4096)
		want[string(payloads[i])]++
	}

	recvErrCh := make(chan error, 1)
	go func() {
		f := lengthPrefixFramer{server}
		for i := 0; i < senders; i++ {
			msg, err := f.ReadFrame()
			if err != nil {
				recvErrCh <- err
				return
			}
			key := string(msg)
			if want[key] == 0 {
				recvErrCh <- fmt.Errorf("received frame not matching any sent payload (len %d, first byte %q)", len(msg), msg[0])
				return
			}
			want[key]--
		}
		recvErrCh <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, senders)
	for i := 0; i < senders; i++ {
		go func(payload []byte) {
			errCh <- b.EnqueueSend(ctx, payload)
		}(payloads[i])
	}
	for i := 0; i < senders; i++ {
		if err := <-errCh; err != nil {
			t.Error(err)
		}
	}

	if err := <-recvErrCh; err != nil {
		t.Fatal(err)
	}
	for key, remaining := range want {
		if remaining != 0 {
			t.Errorf("payload starting %q: %d copies never arrived intact", key[0], remaining)
		}
	}
}
