package pending

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTableRegisterLookupComplete(t *testing.T) {
	table := NewTable()

	e, err := table.Register(5)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := table.Lookup(5)
	if !ok || got != e {
		t.Fatal("Lookup did not return the registered entry")
	}

	e.Complete([]byte("response"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := e.Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "response" {
		t.Errorf("Wait = %q, want %q", resp, "response")
	}
}

func TestTableRegisterDuplicateFails(t *testing.T) {
	table := NewTable()
	if _, err := table.Register(1); err != nil {
		t.Fatal(err)
	}
	if _, err := table.Register(1); err == nil {
		t.Error("expected error registering a duplicate message id")
	}
}

func TestTableAsyncAliasing(t *testing.T) {
	table := NewTable()
	e, err := table.Register(10)
	if err != nil {
		t.Fatal(err)
	}

	table.NoteAsync(10, 999)

	got, ok := table.LookupAsync(999)
	if !ok || got != e {
		t.Fatal("LookupAsync did not resolve to the registered entry")
	}
	if async, asyncID := e.IsAsync(); !async || asyncID != 999 {
		t.Errorf("IsAsync = (%v, %d), want (true, 999)", async, asyncID)
	}

	e.Complete(nil, nil)
	table.Remove(10)

	if _, ok := table.LookupAsync(999); ok {
		t.Error("async alias was not removed alongside the entry")
	}
}

func TestTableFailAllWakesWaiters(t *testing.T) {
	table := NewTable()
	e, err := table.Register(1)
	if err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("connection closed")
	done := make(chan error, 1)
	go func() {
		_, err := e.Wait(context.Background())
		done <- err
	}()

	table.FailAll(wantErr)

	select {
	case got := <-done:
		if got != wantErr {
			t.Errorf("Wait error = %v, want %v", got, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not wake up after FailAll")
	}

	if table.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after FailAll", table.Len())
	}
}

func TestEntryWaitContextCancelled(t *testing.T) {
	e := newEntry(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Wait(ctx); err == nil {
		t.Error("expected Wait to return an error for a cancelled context")
	}
}

func TestAllocatorReserveAndRelease(t *testing.T) {
	a := NewAllocator(2)

	if id, ok := a.Reserve(1); !ok || id != 0 {
		t.Fatalf("Reserve(1) = (%d, %v), want (0, true)", id, ok)
	}
	if id, ok := a.Reserve(1); !ok || id != 1 {
		t.Fatalf("Reserve(1) = (%d, %v), want (1, true)", id, ok)
	}
	if _, ok := a.Reserve(1); ok {
		t.Error("Reserve succeeded with no credits remaining")
	}

	a.Release(1)
	if a.Available() != 1 {
		t.Errorf("Available() = %d, want 1", a.Available())
	}

	if id, ok := a.Reserve(1); !ok || id != 2 {
		t.Fatalf("Reserve(1) = (%d, %v), want (2, true)", id, ok)
	}
}

func TestAllocatorReserveMultiCredit(t *testing.T) {
	a := NewAllocator(8)
	id, ok := a.Reserve(3)
	if !ok || id != 0 {
		t.Fatalf("Reserve(3) = (%d, %v), want (0, true)", id, ok)
	}
	if a.Available() != 5 {
		t.Errorf("Available() = %d, want 5", a.Available())
	}
	nextID, ok := a.Reserve(1)
	if !ok || nextID != 3 {
		t.Fatalf("Reserve(1) = (%d, %v), want (3, true)", nextID, ok)
	}
}

func TestAllocatorGrant(t *testing.T) {
	a := NewAllocator(1)
	if _, ok := a.Reserve(1); !ok {
		t.Fatal("expected initial reservation to succeed")
	}
	if _, ok := a.Reserve(1); ok {
		t.Fatal("expected reservation to fail before Grant")
	}
	a.Grant(2)
	if a.Available() != 2 {
		t.Errorf("Available() = %d, want 2", a.Available())
	}
}
