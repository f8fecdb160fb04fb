package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smbgo/smb3/connection"
)

type fakeConn struct {
	snap connection.Snapshot
}

func (f fakeConn) Snapshot() connection.Snapshot { return f.snap }

func TestRegistryRegisterUnregister(t *testing.T) {
	reg := NewRegistry()
	reg.Register("srv1", fakeConn{snap: connection.Snapshot{State: "ready", Dialect: 0x0311}})
	snaps := reg.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("expected 1 tracked connection, got %d", len(snaps))
	}
	if snaps["srv1"].State != "ready" {
		t.Errorf("state = %q, want ready", snaps["srv1"].State)
	}

	reg.Unregister("srv1")
	if len(reg.Snapshot()) != 0 {
		t.Errorf("expected empty registry after unregister")
	}
}

func TestHandleListServesAllConnections(t *testing.T) {
	reg := NewRegistry()
	reg.Register("srv1", fakeConn{snap: connection.Snapshot{State: "ready", PendingCount: 2}})
	reg.Register("srv2", fakeConn{snap: connection.Snapshot{State: "negotiating"}})

	m := New(reg)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/connections", nil)
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]connection.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("expected 2 connections in response, got %d", len(body))
	}
	if body["srv1"].PendingCount != 2 {
		t.Errorf("srv1 pending count = %d, want 2", body["srv1"].PendingCount)
	}
}

func TestHandleOneNotFound(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/connections/missing", nil)
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestHandleOneFound(t *testing.T) {
	reg := NewRegistry()
	reg.Register("srv1", fakeConn{snap: connection.Snapshot{State: "ready", GrantedCredits: 10, ReservedCredits: 3}})
	m := New(reg)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/connections/srv1", nil)
	m.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var snap connection.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if snap.GrantedCredits != 10 || snap.ReservedCredits != 3 {
		t.Errorf("snapshot = %+v, want granted=10 reserved=3", snap)
	}
}

func TestBasicAuthRejectsWrongPassword(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := BasicAuth("secret")(inner)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/connections", nil)
	req.SetBasicAuth("user", "wrong")
	protected.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestBasicAuthAcceptsCorrectPassword(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := BasicAuth("secret")(inner)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/connections", nil)
	req.SetBasicAuth("user", "secret")
	protected.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
