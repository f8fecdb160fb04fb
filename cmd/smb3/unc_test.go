package main

import "testing"

func TestParseUNC(t *testing.T) {
	cases := []struct {
		in                  string
		server, share, path string
		wantErr             bool
	}{
		{in: `\\fileserver\public\docs\report.txt`, server: "fileserver", share: "public", path: "docs/report.txt"},
		{in: `//fileserver/public`, server: "fileserver", share: "public", path: ""},
		{in: `not-a-unc-path`, wantErr: true},
		{in: `\\fileserver`, wantErr: true},
	}

	for _, c := range cases {
		got, err := parseUNC(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseUNC(%q): expected error, got %+v", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUNC(%q): %v", c.in, err)
			continue
		}
		if got.Server != c.server || got.Share != c.share || got.Path != c.path {
			t.Errorf("parseUNC(%q) = %+v, want {%q %q %q}", c.in, got, c.server, c.share, c.path)
		}
	}
}

func TestShareUNC(t *testing.T) {
	u := uncPath{Server: "fileserver", Share: "public"}
	if got := u.shareUNC(); got != `\\fileserver\public` {
		t.Errorf("shareUNC() = %q, want %q", got, `\\fileserver\public`)
	}
}

func TestIsUNC(t *testing.T) {
	if !isUNC(`\\server\share`) || !isUNC("//server/share") {
		t.Error("expected both backslash and forward-slash UNC forms to be recognized")
	}
	if isUNC("/local/path") || isUNC("local/path") {
		t.Error("plain paths must not be treated as UNC")
	}
}
