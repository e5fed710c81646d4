package cli

import (
	"errors"
	"testing"
)

func TestParseArgs_DefaultsToServe(t *testing.T) {
	t.Parallel()
	a, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if a.Command != CommandServe || a.Serve == nil || a.Check != nil {
		t.Errorf("unexpected args %+v", a)
	}
}

func TestParseArgs_ServeFlags(t *testing.T) {
	t.Parallel()
	a, err := ParseArgs([]string{"-addr", ":9000", "-proxy-addr", ":9443", "-upstream", "https://x.example", "-data-dir", "/d", "-log-format", "zap"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	s := a.Serve
	if s.Addr != ":9000" || s.ProxyAddr != ":9443" || s.Upstream != "https://x.example" || s.DataDir != "/d" || s.LogFormat != "zap" {
		t.Errorf("unexpected serve args %+v", s)
	}

	if _, err := ParseArgs([]string{"serve", "extra"}); err == nil {
		t.Error("expected error for positional argument")
	}
}

func TestParseArgs_Check(t *testing.T) {
	t.Parallel()
	a, err := ParseArgs([]string{"check", "-url", "https://x.example", "-via", "http://localhost:8443", "-browser", "-json"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	c := a.Check
	if c == nil || c.URL != "https://x.example" || c.Via != "http://localhost:8443" || !c.Browser || !c.JSON {
		t.Errorf("unexpected check args %+v", c)
	}

	if _, err := ParseArgs([]string{"check"}); err == nil {
		t.Error("expected error when -url is missing")
	}
}

func TestParseArgs_UnknownCommand(t *testing.T) {
	t.Parallel()
	_, err := ParseArgs([]string{"crawl"})
	if !errors.Is(err, ErrUsage) {
		t.Errorf("expected ErrUsage, got %v", err)
	}
}

func TestParseArgs_BadFlag(t *testing.T) {
	t.Parallel()
	if _, err := ParseArgs([]string{"serve", "-nope"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}
