package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	CommandServe = "serve"
	CommandCheck = "check"
)

// ServeArgs override configuration loaded from the environment. Empty
// values leave the environment's choice alone.
type ServeArgs struct {
	Addr      string
	ProxyAddr string
	Upstream  string
	DataDir   string
	LogFormat string
}

// CheckArgs configure a one-off isolation check.
type CheckArgs struct {
	URL     string
	Via     string
	Browser bool
	JSON    bool
}

// CLIArgs is the parsed command line. Exactly one of Serve and Check is set.
type CLIArgs struct {
	Command string
	Serve   *ServeArgs
	Check   *CheckArgs

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

var ErrUsage = errors.New("usage: coigate <serve|check> [flags]")

// ParseArgs parses args without the program name. It does not read os.Args.
// A missing subcommand means serve.
func ParseArgs(args []string) (*CLIArgs, error) {
	cmd := CommandServe
	rest := args
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, rest = args[0], args[1:]
	}

	out := &CLIArgs{Command: cmd, RawArgs: args}
	switch cmd {
	case CommandServe:
		s, err := parseServe(rest)
		if err != nil {
			return nil, err
		}
		out.Serve = s
	case CommandCheck:
		c, err := parseCheck(rest)
		if err != nil {
			return nil, err
		}
		out.Check = c
	default:
		return nil, fmt.Errorf("unknown command %q: %w", cmd, ErrUsage)
	}
	return out, nil
}

func parseServe(args []string) (*ServeArgs, error) {
	fs := flag.NewFlagSet("coigate serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var s ServeArgs
	fs.StringVar(&s.Addr, "addr", "", "API listen address (overrides PORT)")
	fs.StringVar(&s.ProxyAddr, "proxy-addr", "", "Isolation proxy listen address (overrides PROXY_PORT)")
	fs.StringVar(&s.Upstream, "upstream", "", "Origin served through the proxy (overrides UPSTREAM_URL)")
	fs.StringVar(&s.DataDir, "data-dir", "", "Directory for records.db and uploads (overrides DATA_DIR)")
	fs.StringVar(&s.LogFormat, "log-format", "", "json|zap (overrides LOG_FORMAT)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments %v", fs.Args())
	}
	return &s, nil
}

func parseCheck(args []string) (*CheckArgs, error) {
	fs := flag.NewFlagSet("coigate check", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var c CheckArgs
	fs.StringVar(&c.URL, "url", "", "Page to check (required)")
	fs.StringVar(&c.Via, "via", "", "Same page served through the proxy, diffed against -url")
	fs.BoolVar(&c.Browser, "browser", false, "Also load the page in headless Chrome and read crossOriginIsolated")
	fs.BoolVar(&c.JSON, "json", false, "Print the report as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.URL) == "" {
		return nil, fmt.Errorf("missing required -url argument")
	}
	return &c, nil
}
