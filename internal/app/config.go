package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raysh454/coigate/internal/server"
	"github.com/raysh454/coigate/internal/webclient"
)

// Config is the runtime configuration shared by every component.
type Config struct {
	ServerCfg server.Config

	// ProxyAddr is where the isolation proxy listens. Empty disables it.
	ProxyAddr string

	// Upstream is the origin the proxy serves, e.g. https://user.github.io.
	Upstream string

	// DataDir holds records.db; uploads go to UploadDir.
	DataDir   string
	UploadDir string

	// WebClient configuration for upstream fetches.
	WebClientCfg webclient.Config

	// LogFormat is "json" (default) or "zap".
	LogFormat string

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config populated with development defaults.
func DefaultConfig() *Config {
	return &Config{
		ServerCfg: server.Config{
			ListenAddr:       ":10000",
			AllowOrigins:     []string{"*"},
			MaxContentLength: 10 << 20,
		},
		ProxyAddr: "",
		DataDir:   "/tmp/data",
		WebClientCfg: webclient.Config{
			Client:  webclient.ClientNetHTTP,
			Timeout: 30 * time.Second,
		},
		LogFormat:       "json",
		ShutdownTimeout: 15 * time.Second,
	}
}

// LoadEnv overlays environment variables on cfg. lookup is os.LookupEnv in
// production and a map in tests.
func (cfg *Config) LoadEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		return strings.TrimSpace(v), ok
	}

	if v, ok := get("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.ServerCfg.ListenAddr = ":" + v
	}
	if v, ok := get("PROXY_PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PROXY_PORT: %w", err)
		}
		cfg.ProxyAddr = ":" + v
	}
	if v, ok := get("UPSTREAM_URL"); ok {
		cfg.Upstream = v
	}
	if v, ok := get("AUTH_TOKEN"); ok {
		cfg.ServerCfg.AuthToken = v
	}
	if v, ok := get("ALLOW_ORIGINS"); ok {
		cfg.ServerCfg.AllowOrigins = ParseOrigins(v)
	}
	if v, ok := get("DATA_DIR"); ok && v != "" {
		cfg.DataDir = v
	}
	if v, ok := get("UPLOAD_DIR"); ok && v != "" {
		cfg.UploadDir = v
	}
	if v, ok := get("MAX_CONTENT_LENGTH_MB"); ok && v != "" {
		mb, err := strconv.Atoi(v)
		if err != nil || mb <= 0 {
			return fmt.Errorf("MAX_CONTENT_LENGTH_MB: invalid value %q", v)
		}
		cfg.ServerCfg.MaxContentLength = int64(mb) << 20
	}
	if v, ok := get("FORCE_HTTPS"); ok {
		cfg.ServerCfg.ForceHTTPS = v == "1"
	}
	if v, ok := get("LOG_FORMAT"); ok && v != "" {
		cfg.LogFormat = v
	}
	if v, ok := get("FETCH_TIMEOUT_SECONDS"); ok && v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return fmt.Errorf("FETCH_TIMEOUT_SECONDS: invalid value %q", v)
		}
		cfg.WebClientCfg.Timeout = time.Duration(secs) * time.Second
	}
	return nil
}

// Resolve fills derived fields. UploadDir defaults to DataDir/uploads.
func (cfg *Config) Resolve() error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(cfg.DataDir, "uploads")
	}
	if cfg.ProxyAddr != "" && cfg.Upstream == "" {
		return fmt.Errorf("proxy enabled on %s but no upstream configured", cfg.ProxyAddr)
	}
	return nil
}

// ParseOrigins turns "*" or "" into a wildcard and anything else into a
// trimmed comma-separated list.
func ParseOrigins(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" || v == "*" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
