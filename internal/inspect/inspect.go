// Package inspect checks whether a page ends up cross-origin isolated, either
// through response headers or through a registered isolation worker.
package inspect

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/webclient"
	"github.com/raysh454/coigate/internal/worker"
)

// Report is the outcome of one check.
type Report struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	COOP       string `json:"coop"`
	COEP       string `json:"coep"`

	// HeaderIsolated is true when the response headers alone isolate the page.
	HeaderIsolated bool `json:"header_isolated"`

	// WorkerScripts are the <script> elements that register a service worker.
	WorkerScripts   []string `json:"worker_scripts,omitempty"`
	RegistersWorker bool     `json:"registers_worker"`

	// HeaderDiff compares the direct response with the proxied one.
	ProxiedURL string `json:"proxied_url,omitempty"`
	HeaderDiff string `json:"header_diff,omitempty"`

	// BrowserIsolated is what the browser reported, nil when not probed.
	BrowserIsolated *bool `json:"browser_isolated,omitempty"`
}

// Prober is satisfied by *webclient.ChromedpClient.
type Prober interface {
	Probe(ctx context.Context, url string) (*webclient.Probe, error)
}

// Checker runs checks with an HTTP client and, optionally, a browser.
type Checker struct {
	client  webclient.WebClient
	browser Prober
	logger  logging.Logger
}

// NewChecker returns a Checker. browser may be nil.
func NewChecker(client webclient.WebClient, browser Prober, logger logging.Logger) *Checker {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Checker{client: client, browser: browser, logger: logger.With(logging.Field{Key: "component", Value: "inspect"})}
}

// Options tune a check.
type Options struct {
	// ProxiedURL, when set, is fetched too and its headers diffed against URL's.
	ProxiedURL string
}

// Check fetches url and reports on its isolation.
func (c *Checker) Check(ctx context.Context, url string, opts Options) (*Report, error) {
	resp, err := c.client.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}

	rep := &Report{
		URL:        url,
		StatusCode: resp.StatusCode,
		COOP:       resp.Headers.Get(worker.HeaderCOOP),
		COEP:       resp.Headers.Get(worker.HeaderCOEP),
	}
	rep.HeaderIsolated = IsolatedBy(resp.Headers)

	if isHTML(resp.Headers) {
		scripts, err := WorkerScripts(resp.Body)
		if err != nil {
			c.logger.Warn("parsing html", logging.Field{Key: "url", Value: url}, logging.Field{Key: "error", Value: err.Error()})
		}
		rep.WorkerScripts = scripts
		rep.RegistersWorker = len(scripts) > 0
	}

	if opts.ProxiedURL != "" {
		proxied, err := c.client.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: opts.ProxiedURL})
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", opts.ProxiedURL, err)
		}
		rep.ProxiedURL = opts.ProxiedURL
		rep.HeaderDiff = DiffHeaders(resp.Headers, proxied.Headers)
	}

	if c.browser != nil {
		target := url
		if opts.ProxiedURL != "" {
			target = opts.ProxiedURL
		}
		probe, err := c.browser.Probe(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("browser probe: %w", err)
		}
		isolated := probe.CrossOriginIsolated
		rep.BrowserIsolated = &isolated
	}

	c.logger.Info("checked",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "header_isolated", Value: rep.HeaderIsolated},
		logging.Field{Key: "registers_worker", Value: rep.RegistersWorker})
	return rep, nil
}

// IsolatedBy reports whether h carries a COOP/COEP pair that isolates a page.
func IsolatedBy(h http.Header) bool {
	coop := strings.ToLower(strings.TrimSpace(h.Get(worker.HeaderCOOP)))
	coep := strings.ToLower(strings.TrimSpace(h.Get(worker.HeaderCOEP)))
	coop, _, _ = strings.Cut(coop, ";")
	coep, _, _ = strings.Cut(coep, ";")
	return strings.TrimSpace(coop) == worker.ValueCOOP &&
		(strings.TrimSpace(coep) == worker.ValueCOEP || strings.TrimSpace(coep) == "credentialless")
}

func isHTML(h http.Header) bool {
	ct := h.Get("Content-Type")
	return ct == "" || strings.Contains(strings.ToLower(ct), "html")
}

// WorkerScripts returns the scripts in an HTML document that register a
// service worker: external scripts named like coi-serviceworker and inline
// scripts calling navigator.serviceWorker.register.
func WorkerScripts(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []string
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			if strings.Contains(strings.ToLower(src), "coi-serviceworker") {
				out = append(out, src)
			}
			return
		}
		if strings.Contains(sel.Text(), "serviceWorker.register") {
			out = append(out, "inline")
		}
	})
	return out, nil
}

// DiffHeaders renders a line diff of two header sets: "-" lines only in a,
// "+" lines only in b. Identical sets produce "".
func DiffHeaders(a, b http.Header) string {
	ta, tb := headerText(a), headerText(b)
	if ta == tb {
		return ""
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(ta, tb)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
		}
	}
	return sb.String()
}

// headerText is one "Name: value" line per value, sorted, skipping headers
// that differ on every response.
func headerText(h http.Header) string {
	var lines []string
	for k, vs := range h {
		switch http.CanonicalHeaderKey(k) {
		case "Date", "Age", "Content-Length":
			continue
		}
		for _, v := range vs {
			lines = append(lines, http.CanonicalHeaderKey(k)+": "+v+"\n")
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "")
}
