package webclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/raysh454/coigate/internal/logging"
	"github.com/raysh454/coigate/internal/worker"
)

// NetHTTPClient is the net/http backed WebClient. It also implements
// worker.Fetcher, streaming bodies instead of buffering them.
type NetHTTPClient struct {
	client *http.Client

	// passthrough shares client's transport but never follows redirects and
	// has no overall deadline; only the wait for headers is bounded.
	passthrough   *http.Client
	headerTimeout time.Duration
	logger        logging.Logger
}

var _ worker.Fetcher = (*NetHTTPClient)(nil)

func NewNetHTTPClient(cfg Config, logger logging.Logger, httpClient *http.Client) (*NetHTTPClient, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	componentLogger := logger.With(logging.Field{Key: "backend", Value: "nethttp"})

	headerTimeout := cfg.timeout()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: headerTimeout}
	} else if httpClient.Timeout > 0 {
		headerTimeout = httpClient.Timeout
	}
	passthrough := *httpClient
	passthrough.Timeout = 0
	passthrough.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	componentLogger.Debug("created nethttp webclient",
		logging.Field{Key: "timeout", Value: httpClient.Timeout.String()})

	return &NetHTTPClient{
		client:        httpClient,
		passthrough:   &passthrough,
		headerTimeout: headerTimeout,
		logger:        componentLogger,
	}, nil
}

func (nhc *NetHTTPClient) newHTTPRequest(ctx context.Context, method, url string, headers http.Header, body []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

// Do executes req and buffers the whole body.
func (nhc *NetHTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}

	nhc.logger.Debug("sending http request",
		logging.Field{Key: "method", Value: req.Method},
		logging.Field{Key: "url", Value: req.URL})

	httpReq, err := nhc.newHTTPRequest(ctx, req.Method, req.URL, req.Headers, req.Body)
	if err != nil {
		return nil, err
	}

	resp, err := nhc.client.Do(httpReq)
	if err != nil {
		nhc.logger.Warn("http request failed",
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		Request:    req,
		Body:       body,
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		StatusText: StatusText(resp.Status),
		FetchedAt:  time.Now(),
	}, nil
}

// Get is a convenience method for simple GET requests.
func (nhc *NetHTTPClient) Get(ctx context.Context, url string) (*Response, error) {
	return nhc.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

// Fetch implements worker.Fetcher. Redirects are handed back to the caller
// and the body is returned unread; the caller must close it. The timeout
// covers the response headers only, so long bodies stream to completion.
func (nhc *NetHTTPClient) Fetch(ctx context.Context, req *worker.Request) (*worker.Response, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := nhc.newHTTPRequest(ctx, req.Method, req.URL, req.Header, req.Body)
	if err != nil {
		cancel()
		return nil, err
	}

	timer := time.AfterFunc(nhc.headerTimeout, cancel)
	resp, err := nhc.passthrough.Do(httpReq)
	if !timer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("fetch %s: %w", req.URL, ErrHeaderTimeout)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}

	return &worker.Response{
		Status:     resp.StatusCode,
		StatusText: StatusText(resp.Status),
		Header:     resp.Header,
		Body:       &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
	}, nil
}

// cancelOnClose releases the fetch context once the body is done with.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (nhc *NetHTTPClient) Close() error {
	nhc.client.CloseIdleConnections()
	return nil
}

// HTTPClient returns the underlying *http.Client.
func (nhc *NetHTTPClient) HTTPClient() *http.Client {
	return nhc.client
}

var (
	// ErrInvalidRequest is returned for a nil request.
	ErrInvalidRequest = errors.New("request cannot be nil")

	// ErrHeaderTimeout is returned when upstream headers do not arrive in time.
	ErrHeaderTimeout = errors.New("timed out waiting for response headers")
)

// StatusText extracts the reason phrase from a status line such as
// "404 Not Found". Upstream wording is kept as-is.
func StatusText(status string) string {
	code, text, ok := strings.Cut(status, " ")
	if !ok {
		if _, err := strconv.Atoi(code); err == nil {
			return ""
		}
		return status
	}
	if _, err := strconv.Atoi(code); err != nil {
		return status
	}
	return text
}
