package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/coigate/internal/logging"
)

// ChromedpClient loads pages in a real browser. Besides the rendered HTML it
// reports whether the browser considered the page cross-origin isolated.
type ChromedpClient struct {
	allocCtx  context.Context
	cancel    context.CancelFunc
	idleAfter time.Duration
	logger    logging.Logger
}

// Probe is what the browser saw for one navigation.
type Probe struct {
	URL                 string
	StatusCode          int
	StatusText          string
	Headers             http.Header
	HTML                string
	CrossOriginIsolated bool
}

func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	idleAfter := cfg.IdleAfter
	if idleAfter <= 0 {
		idleAfter = 2 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", cfg.Headless))
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromedpClient{
		allocCtx:  allocCtx,
		cancel:    cancel,
		idleAfter: idleAfter,
		logger:    logger.With(logging.Field{Key: "backend", Value: "chromedp"}),
	}, nil
}

// waitNetworkIdle signals once no request has been in flight for idleAfter.
// The returned start func arms the timer for pages that issue no requests.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) (<-chan struct{}, func()) {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	return idleChan, startTimer
}

// Probe navigates to url and waits for the network to go idle.
func (cdc *ChromedpClient) Probe(ctx context.Context, url string) (*Probe, error) {
	tabCtx, cancel := chromedp.NewContext(cdc.allocCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	probe := &Probe{URL: url, Headers: http.Header{}}
	var docOnce sync.Once
	chromedp.ListenTarget(tabCtx, func(ev any) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		docOnce.Do(func() {
			probe.StatusCode = int(e.Response.Status)
			probe.StatusText = e.Response.StatusText
			for k, v := range e.Response.Headers {
				probe.Headers.Set(k, fmt.Sprint(v))
			}
		})
	})

	idle, arm := waitNetworkIdle(tabCtx, cdc.idleAfter)

	if err := chromedp.Run(tabCtx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	arm()

	select {
	case <-idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	err := chromedp.Run(tabCtx,
		chromedp.OuterHTML("html", &probe.HTML),
		chromedp.Evaluate(`self.crossOriginIsolated === true`, &probe.CrossOriginIsolated),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", url, err)
	}

	cdc.logger.Debug("probed page",
		logging.Field{Key: "url", Value: url},
		logging.Field{Key: "isolated", Value: probe.CrossOriginIsolated})
	return probe, nil
}

// Do renders req.URL. Only GET is supported.
func (cdc *ChromedpClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrInvalidRequest
	}
	if m := strings.ToUpper(req.Method); m != "" && m != http.MethodGet {
		return nil, fmt.Errorf("method %s not supported by chromedp backend", m)
	}

	p, err := cdc.Probe(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	return &Response{
		Request:    req,
		Headers:    p.Headers,
		Body:       []byte(p.HTML),
		StatusCode: p.StatusCode,
		StatusText: p.StatusText,
		FetchedAt:  time.Now(),
	}, nil
}

func (cdc *ChromedpClient) Close() error {
	cdc.cancel()
	return nil
}
