package render

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const defaultNavigationTimeout = 45 * time.Second

// Config controls the chromedp renderer.
type Config struct {
	ExecPath          string
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Chromedp renders pages with a headless browser launched from ExecPath.
type Chromedp struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates an allocator for cfg.ExecPath. The browser starts lazily
// on the first Render.
func NewChromedp(cfg Config) (*Chromedp, error) {
	if cfg.ExecPath == "" {
		return nil, fmt.Errorf("%w: executable path is required", ErrBrowserUnavailable)
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(cfg.ExecPath),
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (c *Chromedp) Close() {
	c.allocCancel()
}

// Render implements Renderer.
func (c *Chromedp) Render(ctx context.Context, url string) (Page, error) {
	if err := c.acquire(ctx); err != nil {
		return Page{}, err
	}
	defer c.release()

	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	status := &documentStatus{}
	chromedp.ListenTarget(taskCtx, status.captureEvent)

	start := time.Now()
	var html, title, finalURL string
	err := chromedp.Run(taskCtx,
		c.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Page{}, fmt.Errorf("render %s: %w", url, err)
	}
	if finalURL == "" {
		finalURL = url
	}
	return Page{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: status.get(),
		Title:      title,
		HTML:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}

func (c *Chromedp) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (c *Chromedp) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (c *Chromedp) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}

// documentStatus keeps the status of the last top-level document response.
type documentStatus struct {
	mu     sync.Mutex
	status int
}

func (d *documentStatus) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	d.status = int(resp.Response.Status)
	d.mu.Unlock()
}

func (d *documentStatus) get() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == 0 {
		return http.StatusOK
	}
	return d.status
}
