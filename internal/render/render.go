// Package render loads pages in the resolved headless browser.
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-bootstrap/internal/metrics"
)

// ErrBrowserUnavailable is returned when no browser binary was resolved.
var ErrBrowserUnavailable = errors.New("browser unavailable")

// Page is a rendered document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Title      string
	HTML       []byte
	Duration   time.Duration
}

// Digest is the hex SHA-256 of the rendered HTML.
func (p Page) Digest() string {
	sum := sha256.Sum256(p.HTML)
	return hex.EncodeToString(sum[:])
}

// Renderer loads url and returns the rendered DOM.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
	Close()
}

// Unavailable is the renderer used when the browser could not be resolved.
type Unavailable struct {
	reason string
	logger *zap.Logger
	once   sync.Once
}

// NewUnavailable records why rendering is disabled.
func NewUnavailable(reason string, logger *zap.Logger) *Unavailable {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Unavailable{reason: reason, logger: logger}
}

// Reason is why rendering is disabled.
func (u *Unavailable) Reason() string {
	return u.reason
}

// Render always fails with ErrBrowserUnavailable.
func (u *Unavailable) Render(context.Context, string) (Page, error) {
	metrics.ObserveCapabilityUnavailable("browser")
	u.once.Do(func() {
		u.logger.Warn("DEGRADED MODE: no browser binary, page rendering is disabled",
			zap.String("reason", u.reason))
	})
	return Page{}, ErrBrowserUnavailable
}

// Close is a no-op.
func (*Unavailable) Close() {}

// Select returns a chromedp renderer for executable, or Unavailable when no
// executable is known. override, when set, wins over the resolved path.
func Select(executable, override, reason string, cfg Config, logger *zap.Logger) (Renderer, error) {
	if override != "" {
		executable = override
	}
	if executable == "" {
		return NewUnavailable(reason, logger), nil
	}
	cfg.ExecPath = executable
	c, err := NewChromedp(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}
