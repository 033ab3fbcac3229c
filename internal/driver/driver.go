// Package driver defines the browser capabilities the countdown suite needs
// and implements them on top of chromedp.
package driver

import (
	"context"
	"time"
)

// Launcher opens browser sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Session is one browser tab. Only one operation runs against it at a time.
type Session interface {
	// Navigate loads url and blocks until the load event fires.
	Navigate(ctx context.Context, url string) error
	// FindElement resolves loc without waiting. A missing element is an
	// ELEMENT_NOT_FOUND error.
	FindElement(ctx context.Context, loc Locator) (Element, error)
	// WaitVisible polls until el is visible or timeout elapses (TIMEOUT).
	WaitVisible(ctx context.Context, el Element, timeout time.Duration) error
	// Sleep blocks for d of wall-clock time.
	Sleep(ctx context.Context, d time.Duration) error
	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Element is a resolved DOM node, valid only within the Session that
// produced it.
type Element interface {
	Locator() Locator
	// Text returns the rendered text of the element.
	Text(ctx context.Context) (string, error)
	// ComputedStyle returns the resolved value of a CSS property. Colors are
	// reported as rgba().
	ComputedStyle(ctx context.Context, property string) (string, error)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
