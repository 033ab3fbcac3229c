// Package cdpcontrol talks to a browser's DevTools endpoint directly,
// without chromedp's session setup.
package cdpcontrol

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/browser"
)

// BrowserVersion is the browser's answer to Browser.getVersion.
type BrowserVersion = browser.GetVersionReturns

// ProbeVersion connects to the browser websocket behind cdpURL, asks for its
// version and disconnects. It confirms the endpoint accepts CDP commands,
// not just HTTP.
func ProbeVersion(ctx context.Context, cdpURL string) (BrowserVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	r := newRawCDP(cdpURL)
	if err := r.connect(ctx); err != nil {
		return BrowserVersion{}, err
	}
	defer r.close()

	var out BrowserVersion
	if err := r.send(ctx, browser.CommandGetVersion, nil, &out); err != nil {
		return BrowserVersion{}, err
	}
	return out, nil
}
