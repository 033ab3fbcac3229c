package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/countdown_suite/internal/browser"
	"github.com/dgnsrekt/countdown_suite/internal/cdpcontrol"
)

// Mode selects how a browser is obtained.
type Mode string

const (
	// ModeExec spawns a private browser through chromedp's exec allocator.
	ModeExec Mode = "exec"
	// ModeRemote attaches to a browser already serving CDP at CDPURL.
	ModeRemote Mode = "remote"
	// ModeLaunch starts a local browser with remote debugging enabled, then
	// attaches to it as in ModeRemote.
	ModeLaunch Mode = "launch"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeExec, ModeRemote, ModeLaunch:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown browser mode %q (want exec, remote or launch)", s)
	}
}

// Options configures ChromeLauncher.
type Options struct {
	Mode         Mode
	CDPURL       string
	Headless     bool
	WindowWidth  int
	WindowHeight int
	NoSandbox    bool
	// NavTimeout bounds Navigate.
	NavTimeout time.Duration
	// OpTimeout bounds every other single driver operation.
	OpTimeout time.Duration
	// Browser is used by ModeLaunch. Its ExecPath also selects the binary
	// in ModeExec.
	Browser browser.Config
}

// ChromeLauncher opens chromedp-backed sessions.
type ChromeLauncher struct {
	opts Options
}

// NewChromeLauncher creates a launcher, filling zero-valued timeouts and
// window size with defaults.
func NewChromeLauncher(opts Options) *ChromeLauncher {
	if opts.Mode == "" {
		opts.Mode = ModeExec
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = 30 * time.Second
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 10 * time.Second
	}
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth, opts.WindowHeight = 1280, 800
	}
	return &ChromeLauncher{opts: opts}
}

// Launch starts or attaches to a browser and opens one tab. Every failure is
// a SETUP error; partially acquired resources are released before returning.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	s := &chromeSession{
		navTimeout: l.opts.NavTimeout,
		opTimeout:  l.opts.OpTimeout,
	}

	switch l.opts.Mode {
	case ModeExec:
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", l.opts.Headless),
			chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight),
		)
		if l.opts.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		if l.opts.Browser.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(l.opts.Browser.ExecPath))
		}
		s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		slog.Info("driver exec allocator ready", "headless", l.opts.Headless, "exec_path", l.opts.Browser.ExecPath)
	case ModeLaunch:
		bl := browser.NewLauncher(l.opts.Browser)
		if err := bl.Launch(ctx); err != nil {
			return nil, NewError(CodeSetup, "launch local browser failed", err)
		}
		s.stopBrowser = bl.Stop
		if err := l.attachRemote(ctx, s, l.opts.Browser.CDPURL()); err != nil {
			s.release()
			return nil, err
		}
	case ModeRemote:
		if err := l.attachRemote(ctx, s, l.opts.CDPURL); err != nil {
			return nil, err
		}
	default:
		return nil, NewError(CodeSetup, fmt.Sprintf("unknown browser mode %q", l.opts.Mode), nil)
	}

	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug("chromedp error", "detail", fmt.Sprintf(format, args...))
		}),
	)

	// The first Run binds the browser's lifetime to tabCtx, so it must not
	// run under a timeout-derived context.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(s.tabCtx) }()
	select {
	case err := <-started:
		if err != nil {
			s.release()
			return nil, NewError(CodeSetup, "start browser tab failed", err)
		}
	case <-ctx.Done():
		s.release()
		return nil, NewError(CodeSetup, "start browser tab cancelled", ctx.Err())
	}

	slog.Info("driver session open", "mode", l.opts.Mode)
	return s, nil
}

func (l *ChromeLauncher) attachRemote(ctx context.Context, s *chromeSession, cdpURL string) error {
	if cdpURL == "" {
		return NewError(CodeSetup, "missing CDP URL", nil)
	}
	version, err := cdpcontrol.ProbeVersion(ctx, cdpURL)
	if err != nil {
		return NewError(CodeSetup, "CDP endpoint unavailable", err)
	}
	slog.Info("driver attaching to browser", "cdp_url", cdpURL, "product", version.Product, "protocol", version.ProtocolVersion)
	s.allocCtx, s.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cdpURL)
	return nil
}

type chromeSession struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	stopBrowser func()

	navTimeout time.Duration
	opTimeout  time.Duration

	closeOnce sync.Once
}

// scope derives an operation context from the tab context that also ends
// when the caller's ctx does.
func (s *chromeSession) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.scope(ctx, s.navTimeout)
	defer cancel()

	start := time.Now()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return NewError(CodeSetup, fmt.Sprintf("navigate to %s failed", url), err)
	}
	slog.Info("driver navigated", "url", url, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *chromeSession) FindElement(ctx context.Context, loc Locator) (Element, error) {
	runCtx, cancel := s.scope(ctx, s.opTimeout)
	defer cancel()

	var nodes []*cdp.Node
	if err := chromedp.Run(runCtx, chromedp.Nodes(loc.Query(), &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return nil, s.wrap(ctx, fmt.Sprintf("find %s failed", loc), err)
	}
	if len(nodes) == 0 {
		return nil, NewError(CodeElementNotFound, fmt.Sprintf("no element matches %s", loc), nil)
	}
	slog.Debug("driver element resolved", "locator", loc.String(), "node_id", nodes[0].NodeID)
	return &chromeElement{session: s, loc: loc, nodeID: nodes[0].NodeID}, nil
}

func (s *chromeSession) WaitVisible(ctx context.Context, el Element, timeout time.Duration) error {
	ce, ok := el.(*chromeElement)
	if !ok {
		return NewError(CodeDriver, fmt.Sprintf("element %T does not belong to a chromedp session", el), nil)
	}
	runCtx, cancel := s.scope(ctx, timeout)
	defer cancel()

	err := chromedp.Run(runCtx, chromedp.WaitVisible([]cdp.NodeID{ce.nodeID}, chromedp.ByNodeID))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return NewError(CodeTimeout, fmt.Sprintf("%s not visible within %s", ce.loc, timeout), err)
	}
	return s.wrap(ctx, fmt.Sprintf("wait visible %s failed", ce.loc), err)
}

func (s *chromeSession) Sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

func (s *chromeSession) Screenshot(ctx context.Context) ([]byte, error) {
	runCtx, cancel := s.scope(ctx, s.opTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, s.wrap(ctx, "capture screenshot failed", err)
	}
	return buf, nil
}

// Close closes the tab (and the browser when this session owns it). Safe to
// call more than once; only the first call does work.
func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.tabCtx != nil {
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			done := make(chan error, 1)
			go func() { done <- chromedp.Cancel(s.tabCtx) }()
			select {
			case err = <-done:
			case <-cancelCtx.Done():
				err = fmt.Errorf("close tab: %w", cancelCtx.Err())
			}
			cancel()
		}
		s.release()
		slog.Info("driver session closed")
	})
	return err
}

func (s *chromeSession) release() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if s.stopBrowser != nil {
		s.stopBrowser()
		s.stopBrowser = nil
	}
}

// wrap maps operation failures: a bounded operation that ran out of time is a
// TIMEOUT, anything else is a DRIVER error.
func (s *chromeSession) wrap(ctx context.Context, msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return NewError(CodeTimeout, msg, err)
	}
	return NewError(CodeDriver, msg, err)
}

type chromeElement struct {
	session *chromeSession
	loc     Locator
	nodeID  cdp.NodeID
}

func (e *chromeElement) Locator() Locator { return e.loc }

func (e *chromeElement) Text(ctx context.Context) (string, error) {
	runCtx, cancel := e.session.scope(ctx, e.session.opTimeout)
	defer cancel()

	var text string
	if err := chromedp.Run(runCtx, chromedp.Text([]cdp.NodeID{e.nodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", e.session.wrap(ctx, fmt.Sprintf("read text of %s failed", e.loc), err)
	}
	return text, nil
}

func (e *chromeElement) ComputedStyle(ctx context.Context, property string) (string, error) {
	runCtx, cancel := e.session.scope(ctx, e.session.opTimeout)
	defer cancel()

	var props []*css.ComputedStyleProperty
	if err := chromedp.Run(runCtx, chromedp.ComputedStyle([]cdp.NodeID{e.nodeID}, &props, chromedp.ByNodeID)); err != nil {
		return "", e.session.wrap(ctx, fmt.Sprintf("read computed style of %s failed", e.loc), err)
	}
	for _, p := range props {
		if p.Name == property {
			return normalizeCSSValue(p.Value), nil
		}
	}
	return "", NewError(CodeDriver, fmt.Sprintf("computed style of %s has no %q", e.loc, property), nil)
}
