package suite

import (
	"context"
	"errors"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/driver"
)

// fakePage is the DOM state a fakeSession serves.
type fakePage struct {
	// missing lists locator queries that resolve to nothing.
	missing map[string]bool
	// text returns the timer text for the n-th read (0-based).
	text func(n int) string
	// styles maps locator query -> property -> computed value.
	styles map[string]map[string]string
	// visibleErr is returned by WaitVisible.
	visibleErr error
}

func countdownPage() *fakePage {
	return &fakePage{
		text: func(n int) string {
			return "3d 4h 5m " + string(rune('0'+(9-n%10))) + "s"
		},
		styles: map[string]map[string]string{
			"#timer": {
				"background-color": "rgba(255, 255, 255, 1)",
				"font-size":        "48px",
			},
			"body": {
				"display":          "flex",
				"justify-content":  "center",
				"align-items":      "center",
				"background-color": "rgba(240, 240, 240, 1)",
			},
		},
	}
}

func expiredPage() *fakePage {
	p := countdownPage()
	p.text = func(int) string { return ExpiredText }
	return p
}

type fakeSession struct {
	page        *fakePage
	navigateErr error
	closeErr    error

	navigations []string
	finds       int
	textReads   int
	sleeps      []time.Duration
	closeCalls  int
	screenshots int
}

func (s *fakeSession) Navigate(ctx context.Context, url string) error {
	s.navigations = append(s.navigations, url)
	return s.navigateErr
}

func (s *fakeSession) FindElement(ctx context.Context, loc driver.Locator) (driver.Element, error) {
	s.finds++
	if s.page.missing[loc.Query()] {
		return nil, driver.NewError(driver.CodeElementNotFound, "no element matches "+loc.String(), nil)
	}
	return &fakeElement{session: s, loc: loc}, nil
}

func (s *fakeSession) WaitVisible(ctx context.Context, el driver.Element, timeout time.Duration) error {
	return s.page.visibleErr
}

func (s *fakeSession) Sleep(ctx context.Context, d time.Duration) error {
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

func (s *fakeSession) Screenshot(ctx context.Context) ([]byte, error) {
	s.screenshots++
	return []byte("\x89PNG"), nil
}

func (s *fakeSession) Close() error {
	s.closeCalls++
	return s.closeErr
}

type fakeElement struct {
	session *fakeSession
	loc     driver.Locator
}

func (e *fakeElement) Locator() driver.Locator { return e.loc }

func (e *fakeElement) Text(ctx context.Context) (string, error) {
	n := e.session.textReads
	e.session.textReads++
	return e.session.page.text(n), nil
}

func (e *fakeElement) ComputedStyle(ctx context.Context, property string) (string, error) {
	v, ok := e.session.page.styles[e.loc.Query()][property]
	if !ok {
		return "", errors.New("no such property " + property)
	}
	return v, nil
}

type fakeLauncher struct {
	session  *fakeSession
	err      error
	launches int
}

func (l *fakeLauncher) Launch(ctx context.Context) (driver.Session, error) {
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

type fakeSink struct {
	saved []string
}

func (f *fakeSink) SaveScreenshot(runID, checkName string, png []byte) (string, error) {
	f.saved = append(f.saved, checkName)
	return "artifact-" + checkName, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
