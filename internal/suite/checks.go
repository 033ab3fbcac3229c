package suite

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/driver"
)

const (
	Title = "Countdown Timer Test Suite"

	ExpiredText = "EXPIRED!"

	LivenessInterval  = 1000 * time.Millisecond
	VisibilityTimeout = 3000 * time.Millisecond
	StabilityInterval = 2000 * time.Millisecond
)

// DefaultTargetURL is the page the suite was written against.
const DefaultTargetURL = "http://127.0.0.1:5500/selection_code/index.html"

// DefaultExpiryAt is the countdown's target instant, in local time.
func DefaultExpiryAt() time.Time {
	return time.Date(2025, time.January, 1, 0, 0, 0, 0, time.Local)
}

var (
	timerLocator = driver.ID("timer")
	bodyLocator  = driver.CSS("body")

	timerFormat = regexp.MustCompile(`\d+d \d+h \d+m \d+s`)
)

// Checks returns the fixed check list in execution order.
func Checks() []Check {
	return []Check{
		{Name: "presence", Title: "should have the timer element present on the page", Run: checkPresence},
		{Name: "format", Title: "should display the timer in the correct format (d h m s)", Run: checkFormat},
		{Name: "liveness", Title: "should update the timer every second", Run: checkLiveness},
		{Name: "visibility", Title: "should load the timer element within 3 seconds", Run: checkVisibility},
		{Name: "expiry-text", Title: "should display EXPIRED! when countdown reaches 0", Run: checkExpiryText},
		{Name: "expiry-stability", Title: "should stop updating the timer after showing EXPIRED!", Run: checkExpiryStability},
		{Name: "timer-background", Title: "should have a white background (#fff) for the timer", Run: checkTimerBackground},
		{Name: "timer-font-size", Title: "should have a font size of 3em", Run: checkTimerFontSize},
		{Name: "body-centering", Title: "should be centered horizontally and vertically using Flexbox", Run: checkBodyCentering},
		{Name: "page-background", Title: "should have a page background color of #f0f0f0", Run: checkPageBackground},
	}
}

func checkPresence(ctx context.Context, sc *Scope) error {
	_, err := sc.Session.FindElement(ctx, timerLocator)
	return err
}

func checkFormat(ctx context.Context, sc *Scope) error {
	el, err := sc.Session.FindElement(ctx, timerLocator)
	if err != nil {
		return err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return err
	}
	if !timerFormat.MatchString(text) {
		return driver.Mismatch("Timer should display the correct format.", "/"+timerFormat.String()+"/", text)
	}
	return nil
}

// checkLiveness reads the same handle twice, one interval apart. Two reads
// that land in the same tick of the page's one-second timer compare equal,
// so this check can fail spuriously.
func checkLiveness(ctx context.Context, sc *Scope) error {
	el, err := sc.Session.FindElement(ctx, timerLocator)
	if err != nil {
		return err
	}
	first, err := el.Text(ctx)
	if err != nil {
		return err
	}
	if err := sc.Session.Sleep(ctx, LivenessInterval); err != nil {
		return err
	}
	second, err := el.Text(ctx)
	if err != nil {
		return err
	}
	if first == second {
		return driver.Mismatch("Timer should update every 1 second.", fmt.Sprintf("a value other than %q", first), second)
	}
	return nil
}

func checkVisibility(ctx context.Context, sc *Scope) error {
	el, err := sc.Session.FindElement(ctx, timerLocator)
	if err != nil {
		return err
	}
	if err := sc.Session.WaitVisible(ctx, el, VisibilityTimeout); err != nil {
		if driver.CodeOf(err) == driver.CodeTimeout {
			return driver.NewError(driver.CodeTimeout, "Timer did not load within 3 seconds.", err)
		}
		return err
	}
	return nil
}

func checkExpiryText(ctx context.Context, sc *Scope) error {
	el, err := sc.Session.FindElement(ctx, timerLocator)
	if err != nil {
		return err
	}
	if !sc.Now().After(sc.ExpiryAt) {
		sc.Vacuous("target instant " + sc.ExpiryAt.Format(time.RFC3339) + " not reached")
		return nil
	}
	text, err := el.Text(ctx)
	if err != nil {
		return err
	}
	if text != ExpiredText {
		return driver.Mismatch("Timer should show EXPIRED! after countdown reaches 0.", ExpiredText, text)
	}
	return nil
}

func checkExpiryStability(ctx context.Context, sc *Scope) error {
	el, err := sc.Session.FindElement(ctx, timerLocator)
	if err != nil {
		return err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return err
	}
	if text != ExpiredText {
		sc.Vacuous("timer not showing " + ExpiredText)
		return nil
	}
	if err := sc.Session.Sleep(ctx, StabilityInterval); err != nil {
		return err
	}
	final, err := el.Text(ctx)
	if err != nil {
		return err
	}
	if final != ExpiredText {
		return driver.Mismatch("Timer should stop updating after showing EXPIRED!.", ExpiredText, final)
	}
	return nil
}

func checkTimerBackground(ctx context.Context, sc *Scope) error {
	return expectStyles(ctx, sc, timerLocator, []styleExpectation{
		{property: "background-color", want: "rgba(255, 255, 255, 1)", message: "Timer background color should be white."},
	})
}

func checkTimerFontSize(ctx context.Context, sc *Scope) error {
	return expectStyles(ctx, sc, timerLocator, []styleExpectation{
		{property: "font-size", want: "48px", message: "Font size should be 3em."},
	})
}

func checkBodyCentering(ctx context.Context, sc *Scope) error {
	return expectStyles(ctx, sc, bodyLocator, []styleExpectation{
		{property: "display", want: "flex", message: "Body should use Flexbox for centering."},
		{property: "justify-content", want: "center", message: "Timer should be horizontally centered."},
		{property: "align-items", want: "center", message: "Timer should be vertically centered."},
	})
}

func checkPageBackground(ctx context.Context, sc *Scope) error {
	return expectStyles(ctx, sc, bodyLocator, []styleExpectation{
		{property: "background-color", want: "rgba(240, 240, 240, 1)", message: "Page background color should be #f0f0f0."},
	})
}

type styleExpectation struct {
	property string
	want     string
	message  string
}

// expectStyles reads every property before comparing, then reports the
// first mismatch in declaration order.
func expectStyles(ctx context.Context, sc *Scope, loc driver.Locator, exps []styleExpectation) error {
	el, err := sc.Session.FindElement(ctx, loc)
	if err != nil {
		return err
	}
	got := make([]string, len(exps))
	for i, e := range exps {
		if got[i], err = el.ComputedStyle(ctx, e.property); err != nil {
			return err
		}
	}
	for i, e := range exps {
		if got[i] != e.want {
			return driver.Mismatch(e.message+" ("+e.property+")", e.want, got[i])
		}
	}
	return nil
}
