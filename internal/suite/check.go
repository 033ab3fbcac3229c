// Package suite runs the countdown timer checks against one browser session.
package suite

import (
	"context"
	"fmt"
	"time"

	"github.com/dgnsrekt/countdown_suite/internal/driver"
)

// Check is one independent assertion unit. Checks share nothing except the
// Session in their Scope and must re-resolve every element they use.
type Check struct {
	Name  string
	Title string
	Run   func(ctx context.Context, sc *Scope) error
}

// Scope is what a running check can see.
type Scope struct {
	Session  driver.Session
	Now      func() time.Time
	ExpiryAt time.Time

	vacuous string
}

// Vacuous marks the check as passing without having asserted anything.
func (sc *Scope) Vacuous(reason string) {
	sc.vacuous = reason
}

// Select returns the named checks in declaration order. An empty names list
// selects every check.
func Select(all []Check, names []string) ([]Check, error) {
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]Check, 0, len(names))
	for _, c := range all {
		if want[c.Name] {
			out = append(out, c)
			delete(want, c.Name)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for _, n := range names {
			if want[n] {
				unknown = append(unknown, n)
			}
		}
		return nil, fmt.Errorf("unknown check(s): %v", unknown)
	}
	return out, nil
}
