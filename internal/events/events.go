// Package events implements a small table of periodic, non-blocking actions
// polled from the main loop.
package events

import (
	"time"

	"github.com/pkg/errors"
)

// ErrSealed is returned when registering into a table that has already
// started ticking.
var ErrSealed = errors.New("event table is sealed")

// Action is a periodic action. Actions run synchronously on the main loop and
// must return quickly.
type Action func()

type entry struct {
	name      string
	interval  time.Duration
	action    Action
	lastFired time.Duration
}

// Table is a fixed list of periodic actions. Entries are registered during
// startup; the first Tick seals the table.
type Table struct {
	entries []entry
	sealed  bool
}

// Register appends an action that fires every interval. The name is only
// used for diagnostics.
func (t *Table) Register(name string, interval time.Duration, action Action) error {
	if t.sealed {
		return ErrSealed
	}
	if interval < 0 {
		return errors.Errorf("event %q has a negative interval", name)
	}
	if action == nil {
		return errors.Errorf("event %q has no action", name)
	}
	t.entries = append(t.entries, entry{
		name:     name,
		interval: interval,
		action:   action,
	})
	return nil
}

// Tick fires every entry whose interval has elapsed since it last fired, in
// registration order, and returns how many fired. An entry fires at most once
// per Tick and its last fired time becomes now, not its nominal due time.
func (t *Table) Tick(now time.Duration) int {
	t.sealed = true

	var fired int
	for i := range t.entries {
		e := &t.entries[i]
		if now-e.lastFired < e.interval {
			continue
		}
		e.lastFired = now
		e.action()
		fired++
	}
	return fired
}

// Len returns the number of registered entries.
func (t *Table) Len() int { return len(t.entries) }

// Names returns the entry names in registration order.
func (t *Table) Names() []string {
	names := make([]string, len(t.entries))
	for i, e := range t.entries {
		names[i] = e.name
	}
	return names
}
