// Copyright 2026 The exca-teleop Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock reading initial. Time only moves when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests. It is safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*alarm
	changed *sync.Cond
}

// alarm is one registered timer, ticker, or After channel.
type alarm struct {
	at       time.Time
	period   time.Duration // non-zero for tickers
	callback func()        // AfterFunc
	channel  chan time.Time
	canceled bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&alarm{at: c.now.Add(d), channel: channel})
	return channel
}

// AfterFunc registers f to run inside the Advance call that crosses
// now+d. With d <= 0 f runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	a := &alarm{at: c.now.Add(d), callback: f}
	c.addLocked(a)
	return &Timer{stop: func() bool { return c.cancel(a) }}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	a := &alarm{at: c.now.Add(d), period: d, channel: channel}
	c.addLocked(a)
	return &Ticker{C: channel, stop: func() { c.cancel(a) }}
}

// Advance moves the clock forward by d, firing every alarm whose
// deadline is crossed in deadline order. A ticker crossed several
// times fires once per period; sends that find a full channel are
// dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.at
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			c.removeLocked(next)
		}
		fireAt := c.now
		c.mu.Unlock()

		if next.callback != nil {
			next.callback()
			continue
		}
		select {
		case next.channel <- fireAt:
		default:
		}
	}
}

// WaitForTimers blocks until at least n alarms are pending. Tests call
// it before Advance so that a goroutine has had the chance to arm its
// timer.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed alarms.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) addLocked(a *alarm) {
	c.pending = append(c.pending, a)
	c.changed.Broadcast()
}

func (c *FakeClock) removeLocked(a *alarm) {
	for i, p := range c.pending {
		if p == a {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	c.changed.Broadcast()
}

func (c *FakeClock) cancel(a *alarm) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a.canceled {
		return false
	}
	for _, p := range c.pending {
		if p == a {
			a.canceled = true
			c.removeLocked(a)
			return true
		}
	}
	return false
}

// nextDueLocked returns the earliest alarm due at or before target.
func (c *FakeClock) nextDueLocked(target time.Time) *alarm {
	if len(c.pending) == 0 {
		return nil
	}
	sort.SliceStable(c.pending, func(i, j int) bool {
		return c.pending[i].at.Before(c.pending[j].at)
	})
	if c.pending[0].at.After(target) {
		return nil
	}
	return c.pending[0]
}
