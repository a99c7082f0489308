package attempt

import (
	"sync"
	"time"
)

// TimerState is the countdown's lifecycle state.
type TimerState string

const (
	TimerIdle    TimerState = "idle"
	TimerRunning TimerState = "running"
	TimerExpired TimerState = "expired"
	TimerStopped TimerState = "stopped"
)

const tickInterval = time.Second

// Countdown is the single exam clock. It cannot be paused: once started it runs
// until it expires or is stopped by teardown.
//
// Remaining time is derived from the clock, not from counting ticks, so a late
// tick never stretches the exam.
type Countdown struct {
	clock Clock
	sched Scheduler

	mu        sync.Mutex
	state     TimerState
	duration  int
	startedAt time.Time
	remaining int
	cancel    func()
	onTick    func(remaining int)
	onExpire  func()
}

// NewCountdown creates an idle countdown.
func NewCountdown(clock Clock, sched Scheduler) *Countdown {
	return &Countdown{clock: clock, sched: sched, state: TimerIdle}
}

// Start runs the countdown from durationSeconds. onTick receives the remaining
// seconds after every tick; onExpire runs exactly once when remaining reaches 0.
// A non-positive duration expires immediately. Start on a non-idle countdown is ignored.
func (c *Countdown) Start(durationSeconds int, onTick func(remaining int), onExpire func()) {
	c.mu.Lock()
	if c.state != TimerIdle {
		c.mu.Unlock()
		return
	}
	c.onTick = onTick
	c.onExpire = onExpire
	c.duration = durationSeconds
	c.startedAt = c.clock.Now()

	if durationSeconds <= 0 {
		c.remaining = 0
		c.state = TimerExpired
		c.mu.Unlock()
		if onExpire != nil {
			onExpire()
		}
		return
	}

	c.remaining = durationSeconds
	c.state = TimerRunning
	c.mu.Unlock()

	cancel := c.sched.Every(tickInterval, c.tick)

	c.mu.Lock()
	if c.state == TimerRunning {
		c.cancel = cancel
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	cancel()
}

func (c *Countdown) tick() {
	c.mu.Lock()
	if c.state != TimerRunning {
		c.mu.Unlock()
		return
	}

	elapsed := int(c.clock.Now().Sub(c.startedAt) / time.Second)
	remaining := c.duration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	c.remaining = remaining

	onTick := c.onTick
	var onExpire func()
	if remaining == 0 {
		c.state = TimerExpired
		onExpire = c.onExpire
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
	}
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if onExpire != nil {
		onExpire()
	}
}

// Stop cancels the tick source without expiring. Used on teardown; a stopped
// countdown cannot be started again.
func (c *Countdown) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	if c.state == TimerRunning || c.state == TimerIdle {
		c.state = TimerStopped
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Remaining returns the remaining seconds as of the last tick.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// State returns the current timer state.
func (c *Countdown) State() TimerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Expired reports whether the countdown reached zero.
func (c *Countdown) Expired() bool {
	return c.State() == TimerExpired
}
