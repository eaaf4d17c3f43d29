package causelog

import (
	"sync"

	"github.com/zoobzio/clockz"
)

// Process-wide defaults. Each can be replaced temporarily through its Swap
// function; the returned restore func reinstates the previous value and is
// meant for defer or t.Cleanup. Swapping is not scoped per goroutine, so
// tests that swap defaults must not run in parallel with each other.
var (
	defaultsMu     sync.RWMutex
	defaultExecCtx = NewExecutionContext()
	defaultDests   = NewDestinations()
	defaultLogger  Logger
	defaultOutput  = &OutputLogger{}
	defaultTaskIDs TaskIDGenerator = RandomTaskIDs
	defaultClock   clockz.Clock    = clockz.RealClock
)

// DefaultExecutionContext returns the process-wide ExecutionContext.
func DefaultExecutionContext() *ExecutionContext {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	return defaultExecCtx
}

// SwapExecutionContext installs c as the process-wide ExecutionContext.
func SwapExecutionContext(c *ExecutionContext) (restore func()) {
	defaultsMu.Lock()
	prev := defaultExecCtx
	defaultExecCtx = c
	defaultsMu.Unlock()
	return func() {
		defaultsMu.Lock()
		defaultExecCtx = prev
		defaultsMu.Unlock()
	}
}

// DefaultDestinations returns the process-wide Destinations registry.
func DefaultDestinations() *Destinations {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	return defaultDests
}

// SwapDestinations installs d as the process-wide Destinations registry.
func SwapDestinations(d *Destinations) (restore func()) {
	defaultsMu.Lock()
	prev := defaultDests
	defaultDests = d
	defaultsMu.Unlock()
	return func() {
		defaultsMu.Lock()
		defaultDests = prev
		defaultsMu.Unlock()
	}
}

// DefaultLogger returns the logger used when nil is passed as a Logger.
// Unless replaced, it is an OutputLogger writing to DefaultDestinations.
func DefaultLogger() Logger {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	if defaultLogger != nil {
		return defaultLogger
	}
	return defaultOutput
}

// SwapDefaultLogger replaces the logger used when nil is passed as a Logger.
// Passing nil restores the OutputLogger over DefaultDestinations.
func SwapDefaultLogger(l Logger) (restore func()) {
	defaultsMu.Lock()
	prev := defaultLogger
	defaultLogger = l
	defaultsMu.Unlock()
	return func() {
		defaultsMu.Lock()
		defaultLogger = prev
		defaultsMu.Unlock()
	}
}

// SwapTaskIDGenerator replaces the generator used for new task ids.
func SwapTaskIDGenerator(g TaskIDGenerator) (restore func()) {
	defaultsMu.Lock()
	prev := defaultTaskIDs
	defaultTaskIDs = g
	defaultsMu.Unlock()
	return func() {
		defaultsMu.Lock()
		defaultTaskIDs = prev
		defaultsMu.Unlock()
	}
}

// SwapClock replaces the clock used to timestamp messages that were not
// given their own clock.
func SwapClock(c clockz.Clock) (restore func()) {
	defaultsMu.Lock()
	prev := defaultClock
	defaultClock = c
	defaultsMu.Unlock()
	return func() {
		defaultsMu.Lock()
		defaultClock = prev
		defaultsMu.Unlock()
	}
}

func newTaskID() string {
	defaultsMu.RLock()
	g := defaultTaskIDs
	defaultsMu.RUnlock()
	return g.Generate()
}

func currentClock() clockz.Clock {
	defaultsMu.RLock()
	defer defaultsMu.RUnlock()
	return defaultClock
}

func resolveLogger(l Logger) Logger {
	if l == nil {
		return DefaultLogger()
	}
	return l
}
