/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package breaker implements CircuitBreaker (§4.10): a per-target
// closed/open/half_open state machine guarding calls to a flaky
// target, plus the operator escape hatches the spec requires never be
// reachable from the automatic transition logic.
package breaker

import (
	"sync"
	"time"

	liberr "github.com/nabbar/snmpmgr/errors"
)

// State is one of the three CircuitBreaker states (§4.10).
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Default tuning constants (§4.10).
const (
	DefaultFailureThreshold       = 5
	DefaultRecoveryTimeout        = 30 * time.Second
	DefaultHalfOpenMaxCalls       = 3
	DefaultSuccessThresholdToClose = 3
)

// Options configures one Breaker. Zero fields fall back to the
// defaults above.
type Options struct {
	FailureThreshold        int
	RecoveryTimeout         time.Duration
	HalfOpenMaxCalls        int
	SuccessThresholdToClose int
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.RecoveryTimeout <= 0 {
		o.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if o.HalfOpenMaxCalls <= 0 {
		o.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	if o.SuccessThresholdToClose <= 0 {
		o.SuccessThresholdToClose = DefaultSuccessThresholdToClose
	}
	return o
}

// Breaker is one target's circuit breaker. The whole state machine
// transitions under a single mutex (§5: "the per-entry state machine
// must transition atomically").
type Breaker struct {
	mu sync.Mutex

	opts Options

	state           State
	failures        int
	successes       int
	halfOpenCalls   int
	lastFailureTime time.Time

	onTransition func(from, to State)
}

// New returns a Breaker in the closed state.
func New(opts Options) *Breaker {
	return &Breaker{opts: opts.withDefaults(), state: StateClosed}
}

// State reports the breaker's current state without side effects
// (unlike Allow, it does not evaluate the open->half_open recovery
// transition - callers that need an up-to-date state for a decision
// should call Allow).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call should proceed. In closed, every call
// proceeds. In open, calls are rejected with ErrCircuitBreakerOpen
// until recovery_timeout has elapsed since the last failure, at which
// point the breaker moves to half_open and the call that observed the
// transition is itself treated as the first probe. In half_open, up to
// half_open_max_calls probes are allowed; the first call made once that
// budget is spent reopens the breaker and is rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.lastFailureTime) >= b.opts.RecoveryTimeout {
		b.transition(StateHalfOpen)
	}

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.halfOpenCalls >= b.opts.HalfOpenMaxCalls {
			// Probe budget spent without reaching success_threshold_to_close
			// (§4.10: "If probe budget is exhausted without closing -> open").
			b.lastFailureTime = time.Now()
			b.transition(StateOpen)
			return liberr.ErrCircuitBreakerOpen.Error()
		}
		b.halfOpenCalls++
		return nil
	default: // StateOpen
		return liberr.ErrCircuitBreakerOpen.Error()
	}
}

// RecordSuccess reports a successful call. In closed it just counts;
// in half_open it counts towards success_threshold_to_close and closes
// the breaker once reached.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.successes++
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.opts.SuccessThresholdToClose {
			b.transition(StateClosed)
		}
	}
}

// RecordFailure reports a failed call. In closed, failures accumulate
// until failure_threshold trips the breaker open. In half_open, any
// single failure reopens it immediately (§4.10: "On any failure ->
// open").
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// ForceOpen, ForceHalfOpen, Reset and Close are the §4.10 manual
// escape hatches - operator-only, never invoked by Allow/RecordSuccess
// /RecordFailure.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailureTime = time.Now()
	b.transition(StateOpen)
}

func (b *Breaker) ForceHalfOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateHalfOpen)
}

// Reset clears every counter without forcing a state change - useful
// to give a target a clean slate of counts while leaving the operator
// free to decide separately whether it should also be Close()d.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.successes, b.halfOpenCalls = 0, 0, 0
}

// Close forces the breaker closed and clears every counter.
func (b *Breaker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures, b.successes, b.halfOpenCalls = 0, 0, 0
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures, b.successes, b.halfOpenCalls = 0, 0, 0
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
