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

package breaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nabbar/snmpmgr/logger"
)

// Manager is the "CircuitBreaker map" of §5: a concurrent per-target
// registry, lazily creating a Breaker with shared Options the first
// time a target is seen.
type Manager struct {
	opts     Options
	log      logger.FuncLog
	mu       sync.Mutex
	byTarget map[string]*Breaker

	// Registry is private to this Manager rather than the global
	// prometheus.DefaultRegisterer, so creating more than one Manager
	// in the same process (as the test suite does) never collides on
	// duplicate metric registration.
	Registry *prometheus.Registry

	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewManager returns a Manager whose breakers all share opts. A nil
// log falls back to logger.Default.
func NewManager(opts Options, log logger.FuncLog) *Manager {
	reg := prometheus.NewRegistry()
	fct := promauto.With(reg)

	if log == nil {
		log = logger.Default
	}

	return &Manager{
		opts:     opts,
		log:      log,
		byTarget: make(map[string]*Breaker),
		Registry: reg,
		state: fct.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "snmpmgr",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Current circuit breaker state per target (0=closed, 1=half_open, 2=open).",
		}, []string{"target"}),
		transitions: fct.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmpmgr",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions per target and destination state.",
		}, []string{"target", "to"}),
	}
}

// Get returns target's Breaker, creating it on first use.
func (m *Manager) Get(target string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.byTarget[target]; ok {
		return b
	}

	b := New(m.opts)
	b.onTransition = func(from State, to State) {
		m.state.WithLabelValues(target).Set(stateGaugeValue(to))
		m.transitions.WithLabelValues(target, to.String()).Inc()
		m.log().Info("circuit breaker transition", logger.Fields{
			"target": target,
			"from":   from.String(),
			"to":     to.String(),
		}, nil)
	}
	m.byTarget[target] = b
	return b
}

// Remove drops target's breaker, e.g. once Router deregisters it.
func (m *Manager) Remove(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byTarget, target)
}

// Snapshot returns the current state of every known target, for
// health reporting.
func (m *Manager) Snapshot() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]State, len(m.byTarget))
	for target, b := range m.byTarget {
		out[target] = b.State()
	}
	return out
}

func stateGaugeValue(s State) float64 {
	switch s {
	case StateClosed:
		return 0
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return -1
	}
}
