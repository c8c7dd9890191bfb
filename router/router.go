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

// Package router implements Router (§4.11): selects one engine instance
// among a pool of EngineDescriptors per request or per batch, tracking
// each engine's load and health.
package router

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/logger"
)

// Health is an EngineDescriptor's binary health (§3: "health ∈
// {healthy, unhealthy}") - deliberately distinct from iosock.Health's
// tri-state, since the two track different things (a socket's own
// liveness vs. one engine's fitness to receive traffic).
type Health int

const (
	HealthHealthy Health = iota
	HealthUnhealthy
)

func (h Health) String() string {
	if h == HealthUnhealthy {
		return "unhealthy"
	}
	return "healthy"
}

// Strategy selects among round_robin, least_connections, weighted and
// affinity (§4.11).
type Strategy string

const (
	StrategyRoundRobin       Strategy = "round_robin"
	StrategyLeastConnections Strategy = "least_connections"
	StrategyWeighted         Strategy = "weighted"
	StrategyAffinity         Strategy = "affinity"
)

const (
	DefaultMaxRetries          = 2
	DefaultUnhealthyThreshold  = 10
	DefaultHealthCheckInterval = 30 * time.Second
	rttSampleWindow            = 20
)

// Options configures one Router. Zero fields fall back to the defaults,
// except MaxRetries: only a negative value falls back, and 0 means no
// retries.
type Options struct {
	Strategy            Strategy
	MaxRetries          int
	UnhealthyThreshold  int
	HealthCheckInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = StrategyRoundRobin
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.UnhealthyThreshold <= 0 {
		o.UnhealthyThreshold = DefaultUnhealthyThreshold
	}
	if o.HealthCheckInterval <= 0 {
		o.HealthCheckInterval = DefaultHealthCheckInterval
	}
	return o
}

// Descriptor is a read-only snapshot of one engine's EngineDescriptor
// (§3), for health reporting and diagnostics.
type Descriptor struct {
	ID            string
	Name          string
	Weight        int
	MaxLoad       int
	CurrentLoad   int
	Health        Health
	LastCheck     time.Time
	AvgRTT        time.Duration
	ErrorCount    int
	TotalRequests int
}

// engine is one EngineDescriptor's mutable state. Load/error/request
// counters are plain atomics since they change on every request; the
// rtt sample window and last_check are guarded by mu since they're
// read/written together as a small batch.
type engine struct {
	id     string
	name   string
	weight int64
	maxLoad int64

	currentLoad   int64
	errorCount    int64
	totalRequests int64
	healthy       int32 // 1 = healthy, 0 = unhealthy

	mu         sync.Mutex
	lastCheck  time.Time
	rttSamples []time.Duration
}

func newEngine(name string, weight, maxLoad int) *engine {
	return &engine{
		id:      uuid.New().String(),
		name:    name,
		weight:  int64(weight),
		maxLoad: int64(maxLoad),
		healthy: 1,
	}
}

func (e *engine) isHealthy() bool { return atomic.LoadInt32(&e.healthy) == 1 }

// remainingCapacity is max_load - current_load; an engine with no
// max_load configured (<=0) is treated as having unbounded capacity.
func (e *engine) remainingCapacity() int64 {
	max := atomic.LoadInt64(&e.maxLoad)
	if max <= 0 {
		return 1<<62 - 1
	}
	return max - atomic.LoadInt64(&e.currentLoad)
}

func (e *engine) recordStart() {
	atomic.AddInt64(&e.currentLoad, 1)
	atomic.AddInt64(&e.totalRequests, 1)
}

func (e *engine) recordEnd(err error, rtt time.Duration, unhealthyThreshold int) {
	atomic.AddInt64(&e.currentLoad, -1)
	if err != nil {
		n := atomic.AddInt64(&e.errorCount, 1)
		if n >= int64(unhealthyThreshold) {
			atomic.StoreInt32(&e.healthy, 0)
		}
		return
	}
	e.mu.Lock()
	e.rttSamples = append(e.rttSamples, rtt)
	if len(e.rttSamples) > rttSampleWindow {
		e.rttSamples = e.rttSamples[len(e.rttSamples)-rttSampleWindow:]
	}
	e.mu.Unlock()
}

func (e *engine) markHealthy() {
	atomic.StoreInt32(&e.healthy, 1)
	atomic.StoreInt64(&e.errorCount, 0)
}

func (e *engine) snapshot() Descriptor {
	e.mu.Lock()
	lastCheck := e.lastCheck
	var avg time.Duration
	if n := len(e.rttSamples); n > 0 {
		var sum time.Duration
		for _, s := range e.rttSamples {
			sum += s
		}
		avg = sum / time.Duration(n)
	}
	e.mu.Unlock()

	h := HealthHealthy
	if !e.isHealthy() {
		h = HealthUnhealthy
	}
	return Descriptor{
		ID:            e.id,
		Name:          e.name,
		Weight:        int(atomic.LoadInt64(&e.weight)),
		MaxLoad:       int(atomic.LoadInt64(&e.maxLoad)),
		CurrentLoad:   int(atomic.LoadInt64(&e.currentLoad)),
		Health:        h,
		LastCheck:     lastCheck,
		AvgRTT:        avg,
		ErrorCount:    int(atomic.LoadInt64(&e.errorCount)),
		TotalRequests: int(atomic.LoadInt64(&e.totalRequests)),
	}
}

// Lease represents one in-flight selection: the caller must Release it
// exactly once with the outcome, so the engine's load/error/rtt
// bookkeeping stays accurate.
type Lease struct {
	r       *Router
	eng     *engine
	start   time.Time
	mu      sync.Mutex
	done    bool
}

// Engine is the selected engine's name.
func (l *Lease) Engine() string { return l.eng.name }

// Release records the call's outcome. Calling it more than once is a
// no-op - only the first outcome counts.
func (l *Lease) Release(err error) {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return
	}
	l.done = true
	l.mu.Unlock()

	wasHealthy := l.eng.isHealthy()
	l.eng.recordEnd(err, time.Since(l.start), l.r.opts.UnhealthyThreshold)
	if wasHealthy && !l.eng.isHealthy() {
		l.r.healthGauge.WithLabelValues(l.eng.name).Set(0)
		l.r.log().Warn("engine marked unhealthy", logger.Fields{"engine": l.eng.name}, err)
	}
}

// Router is the concurrent-safe engine pool (§4.11). Engines are stored
// in a single sync.Map keyed by name - readers (every Select call)
// vastly outnumber writers (AddEngine/RemoveEngine), so a map guarded
// by a read-mostly lock would just add contention a sync.Map avoids.
type Router struct {
	opts Options
	log  logger.FuncLog

	engines  sync.Map // name (string) -> *engine
	affinity sync.Map // key (string) -> name (string)
	rrCursor uint64

	Registry    *prometheus.Registry
	selections  *prometheus.CounterVec
	healthGauge *prometheus.GaugeVec
}

// New returns an empty Router. AddEngine must be called before any
// Select. A nil log falls back to logger.Default.
func New(opts Options, log logger.FuncLog) *Router {
	reg := prometheus.NewRegistry()
	fct := promauto.With(reg)

	if log == nil {
		log = logger.Default
	}

	return &Router{
		opts:     opts.withDefaults(),
		log:      log,
		Registry: reg,
		selections: fct.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snmpmgr",
			Subsystem: "router",
			Name:      "selections_total",
			Help:      "Engine selections per engine and strategy.",
		}, []string{"engine", "strategy"}),
		healthGauge: fct.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "snmpmgr",
			Subsystem: "router",
			Name:      "engine_healthy",
			Help:      "1 if the engine is healthy, 0 if unhealthy.",
		}, []string{"engine"}),
	}
}

// AddEngine registers a new EngineDescriptor. maxLoad <= 0 means
// unbounded.
func (r *Router) AddEngine(name string, weight, maxLoad int) {
	r.engines.Store(name, newEngine(name, weight, maxLoad))
	r.healthGauge.WithLabelValues(name).Set(1)
}

// RemoveEngine drops an engine - per §3, the only way an EngineDescriptor
// is destroyed. Any affinity binding pointing at it is left in place and
// simply falls back to least_connections the next time it's consulted.
func (r *Router) RemoveEngine(name string) {
	r.engines.Delete(name)
}

// Snapshot returns every known engine's Descriptor, sorted by name.
func (r *Router) Snapshot() []Descriptor {
	var out []Descriptor
	r.engines.Range(func(_, v interface{}) bool {
		out = append(out, v.(*engine).snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MarkHealthy and AttemptRecovery are the two manual recovery escape
// hatches named in §4.11; the spec draws no behavioural distinction
// between them, so both reset an engine's error_count and mark it
// healthy again.
func (r *Router) MarkHealthy(name string) error {
	v, ok := r.engines.Load(name)
	if !ok {
		return liberr.ErrNotFound.Errorf(name)
	}
	v.(*engine).markHealthy()
	r.healthGauge.WithLabelValues(name).Set(1)
	r.log().Info("engine marked healthy", logger.Fields{"engine": name}, nil)
	return nil
}

func (r *Router) AttemptRecovery(name string) error { return r.MarkHealthy(name) }

// StartHealthCheck runs the periodic sweep (§4.11) until ctx is done:
// it stamps last_check on every engine and re-evaluates error_count
// against the unhealthy threshold, catching engines that tripped the
// threshold between calls to Release.
func (r *Router) StartHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(r.opts.HealthCheckInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Router) sweep() {
	r.engines.Range(func(_, v interface{}) bool {
		e := v.(*engine)
		e.mu.Lock()
		e.lastCheck = time.Now()
		e.mu.Unlock()
		if atomic.LoadInt64(&e.errorCount) >= int64(r.opts.UnhealthyThreshold) {
			if atomic.CompareAndSwapInt32(&e.healthy, 1, 0) {
				r.healthGauge.WithLabelValues(e.name).Set(0)
				r.log().Warn("engine marked unhealthy by health check sweep", logger.Fields{"engine": e.name}, nil)
			}
		}
		return true
	})
}

func (r *Router) healthyEngines() []*engine {
	var out []*engine
	r.engines.Range(func(_, v interface{}) bool {
		if e := v.(*engine); e.isHealthy() {
			out = append(out, e)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (r *Router) lease(e *engine) *Lease {
	e.recordStart()
	r.selections.WithLabelValues(e.name, string(r.opts.Strategy)).Inc()
	return &Lease{r: r, eng: e, start: time.Now()}
}

// Select picks one healthy engine per the configured Strategy.
func (r *Router) Select(key string) (*Lease, error) {
	switch r.opts.Strategy {
	case StrategyLeastConnections:
		return r.selectLeastConnections()
	case StrategyWeighted:
		return r.selectWeighted()
	case StrategyAffinity:
		return r.selectAffinity(key)
	default:
		return r.selectRoundRobin()
	}
}

func (r *Router) selectRoundRobin() (*Lease, error) {
	engines := r.healthyEngines()
	if len(engines) == 0 {
		return nil, liberr.ErrNoAvailableEngine.Error()
	}
	idx := int((atomic.AddUint64(&r.rrCursor, 1) - 1) % uint64(len(engines)))
	return r.lease(engines[idx]), nil
}

func (r *Router) pickLeastConnections() *engine {
	engines := r.healthyEngines()
	if len(engines) == 0 {
		return nil
	}
	best := engines[0]
	for _, e := range engines[1:] {
		if atomic.LoadInt64(&e.currentLoad) < atomic.LoadInt64(&best.currentLoad) {
			best = e
		}
	}
	return best
}

func (r *Router) selectLeastConnections() (*Lease, error) {
	e := r.pickLeastConnections()
	if e == nil {
		return nil, liberr.ErrNoAvailableEngine.Error()
	}
	return r.lease(e), nil
}

func (r *Router) selectWeighted() (*Lease, error) {
	engines := r.healthyEngines()
	if len(engines) == 0 {
		return nil, liberr.ErrNoAvailableEngine.Error()
	}
	var total int64
	for _, e := range engines {
		w := atomic.LoadInt64(&e.weight)
		if w <= 0 {
			w = 1
		}
		total += w
	}
	pick := rand.Int63n(total)
	var cum int64
	for _, e := range engines {
		w := atomic.LoadInt64(&e.weight)
		if w <= 0 {
			w = 1
		}
		cum += w
		if pick < cum {
			return r.lease(e), nil
		}
	}
	return r.lease(engines[len(engines)-1]), nil
}

func (r *Router) selectAffinity(key string) (*Lease, error) {
	if name, ok := r.affinity.Load(key); ok {
		if v, ok2 := r.engines.Load(name.(string)); ok2 {
			if e := v.(*engine); e.isHealthy() {
				return r.lease(e), nil
			}
		}
		// Bound engine missing or unhealthy: fall back to
		// least_connections for this call without disturbing the
		// sticky binding, so traffic returns to it once it recovers.
		e := r.pickLeastConnections()
		if e == nil {
			return nil, liberr.ErrNoAvailableEngine.Error()
		}
		return r.lease(e), nil
	}

	e := r.pickLeastConnections()
	if e == nil {
		return nil, liberr.ErrNoAvailableEngine.Error()
	}
	r.affinity.Store(key, e.name)
	return r.lease(e), nil
}

// Assignment pairs a batch key with the Lease routing it.
type Assignment struct {
	Key   string
	Lease *Lease
}

// SelectBatch routes a batch of keys (§4.11): under affinity, each key
// is routed independently by its own binding; otherwise the batch is
// distributed by remaining capacity (max_load - current_load), falling
// back to plain round-robin once every engine is at capacity.
func (r *Router) SelectBatch(keys []string) ([]Assignment, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	if r.opts.Strategy == StrategyAffinity {
		out := make([]Assignment, len(keys))
		for i, k := range keys {
			lease, err := r.selectAffinity(k)
			if err != nil {
				return nil, err
			}
			out[i] = Assignment{Key: k, Lease: lease}
		}
		return out, nil
	}

	engines := r.healthyEngines()
	if len(engines) == 0 {
		return nil, liberr.ErrNoAvailableEngine.Error()
	}

	remaining := make([]int64, len(engines))
	hasCapacity := false
	for i, e := range engines {
		remaining[i] = e.remainingCapacity()
		if remaining[i] > 0 {
			hasCapacity = true
		}
	}

	out := make([]Assignment, len(keys))
	for i, k := range keys {
		best := -1
		if hasCapacity {
			for j := range engines {
				if remaining[j] <= 0 {
					continue
				}
				if best == -1 || remaining[j] > remaining[best] {
					best = j
				}
			}
		}
		if best == -1 {
			idx := int((atomic.AddUint64(&r.rrCursor, 1) - 1) % uint64(len(engines)))
			out[i] = Assignment{Key: k, Lease: r.lease(engines[idx])}
			continue
		}
		out[i] = Assignment{Key: k, Lease: r.lease(engines[best])}
		remaining[best]--
		if remaining[best] <= 0 {
			hasCapacity = false
			for _, rem := range remaining {
				if rem > 0 {
					hasCapacity = true
					break
				}
			}
		}
	}
	return out, nil
}

// Do applies the §4.11 retry policy around fn: transient engine errors
// (timeout, no available engine, circuit breaker open, multi-task
// timeout) retry up to max_retries, each attempt selecting an engine
// again through Select, so a retry can land on a different engine
// unless the strategy is affinity; permanent errors surface immediately.
func (r *Router) Do(ctx context.Context, key string, fn func(ctx context.Context, engineName string) error) error {
	attempts := 0
	for {
		lease, err := r.Select(key)
		if err != nil {
			return err
		}
		callErr := fn(ctx, lease.Engine())
		lease.Release(callErr)
		if callErr == nil {
			return nil
		}
		if !isTransient(callErr) {
			return callErr
		}
		attempts++
		if attempts > r.opts.MaxRetries {
			return callErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(liberr.Error); ok {
		switch {
		case e.IsCode(liberr.ErrTimeout.CodeError),
			e.IsCode(liberr.ErrNoAvailableEngine.CodeError),
			e.IsCode(liberr.ErrCircuitBreakerOpen.CodeError),
			e.IsCode(liberr.ErrMultiTaskTimeout.CodeError):
			return true
		}
		return false
	}
	return false
}
