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

// Package adaptive implements AdaptiveWalk (§4.7): BulkWalk wrapped
// with a feedback controller that grows or shrinks max_repetitions
// from observed round-trip latency, plus a benchmarking sub-mode that
// picks the repetition count minimising mean latency for a device.
package adaptive

import (
	"context"
	"net"
	"time"

	"github.com/nabbar/snmpmgr/bulkwalk"
	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/errors/pool"
	"github.com/nabbar/snmpmgr/oid"
	"github.com/nabbar/snmpmgr/ops"
	"github.com/nabbar/snmpmgr/varbind"
)

// Controller tuning constants, fixed by §4.7.
const (
	MinRepetitions     = 1
	InitialRepetitions = 10
	MaxRepetitions     = 50
	ThresholdMillis    = 100
	Step               = 5
)

// State is the adaptive controller's own record (§3 WalkState:
// "Only AdaptiveWalk mutates current_repetitions"). ConsecError is
// tracked per §4.7 but, per the spec's own REDESIGN note, never used
// to gate behaviour — it exists purely as an observable counter.
type State struct {
	CurrentRepetitions int
	ConsecSuccess      int
	ConsecError        int
	AvgRTT             time.Duration
}

func newState() *State {
	return &State{CurrentRepetitions: InitialRepetitions}
}

// Options configures one adaptive walk: MaxEntries caps the accumulated
// result (zero falls back to bulkwalk.DefaultMaxEntries) and Op is the
// base of every GETBULK round trip the walk issues.
type Options struct {
	MaxEntries int
	Op         ops.Options
}

// Run executes AdaptiveWalk: one GETBULK round trip per step, sized by
// the controller's current repetition count, feeding that single
// step's measured round trip and returned count back into the
// controller (§4.7: "after each step with measured round-trip rtt and
// returned count n") before issuing the next one - until a step yields
// nothing new, MaxEntries is reached, or a terminal error persists at
// MinRepetitions. This is deliberately not a call into bulkwalk.Run:
// that loops internally until exhaustion at a fixed repetition count,
// which would let many round trips pass between controller
// re-evaluations instead of one.
func Run(ctx context.Context, o *ops.SingleOps, dst *net.UDPAddr, root string, opts Options) ([]varbind.Varbind, error) {
	st := newState()

	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = bulkwalk.DefaultMaxEntries
	}

	r, err := oid.Parse(root)
	if err != nil {
		return nil, err
	}

	var acc []varbind.Varbind
	cursor := r
	remaining := maxEntries

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return acc, err
		}

		reps := st.CurrentRepetitions
		if remaining < reps {
			reps = remaining
		}

		stepOpts := opts.Op
		stepOpts.MaxRepetitions = reps

		start := time.Now()
		vbs, err := o.GetBulk(ctx, dst, []string{cursor.String()}, stepOpts)
		rtt := time.Since(start)

		if err != nil {
			if isNormalTermination(err) {
				return acc, nil
			}
			if st.CurrentRepetitions == MinRepetitions {
				return acc, err
			}
			st.onError()
			continue
		}

		inScope := make([]varbind.Varbind, 0, len(vbs))
		for _, vb := range vbs {
			if vb.Type.IsException() {
				break
			}
			if !r.IsPrefixOf(vb.OID) {
				break
			}
			inScope = append(inScope, vb)
		}

		st.onSuccess(rtt, len(inScope))

		if len(inScope) == 0 {
			return acc, nil
		}

		if len(inScope) > remaining {
			inScope = inScope[:remaining]
		}

		acc = append(acc, inScope...)
		remaining -= len(inScope)
		cursor = inScope[len(inScope)-1].OID
	}

	return acc, nil
}

// isNormalTermination mirrors bulkwalk's own terminal-vs-error split
// (§4.6/§4.5: end-of-MIB-view and no-such-name end the walk, they are
// not surfaced as errors).
func isNormalTermination(err error) bool {
	e, ok := err.(liberr.Error)
	if !ok {
		return false
	}
	return e.IsCode(liberr.ErrNoSuchName.CodeError) || e.IsCode(liberr.ErrAllExceptions.CodeError)
}

// onSuccess applies the §4.7 feedback rule after a successful step
// that returned n varbinds in rtt.
func (s *State) onSuccess(rtt time.Duration, n int) {
	threshold := ThresholdMillis * time.Millisecond
	switch {
	case rtt > threshold && s.CurrentRepetitions > MinRepetitions:
		s.CurrentRepetitions = max(MinRepetitions, s.CurrentRepetitions-Step)
		s.ConsecSuccess = 0
		s.ConsecError++
	case rtt < threshold/2 && n == s.CurrentRepetitions && s.CurrentRepetitions < MaxRepetitions:
		s.CurrentRepetitions = min(MaxRepetitions, s.CurrentRepetitions+Step)
		s.ConsecSuccess++
		s.ConsecError = 0
	default:
		s.ConsecSuccess++
		s.ConsecError = 0
	}
	s.AvgRTT = (s.AvgRTT + rtt) / 2
}

// onError applies the §4.7 rule for a failed step: halve the
// repetition count, floored at MinRepetitions.
func (s *State) onError() {
	s.CurrentRepetitions = max(MinRepetitions, s.CurrentRepetitions/2)
}

// BenchmarkResult is the outcome of Benchmark (§4.7 benchmarking
// sub-mode).
type BenchmarkResult struct {
	Optimal           int
	MeanLatency       time.Duration
	AllSamples        map[int][]time.Duration
	RecommendedTimeout time.Duration
}

// Benchmark runs a plain GetBulk (not a full walk) at each of sizes,
// iterations times per size, drops errored samples, and picks the
// size with the lowest mean latency.
func Benchmark(ctx context.Context, o *ops.SingleOps, dst *net.UDPAddr, root string, sizes []int, iterations int, opOpts ops.Options) (BenchmarkResult, error) {
	if iterations <= 0 {
		iterations = 1
	}

	// dropped collects every errored sample's cause rather than just
	// discarding it, so a benchmark that fails outright (every size,
	// every iteration) surfaces what actually went wrong instead of a
	// generic timeout masking a refused connection or bad community.
	dropped := pool.New()

	samples := make(map[int][]time.Duration, len(sizes))
	for _, size := range sizes {
		for i := 0; i < iterations; i++ {
			if err := ctx.Err(); err != nil {
				return BenchmarkResult{}, err
			}

			opts := opOpts
			opts.MaxRepetitions = size
			start := time.Now()
			_, err := o.GetBulk(ctx, dst, []string{root}, opts)
			if err != nil {
				dropped.Add(err)
				continue
			}
			samples[size] = append(samples[size], time.Since(start))
		}
	}

	optimal := 0
	var bestMean time.Duration
	for size, ss := range samples {
		if len(ss) == 0 {
			continue
		}
		mean := meanOf(ss)
		if optimal == 0 || mean < bestMean {
			optimal = size
			bestMean = mean
		}
	}
	if optimal == 0 {
		if err := dropped.Error(); err != nil {
			return BenchmarkResult{}, err
		}
		return BenchmarkResult{}, liberr.ErrTimeout.Error()
	}

	recommended := 3 * bestMean
	if recommended < 3*time.Second {
		recommended = 3 * time.Second
	}

	return BenchmarkResult{
		Optimal:            optimal,
		MeanLatency:        bestMean,
		AllSamples:         samples,
		RecommendedTimeout: recommended,
	}, nil
}

func meanOf(ds []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}
