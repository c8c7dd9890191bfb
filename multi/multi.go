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

// Package multi implements Multi (§4.9): fanning a batch of requests -
// possibly of different operation kinds, per execute_mixed - out
// across targets with a bounded concurrency cap, preserving input
// order in the result set regardless of completion order.
package multi

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/nabbar/snmpmgr/adaptive"
	"github.com/nabbar/snmpmgr/bulkwalk"
	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/logger"
	"github.com/nabbar/snmpmgr/ops"
	"github.com/nabbar/snmpmgr/varbind"
	"github.com/nabbar/snmpmgr/walk"
)

// OpKind selects which SingleOps/Walk family operation a Request runs,
// so execute_mixed can batch different kinds together.
type OpKind int

const (
	OpGet OpKind = iota
	OpGetNext
	OpGetBulk
	OpSet
	OpWalk
	OpBulkWalk
	OpWalkTable
	OpAdaptiveWalk
)

// isWalk reports whether k runs under the walk safety timer
// (WalkTimeout) instead of the per-task timeout+margin one (§4.9: "this
// difference is mandatory").
func (k OpKind) isWalk() bool {
	switch k {
	case OpWalk, OpBulkWalk, OpWalkTable, OpAdaptiveWalk:
		return true
	}
	return false
}

// Request is one unit of work in a batch. Names carries the OID(s) for
// get/get_next/get_bulk and the walk root for the walk kinds; SetVarbinds
// is used only for OpSet. Timeout/WalkTimeout are per-request overrides;
// non-positive values fall back to the batch's Options.
type Request struct {
	Target      *net.UDPAddr
	Kind        OpKind
	Names       []string
	SetVarbinds []varbind.Varbind
	Op          ops.Options
	Timeout     time.Duration
	WalkTimeout time.Duration
}

// ReturnFormat selects the shape Shape() produces from a Run result
// (§4.9).
type ReturnFormat int

const (
	FormatList ReturnFormat = iota
	FormatWithTargets
	FormatMap
)

// DefaultMaxConcurrent is max_concurrent's default (§4.9).
const DefaultMaxConcurrent = 10

// DefaultWalkTimeout is the "safe maximum" walk safety timer used when
// neither a request nor the batch specifies one (§4.9: "≤ 30 minutes").
const DefaultWalkTimeout = 30 * time.Minute

// safetyMargin pads a non-walk task's safety timer past its own
// per-PDU timeout, so the PDU-level timeout is always what fires first
// in the healthy case.
const safetyMargin = 2 * time.Second

// Options are the batch-wide settings a Request falls back to.
type Options struct {
	Timeout       time.Duration
	MaxConcurrent int
	WalkTimeout   time.Duration

	// Log supplies the Logger this batch's lines are tagged with; a
	// nil Log falls back to logger.Default.
	Log logger.FuncLog
}

// Result is one task's outcome, aligned by index with its Request.
type Result struct {
	Target   *net.UDPAddr
	Name     string
	Varbinds []varbind.Varbind
	Err      error
}

// Run executes reqs with bounded concurrency (Options.MaxConcurrent,
// default DefaultMaxConcurrent) and returns one Result per request, in
// input order regardless of completion order (§5 ordering guarantee).
//
// The returned error is nil unless every request in the batch failed,
// in which case it is a go-multierror aggregating every task error -
// a systemic signal (agent/network down) distinct from the ordinary
// case of a few targets failing among many, which is already visible
// per-Result without needing a combined error.
func Run(ctx context.Context, o *ops.SingleOps, reqs []Request, opts Options) ([]Result, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	globalTimeout := opts.Timeout
	if globalTimeout <= 0 {
		globalTimeout = 3 * time.Second
	}
	globalWalkTimeout := opts.WalkTimeout
	if globalWalkTimeout <= 0 {
		globalWalkTimeout = DefaultWalkTimeout
	}

	log := logger.Default
	if opts.Log != nil {
		log = opts.Log
	}
	lg := log().WithFields(logger.Fields{"batch_id": uuid.New().String(), "batch_size": len(reqs)})
	lg.Debug("batch started", nil, nil)

	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make([]Result, len(reqs))

	var wg sync.WaitGroup
	for i := range reqs {
		i, req := i, reqs[i]

		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{Target: req.Target, Err: classify(err)}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			res := execute(ctx, o, req, globalTimeout, globalWalkTimeout)
			results[i] = res
			if res.Err != nil {
				lg.Warn("task failed", logger.Fields{"target": targetString(req.Target)}, res.Err)
			}
		}()
	}
	wg.Wait()

	failed := 0
	var merr *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			failed++
			merr = multierror.Append(merr, r.Err)
		}
	}
	if failed == len(results) {
		return results, merr.ErrorOrNil()
	}
	return results, nil
}

func execute(ctx context.Context, o *ops.SingleOps, req Request, globalTimeout, globalWalkTimeout time.Duration) (res Result) {
	res = Result{Target: req.Target}
	if len(req.Names) > 0 {
		res.Name = req.Names[0]
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = liberr.ErrMultiTaskFailed.Errorf(panicMessage(r))
		}
	}()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = globalTimeout
	}

	var safety time.Duration
	if req.Kind.isWalk() {
		safety = req.WalkTimeout
		if safety <= 0 {
			safety = globalWalkTimeout
		}
	} else {
		safety = timeout + safetyMargin
	}

	taskCtx, cancel := context.WithTimeout(ctx, safety)
	defer cancel()

	opOpts := req.Op
	opOpts.Timeout = timeout

	vbs, err := dispatch(taskCtx, o, req, opOpts)
	res.Varbinds = vbs
	res.Err = classify(err)
	return res
}

func dispatch(ctx context.Context, o *ops.SingleOps, req Request, opOpts ops.Options) ([]varbind.Varbind, error) {
	root := ""
	if len(req.Names) > 0 {
		root = req.Names[0]
	}

	switch req.Kind {
	case OpGet:
		return o.Get(ctx, req.Target, req.Names, opOpts)
	case OpGetNext:
		return o.GetNext(ctx, req.Target, req.Names, opOpts)
	case OpGetBulk:
		return o.GetBulk(ctx, req.Target, req.Names, opOpts)
	case OpSet:
		return o.Set(ctx, req.Target, req.SetVarbinds, opOpts)
	case OpWalk:
		return walk.Run(ctx, o, req.Target, root, walk.Options{Op: opOpts})
	case OpBulkWalk, OpWalkTable:
		return bulkwalk.Run(ctx, o, req.Target, root, bulkwalk.Options{Op: opOpts})
	case OpAdaptiveWalk:
		return adaptive.Run(ctx, o, req.Target, root, adaptive.Options{Op: opOpts})
	default:
		return nil, liberr.ErrMultiTaskFailed.Errorf("unknown op kind")
	}
}

// classify folds a task's raw error into the §4.9 error surface:
// timeout for anything tied to the task's own deadline (its safety
// timer or, same thing from Multi's vantage point, a per-PDU timeout
// surviving every retry), network_error for a transport-level failure
// the underlying op never turned into a protocol Error, and the
// protocol/user Error unchanged otherwise - a caller distinguishing
// NoSuchName from BadValue still can. task_failed is reserved for a
// recovered panic, applied in execute's deferred recover.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return liberr.ErrMultiTaskTimeout.Error()
	}
	if e, ok := err.(liberr.Error); ok {
		if e.IsCode(liberr.ErrTimeout.CodeError) {
			return liberr.ErrMultiTaskTimeout.Error()
		}
		return err
	}
	return liberr.ErrMultiNetworkError.Errorf(err.Error())
}

func panicMessage(r interface{}) string {
	if e, ok := r.(error); ok {
		return e.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "panic in task"
}
