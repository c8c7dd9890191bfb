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

package snmpclient

import (
	"context"
	"sync"
	"time"

	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/multi"
	"github.com/nabbar/snmpmgr/ops"
	"github.com/nabbar/snmpmgr/varbind"
)

// Request is the facade's execute_mixed input (§6): like multi.Request,
// but addressed by an unresolved target string instead of a concrete
// net.UDPAddr, so callers never need to resolve targets themselves.
type Request struct {
	TargetStr   string
	Kind        multi.OpKind
	Names       []string
	SetVarbinds []varbind.Varbind
	Op          ops.Options
	Timeout     time.Duration
	WalkTimeout time.Duration
}

// ExecuteMixed resolves every request's target, groups requests by the
// engine the Router would pick for each (or runs them all against the
// sole default engine in single-engine mode), and fans them out via
// multi.Run with bounded concurrency (§4.9). Results are returned in
// the same order as reqs regardless of completion order or which
// engine served them.
func (c *Client) ExecuteMixed(ctx context.Context, reqs []Request, opts multi.Options) ([]multi.Result, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if opts.Log == nil {
		opts.Log = c.log
	}

	type bucketed struct {
		idx     int
		req     multi.Request
		release func(error)
	}

	buckets := make(map[*ops.SingleOps][]bucketed)
	var order []*ops.SingleOps
	results := make([]multi.Result, len(reqs))

	for i, r := range reqs {
		dst, err := c.resolveTarget(ctx, r.TargetStr)
		if err != nil {
			results[i] = multi.Result{Err: err}
			continue
		}

		o, release, err := c.pick(r.TargetStr)
		if err != nil {
			results[i] = multi.Result{Err: err}
			continue
		}

		mr := multi.Request{
			Target:      dst,
			Kind:        r.Kind,
			Names:       r.Names,
			SetVarbinds: r.SetVarbinds,
			Op:          r.Op,
			Timeout:     r.Timeout,
			WalkTimeout: r.WalkTimeout,
		}
		if _, ok := buckets[o]; !ok {
			order = append(order, o)
		}
		buckets[o] = append(buckets[o], bucketed{idx: i, req: mr, release: release})
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for _, o := range order {
		o, group := o, buckets[o]
		wg.Add(1)
		go func() {
			defer wg.Done()

			subReqs := make([]multi.Request, len(group))
			for i, b := range group {
				subReqs[i] = b.req
			}

			subResults, err := multi.Run(ctx, o, subReqs, opts)

			mu.Lock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			mu.Unlock()

			for i, b := range group {
				var res multi.Result
				if i < len(subResults) {
					res = subResults[i]
				} else {
					res = multi.Result{Err: liberr.ErrMultiTaskFailed.Errorf("missing result")}
				}
				results[b.idx] = res
				b.release(res.Err)
			}
		}()
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed == len(results) && firstErr != nil {
		return results, firstErr
	}
	return results, nil
}

// targetRequest is a convenience builder shared by the Multi variants
// below.
func targetRequest(targetStr string, kind multi.OpKind, names []string) Request {
	return Request{TargetStr: targetStr, Kind: kind, Names: names}
}

// GetMulti fans a GET out across targets for the same oid names (§6
// get_multi).
func (c *Client) GetMulti(ctx context.Context, targets []string, names []string, opts multi.Options) ([]multi.Result, error) {
	reqs := make([]Request, len(targets))
	for i, t := range targets {
		r := targetRequest(t, multi.OpGet, names)
		reqs[i] = r
	}
	return c.ExecuteMixed(ctx, reqs, opts)
}

// GetBulkMulti fans a GET-BULK out across targets (§6 get_bulk_multi).
func (c *Client) GetBulkMulti(ctx context.Context, targets []string, names []string, opts multi.Options) ([]multi.Result, error) {
	reqs := make([]Request, len(targets))
	for i, t := range targets {
		reqs[i] = targetRequest(t, multi.OpGetBulk, names)
	}
	return c.ExecuteMixed(ctx, reqs, opts)
}

// WalkMulti fans a GETNEXT walk out across targets from the same root
// (§6 walk_multi).
func (c *Client) WalkMulti(ctx context.Context, targets []string, root string, opts multi.Options) ([]multi.Result, error) {
	reqs := make([]Request, len(targets))
	for i, t := range targets {
		reqs[i] = targetRequest(t, multi.OpWalk, []string{root})
	}
	return c.ExecuteMixed(ctx, reqs, opts)
}

// WalkTableMulti fans a GETBULK table walk out across targets for the
// same table OID (§6 walk_table_multi). Table reshaping is left to the
// caller (table.ToTable on each Result's Varbinds) since a table.View
// is not part of multi.Result's shape.
func (c *Client) WalkTableMulti(ctx context.Context, targets []string, tableOID string, opts multi.Options) ([]multi.Result, error) {
	reqs := make([]Request, len(targets))
	for i, t := range targets {
		reqs[i] = targetRequest(t, multi.OpWalkTable, []string{tableOID})
	}
	return c.ExecuteMixed(ctx, reqs, opts)
}
