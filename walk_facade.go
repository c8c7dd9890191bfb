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
	"net"

	"github.com/nabbar/snmpmgr/adaptive"
	"github.com/nabbar/snmpmgr/bulkwalk"
	"github.com/nabbar/snmpmgr/ops"
	"github.com/nabbar/snmpmgr/table"
	"github.com/nabbar/snmpmgr/varbind"
	"github.com/nabbar/snmpmgr/walk"
)

// Walk runs the SNMPv1-style GETNEXT walk from root against target
// (§6 walk(target, root, opts)).
func (c *Client) Walk(ctx context.Context, targetStr string, root string, opts walk.Options) ([]varbind.Varbind, error) {
	return c.call(ctx, targetStr, func(o *ops.SingleOps, dst *net.UDPAddr) ([]varbind.Varbind, error) {
		return walk.Run(ctx, o, dst, root, opts)
	})
}

// BulkWalkTarget runs the GETBULK walk from root against target. Named
// distinctly from WalkTable: §6 lists both `walk_table` (table-shaped
// reshaping over a GETBULK-driven walk) and the GETBULK walk itself as
// the mechanism `adaptive_walk`/benchmarking build on; this method
// exposes the latter directly for callers that want raw bulk-walked
// varbinds without table reshaping.
func (c *Client) BulkWalkTarget(ctx context.Context, targetStr string, root string, opts bulkwalk.Options) ([]varbind.Varbind, error) {
	return c.call(ctx, targetStr, func(o *ops.SingleOps, dst *net.UDPAddr) ([]varbind.Varbind, error) {
		return bulkwalk.Run(ctx, o, dst, root, opts)
	})
}

// WalkTable runs a GETBULK walk over tableOID and reshapes the result
// into a table.View (§6 walk_table(target, table_oid, opts)).
func (c *Client) WalkTable(ctx context.Context, targetStr string, tableOID string, opts bulkwalk.Options) (*table.View, error) {
	vbs, err := c.BulkWalkTarget(ctx, targetStr, tableOID, opts)
	if err != nil && vbs == nil {
		return nil, err
	}
	view, terr := table.ToTable(vbs, tableOID)
	if terr != nil {
		return nil, terr
	}
	return view, err
}

// AdaptiveWalk runs the feedback-controlled bulk walk from root
// against target (§6 adaptive_walk(target, root, opts)).
func (c *Client) AdaptiveWalk(ctx context.Context, targetStr string, root string, opts adaptive.Options) ([]varbind.Varbind, error) {
	return c.call(ctx, targetStr, func(o *ops.SingleOps, dst *net.UDPAddr) ([]varbind.Varbind, error) {
		return adaptive.Run(ctx, o, dst, root, opts)
	})
}

// BenchmarkDevice measures testOID's GETBULK latency at each of sizes
// against target and returns the recommended repetition count and
// timeout (§6 benchmark_device(target, test_oid, opts)).
func (c *Client) BenchmarkDevice(ctx context.Context, targetStr string, testOID string, sizes []int, iterations int, opOpts ops.Options) (adaptive.BenchmarkResult, error) {
	dst, err := c.resolveTarget(ctx, targetStr)
	if err != nil {
		return adaptive.BenchmarkResult{}, err
	}

	o, release, err := c.pick(targetStr)
	if err != nil {
		return adaptive.BenchmarkResult{}, err
	}

	var result adaptive.BenchmarkResult
	berr := c.withBreaker(targetStr, func() error {
		var e error
		result, e = adaptive.Benchmark(ctx, o, dst, testOID, sizes, iterations, opOpts)
		return e
	})
	release(berr)
	return result, berr
}

// NewRowCollector starts a streaming table collector for tableOID, for
// callers that want rows emitted incrementally while a walk is still
// running rather than waiting for WalkTable to finish (§5
// "table_stream").
func NewRowCollector(tableOID string) (*table.RowCollector, error) {
	return table.NewRowCollector(tableOID)
}
