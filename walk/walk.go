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

// Package walk implements the SNMPv1-style GETNEXT walk (§4.5): a
// state machine (init -> running -> done) looping SingleOps.GetNext
// from a root OID until the agent returns something out of scope, the
// iteration budget is exhausted, or a terminal error occurs.
package walk

import (
	"context"
	"net"

	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/oid"
	"github.com/nabbar/snmpmgr/ops"
	"github.com/nabbar/snmpmgr/varbind"
)

// DefaultMaxIterations bounds a walk with no explicit budget, guarding
// against an agent that never terminates the tree.
const DefaultMaxIterations = 10_000

// Options configures one walk. Zero MaxIterations falls back to
// DefaultMaxIterations. Op is forwarded unchanged to every GetNext
// call; only the Version/Community/Timeout/Retries fields are used.
type Options struct {
	MaxIterations int
	Op            ops.Options
}

// State is the WalkState of §3: root and cursor OID, the varbinds
// collected so far and the remaining iteration budget. Run keeps its
// State internal and returns only the Accumulator, so after a partial
// return the caller sees progress as Run's returned slice.
type State struct {
	Root        oid.OID
	Cursor      oid.OID
	Accumulator []varbind.Varbind
	Remaining   int
}

// Run executes the walk described in §4.5 and returns the varbinds
// collected before completion, together with any terminal error. A
// nil error always means the walk reached "done" through scope exit or
// budget exhaustion; endOfMibView/noSuchName are absorbed into that
// nil-error "done" outcome, not surfaced as errors. On any other
// terminal error, Run returns the partial accumulator alongside the
// error (§8 invariant: "partial accumulator vs error-only on mid-walk
// error" — this package picks the accumulator-plus-error form).
func Run(ctx context.Context, o *ops.SingleOps, dst *net.UDPAddr, root string, opts Options) ([]varbind.Varbind, error) {
	st, err := newState(root, opts)
	if err != nil {
		return nil, err
	}

	for st.Remaining > 0 {
		if err = ctx.Err(); err != nil {
			return st.Accumulator, err
		}

		vbs, err := o.GetNext(ctx, dst, []string{st.Cursor.String()}, opts.Op)
		if err != nil {
			if isNormalTermination(err) {
				return st.Accumulator, nil
			}
			return st.Accumulator, err
		}
		if len(vbs) == 0 {
			return st.Accumulator, nil
		}

		vb := vbs[0]
		if vb.Type.IsException() {
			return st.Accumulator, nil
		}
		if !st.Root.IsPrefixOf(vb.OID) {
			return st.Accumulator, nil
		}

		st.Accumulator = append(st.Accumulator, vb)
		st.Cursor = vb.OID
		st.Remaining--
	}

	return st.Accumulator, nil
}

func newState(root string, opts Options) (*State, error) {
	r, err := oid.Parse(root)
	if err != nil {
		return nil, err
	}

	max := opts.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}

	return &State{Root: r, Cursor: r, Accumulator: nil, Remaining: max}, nil
}

// isNormalTermination reports whether err is one of the two outcomes
// §4.5 treats as ordinary walk completion rather than failure: a v1
// noSuchName status (the agent has nothing left past cursor) or a v2c
// response whose only varbind is an exception (ops collapses an
// all-exception response into ErrAllExceptions).
func isNormalTermination(err error) bool {
	e, ok := err.(liberr.Error)
	if !ok {
		return false
	}
	return e.IsCode(liberr.ErrNoSuchName.CodeError) || e.IsCode(liberr.ErrAllExceptions.CodeError)
}
