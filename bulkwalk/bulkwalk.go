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

// Package bulkwalk implements the GETBULK walk (§4.6): like walk, but
// each round trip returns a batch of varbinds instead of one, and the
// loop trims the batch to what is still in scope.
package bulkwalk

import (
	"context"
	"net"

	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/oid"
	"github.com/nabbar/snmpmgr/ops"
	"github.com/nabbar/snmpmgr/varbind"
)

// DefaultRepetitions is the max_repetitions used when Options.Repetitions
// is unset.
const DefaultRepetitions = 10

// DefaultMaxEntries bounds an unbounded-sized walk against a
// runaway agent.
const DefaultMaxEntries = 100_000

// Options configures one bulk walk. Zero Repetitions/MaxEntries fall
// back to the package defaults.
type Options struct {
	Repetitions int
	MaxEntries  int
	Op          ops.Options
}

// State mirrors walk.State for the GETBULK loop (§3 WalkState).
type State struct {
	Root        oid.OID
	Cursor      oid.OID
	Accumulator []varbind.Varbind
	Remaining   int
}

// Run executes the GETBULK loop of §4.6. Each step requests
// min(remaining budget, configured repetitions) repetitions, keeps
// only the varbinds still in scope under root, and stops as soon as a
// step yields nothing new. Duplicate suppression is deliberately not
// performed (§4.6: "callers that care can uniq after the fact").
func Run(ctx context.Context, o *ops.SingleOps, dst *net.UDPAddr, root string, opts Options) ([]varbind.Varbind, error) {
	r, err := oid.Parse(root)
	if err != nil {
		return nil, err
	}

	reps := opts.Repetitions
	if reps <= 0 {
		reps = DefaultRepetitions
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	st := &State{Root: r, Cursor: r, Remaining: maxEntries}

	for st.Remaining > 0 {
		if err = ctx.Err(); err != nil {
			return st.Accumulator, err
		}

		batch := reps
		if st.Remaining < batch {
			batch = st.Remaining
		}

		stepOpts := opts.Op
		stepOpts.MaxRepetitions = batch

		vbs, err := o.GetBulk(ctx, dst, []string{st.Cursor.String()}, stepOpts)
		if err != nil {
			if isNormalTermination(err) {
				return st.Accumulator, nil
			}
			return st.Accumulator, err
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

		if len(inScope) == 0 {
			return st.Accumulator, nil
		}

		if len(inScope) > st.Remaining {
			inScope = inScope[:st.Remaining]
		}

		st.Accumulator = append(st.Accumulator, inScope...)
		st.Cursor = inScope[len(inScope)-1].OID
		st.Remaining -= len(inScope)
	}

	return st.Accumulator, nil
}

func isNormalTermination(err error) bool {
	e, ok := err.(liberr.Error)
	if !ok {
		return false
	}
	return e.IsCode(liberr.ErrNoSuchName.CodeError) || e.IsCode(liberr.ErrAllExceptions.CodeError)
}
