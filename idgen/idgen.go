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

// Package idgen implements the IdGen collaborator (§4.1): a monotonic,
// wrapping request-id allocator safe for concurrent callers. Ids are
// issued in [1, MAX] and wrap back to 1 after MAX. A bitset tracks ids
// currently outstanding (registered with an Engine but not yet
// released) so Next can skip a collision in O(1) instead of the caller
// having to scan a pending map.
package idgen

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// MaxID is the largest request-id ever issued. §4.1 allows anything
// that "fits the protocol field comfortably, e.g. ~10^6 or 2^31-1";
// 10^6 is chosen here so the outstanding-id bitset stays a fixed,
// small allocation (~122 KiB) regardless of how many ids are ever
// issued over the process lifetime.
const MaxID uint32 = 1_000_000

// Generator issues and tracks outstanding request-ids.
type Generator struct {
	mu    sync.Mutex
	next  uint32
	inUse *bitset.BitSet
}

// New returns a Generator ready to issue ids starting at 1.
func New() *Generator {
	return &Generator{
		next:  1,
		inUse: bitset.New(uint(MaxID) + 1),
	}
}

// Next returns the next free id in [1, MaxID], wrapping to 1 after
// MaxID, and skipping any id still marked outstanding by a prior
// Release-less Next (§4.1: "If a duplicate id is generated while its
// predecessor is still pending, IdGen MUST skip it"). The returned id
// is marked outstanding; callers must call Release once the
// correlated exchange completes (response, timeout, or cancellation).
func (g *Generator) Next() uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.next
	for g.inUse.Test(uint(id)) {
		id = g.advance(id)
	}
	g.inUse.Set(uint(id))
	g.next = g.advance(id)
	return id
}

// Release marks id free for reuse. Idempotent.
func (g *Generator) Release(id uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inUse.Clear(uint(id))
}

// Outstanding reports how many ids are currently marked in use.
func (g *Generator) Outstanding() uint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inUse.Count()
}

func (g *Generator) advance(id uint32) uint32 {
	if id >= MaxID {
		return 1
	}
	return id + 1
}
