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

package table

import (
	"sort"
	"sync"

	"github.com/nabbar/snmpmgr/oid"
	"github.com/nabbar/snmpmgr/varbind"
)

// RowCollector incrementally groups varbinds from a live walk into
// rows, for the table_stream use case named in §5 (a table reshaped
// while the walk is still running, not after it finishes).
//
// A streaming collector cannot know a table's full column set until
// the walk ends, so "complete" is necessarily relative to what has
// been observed so far: a row is emitted, exactly once, the moment it
// holds a value for every column seen anywhere in the table up to
// that point. This means a row can be emitted before every column a
// well-behaved agent will eventually send for it has arrived (a row
// touched only by the table's first column looks "complete" the
// instant that column arrives, since no other column is known yet) —
// an inherent limitation of emitting before the walk finishes, not a
// bug; Flush exists precisely so nothing is ever silently dropped.
type RowCollector struct {
	mu         sync.Mutex
	tableOID   oid.OID
	rows       map[Index]Row
	order      []Index
	allColumns map[uint32]struct{}
	emitted    map[Index]bool
}

// NewRowCollector starts a collector for table OID T.
func NewRowCollector(tableOID string) (*RowCollector, error) {
	t, err := oid.Parse(tableOID)
	if err != nil {
		return nil, err
	}
	return &RowCollector{
		tableOID:   t,
		rows:       make(map[Index]Row),
		allColumns: make(map[uint32]struct{}),
		emitted:    make(map[Index]bool),
	}, nil
}

// Add ingests one varbind from the walk and returns the row it just
// completed, if any (nil slice otherwise — callers should treat a nil
// and an empty slice identically).
func (c *RowCollector) Add(vb varbind.Varbind) []IndexedRow {
	c.mu.Lock()
	defer c.mu.Unlock()

	tail, ok := vb.OID.TrimPrefix(c.tableOID)
	if !ok || len(tail) < 3 || tail[0] != 1 {
		return nil
	}
	column := tail[1]
	idx := indexOf(tail[2:])

	row, exists := c.rows[idx]
	if !exists {
		row = make(Row)
		c.rows[idx] = row
		c.order = append(c.order, idx)
	}
	row[column] = vb
	c.allColumns[column] = struct{}{}

	if c.emitted[idx] || len(row) < len(c.allColumns) {
		return nil
	}
	c.emitted[idx] = true
	return []IndexedRow{{Index: idx, Row: row}}
}

// Flush emits every row not yet emitted, complete or not, in index
// order — used once the walk has terminated and no further columns
// will ever arrive.
func (c *RowCollector) Flush() []IndexedRow {
	c.mu.Lock()
	defer c.mu.Unlock()

	idxs := append([]Index(nil), c.order...)
	sort.Slice(idxs, func(i, j int) bool {
		a, _ := idxs[i].Parts()
		b, _ := idxs[j].Parts()
		return oid.Compare(a, b) < 0
	})

	var out []IndexedRow
	for _, idx := range idxs {
		if c.emitted[idx] {
			continue
		}
		c.emitted[idx] = true
		out = append(out, IndexedRow{Index: idx, Row: c.rows[idx]})
	}
	return out
}
