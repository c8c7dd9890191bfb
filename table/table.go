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

// Package table implements TableShape (§4.8): reshaping a flat walk
// result into the TableView of §3 (index -> column -> value) plus the
// derived views and statistics the spec lists as "extra utilities".
package table

import (
	"sort"
	"strconv"
	"strings"

	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/oid"
	"github.com/nabbar/snmpmgr/varbind"
)

// Index is the canonical map key for a table row: the dotted-decimal
// form of the instance tail following the table's entry OID (single
// integer index or composite index, both render the same way).
type Index string

func indexOf(parts []uint32) Index {
	return Index(oid.OID(parts).String())
}

// Parts parses the Index back into its integer components.
func (i Index) Parts() ([]uint32, error) {
	o, err := oid.Parse(string(i))
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Row is one table row: column number -> the varbind observed for
// that column/index pair.
type Row map[uint32]varbind.Varbind

// IndexedRow pairs a Row with the Index it was grouped under, for
// callers that want an ordered list rather than a map.
type IndexedRow struct {
	Index Index
	Row   Row
}

// View is the reshaped table (§3 TableView) plus bookkeeping the
// utilities below need: how many (index, column) collisions were
// overwritten while building it (duplicate detection) and the full
// set of columns observed across every row (used by CompletenessRatio
// and column-oriented utilities).
type View struct {
	TableOID    oid.OID
	Rows        map[Index]Row
	Duplicates  int
	AllColumns  map[uint32]struct{}
}

// ToTable reshapes a flat varbind list against table OID T (§4.8).
// Only varbinds satisfying `oid ⊒ T` with at least three extra
// components `[1, column, index...]` are considered table data;
// anything shorter or outside T is silently skipped (a flat walk
// result commonly mixes scalar and tabular OIDs).
func ToTable(vbs []varbind.Varbind, tableOID string) (*View, error) {
	t, err := oid.Parse(tableOID)
	if err != nil {
		return nil, err
	}

	v := &View{
		TableOID:   t,
		Rows:       make(map[Index]Row),
		AllColumns: make(map[uint32]struct{}),
	}

	for _, vb := range vbs {
		tail, ok := vb.OID.TrimPrefix(t)
		if !ok || len(tail) < 3 {
			continue
		}
		if tail[0] != 1 {
			continue
		}
		column := tail[1]
		idx := indexOf(tail[2:])

		row, exists := v.Rows[idx]
		if !exists {
			row = make(Row)
			v.Rows[idx] = row
		}
		if _, dup := row[column]; dup {
			v.Duplicates++
		}
		row[column] = vb
		v.AllColumns[column] = struct{}{}
	}

	return v, nil
}

// Indexes returns every row index, sorted by the underlying integer
// sequence (not by string form, so "10" sorts after "9").
func (v *View) Indexes() []Index {
	out := make([]Index, 0, len(v.Rows))
	for idx := range v.Rows {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := out[i].Parts()
		b, _ := out[j].Parts()
		return oid.Compare(a, b) < 0
	})
	return out
}

// RowSlice returns every row as an IndexedRow, ordered by Indexes.
func (v *View) RowSlice() []IndexedRow {
	idxs := v.Indexes()
	out := make([]IndexedRow, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, IndexedRow{Index: idx, Row: v.Rows[idx]})
	}
	return out
}

// Column extracts one column across every row that has it, keyed by
// index.
func (v *View) Column(col uint32) map[Index]varbind.Varbind {
	out := make(map[Index]varbind.Varbind)
	for idx, row := range v.Rows {
		if vb, ok := row[col]; ok {
			out[idx] = vb
		}
	}
	return out
}

// ReindexByColumn re-keys every row by the stringified value of col
// instead of its numeric table index (§4.8 "key-column re-keying" —
// e.g. re-keying ifTable by ifDescr instead of ifIndex). Rows missing
// col are dropped; a collision on the new key is resolved in favour of
// the row with the lexicographically smaller original Index, for
// determinism.
func ReindexByColumn(v *View, col uint32) map[string]Row {
	out := make(map[string]Row)
	for _, ir := range v.RowSlice() {
		vb, ok := ir.Row[col]
		if !ok {
			continue
		}
		key := valueString(vb)
		if _, exists := out[key]; !exists {
			out[key] = ir.Row
		}
	}
	return out
}

// GroupByColumn groups rows by the stringified value of col (§4.8
// "group-by"); unlike ReindexByColumn, every row is kept.
func GroupByColumn(v *View, col uint32) map[string][]Row {
	out := make(map[string][]Row)
	for _, ir := range v.RowSlice() {
		vb, ok := ir.Row[col]
		if !ok {
			continue
		}
		key := valueString(vb)
		out[key] = append(out[key], ir.Row)
	}
	return out
}

// SortByColumn returns rows ordered by col's numeric value when col is
// numeric, else by its string form; rows missing col sort last.
func SortByColumn(v *View, col uint32, ascending bool) []IndexedRow {
	rows := v.RowSlice()
	sort.SliceStable(rows, func(i, j int) bool {
		vi, oki := rows[i].Row[col]
		vj, okj := rows[j].Row[col]
		if !oki {
			return false
		}
		if !okj {
			return true
		}
		less := compareValues(vi, vj)
		if ascending {
			return less < 0
		}
		return less > 0
	})
	return rows
}

// ColumnStats is the per-column numeric summary of §4.8.
type ColumnStats struct {
	Count int
	Sum   float64
	Avg   float64
	Min   float64
	Max   float64
}

// ColumnStatsFor computes ColumnStats over every numeric value found
// in column col. Returns ErrInvalidInstance if col carries no numeric
// values at all.
func ColumnStatsFor(v *View, col uint32) (ColumnStats, error) {
	var st ColumnStats
	first := true
	for _, row := range v.Rows {
		vb, ok := row[col]
		if !ok {
			continue
		}
		n, ok := numericValue(vb.Value)
		if !ok {
			continue
		}
		st.Count++
		st.Sum += n
		if first || n < st.Min {
			st.Min = n
		}
		if first || n > st.Max {
			st.Max = n
		}
		first = false
	}
	if st.Count == 0 {
		return ColumnStats{}, liberr.ErrInvalidInstance.Errorf("column " + strconv.FormatUint(uint64(col), 10) + " has no numeric values")
	}
	st.Avg = st.Sum / float64(st.Count)
	return st, nil
}

// CompletenessRatio is the fraction of (index, column) cells present
// out of the theoretical maximum |rows| * |AllColumns| (§4.8). A
// table with every column on every row observed returns 1.0.
func (v *View) CompletenessRatio() float64 {
	expected := len(v.Rows) * len(v.AllColumns)
	if expected == 0 {
		return 0
	}
	present := 0
	for _, row := range v.Rows {
		present += len(row)
	}
	return float64(present) / float64(expected)
}

// InferColumnType reports the varbind.Type shared by every observed
// value in col, or false if the column carries more than one type
// (e.g. a buggy agent mixing encodings, or an empty column).
func InferColumnType(v *View, col uint32) (varbind.Type, bool) {
	var t varbind.Type
	seen := false
	for _, row := range v.Rows {
		vb, ok := row[col]
		if !ok {
			continue
		}
		if !seen {
			t = vb.Type
			seen = true
			continue
		}
		if vb.Type != t {
			return 0, false
		}
	}
	return t, seen
}

func valueString(vb varbind.Varbind) string {
	if s, ok := vb.Value.(string); ok {
		return s
	}
	if n, ok := numericValue(vb.Value); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return vb.String()
}

func compareValues(a, b varbind.Varbind) int {
	an, aok := numericValue(a.Value)
	bn, bok := numericValue(b.Value)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(valueString(a), valueString(b))
}

// numericValue coerces a decoded varbind value to float64 when it is
// one of the wire-numeric types (int64, uint32, uint64 — see
// codec/ber.go's decodeValue for the exact Go types each SMI numeric
// tag decodes to).
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
