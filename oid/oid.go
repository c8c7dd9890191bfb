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

// Package oid implements the canonical OID representation used across the
// SNMP engine: an ordered sequence of unsigned integers. String form and
// symbolic names exist only at the boundary (see Normalize); internal
// code never branches on representation.
package oid

import (
	"fmt"
	"strconv"
	"strings"

	liberr "github.com/nabbar/snmpmgr/errors"
)

// OID is the canonical internal representation: a non-empty ordered
// sequence of unsigned integers naming a node in the SNMP tree.
type OID []uint32

// Resolver resolves a symbolic MIB name (optionally with an instance
// suffix) to its integer sequence. Satisfied by the mib package; kept
// here as a narrow interface so oid does not import mib.
type Resolver interface {
	Resolve(name string) (OID, error)
}

// Parse converts a dotted-decimal string ("1.3.6.1.2.1.1.1.0") into an
// OID. Leading/trailing dots are tolerated; any non-numeric or empty
// component is rejected.
func Parse(s string) (OID, error) {
	orig := s
	s = strings.Trim(s, ".")
	if s == "" {
		return nil, liberr.ErrInvalidOID.Errorf("empty string")
	}

	parts := strings.Split(s, ".")
	out := make(OID, 0, len(parts))

	for _, p := range parts {
		if p == "" {
			return nil, liberr.ErrInvalidOID.Errorf("empty component in " + strconv.Quote(orig))
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, liberr.ErrInvalidOID.Error(err)
		}
		out = append(out, uint32(n))
	}

	return out, nil
}

// MustParse is Parse but panics on error; intended for static OID
// literals (e.g. well-known roots), never for user input.
func MustParse(s string) OID {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

// String renders the OID in dotted-decimal form.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}

	var b strings.Builder
	for i, n := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(n), 10))
	}
	return b.String()
}

// Clone returns an independent copy, so callers mutating a returned OID
// never corrupt shared state (root OIDs stored in WalkState, etc.).
func (o OID) Clone() OID {
	c := make(OID, len(o))
	copy(c, o)
	return c
}

// Equal reports whether two OIDs have identical components.
func (o OID) Equal(other OID) bool {
	return Compare(o, other) == 0
}

// Compare implements the lexicographic ordering GETNEXT relies on:
// negative if o < other, zero if equal, positive if o > other.
func Compare(a, b OID) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// IsPrefixOf reports whether root is a strict or non-strict prefix of
// o (root ⊑ o in the spec's notation): every component of root matches
// the corresponding component of o, and o is at least as long.
func (root OID) IsPrefixOf(o OID) bool {
	if len(root) > len(o) {
		return false
	}
	for i := range root {
		if root[i] != o[i] {
			return false
		}
	}
	return true
}

// StrictlyAfter reports whether o sorts strictly after root under
// lexicographic order — used by Walk's scope check, which additionally
// requires root to actually be a prefix.
func (root OID) StrictlyAfter(o OID) bool {
	return Compare(o, root) > 0
}

// Append returns a new OID with the given integer tail appended,
// without mutating the receiver.
func (o OID) Append(tail ...uint32) OID {
	out := make(OID, 0, len(o)+len(tail))
	out = append(out, o...)
	out = append(out, tail...)
	return out
}

// TrimPrefix removes the leading `prefix` components from o, returning
// the remaining tail. Returns (nil, false) if prefix is not actually a
// prefix of o.
func (o OID) TrimPrefix(prefix OID) (OID, bool) {
	if !prefix.IsPrefixOf(o) {
		return nil, false
	}
	return o[len(prefix):], true
}

// Normalize accepts an OID, a dotted-decimal string, or (when res is
// non-nil) a symbolic MIB name plus optional instance suffix, and
// returns the canonical integer sequence. This is the single entry
// point boundary code should use before handing an OID to the engine;
// internal code never re-branches on representation once normalized.
func Normalize(v interface{}, res Resolver) (OID, error) {
	switch t := v.(type) {
	case OID:
		return t.Clone(), nil
	case []uint32:
		return OID(t).Clone(), nil
	case string:
		if o, err := Parse(t); err == nil {
			return o, nil
		} else if res != nil {
			return res.Resolve(t)
		} else {
			return nil, err
		}
	default:
		return nil, liberr.ErrInvalidOID.Errorf(fmt.Sprintf("unsupported representation %T", v))
	}
}
