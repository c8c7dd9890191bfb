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

// Package mib implements the MibResolver collaborator contract (§6):
// symbolic-name to OID resolution and the reverse, backed by a
// built-in static registry of the standard MIB-II groups plus a
// handful of major enterprise roots. Callers may load additional
// names at runtime via Register.
package mib

import (
	"strconv"
	"strings"
	"sync"

	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/oid"
)

// Resolver is the MibResolver contract from §6.
type Resolver interface {
	Resolve(name string) (oid.OID, error)
	ReverseLookup(o oid.OID) (string, error)
	Register(name string, o oid.OID)
}

// registry is the default Resolver: a concurrent-safe name<->OID map
// seeded with the built-in static registry and open to further
// Register calls (mirrors the teacher's pattern of a sync.RWMutex
// guarding a plain map rather than a sync.Map, since bulk seeding at
// construction time dominates over later writes).
type registry struct {
	mu     sync.RWMutex
	byName map[string]oid.OID
	byOID  map[string]string
}

// New returns the default Resolver, seeded with the built-in names.
func New() Resolver {
	r := &registry{
		byName: make(map[string]oid.OID, len(builtinNames)),
		byOID:  make(map[string]string, len(builtinNames)),
	}
	for name, s := range builtinNames {
		o := oid.MustParse(s)
		r.byName[name] = o
		r.byOID[o.String()] = name
	}
	return r
}

// Register adds or overrides a symbolic name. Last writer wins so
// callers can override a built-in entry (e.g. a custom enterprise
// MIB) without forking the registry.
func (r *registry) Register(name string, o oid.OID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = o.Clone()
	r.byOID[o.String()] = name
}

// Resolve accepts either a bare registered name ("sysDescr") or a
// name with a dotted instance suffix ("sysDescr.0", "ifDescr.1.2"),
// per §6: "Instances are appended as integer tails."
func (r *registry) Resolve(name string) (oid.OID, error) {
	if name == "" {
		return nil, liberr.ErrInvalidName.Errorf("empty name")
	}

	base, suffix := splitInstance(name)

	r.mu.RLock()
	o, ok := r.byName[base]
	r.mu.RUnlock()

	if !ok {
		return nil, liberr.ErrNotFound.Errorf(name)
	}

	if suffix == "" {
		return o.Clone(), nil
	}

	tail, err := parseInstanceSuffix(suffix)
	if err != nil {
		return nil, liberr.ErrInvalidInstance.Errorf(name)
	}

	return o.Append(tail...), nil
}

// ReverseLookup finds the longest registered prefix of o and reports
// it together with the remaining instance tail, e.g.
// 1.3.6.1.2.1.1.1.0 -> "sysDescr.0".
func (r *registry) ReverseLookup(o oid.OID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var bestName string
	var bestLen int

	for name, candidate := range r.byName {
		if candidate.IsPrefixOf(o) && len(candidate) > bestLen {
			bestName = name
			bestLen = len(candidate)
		}
	}

	if bestLen == 0 {
		return "", liberr.ErrNotFound.Errorf(o.String())
	}

	if bestLen == len(o) {
		return bestName, nil
	}

	tail, _ := o.TrimPrefix(o[:bestLen])
	return bestName + "." + joinUint32(tail), nil
}

func splitInstance(name string) (base, suffix string) {
	i := strings.IndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func parseInstanceSuffix(s string) ([]uint32, error) {
	parts := strings.Split(s, ".")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, uint32(n))
	}
	return out, nil
}

func joinUint32(vs []uint32) string {
	var b strings.Builder
	for i, v := range vs {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(v), 10))
	}
	return b.String()
}
