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

package multi

import "net"

// WithTarget pairs a Result with the target/name it was requested
// for, explicitly - the with_targets return shape of §4.9.
type WithTarget struct {
	Target string
	Name   string
	Result Result
}

// Key is a map return shape's key: (target, oid).
type Key struct {
	Target string
	Name   string
}

// ToList is the identity reshape: Run's own []Result already is the
// list shape.
func ToList(results []Result) []Result {
	return results
}

// ToWithTargets reshapes results into the with_targets form.
func ToWithTargets(results []Result) []WithTarget {
	out := make([]WithTarget, len(results))
	for i, r := range results {
		out[i] = WithTarget{Target: targetString(r.Target), Name: r.Name, Result: r}
	}
	return out
}

// ToMap reshapes results into the map form, keyed by (target, oid).
// A batch with duplicate (target, oid) pairs loses all but the last
// matching result - the same trade-off the spec's map shape implies
// by using (target, oid) as the sole key.
func ToMap(results []Result) map[Key]Result {
	out := make(map[Key]Result, len(results))
	for _, r := range results {
		out[Key{Target: targetString(r.Target), Name: r.Name}] = r
	}
	return out
}

// Shape applies the requested ReturnFormat, returning one of
// []Result, []WithTarget or map[Key]Result.
func Shape(results []Result, format ReturnFormat) interface{} {
	switch format {
	case FormatWithTargets:
		return ToWithTargets(results)
	case FormatMap:
		return ToMap(results)
	default:
		return ToList(results)
	}
}

func targetString(addr *net.UDPAddr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
