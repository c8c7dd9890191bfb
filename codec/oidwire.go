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

package codec

import (
	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/oid"
)

// encodeOIDContent produces the BER content octets of an OBJECT
// IDENTIFIER value (X.690 §8.19): the first two components collapse
// into a single byte (40*X+Y), every later component is base-128
// encoded with the continuation bit set on all but its last octet.
// Kept independent of the asn1-ber library so the wire format has
// exactly one place it can be gotten wrong.
func encodeOIDContent(o oid.OID) ([]byte, error) {
	if len(o) < 2 {
		return nil, liberr.ErrInvalidOID.Errorf(o.String() + " has fewer than 2 components")
	}

	out := []byte{byte(o[0]*40 + o[1])}
	for _, c := range o[2:] {
		out = append(out, encodeBase128(c)...)
	}
	return out, nil
}

func encodeBase128(v uint32) []byte {
	if v == 0 {
		return []byte{0}
	}

	var tmp []byte
	for v > 0 {
		tmp = append([]byte{byte(v & 0x7f)}, tmp...)
		v >>= 7
	}
	for i := 0; i < len(tmp)-1; i++ {
		tmp[i] |= 0x80
	}
	return tmp
}

// decodeOIDContent is the inverse of encodeOIDContent.
func decodeOIDContent(b []byte) (oid.OID, error) {
	if len(b) == 0 {
		return nil, liberr.ErrInvalidOID.Errorf("empty wire content")
	}

	first := b[0]
	out := oid.OID{uint32(first / 40), uint32(first % 40)}

	var cur uint32
	for _, by := range b[1:] {
		cur = cur<<7 | uint32(by&0x7f)
		if by&0x80 == 0 {
			out = append(out, cur)
			cur = 0
		}
	}

	return out, nil
}
