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

// Package varbind implements the (oid, type, value) triple that flows
// unchanged from Codec through Engine to the caller. Type information
// is never inferred or rewritten here: it is always a tag the Codec
// already decided on.
package varbind

import (
	"fmt"

	"github.com/nabbar/snmpmgr/oid"
)

// Type is the tag attached to a Varbind's value. The three v2c
// exception tags are carried as ordinary Types, never as errors,
// unless an entire GET response consists solely of exceptions (see
// package errors, ErrAllExceptions).
type Type uint8

const (
	TypeInteger Type = iota
	TypeUnsigned32
	TypeCounter32
	TypeCounter64
	TypeGauge32
	TypeTimeTicks
	TypeOctetString
	TypeObjectIdentifier
	TypeIPAddress
	TypeBoolean
	TypeNull
	TypeOpaque

	// v2c exception tags, RFC 1905 §3.
	TypeNoSuchObject
	TypeNoSuchInstance
	TypeEndOfMibView
)

func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeUnsigned32:
		return "unsigned32"
	case TypeCounter32:
		return "counter32"
	case TypeCounter64:
		return "counter64"
	case TypeGauge32:
		return "gauge32"
	case TypeTimeTicks:
		return "timeticks"
	case TypeOctetString:
		return "octet_string"
	case TypeObjectIdentifier:
		return "object_identifier"
	case TypeIPAddress:
		return "ip_address"
	case TypeBoolean:
		return "boolean"
	case TypeNull:
		return "null"
	case TypeOpaque:
		return "opaque"
	case TypeNoSuchObject:
		return "no_such_object"
	case TypeNoSuchInstance:
		return "no_such_instance"
	case TypeEndOfMibView:
		return "end_of_mib_view"
	default:
		return "unknown"
	}
}

// IsException reports whether t is one of the three v2c exception
// tags (§7: "carried as values in varbinds, not as operation
// failures unless the entire GET returns only these").
func (t Type) IsException() bool {
	switch t {
	case TypeNoSuchObject, TypeNoSuchInstance, TypeEndOfMibView:
		return true
	default:
		return false
	}
}

// Varbind is the triple (oid, type, value) as it flows through the
// whole engine. Value's concrete Go type is determined by Type and is
// set exclusively by Codec.
type Varbind struct {
	OID   oid.OID
	Type  Type
	Value interface{}
}

// New builds a Varbind, cloning oid so the caller's slice can't be
// mutated through the returned value.
func New(o oid.OID, t Type, v interface{}) Varbind {
	return Varbind{OID: o.Clone(), Type: t, Value: v}
}

func (v Varbind) String() string {
	return fmt.Sprintf("%s = %s: %v", v.OID.String(), v.Type.String(), v.Value)
}

// AllExceptions reports whether every varbind in vbs is a v2c
// exception tag — the condition under which a GET response must
// surface errors.ErrAllExceptions instead of a normal value list.
// Returns false for an empty slice (nothing to call "all exceptions").
func AllExceptions(vbs []Varbind) bool {
	if len(vbs) == 0 {
		return false
	}
	for _, v := range vbs {
		if !v.Type.IsException() {
			return false
		}
	}
	return true
}
