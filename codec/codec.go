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

// Package codec implements the wire-level contract between the engine
// and the SNMPv1/v2c BER encoding: encode(Message) -> bytes and
// decode(bytes) -> Message. It is the only package that imports
// go-asn1-ber/asn1-ber; everything upstream of it deals only in
// oid.OID and varbind.Varbind.
package codec

import (
	"github.com/nabbar/snmpmgr/oid"
	"github.com/nabbar/snmpmgr/varbind"
)

// Version is the SNMP protocol version carried in every message.
type Version int

const (
	VersionV1  Version = 0
	VersionV2c Version = 1
)

func (v Version) String() string {
	switch v {
	case VersionV1:
		return "v1"
	case VersionV2c:
		return "v2c"
	default:
		return "unknown"
	}
}

// Kind names the PDU operation carried inside a Message.
type Kind uint8

const (
	KindGetRequest Kind = iota
	KindGetNextRequest
	KindGetResponse
	KindSetRequest
	KindGetBulkRequest
)

// PDU is the decoded operation body: request id, varbinds, and error
// reporting fields that double as non_repeaters/max_repetitions on a
// get_bulk request (RFC 1905 §4.2.3).
type PDU struct {
	Kind        Kind
	RequestID   int32
	ErrorStatus int
	ErrorIndex  int
	Varbinds    []varbind.Varbind
}

// NonRepeaters and MaxRepetitions read the overloaded error fields on
// a get_bulk request PDU; they are meaningless on any other Kind.
func (p PDU) NonRepeaters() int     { return p.ErrorStatus }
func (p PDU) MaxRepetitions() int   { return p.ErrorIndex }
func (p *PDU) SetBulkParams(nonRepeaters, maxRepetitions int) {
	p.ErrorStatus = nonRepeaters
	p.ErrorIndex = maxRepetitions
}

// Message is the full wire envelope: version, community string, and
// a single embedded PDU.
type Message struct {
	Version   Version
	Community string
	PDU       PDU
}

// Codec is the collaborator contract from §6: encode/decode plus the
// small set of OID helpers the rest of the engine needs without
// importing the wire format directly.
type Codec interface {
	Encode(m Message) ([]byte, error)
	Decode(b []byte) (Message, error)

	OIDStringToList(s string) (oid.OID, error)
	OIDListToString(o oid.OID) string
	OIDCompare(a, b oid.OID) int

	// ValidErrorStatus reports whether code is a recognised PDU
	// error-status value (0 = noError through the v2c exception
	// range); ErrorAtom maps it to a taxonomy-level name.
	ValidErrorStatus(code int) bool
	ErrorAtom(code int) string
}

// ErrorStatus constants per RFC 1157 §4.1.1 / RFC 1905 §3.
const (
	ErrNoError             = 0
	ErrTooBig              = 1
	ErrNoSuchName          = 2
	ErrBadValue            = 3
	ErrReadOnly            = 4
	ErrGenErr              = 5
	ErrNoAccess            = 6
	ErrWrongType           = 7
	ErrWrongLength         = 8
	ErrWrongEncoding       = 9
	ErrWrongValue          = 10
	ErrNoCreation          = 11
	ErrInconsistentValue   = 12
	ErrResourceUnavailable = 13
	ErrCommitFailed        = 14
	ErrUndoFailed          = 15
	ErrAuthorizationError  = 16
	ErrNotWritable         = 17
	ErrInconsistentName    = 18
)

var errorAtoms = map[int]string{
	ErrNoError:             "no_error",
	ErrTooBig:              "too_big",
	ErrNoSuchName:          "no_such_name",
	ErrBadValue:            "bad_value",
	ErrReadOnly:            "read_only",
	ErrGenErr:              "gen_err",
	ErrNoAccess:            "no_access",
	ErrWrongType:           "wrong_type",
	ErrWrongLength:         "wrong_length",
	ErrWrongEncoding:       "wrong_encoding",
	ErrWrongValue:          "wrong_value",
	ErrNoCreation:          "no_creation",
	ErrInconsistentValue:   "inconsistent_value",
	ErrResourceUnavailable: "resource_unavailable",
	ErrCommitFailed:        "commit_failed",
	ErrUndoFailed:          "undo_failed",
	ErrAuthorizationError:  "authorization_error",
	ErrNotWritable:         "not_writable",
	ErrInconsistentName:    "inconsistent_name",
}
