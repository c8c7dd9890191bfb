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

// Package engine implements the Engine collaborator (§4.3): the
// request/response correlator sitting between Socket and SingleOps.
// It owns no transport and no wire format; it only matches inbound
// datagrams to outstanding requests by request-id and fires timeouts.
package engine

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/nabbar/snmpmgr/codec"
	libctx "github.com/nabbar/snmpmgr/context"
	liberr "github.com/nabbar/snmpmgr/errors"
)

var errTimeout = liberr.ErrTimeout.Error()

// Result is what a PendingEntry's waiter receives.
type Result struct {
	Message codec.Message
	Err     error
}

// PendingEntry tracks one outstanding request (§3).
type PendingEntry struct {
	ID       uint32
	Target   *net.UDPAddr
	Deadline time.Time
	Waiter   chan Result
	timer    *time.Timer
}

// Engine correlates outbound requests with inbound datagrams by
// request-id. Safe for concurrent use from many goroutines.
type Engine struct {
	codec codec.Codec
	pend  libctx.Config[uint32]

	unknownResponses atomic.Uint64
	decodeFailures   atomic.Uint64
}

// New returns an Engine decoding datagrams with c.
func New(c codec.Codec) *Engine {
	return &Engine{
		codec: c,
		pend:  libctx.NewConfig[uint32](nil),
	}
}

// ErrDuplicateID is returned by Register when id already has a
// PendingEntry (§4.3: "ok | {err, duplicate_id}").
var ErrDuplicateID = duplicateIDError{}

type duplicateIDError struct{}

func (duplicateIDError) Error() string { return "duplicate request id" }

// Register arms a PendingEntry for id, expiring at deadline. Callers
// must have already reserved id via idgen and must call Unregister
// (directly or via a terminal on_datagram/on_timeout delivery) exactly
// once per registration.
func (e *Engine) Register(id uint32, target *net.UDPAddr, deadline time.Time) (*PendingEntry, error) {
	pe := &PendingEntry{
		ID:       id,
		Target:   target,
		Deadline: deadline,
		Waiter:   make(chan Result, 1),
	}

	if _, loaded := e.pend.LoadOrStore(id, pe); loaded {
		return nil, ErrDuplicateID
	}

	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	pe.timer = time.AfterFunc(d, func() { e.OnTimeout(id) })

	return pe, nil
}

// Unregister idempotently removes id's PendingEntry without delivering
// a result, used on caller cancellation (§4.3, §5 "Cancellation").
func (e *Engine) Unregister(id uint32) {
	if v, loaded := e.pend.LoadAndDelete(id); loaded {
		if pe, ok := v.(*PendingEntry); ok && pe.timer != nil {
			pe.timer.Stop()
		}
	}
}

// OnDatagram decodes one inbound datagram and delivers it to the
// matching PendingEntry, if any. Never fails the Engine: a decode
// failure or an id with no pending entry is a counted, discarded
// event (§4.3, §5 "Shared resources").
func (e *Engine) OnDatagram(data []byte, _ *net.UDPAddr) {
	msg, err := e.codec.Decode(data)
	if err != nil {
		e.decodeFailures.Add(1)
		return
	}

	id := uint32(msg.PDU.RequestID)
	v, loaded := e.pend.LoadAndDelete(id)
	if !loaded {
		e.unknownResponses.Add(1)
		return
	}

	pe, ok := v.(*PendingEntry)
	if !ok {
		e.unknownResponses.Add(1)
		return
	}
	if pe.timer != nil {
		pe.timer.Stop()
	}

	select {
	case pe.Waiter <- Result{Message: msg}:
	default:
	}
}

// OnTimeout removes id's entry, if still present, and delivers a
// timeout result to its waiter.
func (e *Engine) OnTimeout(id uint32) {
	v, loaded := e.pend.LoadAndDelete(id)
	if !loaded {
		return
	}
	pe, ok := v.(*PendingEntry)
	if !ok {
		return
	}

	select {
	case pe.Waiter <- Result{Err: errTimeout}:
	default:
	}
}

// UnknownResponses reports the count of inbound datagrams that
// decoded successfully but matched no pending entry.
func (e *Engine) UnknownResponses() uint64 { return e.unknownResponses.Load() }

// DecodeFailures reports the count of inbound datagrams that failed
// to decode.
func (e *Engine) DecodeFailures() uint64 { return e.decodeFailures.Load() }

// Pending reports how many requests are currently outstanding.
func (e *Engine) Pending() int {
	n := 0
	e.pend.Walk(func(_ uint32, _ interface{}) bool {
		n++
		return true
	})
	return n
}
