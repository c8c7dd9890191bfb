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

// Package ops implements SingleOps (§4.4): the four single-round-trip
// operations (get, get_next, get_bulk, set) built on top of Engine,
// Socket and IdGen, with option merging, version enforcement for
// get_bulk and timeout-only retries.
package ops

import (
	"context"
	"fmt"
	"net"
	"time"

	libval "github.com/go-playground/validator/v10"

	"github.com/nabbar/snmpmgr/codec"
	"github.com/nabbar/snmpmgr/engine"
	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/idgen"
	"github.com/nabbar/snmpmgr/iosock"
	"github.com/nabbar/snmpmgr/mib"
	"github.com/nabbar/snmpmgr/oid"
	"github.com/nabbar/snmpmgr/varbind"
)

// Options are the per-call knobs merged against a caller-supplied set
// of process-wide defaults (§4.12's Config is the usual source).
// Zero fields fall back to the default. Version is a pointer so "v1
// explicitly requested" (VersionV1, value 0) is distinguishable from
// "caller did not specify a version" (nil) — GetBulk's version
// enforcement in §4.4 depends on telling those two apart.
type Options struct {
	Community      string         `validate:"required"`
	Version        *codec.Version `validate:"omitempty,oneof=0 1"`
	Timeout        time.Duration  `validate:"gt=0"`
	Retries        int            `validate:"gte=0"`
	NonRepeaters   int            `validate:"gte=0"`
	MaxRepetitions int            `validate:"gte=0"`
}

// Merge returns a copy of o with every zero field replaced by the
// corresponding field of def.
func (o Options) Merge(def Options) Options {
	out := o
	if out.Community == "" {
		out.Community = def.Community
	}
	if out.Version == nil {
		out.Version = def.Version
	}
	if out.Timeout <= 0 {
		out.Timeout = def.Timeout
	}
	if out.Retries <= 0 {
		out.Retries = def.Retries
	}
	if out.NonRepeaters <= 0 {
		out.NonRepeaters = def.NonRepeaters
	}
	if out.MaxRepetitions <= 0 {
		out.MaxRepetitions = def.MaxRepetitions
	}
	return out
}

// Validate reports whether o's fields satisfy their struct constraints,
// wrapping every violation as a parent of a single ErrInvalidOptions
// (nil if o is valid). Called post-merge in roundTrip, so this is the
// last line of defense against a caller- or Config-supplied Timeout,
// Retries or Version that slipped through Merge as zero/negative/bogus.
func (o Options) Validate() liberr.Error {
	var e = liberr.ErrInvalidOptions.Error(nil)

	if err := libval.New().Struct(o); err != nil {
		if er, ok := err.(*libval.InvalidValidationError); ok {
			e.Add(er)
		}
		for _, er := range err.(libval.ValidationErrors) {
			e.Add(fmt.Errorf("option field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
		}
	}

	if !e.HasParent() {
		e = nil
	}
	return e
}

// SingleOps wires Codec, MibResolver, IdGen, Engine and Socket into
// the four SNMP round-trip operations.
type SingleOps struct {
	Codec    codec.Codec
	Mib      mib.Resolver
	IDs      *idgen.Generator
	Engine   *engine.Engine
	Socket   *iosock.Socket
	Defaults Options
}

// New returns a ready SingleOps.
func New(c codec.Codec, m mib.Resolver, ids *idgen.Generator, eng *engine.Engine, sock *iosock.Socket, defaults Options) *SingleOps {
	return &SingleOps{Codec: c, Mib: m, IDs: ids, Engine: eng, Socket: sock, Defaults: defaults}
}

// resolve normalises each name/oid-string/symbolic-name into an OID
// using the Mib resolver for symbolic names.
func (s *SingleOps) resolve(names []string) (oid.OID, []oid.OID, error) {
	out := make([]oid.OID, 0, len(names))
	for _, n := range names {
		o, err := oid.Normalize(n, resolverAdapter{s.Mib})
		if err != nil {
			return nil, nil, err
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return nil, out, nil
	}
	return out[0], out, nil
}

type resolverAdapter struct{ m mib.Resolver }

func (r resolverAdapter) Resolve(name string) (oid.OID, error) { return r.m.Resolve(name) }

// Get issues a GET for the given names (§4.4).
func (s *SingleOps) Get(ctx context.Context, dst *net.UDPAddr, names []string, opts Options) ([]varbind.Varbind, error) {
	_, oids, err := s.resolve(names)
	if err != nil {
		return nil, err
	}
	return s.roundTrip(ctx, dst, codec.KindGetRequest, oids, nil, opts)
}

// GetNext issues a GET-NEXT for the given names (§4.4). The single
// returned varbind advances past the requested OID (GETNEXT semantics:
// the device never returns the requested OID itself).
func (s *SingleOps) GetNext(ctx context.Context, dst *net.UDPAddr, names []string, opts Options) ([]varbind.Varbind, error) {
	_, oids, err := s.resolve(names)
	if err != nil {
		return nil, err
	}
	return s.roundTrip(ctx, dst, codec.KindGetNextRequest, oids, nil, opts)
}

// GetBulk issues a GET-BULK for the given names (§4.4). Rejects a
// caller-specified version other than v2c with ErrGetBulkRequiresV2c;
// an unspecified version is rewritten to v2c internally.
func (s *SingleOps) GetBulk(ctx context.Context, dst *net.UDPAddr, names []string, opts Options) ([]varbind.Varbind, error) {
	if opts.Version != nil && *opts.Version != codec.VersionV2c {
		return nil, liberr.ErrGetBulkRequiresV2c.Error()
	}
	v2c := codec.VersionV2c
	opts.Version = &v2c

	_, oids, err := s.resolve(names)
	if err != nil {
		return nil, err
	}
	return s.roundTrip(ctx, dst, codec.KindGetBulkRequest, oids, nil, opts)
}

// Set issues a SET for the given varbinds (§4.4).
func (s *SingleOps) Set(ctx context.Context, dst *net.UDPAddr, vbs []varbind.Varbind, opts Options) ([]varbind.Varbind, error) {
	oids := make([]oid.OID, len(vbs))
	for i, vb := range vbs {
		oids[i] = vb.OID
	}
	return s.roundTrip(ctx, dst, codec.KindSetRequest, oids, vbs, opts)
}

func (s *SingleOps) roundTrip(ctx context.Context, dst *net.UDPAddr, kind codec.Kind, oids []oid.OID, setVbs []varbind.Varbind, opts Options) ([]varbind.Varbind, error) {
	opts = opts.Merge(s.Defaults)
	if opts.Community == "" {
		opts.Community = "public"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	version := codec.VersionV2c
	if opts.Version != nil {
		version = *opts.Version
	}

	if e := opts.Validate(); e != nil {
		return nil, e
	}

	vbs := make([]varbind.Varbind, len(oids))
	for i, o := range oids {
		if setVbs != nil {
			vbs[i] = setVbs[i]
		} else {
			vbs[i] = varbind.New(o, varbind.TypeNull, nil)
		}
	}

	pdu := codec.PDU{Kind: kind, Varbinds: vbs}
	if kind == codec.KindGetBulkRequest {
		pdu.SetBulkParams(opts.NonRepeaters, opts.MaxRepetitions)
	}

	attempts := opts.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		id := s.IDs.Next()
		pdu.RequestID = int32(id)

		msg := codec.Message{Version: version, Community: opts.Community, PDU: pdu}
		data, err := s.Codec.Encode(msg)
		if err != nil {
			s.IDs.Release(id)
			return nil, err
		}

		deadline := time.Now().Add(opts.Timeout)
		entry, err := s.Engine.Register(id, dst, deadline)
		if err != nil {
			s.IDs.Release(id)
			return nil, err
		}

		if err = s.Socket.Send(ctx, data, dst); err != nil {
			s.Engine.Unregister(id)
			s.IDs.Release(id)
			return nil, err
		}

		select {
		case res := <-entry.Waiter:
			s.IDs.Release(id)
			if res.Err != nil {
				if isTimeout(res.Err) && attempt < attempts-1 {
					lastErr = res.Err
					continue
				}
				return nil, res.Err
			}
			return s.handleResponse(res.Message)
		case <-ctx.Done():
			s.Engine.Unregister(id)
			s.IDs.Release(id)
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (s *SingleOps) handleResponse(msg codec.Message) ([]varbind.Varbind, error) {
	if msg.PDU.ErrorStatus != codec.ErrNoError {
		return nil, statusToError(msg.PDU.ErrorStatus, s.Codec.ErrorAtom(msg.PDU.ErrorStatus))
	}
	if varbind.AllExceptions(msg.PDU.Varbinds) {
		return msg.PDU.Varbinds, liberr.ErrAllExceptions.Error()
	}
	return msg.PDU.Varbinds, nil
}

// isTimeout reports whether err is the Engine's timeout result,
// the only error the §4.4 retry policy acts on.
func isTimeout(err error) bool {
	e, ok := err.(liberr.Error)
	return ok && e.IsCode(liberr.ErrTimeout.CodeError)
}

func statusToError(status int, atom string) error {
	switch status {
	case codec.ErrTooBig:
		return liberr.ErrTooBig.Error()
	case codec.ErrNoSuchName:
		return liberr.ErrNoSuchName.Error()
	case codec.ErrBadValue:
		return liberr.ErrBadValue.Error()
	case codec.ErrReadOnly:
		return liberr.ErrReadOnly.Error()
	case codec.ErrGenErr:
		return liberr.ErrGenErr.Error()
	case codec.ErrNoAccess:
		return liberr.ErrNoAccess.Error()
	case codec.ErrWrongType, codec.ErrWrongLength, codec.ErrWrongEncoding:
		return liberr.ErrWrongType.Errorf(atom)
	case codec.ErrWrongValue:
		return liberr.ErrWrongValue.Error()
	case codec.ErrResourceUnavailable:
		return liberr.ErrResourceUnavailable.Error()
	case codec.ErrCommitFailed:
		return liberr.ErrCommitFailed.Error()
	case codec.ErrUndoFailed:
		return liberr.ErrUndoFailed.Error()
	case codec.ErrAuthorizationError:
		return liberr.ErrAuthorization.Error()
	case codec.ErrNotWritable:
		return liberr.ErrNotWritable.Error()
	default:
		return liberr.ErrGenErr.Error()
	}
}
