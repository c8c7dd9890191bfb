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

// Package snmpclient is the caller-facing facade of §6: Get/GetNext/
// GetBulk/Set/Walk/WalkTable/AdaptiveWalk/BenchmarkDevice/Monitor plus
// their Multi variants, wiring every collaborator package (codec, mib,
// idgen, engine, iosock, ops, walk, bulkwalk, adaptive, table, multi,
// breaker, router, config, logger) into one constructible Client.
package snmpclient

import (
	"context"
	"net"
	"sort"
	"sync"

	"github.com/nabbar/snmpmgr/breaker"
	"github.com/nabbar/snmpmgr/codec"
	"github.com/nabbar/snmpmgr/config"
	"github.com/nabbar/snmpmgr/engine"
	liberr "github.com/nabbar/snmpmgr/errors"
	"github.com/nabbar/snmpmgr/idgen"
	"github.com/nabbar/snmpmgr/iosock"
	"github.com/nabbar/snmpmgr/logger"
	"github.com/nabbar/snmpmgr/mib"
	"github.com/nabbar/snmpmgr/ops"
	"github.com/nabbar/snmpmgr/router"
	"github.com/nabbar/snmpmgr/target"
)

// DefaultEngineName is the name the Client registers its own
// eagerly/lazily started Engine/Socket pair under. Additional engines
// registered via AddEngine, for horizontal scaling across a Router
// pool (§4.11), use whatever name the caller supplies.
const DefaultEngineName = "default"

// snmpEngine bundles one Engine/Socket/IdGen/SingleOps quadruple -
// everything a single UDP endpoint needs to run SingleOps, Walk,
// BulkWalk, AdaptiveWalk and Table independently of any other engine
// in the pool.
type snmpEngine struct {
	sock *iosock.Socket
	ops  *ops.SingleOps
}

func (e *snmpEngine) close() error {
	return e.sock.Close()
}

// Options configures a Client. Every field is optional; zero values
// fall back to the package defaults (codec.New, mib.New,
// target.NewResolver, logger.Default, config.New).
type Options struct {
	// Listen is the local UDP address the default engine binds to; nil
	// selects an ephemeral port, the common case for a manager process
	// that only originates requests.
	Listen *net.UDPAddr

	Config   *config.Config
	Codec    codec.Codec
	Mib      mib.Resolver
	Resolver target.Resolver
	Log      logger.FuncLog

	Breaker breaker.Options

	// Router, when non-nil, puts the Client in multi-engine mode:
	// AddEngine registers additional Engine/Socket pairs with a Router
	// pool instead of standing alone, and every per-target operation
	// first calls Router.Select to pick which engine serves it (§4.11).
	Router *router.Options
}

// Client is the root facade (§6). It owns at least one engine (the
// "default" one, started per AutoStartServices) and, if Options.Router
// was supplied, an arbitrary number of additional named engines
// load-balanced by a Router.
type Client struct {
	cfg      *config.Config
	codecI   codec.Codec
	mibR     mib.Resolver
	resolver target.Resolver
	log      logger.FuncLog

	breakerOpts breaker.Options
	breakers    *breaker.Manager

	listen *net.UDPAddr

	mu       sync.RWMutex
	started  bool
	engines  map[string]*snmpEngine
	r        *router.Router
}

// New returns a Client wired per opts. The default engine is not
// opened yet: when the resolved Config's AutoStartServices is true it
// comes up lazily on first use (§4.12); when false, calls fail with
// ErrServiceNotStarted until Start is called explicitly.
func New(opts Options) *Client {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.New()
	}
	c := opts.Codec
	if c == nil {
		c = codec.New()
	}
	m := opts.Mib
	if m == nil {
		m = mib.New()
	}
	rslv := opts.Resolver
	if rslv == nil {
		rslv = target.NewResolver()
	}
	log := opts.Log
	if log == nil {
		log = logger.Default
	}

	cl := &Client{
		cfg:         cfg,
		codecI:      c,
		mibR:        m,
		resolver:    rslv,
		log:         log,
		breakerOpts: opts.Breaker,
		breakers:    breaker.NewManager(opts.Breaker, log),
		listen:      opts.Listen,
		engines:     make(map[string]*snmpEngine),
	}
	if opts.Router != nil {
		cl.r = router.New(*opts.Router, log)
	}
	return cl
}

// defaultOps returns ops.Options seeded from the Client's Config
// snapshot, the merge base every per-call Options.Merge falls back to.
func (c *Client) defaultOps() ops.Options {
	v := c.cfg.Values()
	version := codec.VersionV2c
	if v.Version == "v1" {
		version = codec.VersionV1
	}
	return ops.Options{
		Community: v.Community,
		Version:   &version,
		Timeout:   v.Timeout,
		Retries:   v.Retries,
	}
}

// Start eagerly opens the default engine (Socket + Engine + IdGen +
// SingleOps) if it is not already running. Idempotent.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *Client) startLocked() error {
	if c.started {
		return nil
	}
	eng, err := c.newEngine(c.listen)
	if err != nil {
		return err
	}
	c.engines[DefaultEngineName] = eng
	c.started = true
	return nil
}

// ensureStarted lazily brings up the default engine on first use when
// the resolved Config's AutoStartServices is true (§4.12: "governs
// whether Multi implicitly brings up Engine/Socket/IdGen on first
// use" - generalised here to every entry point, since this facade has
// no separate Multi-only startup path; see DESIGN.md).
func (c *Client) ensureStarted() error {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if started {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if !c.cfg.Values().AutoStartServices {
		return liberr.ErrServiceNotStarted.Error()
	}
	return c.startLocked()
}

func (c *Client) newEngine(laddr *net.UDPAddr) (*snmpEngine, error) {
	g := idgen.New()
	eng := engine.New(c.codecI)

	sock, err := iosock.New(laddr, 0, eng.OnDatagram)
	if err != nil {
		return nil, err
	}
	sock.RegisterFuncError(func(err error) {
		if err = iosock.ErrorFilter(err); err != nil {
			c.log().Warn("socket error", nil, err)
		}
	})

	o := ops.New(c.codecI, c.mibR, g, eng, sock, c.defaultOps())
	return &snmpEngine{sock: sock, ops: o}, nil
}

// AddEngine opens an additional Engine/Socket pair bound to laddr and
// registers it with the Client's Router pool under name, for
// horizontal scaling across many device-facing sockets (§4.11). Only
// valid when the Client was built with Options.Router set.
func (c *Client) AddEngine(name string, laddr *net.UDPAddr, weight, maxLoad int) error {
	if c.r == nil {
		return liberr.ErrUnknownEngine.Errorf("client has no router configured")
	}

	eng, err := c.newEngine(laddr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.engines[name] = eng
	c.mu.Unlock()

	c.r.AddEngine(name, weight, maxLoad)
	return nil
}

// RemoveEngine closes and deregisters a named engine previously added
// via AddEngine.
func (c *Client) RemoveEngine(name string) error {
	if c.r == nil {
		return liberr.ErrUnknownEngine.Errorf("client has no router configured")
	}
	c.r.RemoveEngine(name)

	c.mu.Lock()
	eng, ok := c.engines[name]
	delete(c.engines, name)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return eng.close()
}

// Close shuts down every engine the Client owns.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	names := make([]string, 0, len(c.engines))
	for name := range c.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.engines[name].close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.started = false
	return firstErr
}

// pick selects the SingleOps a per-target call should use: the sole
// default engine in single-engine mode, or whatever Router.Select(key)
// names in multi-engine mode. The returned release func must be called
// exactly once with the call's outcome (nil when not in router mode).
func (c *Client) pick(key string) (*ops.SingleOps, func(error), error) {
	if c.r == nil {
		if err := c.ensureStarted(); err != nil {
			return nil, nil, err
		}
		c.mu.RLock()
		eng := c.engines[DefaultEngineName]
		c.mu.RUnlock()
		return eng.ops, func(error) {}, nil
	}

	lease, err := c.r.Select(key)
	if err != nil {
		return nil, nil, err
	}

	c.mu.RLock()
	eng, ok := c.engines[lease.Engine()]
	c.mu.RUnlock()
	if !ok {
		lease.Release(liberr.ErrUnknownEngine.Errorf(lease.Engine()))
		return nil, nil, liberr.ErrUnknownEngine.Errorf(lease.Engine())
	}
	return eng.ops, lease.Release, nil
}

// resolveTarget parses and resolves targetStr into a concrete UDP
// address via the Client's Resolver.
func (c *Client) resolveTarget(ctx context.Context, targetStr string) (*net.UDPAddr, error) {
	t, err := target.Parse(targetStr)
	if err != nil {
		return nil, err
	}
	return c.resolver.Resolve(ctx, t)
}

// withBreaker gates one call to fn through targetStr's CircuitBreaker
// (§4.10), recording success/failure so a flaky device trips the
// breaker for everyone sharing this Client.
func (c *Client) withBreaker(targetStr string, fn func() error) error {
	b := c.breakers.Get(targetStr)
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}
