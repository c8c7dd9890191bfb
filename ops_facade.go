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

package snmpclient

import (
	"context"
	"net"

	"github.com/nabbar/snmpmgr/ops"
	"github.com/nabbar/snmpmgr/varbind"
)

// call resolves targetStr, picks an engine (single- or multi-engine
// mode, per the Client's Router), and runs fn through that target's
// CircuitBreaker, releasing the Router lease (if any) with fn's
// outcome exactly once.
func (c *Client) call(ctx context.Context, targetStr string, fn func(*ops.SingleOps, *net.UDPAddr) ([]varbind.Varbind, error)) ([]varbind.Varbind, error) {
	dst, err := c.resolveTarget(ctx, targetStr)
	if err != nil {
		return nil, err
	}

	o, release, err := c.pick(targetStr)
	if err != nil {
		return nil, err
	}

	var vbs []varbind.Varbind
	err = c.withBreaker(targetStr, func() error {
		var e error
		vbs, e = fn(o, dst)
		return e
	})
	release(err)
	return vbs, err
}

// Get issues a GET against target for names (§6 get(target, oid, opts)).
func (c *Client) Get(ctx context.Context, targetStr string, names []string, opts ops.Options) ([]varbind.Varbind, error) {
	return c.call(ctx, targetStr, func(o *ops.SingleOps, dst *net.UDPAddr) ([]varbind.Varbind, error) {
		return o.Get(ctx, dst, names, opts)
	})
}

// GetNext issues a GET-NEXT against target for names (§6 get_next).
func (c *Client) GetNext(ctx context.Context, targetStr string, names []string, opts ops.Options) ([]varbind.Varbind, error) {
	return c.call(ctx, targetStr, func(o *ops.SingleOps, dst *net.UDPAddr) ([]varbind.Varbind, error) {
		return o.GetNext(ctx, dst, names, opts)
	})
}

// GetBulk issues a GET-BULK against target for names (§6 get_bulk).
func (c *Client) GetBulk(ctx context.Context, targetStr string, names []string, opts ops.Options) ([]varbind.Varbind, error) {
	return c.call(ctx, targetStr, func(o *ops.SingleOps, dst *net.UDPAddr) ([]varbind.Varbind, error) {
		return o.GetBulk(ctx, dst, names, opts)
	})
}

// Set issues a SET against target for vbs (§6 set(target, oid, value, opts)).
func (c *Client) Set(ctx context.Context, targetStr string, vbs []varbind.Varbind, opts ops.Options) ([]varbind.Varbind, error) {
	return c.call(ctx, targetStr, func(o *ops.SingleOps, dst *net.UDPAddr) ([]varbind.Varbind, error) {
		return o.Set(ctx, dst, vbs, opts)
	})
}
