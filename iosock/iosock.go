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

// Package iosock implements the Socket collaborator (§4.2): a single
// UDP endpoint used to exchange raw SNMP datagrams with one or many
// targets. It never parses a PDU — datagrams are handed to the
// registered reader callback intact, leaving decoding to the Engine.
package iosock

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nabbar/snmpmgr/atomic"
	liberr "github.com/nabbar/snmpmgr/errors"
)

// DefaultBufferSize is the default UDP receive-buffer size (§4.2).
const DefaultBufferSize = 4 * 1024 * 1024

// Health mirrors the tri-state reported for a Socket (§4.2).
type Health uint8

const (
	HealthHealthy Health = iota
	HealthWarning
	HealthCritical
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthWarning:
		return "warning"
	case HealthCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Stats is the snapshot returned by Socket.Stats.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	DatagramsSent uint64
	DatagramsRecv uint64
	LastRecv      time.Time
	BufferSize    int
}

// DatagramFunc receives one inbound datagram intact, with its source.
type DatagramFunc func(data []byte, src *net.UDPAddr)

// ErrorFunc receives a non-fatal read/write error for observability.
type ErrorFunc func(err error)

// ErrorFilter drops benign shutdown noise (any error whose message
// contains "use of closed network connection") so callers' error
// callbacks are not spammed on a deliberate Close; anything else
// passes through unchanged.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "use of closed network connection") {
		return nil
	}
	return err
}

// Socket is a single UDP endpoint with a dedicated reader goroutine.
type Socket struct {
	conn       *net.UDPConn
	bufSize    int
	onDatagram DatagramFunc
	onError    ErrorFunc

	mu       sync.Mutex
	stats    Stats
	health   atomic.Value[Health]
	closed   atomic.Value[bool]
	closeErr chan struct{}
}

// New opens a UDP endpoint bound to laddr (nil for an ephemeral local
// port) with the given receive-buffer size (0 selects DefaultBufferSize),
// and starts the reader goroutine delivering datagrams to onDatagram.
func New(laddr *net.UDPAddr, bufSize int, onDatagram DatagramFunc) (*Socket, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, liberr.ErrNetworkUnreachable.Error(err)
	}
	if err = conn.SetReadBuffer(bufSize); err != nil {
		_ = conn.Close()
		return nil, liberr.ErrNetworkUnreachable.Error(err)
	}

	s := &Socket{
		conn:       conn,
		bufSize:    bufSize,
		onDatagram: onDatagram,
		closeErr:   make(chan struct{}),
		health:     atomic.NewValue[Health](),
		closed:     atomic.NewValue[bool](),
	}
	s.health.Store(HealthHealthy)
	s.stats.BufferSize = bufSize

	go s.readLoop()
	return s, nil
}

// RegisterFuncError sets the callback invoked for non-fatal errors.
// Passing nil disables error reporting.
func (s *Socket) RegisterFuncError(fct ErrorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fct
}

// Send writes datagram to dst, honouring ctx's deadline.
func (s *Socket) Send(ctx context.Context, datagram []byte, dst *net.UDPAddr) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
	}
	n, err := s.conn.WriteToUDP(datagram, dst)
	if err = ErrorFilter(err); err != nil {
		return liberr.ErrNetworkUnreachable.Error(err)
	}

	s.mu.Lock()
	s.stats.BytesSent += uint64(n)
	s.stats.DatagramsSent++
	s.mu.Unlock()
	return nil
}

// LocalAddr returns the endpoint's bound local address.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Stats returns a snapshot of the current transfer counters.
func (s *Socket) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Health reports HealthCritical once Close has been called and
// HealthHealthy otherwise. HealthWarning is never reported: neither
// receive-buffer utilisation nor time since the last datagram is
// taken into account.
func (s *Socket) Health() Health {
	return s.health.Load()
}

// Close stops the reader loop and releases the underlying connection.
func (s *Socket) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.health.Store(HealthCritical)
	close(s.closeErr)
	return s.conn.Close()
}

func (s *Socket) readLoop() {
	buf := make([]byte, s.bufSize)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if filtered := ErrorFilter(err); filtered != nil {
				s.reportError(filtered)
			}
			select {
			case <-s.closeErr:
				return
			default:
			}
			if isTemporary(err) {
				continue
			}
			return
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		s.mu.Lock()
		s.stats.BytesReceived += uint64(n)
		s.stats.DatagramsRecv++
		s.stats.LastRecv = time.Now()
		s.mu.Unlock()

		if s.onDatagram != nil {
			s.onDatagram(datagram, src)
		}
	}
}

func (s *Socket) reportError(err error) {
	s.mu.Lock()
	fct := s.onError
	s.mu.Unlock()
	if fct != nil {
		fct(err)
	}
}

func isTemporary(err error) bool {
	var ne net.Error
	if e, ok := err.(net.Error); ok {
		ne = e
		return ne.Timeout()
	}
	return strings.Contains(err.Error(), "temporarily unavailable")
}
