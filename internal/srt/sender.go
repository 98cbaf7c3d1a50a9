package srt

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zsiec/reflect/internal/option"
)

// Sender is one outbound SRT session: non-blocking writes, would-block vs.
// terminal error classification, statistics. Grounded on
// original_source/src/sender.cpp.
type Sender struct {
	ID   string
	log  *slog.Logger
	conn *Conn

	mu           sync.Mutex
	connected    bool
	lastErr      error
	stats        Stats
	disconnected func()
}

// NewSender wraps an accepted, send-mode connection.
func NewSender(conn *Conn, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{
		log:       log.With("component", "sender"),
		conn:      conn,
		connected: true,
	}
}

// OnDisconnect registers a callback invoked exactly once when the Sender
// transitions to disconnected, so an owner (e.g. a Receiver's consumer
// registration) can remove it.
func (s *Sender) OnDisconnect(fn func()) {
	s.mu.Lock()
	s.disconnected = fn
	s.mu.Unlock()
}

// IsConnected reports whether the underlying session is still usable,
// consulted by the playback loop's `while sender.IsConnected()` condition
// (spec.md §4.8).
func (s *Sender) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Send writes buf. A "would-block" condition (send-sync disabled, transient
// backpressure) returns (true, nil): a soft failure the caller may retry,
// reported upward rather than logged per spec.md §7. Any other error is
// terminal: the socket is closed, the Sender reports disconnected, and the
// error is returned.
func (s *Sender) Send(buf []byte) (softFail bool, err error) {
	n, werr := s.conn.Write(buf)
	if werr == nil {
		s.mu.Lock()
		s.stats.PacketsSent++
		s.stats.BytesSent += uint64(n)
		s.mu.Unlock()
		return false, nil
	}

	if isWouldBlock(werr) {
		return true, nil
	}

	s.terminate(werr)
	return false, werr
}

func (s *Sender) terminate(err error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.lastErr = err
	cb := s.disconnected
	s.mu.Unlock()

	s.conn.Close()
	s.log.Debug("sender terminated", "error", err, "peer", fmtAddr(s.conn))
	if cb != nil {
		cb()
	}
}

// OnReceive implements Consumer for a live subscription: it forwards data
// to the subscriber. A would-block soft failure keeps the Sender attached;
// a terminal send error returns false so an owning Receiver drops it.
func (s *Sender) OnReceive(opt *option.Map, data []byte, discrete bool) bool {
	_, err := s.Send(data)
	return err == nil
}

// OnDisconnected implements Consumer: the publisher's session ended, so the
// subscriber session is closed.
func (s *Sender) OnDisconnected(opt *option.Map) {
	s.terminate(fmt.Errorf("source disconnected"))
}

// LastError returns the most recent terminal error, if any.
func (s *Sender) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stats returns a point-in-time statistics snapshot.
func (s *Sender) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func isWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "would block") ||
		strings.Contains(msg, "eassyncsnd") ||
		strings.Contains(msg, "easyncsnd") ||
		strings.Contains(msg, "async")
}

func fmtAddr(c *Conn) string {
	if c == nil || c.raw == nil {
		return ""
	}
	return fmt.Sprintf("%v", c.RemoteAddr())
}
