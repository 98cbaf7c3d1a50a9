// Package srt implements the Listener/Receiver/Sender session layer over
// github.com/zsiec/srtgo, following spec.md §4.1-§4.3.
package srt

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/reflect/internal/option"
)

// errRingSize is the default bounded error ring size (spec.md §4.1: "default
// 5 messages").
const errRingSize = 5

// Hook is the PreAccept/Accept/ListenerFlag callback surface a Listener
// drives, re-expressing the original's Event inheritance hierarchy as an
// interface per spec.md §9's redesign guidance.
type Hook interface {
	// OnPreAccept is invoked for every incoming handshake before it
	// completes. opt starts as the parsed streamid options and is shared by
	// the hooks of one PreAccept pass; the Listener does not apply what a
	// hook sets on it to the socket, and does not carry it into OnAccept.
	// Returning false rejects the handshake.
	OnPreAccept(opt *option.Map, peer option.SockAddr, stream option.StreamOption) bool

	// OnAccept is invoked once the socket is fully established. opt is a
	// fresh map of the parsed streamid options; options a hook sets on it
	// are not applied to the socket. Returning false closes the new
	// connection immediately.
	OnAccept(opt *option.Map, conn *Conn, peer option.SockAddr, stream option.StreamOption) bool
}

// FlagHook is implemented by a Hook that also wants to be invoked
// periodically on the Listener's own poll thread (spec.md §4.1's "listener
// flag", used by the Reflector to emit periodic statistics).
type FlagHook interface {
	OnListenerFlag()
}

// Endpoint describes one (host, port) pair a Listener binds.
type Endpoint struct {
	Host       string
	Port       int
	Backlog    int // default 10
	EpollTimeo int // event-wait timeout, ms; default 100
	BindOption *option.Map
}

func (e Endpoint) backlog() int {
	if e.Backlog <= 0 {
		return 10
	}
	return e.Backlog
}

func (e Endpoint) epollTimeo() time.Duration {
	if e.EpollTimeo <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(e.EpollTimeo) * time.Millisecond
}

// Listener owns one or more bound SRT sockets for a single configured
// endpoint and runs an accept loop, grounded on ingest/srt/server.go's
// Start/handleConnection shape, generalized per
// original_source/src/listener.cpp's multi-address bind and PreAccept/Accept
// hook pair.
type Listener struct {
	log      *slog.Logger
	endpoint Endpoint
	hooks    []Hook

	mu        sync.Mutex
	errs      []string
	listeners []*srtgo.Listener
}

// NewListener creates a Listener for endpoint. Hooks are consulted in the
// order given, matching the Receiver/Sender consumer-priority-order rule of
// spec.md §3 ("all consumers receive the same sequence of ... in priority
// order").
func NewListener(endpoint Endpoint, log *slog.Logger, hooks ...Hook) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		log:      log.With("component", "listener", "host", endpoint.Host, "port", endpoint.Port),
		endpoint: endpoint,
		hooks:    hooks,
	}
}

// flagHooks returns the registered hooks which also implement FlagHook, so
// the Listener can drive their periodic callbacks without plumbing a
// separate ticker (spec.md §4.4's periodic statistics).
func (l *Listener) flagHooks() []FlagHook {
	var out []FlagHook
	for _, h := range l.hooks {
		if fh, ok := h.(FlagHook); ok {
			out = append(out, fh)
		}
	}
	return out
}

func (l *Listener) recordErr(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.log.Warn(msg)
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	if len(l.errs) > errRingSize {
		l.errs = l.errs[len(l.errs)-errRingSize:]
	}
	l.mu.Unlock()
}

// GetErrMsg returns the bounded ring of recent bind/setopt/listen errors
// (spec.md §7's "operator surface").
func (l *Listener) GetErrMsg() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.errs))
	copy(out, l.errs)
	return out
}

// Start resolves the endpoint's (host, port) to one or more addresses, binds
// each, and runs one accept loop per bound address until ctx is cancelled.
// It returns an error only if every resolvable address failed to bind
// (spec.md §4.1's failure semantics: "Listener is considered initialized if
// at least one bind succeeded"), grounded on
// original_source/src/listener.cpp's Initialize/getaddrinfo loop.
func (l *Listener) Start(ctx context.Context) error {
	ips, err := resolveIPs(ctx, l.endpoint.Host)
	if err != nil {
		l.recordErr("resolve %s: %v", l.endpoint.Host, err)
		return fmt.Errorf("resolve %s: %w", l.endpoint.Host, err)
	}

	cfg := defaultConfig()
	applySockopts(&cfg, l.endpoint.BindOption)
	cfg.Backlog = l.endpoint.backlog()
	cfg.EpollTimeout = l.endpoint.epollTimeo()

	var listeners []*srtgo.Listener
	for _, ba := range chooseBindAddrs(l.endpoint.Host, ips) {
		addr := net.JoinHostPort(ba.ip.String(), strconv.Itoa(l.endpoint.Port))
		bindCfg := cfg
		if ba.ip.To4() == nil {
			bindCfg.IPv6Only = ba.ipv6Only
		}
		sl, err := srtgo.Listen(addr, bindCfg)
		if err != nil {
			l.recordErr("bind %s: %v", addr, err)
			continue
		}
		sl.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
			return l.preAccept(req)
		})
		listeners = append(listeners, sl)
	}
	if len(listeners) == 0 {
		return fmt.Errorf("srt listen on %s:%d: no interface to start listening", l.endpoint.Host, l.endpoint.Port)
	}

	l.mu.Lock()
	l.listeners = listeners
	l.mu.Unlock()
	l.log.Info("listening", "bound", len(listeners))

	go func() {
		<-ctx.Done()
		for _, sl := range listeners {
			sl.Close()
		}
	}()

	if len(l.flagHooks()) > 0 {
		go l.runFlagTimer(ctx)
	}

	var wg sync.WaitGroup
	for _, sl := range listeners {
		wg.Add(1)
		go func(sl *srtgo.Listener) {
			defer wg.Done()
			for {
				conn, err := sl.Accept()
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					l.recordErr("accept: %v", err)
					continue
				}
				go l.accept(conn)
			}
		}(sl)
	}
	wg.Wait()
	return nil
}

// bindAddr is one address chooseBindAddrs decided to bind, paired with
// whether SRTO_IPV6ONLY should be set on it (meaningless for IPv4 entries).
type bindAddr struct {
	ip       net.IP
	ipv6Only bool
}

// resolveIPs resolves host to the set of local addresses a Listener should
// bind, mirroring original_source/src/listener.cpp's
// getaddrinfo(host, port, AI_PASSIVE, AF_UNSPEC) call: an empty host
// resolves to the IPv6 and IPv4 wildcard addresses (the two families
// getaddrinfo returns for a passive, unspecified host), a non-empty host
// resolves through DNS/literal parsing to whatever addresses it has.
func resolveIPs(ctx context.Context, host string) ([]net.IP, error) {
	if host == "" {
		return []net.IP{net.IPv6zero, net.IPv4zero}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// chooseBindAddrs applies spec.md §4.1's IPv6-preference algorithm: if host
// is empty and both families resolved, bind only IPv6 with IPv6Only=false
// (IPv4-mapped addresses make the IPv4 bind redundant); otherwise bind every
// resolved address, each IPv6 entry with IPv6Only=true. Grounded on
// original_source/src/listener.cpp's Initialize loop (the `ipv6Only` /
// "ignore IPv4 because IPv4-mapped IPv6 would work" branches).
func chooseBindAddrs(host string, ips []net.IP) []bindAddr {
	hasV4, hasV6 := false, false
	for _, ip := range ips {
		if ip.To4() != nil {
			hasV4 = true
		} else {
			hasV6 = true
		}
	}
	preferV6 := host == "" && hasV4 && hasV6

	out := make([]bindAddr, 0, len(ips))
	for _, ip := range ips {
		isV4 := ip.To4() != nil
		if preferV6 && isV4 {
			continue
		}
		out = append(out, bindAddr{ip: ip, ipv6Only: host != ""})
	}
	return out
}

func (l *Listener) preAccept(req srtgo.ConnRequest) srtgo.RejectReason {
	stream := option.ParseStreamID(req.StreamID)
	peer := peerFromRequest(req)
	opt := option.New()
	opt.Merge(stream.Map)

	for _, h := range l.hooks {
		if !h.OnPreAccept(opt, peer, stream) {
			return srtgo.RejPeer
		}
	}
	return 0
}

// peerFromRequest extracts the connecting peer's address from req. srtgo's
// ConnRequest is not available to inspect here; Addr is the field name
// used by most Go SRT bindings that expose a remote-address-bearing
// ConnRequest (mirroring net.TCPConn-style APIs).
func peerFromRequest(req srtgo.ConnRequest) option.SockAddr {
	if req.Addr != nil {
		return option.FromNetAddr(req.Addr)
	}
	return option.SockAddr{}
}

func (l *Listener) accept(conn *srtgo.Conn) {
	stream := option.ParseStreamID(conn.StreamID())
	peer := option.FromNetAddr(conn.RemoteAddr())
	opt := option.New()
	opt.Merge(stream.Map)

	c := &Conn{raw: conn, log: l.log}

	for _, h := range l.hooks {
		if !h.OnAccept(opt, c, peer, stream) {
			conn.Close()
			return
		}
	}
}

// runFlagTimer drives FlagHook.OnListenerFlag on a 1-second tick; the
// interval at which a given hook actually does anything is up to the hook
// itself (e.g. the Reflector only emits statistics once every
// `publish.stats` seconds), per spec.md §4.1's "consumer sinks may request
// to be called once every `stats` seconds on the listener thread".
func (l *Listener) runFlagTimer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, h := range l.flagHooks() {
				h.OnListenerFlag()
			}
		}
	}
}

// Conn wraps an accepted *srtgo.Conn, exposed to hooks so Accept can attach
// it to a Receiver or Sender.
type Conn struct {
	raw *srtgo.Conn
	log *slog.Logger
}

func (c *Conn) Read(p []byte) (int, error)  { return c.raw.Read(p) }
func (c *Conn) Write(p []byte) (int, error) { return c.raw.Write(p) }
func (c *Conn) Close() error                { return c.raw.Close() }
func (c *Conn) RemoteAddr() net.Addr        { return c.raw.RemoteAddr() }
func (c *Conn) StreamID() string            { return c.raw.StreamID() }
