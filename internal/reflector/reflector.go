// Package reflector implements the per-endpoint dispatcher of spec.md §4.4:
// PreAccept/Accept admission, resource→Receiver bookkeeping, the external
// authorizer, and periodic statistics.
package reflector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/reflect/internal/option"
	"github.com/zsiec/reflect/internal/recorder"
	"github.com/zsiec/reflect/internal/srt"
)

// Config is the per-endpoint (one `reflects[]` entry) configuration.
type Config struct {
	App string

	PublishAccess AccessList
	PlayAccess    AccessList

	PublishOption *option.Map
	PlayOption    *option.Map

	// Four independent authorizer hooks (spec.md §6's publish.on_pre_accept
	// /publish.on_accept/play.on_pre_accept/play.on_accept), each empty
	// disables that hook.
	PublishPreAcceptURL string
	PublishAcceptURL    string
	PlayPreAcceptURL    string
	PlayAcceptURL       string
	AuthorizerTTL       time.Duration // cacheAge, default 10s

	StatsInterval time.Duration
}

// Reflector dispatches PreAccept/Accept decisions for one endpoint.
// Grounded on original_source/src/reflector.cpp's Impl.
type Reflector struct {
	cfg      Config
	log      *slog.Logger
	ctx      context.Context
	shutdown chan struct{}

	publishPreAccept *Authorizer
	publishAccept    *Authorizer
	playPreAccept    *Authorizer
	playAccept       *Authorizer

	mu            sync.Mutex
	receivers     map[string]*srt.Receiver
	loopRecs      map[string]*recorder.LoopRec
	lastStatsTick time.Time
}

// New creates a Reflector. loopRecs maps resource name → archival recorder
// for every `loopRecs[]` entry configured under this endpoint (may be nil).
func New(ctx context.Context, cfg Config, loopRecs map[string]*recorder.LoopRec, log *slog.Logger) *Reflector {
	if log == nil {
		log = slog.Default()
	}
	if loopRecs == nil {
		loopRecs = map[string]*recorder.LoopRec{}
	}
	rf := &Reflector{
		cfg:       cfg,
		log:       log.With("component", "reflector", "app", cfg.App),
		ctx:       ctx,
		shutdown:  make(chan struct{}),
		receivers: map[string]*srt.Receiver{},
		loopRecs:  loopRecs,
	}
	ttl := cfg.AuthorizerTTL
	if ttl == 0 {
		ttl = 10 * time.Second
	}
	newAuth := func(url string) *Authorizer {
		if url == "" {
			return nil
		}
		return NewAuthorizer(url, ttl)
	}
	rf.publishPreAccept = newAuth(cfg.PublishPreAcceptURL)
	rf.publishAccept = newAuth(cfg.PublishAcceptURL)
	rf.playPreAccept = newAuth(cfg.PlayPreAcceptURL)
	rf.playAccept = newAuth(cfg.PlayAcceptURL)
	return rf
}

// Shutdown signals every Receiver's receive loop to stop.
func (rf *Reflector) Shutdown() { close(rf.shutdown) }

func normalizeMode(m string) string {
	if m == "" {
		return option.ModeRequest
	}
	return m
}

// OnPreAccept implements srt.Hook: spec.md §4.4's decision table, the
// in-process access list, and the external authorizer.
func (rf *Reflector) OnPreAccept(opt *option.Map, peer option.SockAddr, stream option.StreamOption) bool {
	resource := stream.ResourceName()
	if resource == "" {
		return false
	}
	mode := normalizeMode(stream.Mode())

	accessList, baseOption := rf.cfg.PublishAccess, rf.cfg.PublishOption
	if mode == option.ModeRequest {
		accessList, baseOption = rf.cfg.PlayAccess, rf.cfg.PlayOption
	}
	if !accessList.Allowed(peer, resource) {
		return false
	}

	rf.mu.Lock()
	_, known := rf.receivers[resource]
	lr, hasLoopRec := rf.loopRecs[resource]
	rf.mu.Unlock()

	var allow bool
	switch mode {
	case option.ModePublish:
		allow = !known
	case option.ModeRequest:
		switch {
		case known:
			allow = true
		case hasLoopRec:
			atStr := opt.GetStringDefault("at", "now", "now")
			_, allow = lr.IsAcceptable(atStr, time.Now().UTC())
		default:
			allow = false
		}
	default: // bidirectional, or anything unrecognised
		allow = false
	}
	if !allow {
		return false
	}

	applyDefaults(opt, baseOption)

	auth := rf.publishPreAccept
	if mode == option.ModeRequest {
		auth = rf.playPreAccept
	}
	return rf.authorize(auth, opt, peer, stream, resource, mode, "preaccept")
}

// authorize consults auth (if configured), merging any returned overrides
// into opt. Returns false only when an authorizer is configured and denies.
func (rf *Reflector) authorize(auth *Authorizer, opt *option.Map, peer option.SockAddr, stream option.StreamOption, resource, mode, hook string) bool {
	if auth == nil {
		return true
	}
	req := AuthRequest{
		App:      rf.cfg.App,
		Name:     resource,
		On:       hook,
		Call:     mode,
		Addr:     peer.String(),
		StreamID: mapFromOptions(stream.Map),
	}
	authOK, overrides := auth.Authorize(rf.ctx, req)
	if !authOK {
		return false
	}
	if overrides != nil {
		for _, k := range overrides.Keys() {
			opt.Set(k, overrides.GetString(k, ""))
		}
	}
	return true
}

// OnAccept implements srt.Hook: consults the accept-phase authorizer and
// wires up the Receiver/Sender/playback session per spec.md §4.4's "Accept
// phase". opt is rebuilt by the Listener from the streamid, so the defaults
// and overrides OnPreAccept merged are not present in it.
func (rf *Reflector) OnAccept(opt *option.Map, conn *srt.Conn, peer option.SockAddr, stream option.StreamOption) bool {
	resource := stream.ResourceName()
	mode := normalizeMode(stream.Mode())

	auth := rf.publishAccept
	if mode == option.ModeRequest {
		auth = rf.playAccept
	}
	if !rf.authorize(auth, opt, peer, stream, resource, mode, "accept") {
		return false
	}

	switch mode {
	case option.ModePublish:
		return rf.acceptPublish(opt, conn, stream, resource)
	case option.ModeRequest:
		return rf.acceptRequest(opt, conn, stream, resource)
	default:
		return false
	}
}

func (rf *Reflector) acceptPublish(opt *option.Map, conn *srt.Conn, stream option.StreamOption, resource string) bool {
	rf.mu.Lock()
	if _, exists := rf.receivers[resource]; exists {
		rf.mu.Unlock()
		return false
	}
	receiver := srt.NewReceiver(conn, opt, stream, rf.log)
	rf.receivers[resource] = receiver
	lr, hasLoopRec := rf.loopRecs[resource]
	rf.mu.Unlock()

	if hasLoopRec {
		receiver.AddConsumer(lr, 10, false)
	}
	// The Reflector itself is a zero-priority, unowned consumer solely to
	// learn of disconnection; it schedules map cleanup on a fresh
	// goroutine since OnDisconnected runs on the receive loop itself
	// (spec.md §4.4: "the Receiver cannot join itself").
	receiver.AddConsumer(&reflectorConsumer{rf: rf, resource: resource}, 0, false)

	go receiver.Run(rf.shutdown)
	rf.log.Info("publisher accepted", "resource", resource)
	return true
}

func (rf *Reflector) acceptRequest(opt *option.Map, conn *srt.Conn, stream option.StreamOption, resource string) bool {
	rf.mu.Lock()
	receiver, live := rf.receivers[resource]
	lr, hasLoopRec := rf.loopRecs[resource]
	rf.mu.Unlock()

	sender := srt.NewSender(conn, rf.log)

	if live {
		receiver.AddConsumer(sender, 0, true)
		sender.OnDisconnect(func() { receiver.RemoveConsumer(sender) })
		rf.log.Info("subscriber attached to live source", "resource", resource)
		return true
	}

	if !hasLoopRec {
		return false
	}
	atStr := opt.GetStringDefault("at", "now", "now")
	at, ok := lr.IsAcceptable(atStr, time.Now().UTC())
	if !ok {
		return false
	}
	speed := recorder.NewSpeed(opt.GetFloat("speed", 1.0))
	bufSize := opt.GetInt("buffer", 1316*7)
	if bufSize > 1456 {
		bufSize = 1456
	}
	gap := parseGapPolicy(opt.GetString("gap", "skip"))

	rf.log.Info("subscriber attached to archive", "resource", resource, "at", at, "speed", speed.Value())
	go lr.Play(rf.ctx, sender, recorder.PlaybackOptions{StartAt: at, Speed: speed, BufSize: bufSize, Gap: gap}, rf.log)
	return true
}

func parseGapPolicy(s string) recorder.GapPolicy {
	switch s {
	case "break":
		return recorder.GapBreak
	case "wait":
		return recorder.GapWait
	default:
		return recorder.GapSkip
	}
}

// applyDefaults fills keys present in base but absent from opt, so the
// caller's own streamid/per-request values always take precedence over the
// endpoint's configured `publish.option`/`play.option` (spec.md §4.4:
// "apply publish.option then per-request overrides").
func applyDefaults(opt *option.Map, base *option.Map) {
	if base == nil {
		return
	}
	for _, k := range base.Keys() {
		if !opt.Has(k) {
			opt.Set(k, base.GetString(k, ""))
		}
	}
}

func mapFromOptions(m *option.Map) map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for _, k := range m.Keys() {
		out[k] = m.GetString(k, "")
	}
	return out
}

// reflectorConsumer is the Reflector's own no-op Consumer registration used
// purely to observe a publisher's disconnection.
type reflectorConsumer struct {
	rf       *Reflector
	resource string
}

func (c *reflectorConsumer) OnReceive(opt *option.Map, data []byte, discrete bool) bool { return true }

func (c *reflectorConsumer) OnDisconnected(opt *option.Map) {
	go func() {
		c.rf.mu.Lock()
		delete(c.rf.receivers, c.resource)
		c.rf.mu.Unlock()
		c.rf.log.Info("publisher disconnected", "resource", c.resource)
	}()
}

// OnListenerFlag implements srt.FlagHook: every StatsInterval, logs each
// active Receiver's statistics rendering (spec.md §4.4's "periodic
// statistics").
func (rf *Reflector) OnListenerFlag() {
	if rf.cfg.StatsInterval <= 0 {
		return
	}
	now := time.Now()
	rf.mu.Lock()
	if !rf.lastStatsTick.IsZero() && now.Sub(rf.lastStatsTick) < rf.cfg.StatsInterval {
		rf.mu.Unlock()
		return
	}
	rf.lastStatsTick = now
	receivers := make(map[string]*srt.Receiver, len(rf.receivers))
	for k, v := range rf.receivers {
		receivers[k] = v
	}
	rf.mu.Unlock()

	for resource, recv := range receivers {
		rf.log.Info("receiver stats", "resource", resource, "stats", recv.Stats().Render(2, " "))
	}
}

var _ srt.Hook = (*Reflector)(nil)
var _ srt.FlagHook = (*Reflector)(nil)
