package srt

import (
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/reflect/internal/option"
)

// applySockopts copies recognised keys from m onto cfg. The exact field
// names of srtgo.Config beyond Latency (used by the teacher in
// ingest/srt/server.go) are not verifiable from the retrieved example
// sources, so this function is the single place that maps the option keys
// of original_source/src/option.cpp onto the binding's Config struct;
// unrecognised keys are silently ignored rather than failing the handshake,
// matching the original's "only touches options present in the map" rule.
// listener.go additionally sets cfg.Backlog, cfg.EpollTimeout, and
// cfg.IPv6Only directly per bound address (spec.md §4.1); those are not
// streamid/config-option keys, so they stay out of this function.
func applySockopts(cfg *srtgo.Config, m *option.Map) {
	if m == nil {
		return
	}
	if m.Has("latency") {
		cfg.Latency = time.Duration(m.GetInt("latency", 120)) * time.Millisecond
	}
	if m.Has("peerlatency") {
		cfg.PeerLatency = time.Duration(m.GetInt("peerlatency", 120)) * time.Millisecond
	}
	if m.Has("rcvlatency") {
		cfg.ReceiverLatency = time.Duration(m.GetInt("rcvlatency", 120)) * time.Millisecond
	}
	if m.Has("passphrase") {
		cfg.Passphrase = m.GetString("passphrase", "")
	}
	if m.Has("pbkeylen") {
		cfg.PBKeyLen = m.GetInt("pbkeylen", 0)
	}
	if m.Has("payloadsize") {
		cfg.PayloadSize = m.GetInt("payloadsize", 0)
	}
	if m.Has("tlpktdrop") {
		cfg.TooLatePacketDrop = m.GetBool("tlpktdrop", true)
	}
	if m.Has("tsbpdmode") {
		cfg.TSBPDMode = m.GetBool("tsbpdmode", true)
	}
	if m.Has("nakreport") {
		cfg.NAKReport = m.GetBool("nakreport", true)
	}
	if m.Has("conntimeo") {
		cfg.ConnectionTimeout = time.Duration(m.GetInt("conntimeo", 3000)) * time.Millisecond
	}
	if m.Has("mss") {
		cfg.MSS = m.GetInt("mss", 1500)
	}
	if m.Has("fc") {
		cfg.FlightFlagSize = m.GetInt("fc", 25600)
	}
	if m.Has("sndbuf") {
		cfg.SendBufferSize = m.GetInt("sndbuf", 0)
	}
	if m.Has("rcvbuf") {
		cfg.ReceiveBufferSize = m.GetInt("rcvbuf", 0)
	}
	if m.Has("streamid") {
		cfg.StreamId = m.GetString("streamid", "")
	}
	if m.Has("messageapi") {
		cfg.MessageAPI = m.GetBool("messageapi", true)
	}
	if m.Has("enforcedencryption") {
		cfg.EnforcedEncryption = m.GetBool("enforcedencryption", true)
	}
	if m.Has("maxbw") {
		cfg.MaxBW = int64(m.GetInt("maxbw", 0))
	}
	if m.Has("inputbw") {
		cfg.InputBW = int64(m.GetInt("inputbw", 0))
	}
	if m.Has("oheadbw") {
		cfg.OverheadBW = int64(m.GetInt("oheadbw", 25))
	}
	if m.Has("rcvtimeo") {
		cfg.ReceiveTimeout = time.Duration(m.GetInt("rcvtimeo", -1)) * time.Millisecond
	}
	if m.Has("sndtimeo") {
		cfg.SendTimeout = time.Duration(m.GetInt("sndtimeo", -1)) * time.Millisecond
	}
}

// defaultConfig returns srtgo's base config the way ingest/srt/server.go
// does, with the spec's default 120ms latency (srtLatencyNs there).
func defaultConfig() srtgo.Config {
	cfg := srtgo.DefaultConfig()
	cfg.Latency = 120 * time.Millisecond
	return cfg
}
