package option

// The key lists below are reproduced from original_source/src/option.cpp's
// s_sockopts_pre_bind / s_sockopts_pre / s_sockopts arrays: which streamid /
// config option keys apply at each point in the SRT socket lifecycle.

// PreBindSockopts apply before srt_bind (ListenOption::s_sockopts_pre_bind).
var PreBindSockopts = []string{
	"udpsndbuf", "udprcvbuf", "mss", "sndbuf", "rcvbuf", "ipttl", "iptos",
}

// PreAcceptSockopts apply during the listen callback, before the handshake
// completes (ListenOption::s_sockopts_pre / CallOption's pre set).
var PreAcceptSockopts = []string{
	"transtype", "pbkeylen", "passphrase", "fc", "rcvsyn", "linger",
	"latency", "tsbpdmode", "tlpktdrop", "snddropdelay", "nakreport",
	"conntimeo", "lossmaxttl", "rcvlatency", "peerlatency", "minversion",
	"streamid", "congestion", "messageapi", "payloadsize", "kmrefreshrate",
	"kmpreannounce", "enforcedencryption", "peeridletimeo", "packetfilter",
	"retransmitalgo",
}

// PostAcceptSockopts apply after the socket is fully established
// (ReceiveOption/SendOption::s_sockopts).
var PostAcceptSockopts = []string{
	"maxbw", "inputbw", "mininputbw", "oheadbw", "rcvtimeo", "sndtimeo", "sndsyn",
}

// CallSockopts is the union PreBind ∪ PreAccept applied by a Caller before
// connecting (CallOption::s_sockopts). Kept for completeness of the option
// hierarchy even though this spec's Listener never dials out.
func CallSockopts() []string {
	out := make([]string, 0, len(PreBindSockopts)+len(PreAcceptSockopts))
	out = append(out, PreBindSockopts...)
	out = append(out, PreAcceptSockopts...)
	return out
}

// Filter returns the subset of m whose keys appear in allowed, preserving m's
// order. Used to select which keys of a merged option map are eligible to be
// applied at a given lifecycle point.
func Filter(m *Map, allowed []string) *Map {
	set := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		set[k] = struct{}{}
	}
	out := New()
	for _, k := range m.Keys() {
		if _, ok := set[k]; ok {
			out.Set(k, m.GetString(k, ""))
		}
	}
	return out
}
