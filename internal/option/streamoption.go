package option

import "strings"

// StreamOption wraps Map with the SRT streamid accessors and the three
// grammars spec.md §6 requires:
//
//  1. "#!::k=v,k=v,…"  or its percent-encoded spelling "%23!::k=v,…"
//  2. "<resource>;k=v,k=v,…"   (the part before ';' becomes r=…, percent-decoded)
//  3. a bare "k=v,k=v,…" string with no recognised prefix
//
// Grounded on original_source/src/option.h's StreamOption and
// option.cpp's StreamOption::ParseStreamId.
type StreamOption struct {
	*Map
}

const (
	standardPrefix    = "#!::"
	encodedPrefix     = "%23!::"
	percentEncodedAlt = "%23%21%3A%3A" // fully percent-encoded variant seen from some clients
)

// ParseStreamID parses an SRTO_STREAMID value per the grammar above.
func ParseStreamID(streamID string) StreamOption {
	m := New()
	so := StreamOption{Map: m}
	so.registerSynonyms()

	switch {
	case strings.HasPrefix(streamID, standardPrefix):
		so.Merge(ParseOptionString(streamID[len(standardPrefix):], ",", "="))
	case strings.HasPrefix(streamID, encodedPrefix):
		so.Merge(ParseOptionString(streamID[len(encodedPrefix):], ",", "="))
	case strings.HasPrefix(streamID, percentEncodedAlt):
		so.Merge(ParseOptionString(streamID[len(percentEncodedAlt):], ",", "="))
	case strings.Contains(streamID, ";"):
		parts := strings.SplitN(streamID, ";", 2)
		so.Set("r", DecodeURI(parts[0]))
		if len(parts) == 2 {
			so.Merge(ParseOptionString(parts[1], ",", "="))
		}
	default:
		so.Merge(ParseOptionString(streamID, ",", "="))
	}
	return so
}

func (so StreamOption) registerSynonyms() {
	so.Synonym("x", "speed")
}

// ResourceName, UserName, HostName, SessionID, Type, Mode are the recognised
// keys from spec.md §6: r, u, h, s, t, m.
func (so StreamOption) ResourceName() string { return so.GetStringDefault("r", "", "") }
func (so StreamOption) UserName() string     { return so.GetStringDefault("u", "", "") }
func (so StreamOption) HostName() string     { return so.GetStringDefault("h", "", "") }
func (so StreamOption) SessionID() string    { return so.GetStringDefault("s", "", "") }
func (so StreamOption) Type() string         { return so.GetStringDefault("t", "", "") }
func (so StreamOption) Mode() string         { return so.GetStringDefault("m", "", "") }

// Mode constants (spec.md §4.4).
const (
	ModePublish       = "publish"
	ModeRequest       = "request"
	ModeBidirectional = "bidirectional"
)
