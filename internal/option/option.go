// Package option implements an ordered, case-insensitive key→value store
// used for configuration blocks, the SRT streamid field, and per-operation
// option strings (e.g. "r=ch1,m=publish,at=now-12").
package option

import (
	"strconv"
	"strings"
	"time"
)

// Map is an ordered, case-insensitive string→string option store with
// synonym support and typed coercion helpers. It mirrors the original
// implementation's URIOption: a map keyed case-insensitively, a synonym
// table that redirects one key name to another, and templated getters that
// distinguish "missing" from "present but blank".
type Map struct {
	keys     []string
	values   map[string]string
	synonyms map[string]string
}

// New returns an empty Map.
func New() *Map {
	return &Map{values: map[string]string{}, synonyms: map[string]string{}}
}

// Synonym registers synonym as an alternate spelling of key: subsequent
// lookups and sets of synonym operate on key instead.
func (m *Map) Synonym(key, synonym string) {
	if m.synonyms == nil {
		m.synonyms = map[string]string{}
	}
	m.synonyms[lower(synonym)] = lower(key)
}

func (m *Map) actualKey(key string) string {
	k := lower(key)
	if real, ok := m.synonyms[k]; ok {
		return real
	}
	return k
}

func lower(s string) string { return strings.ToLower(s) }

// Set stores value under key (applying any registered synonym redirect).
func (m *Map) Set(key, value string) {
	k := m.actualKey(key)
	if m.values == nil {
		m.values = map[string]string{}
	}
	if _, exists := m.values[k]; !exists {
		m.keys = append(m.keys, k)
	}
	m.values[k] = value
}

// Has reports whether key (or its synonym) is present.
func (m *Map) Has(key string) bool {
	_, ok := m.values[m.actualKey(key)]
	return ok
}

// HasExcept reports whether key is present and its value does not equal except.
func (m *Map) HasExcept(key, except string) bool {
	v, ok := m.values[m.actualKey(key)]
	return ok && v != except
}

// Erase removes key.
func (m *Map) Erase(key string) {
	k := m.actualKey(key)
	if _, ok := m.values[k]; !ok {
		return
	}
	delete(m.values, k)
	for i, existing := range m.keys {
		if existing == k {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// GetString returns the string value for key, or defval if absent.
func (m *Map) GetString(key, defval string) string {
	if v, ok := m.values[m.actualKey(key)]; ok {
		return v
	}
	return defval
}

// GetStringDefault mirrors URIOption::Get<Type>(key, defNoEntry, defBlank):
// defNoEntry is returned when the key is absent, defBlank when present but
// an empty string.
func (m *Map) GetStringDefault(key, defNoEntry, defBlank string) string {
	v, ok := m.values[m.actualKey(key)]
	if !ok {
		return defNoEntry
	}
	if v == "" {
		return defBlank
	}
	return v
}

// GetBool parses the value as a bool ("0"/"1"/"true"/"false"), or defval on
// absence or parse failure.
func (m *Map) GetBool(key string, defval bool) bool {
	v, ok := m.values[m.actualKey(key)]
	if !ok {
		return defval
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defval
	}
}

// GetInt parses the value as an int, or defval on absence or parse failure.
func (m *Map) GetInt(key string, defval int) int {
	v, ok := m.values[m.actualKey(key)]
	if !ok {
		return defval
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defval
	}
	return n
}

// GetFloat parses the value as a float64, or defval on absence or parse failure.
func (m *Map) GetFloat(key string, defval float64) float64 {
	v, ok := m.values[m.actualKey(key)]
	if !ok {
		return defval
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return defval
	}
	return f
}

// GetDurationMs parses the value as a count of milliseconds, or defval on
// absence or parse failure. The JSON config's millisecond keys
// (index_interval/prefetch/queue) are decoded as plain ints by
// internal/config and do not go through this method.
func (m *Map) GetDurationMs(key string, defval time.Duration) time.Duration {
	v, ok := m.values[m.actualKey(key)]
	if !ok {
		return defval
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return defval
	}
	return time.Duration(n) * time.Millisecond
}

// Clone returns a deep copy, used when handing a mutable option map to a
// PreAccept hook that may set "pre" options without affecting the original.
func (m *Map) Clone() *Map {
	out := New()
	out.keys = append([]string(nil), m.keys...)
	out.values = make(map[string]string, len(m.values))
	for k, v := range m.values {
		out.values[k] = v
	}
	out.synonyms = make(map[string]string, len(m.synonyms))
	for k, v := range m.synonyms {
		out.synonyms[k] = v
	}
	return out
}

// Merge sets every key from other into m, overwriting existing values.
func (m *Map) Merge(other *Map) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		m.Set(k, other.values[k])
	}
}

// ParseOptionString parses a "k1=v1,k2=v2" style string (the form used for
// streamid sub-options and the JSON config's inline option strings) into a
// new Map. Keys and values are used verbatim; percent-decoding, when
// required by the streamid grammar, is the caller's responsibility (see
// streamoption.go) because the plain "k=v,k=v" form used by config option
// blocks is never percent-encoded.
func ParseOptionString(s, pairSep, kvSep string) *Map {
	m := New()
	if s == "" {
		return m
	}
	for _, pair := range strings.Split(s, pairSep) {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, kvSep, 2)
		if len(kv) == 1 {
			m.Set(kv[0], "")
			continue
		}
		m.Set(kv[0], kv[1])
	}
	return m
}

// Encode renders m back to a "k1=v1,k2=v2" string in key-insertion order.
func (m *Map) Encode(pairSep, kvSep string) string {
	var b strings.Builder
	for i, k := range m.keys {
		if i > 0 {
			b.WriteString(pairSep)
		}
		b.WriteString(k)
		b.WriteString(kvSep)
		b.WriteString(m.values[k])
	}
	return b.String()
}
