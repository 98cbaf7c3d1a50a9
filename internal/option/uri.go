package option

import (
	"fmt"
	"strconv"
	"strings"
)

// URI is a minimally-parsed URI: scheme, authority (split into
// user/pass/host/port), path, query, fragment. It exists so the `uri` form
// of a reflects[] config entry (spec.md §6) can be decoded without pulling
// in net/url's stricter RFC 3986 validation, which rejects some of the
// address forms the original accepted (bare host:port with no path).
type URI struct {
	Scheme   string
	User     string
	Pass     string
	Host     string
	Port     string
	Path     string
	Query    string
	Fragment string
}

// Parse splits raw into a URI. It is deliberately permissive: missing
// pieces are left blank rather than erroring, mirroring URIUtil::SplitURI's
// scan-and-slice approach instead of a validating grammar.
func Parse(raw string) URI {
	var u URI
	rest := raw

	if i := strings.Index(rest, "://"); i >= 0 {
		u.Scheme = rest[:i]
		rest = rest[i+3:]
	} else if i := strings.Index(rest, ":"); i >= 0 && !strings.Contains(rest[:i], "/") {
		// scheme: without authority slashes, e.g. "mailto:" style; not used
		// by this spec's srt:// URIs but kept for completeness of URIUtil.
	}

	if i := strings.Index(rest, "#"); i >= 0 {
		u.Fragment = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.Index(rest, "?"); i >= 0 {
		u.Query = rest[i+1:]
		rest = rest[:i]
	}

	authority := rest
	if i := strings.Index(rest, "/"); i >= 0 {
		authority = rest[:i]
		u.Path = rest[i:]
	}

	if authority != "" {
		SplitAuthority(authority, &u.User, &u.Pass, &u.Host, &u.Port)
	}
	return u
}

// SplitAuthority splits "user:pass@host:port" into its parts, grounded on
// URIUtil::SplitAuthority.
func SplitAuthority(authority string, user, pass, host, port *string) {
	rest := authority
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		userinfo := rest[:i]
		rest = rest[i+1:]
		if j := strings.Index(userinfo, ":"); j >= 0 {
			*user = userinfo[:j]
			*pass = userinfo[j+1:]
		} else {
			*user = userinfo
		}
	}
	if strings.HasPrefix(rest, "[") {
		// IPv6 literal, e.g. "[::1]:6000"
		if j := strings.Index(rest, "]"); j >= 0 {
			*host = rest[1:j]
			if k := strings.Index(rest[j:], ":"); k >= 0 {
				*port = rest[j+k+1:]
			}
			return
		}
	}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		*host = rest[:i]
		*port = rest[i+1:]
		return
	}
	*host = rest
}

// QueryOptions parses u.Query into an option Map using "&"/"=" separators, the form
// used by the `uri` config key to carry SRT options (spec.md §6: "its host,
// port, and query feed the above").
func (u URI) QueryOptions() *Map {
	return ParseOptionString(u.Query, "&", "=")
}

// DecodeURI percent-decodes s, grounded on URIUtil::DecodeURI.
func DecodeURI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%':
			if i+2 < len(s) {
				if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
					b.WriteByte(byte(n))
					i += 2
					continue
				}
			}
			b.WriteByte('%')
		case '+':
			b.WriteByte(' ')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// EncodeURI percent-encodes s, leaving characters in safe untouched in
// addition to RFC 3986 unreserved characters, grounded on URIUtil::EncodeURI.
func EncodeURI(s, safe string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(safe, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	default:
		return false
	}
}
