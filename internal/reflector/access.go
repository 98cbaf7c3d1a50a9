package reflector

import (
	"regexp"
	"strings"
	"sync"

	"github.com/zsiec/reflect/internal/option"
)

// AccessRule is one `{name, allow, deny}` entry of `publish.access[]` /
// `play.access[]` (spec.md §6): name is a resource glob, allow/deny are peer
// address patterns (CIDR, exact IP, or `*`; see option.SockAddr.Match).
// The `%` wildcard applies to Name only. Only one of
// Allow/Deny is normally set per rule.
type AccessRule struct {
	Name  string
	Allow string
	Deny  string
}

// AccessList is an ordered list of AccessRule evaluated front-to-back: the
// first rule whose Name matches the resource and whose Allow/Deny pattern
// matches the peer decides the outcome; absent any match, the default is
// allow. Grounded on original_source/src/access.cpp's ordered rule table and
// spec.md §8's "access-list precedence" property.
type AccessList []AccessRule

// Allowed evaluates the list against peer/resource.
func (a AccessList) Allowed(peer option.SockAddr, resource string) bool {
	for _, rule := range a {
		if !patternMatch(rule.Name, resource) {
			continue
		}
		if rule.Deny != "" && peer.Match(rule.Deny) {
			return false
		}
		if rule.Allow != "" && peer.Match(rule.Allow) {
			return true
		}
	}
	return true
}

var (
	patternCacheMu sync.Mutex
	patternCache   = map[string]*regexp.Regexp{}
)

// patternMatch implements the glob-style grammar of spec.md §4.4: `*` means
// "any run", `%` means "any single character", every other regex
// metacharacter is escaped. Grounded on original_source/src/access.cpp's
// PatternMatch. patternCache is shared across every Reflector's OnPreAccept,
// each invoked on its own Listener's accept thread (spec.md §4.1/§4.4), so
// access is mutex-guarded the same way Authorizer.cache is.
func patternMatch(pattern, s string) bool {
	patternCacheMu.Lock()
	re, ok := patternCache[pattern]
	patternCacheMu.Unlock()
	if !ok {
		re = regexp.MustCompile("^" + globToRegexp(pattern) + "$")
		patternCacheMu.Lock()
		patternCache[pattern] = re
		patternCacheMu.Unlock()
	}
	return re.MatchString(s)
}

func globToRegexp(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '%':
			b.WriteString(".")
		default:
			if strings.ContainsRune(`\.+^$()[]{}|?`, r) {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
