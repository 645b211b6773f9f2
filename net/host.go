package net

import (
	"net"
	"strings"
)

// ParseOrigin splits an origin reference into scheme and host. The
// input may be a plain hostname, a host:port pair or an absolute URL.
// Path, query and fragment are stripped, the hostname is lowercased
// and loses a trailing dot, a port is preserved. The scheme is empty
// unless the reference was an absolute http or https URL.
func ParseOrigin(origin string) (scheme, host string) {
	host = origin

	if i := strings.Index(host, "://"); i != -1 {
		scheme = strings.ToLower(host[:i])
		host = host[i+3:]

		if scheme != "http" && scheme != "https" {
			scheme = ""
		}
	}

	if i := strings.IndexAny(host, "/?#"); i != -1 {
		host = host[:i]
	}

	h, port := host, ""

	// avoid net.SplitHostPort for values without port
	if strings.IndexByte(host, ':') != -1 {
		if sh, sp, err := net.SplitHostPort(host); err == nil {
			h, port = sh, sp
		}
	}

	last := len(h) - 1
	if last >= 0 && h[last] == '.' {
		h = h[:last]
	}

	h = strings.ToLower(h)

	if port != "" {
		return scheme, net.JoinHostPort(h, port)
	}

	return scheme, h
}

// NormalizeHost reduces an origin reference to a bare hostname with
// the port stripped as well. Cookie and hostname comparisons operate
// on this form only.
func NormalizeHost(origin string) string {
	_, host := ParseOrigin(origin)

	if strings.IndexByte(host, ':') != -1 {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}

	return host
}

// HostsEqual reports whether two origin references resolve to the same
// normalized hostname. Empty references never match anything.
func HostsEqual(a, b string) bool {
	na, nb := NormalizeHost(a), NormalizeHost(b)
	return na != "" && na == nb
}
