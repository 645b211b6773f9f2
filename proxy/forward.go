package proxy

import (
	"net/http"

	"github.com/vercel-solutions/blue-green-deployments-vercel-3/routing"
)

const (
	// bypassHeader authorizes the forwarded request to skip platform
	// protection on the target deployment.
	bypassHeader = "X-Vercel-Protection-Bypass"

	// unknownBypassSecret is sent when no bypass secret is
	// configured, an explicit signal of misconfiguration at the
	// target instead of a silently missing header.
	unknownBypassSecret = "unknown"
)

var hopHeaders = map[string]bool{
	"Te":                  true,
	"Connection":          true,
	"Proxy-Connection":    true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// mapRequest creates the outgoing request for the cross-deployment
// forward: same method and body, cloned end-to-end headers, the
// re-routing marker, the bypass authorization, and the URL host
// rewritten to the target origin. The scheme of the configured origin
// wins, https when it carried none.
func mapRequest(r *http.Request, d routing.Decision, env routing.Environment) (*http.Request, error) {
	u := *r.URL
	u.Host = d.Host
	u.Scheme = d.Scheme
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}

	rr, err := http.NewRequestWithContext(r.Context(), r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	rr.ContentLength = r.ContentLength
	rr.Header = cloneHeaderExcluding(r.Header, hopHeaders)
	rr.Host = d.Host

	rr.Header.Set(routing.OverrideHeader, d.Host)

	secret := env.BypassSecret
	if secret == "" {
		secret = unknownBypassSecret
	}
	rr.Header.Set(bypassHeader, secret)

	return rr, nil
}

func cloneHeaderExcluding(h http.Header, excludeList map[string]bool) http.Header {
	hh := make(http.Header)
	for k, v := range h {
		if !excludeList[http.CanonicalHeaderKey(k)] {
			hh[k] = v
		}
	}

	return hh
}

func copyHeader(to, from http.Header) {
	for k, v := range from {
		to[http.CanonicalHeaderKey(k)] = v
	}
}
